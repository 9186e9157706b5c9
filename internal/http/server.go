// Package http serves the variance dashboard and its JSON API.
package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	applog "cruscotto/internal/log"
	"cruscotto/internal/middleware/ratelimit"
	"cruscotto/internal/middleware/security"
	"cruscotto/internal/middleware/trace"
	"cruscotto/internal/services"
	"cruscotto/internal/storage"
	appweb "cruscotto/web"
)

const (
	defaultRequestTimeout = 15 * time.Second
	defaultTitle          = "Cruscotto"
	staticMaxAge          = 3600
)

// Ledger exposes the publication history kept by the sqlite backend.
type Ledger interface {
	Ping(ctx context.Context) error
	LastImport(ctx context.Context) (time.Time, bool, error)
	RecentPublications(ctx context.Context, limit int) ([]storage.Publication, error)
	PublicationCounts(ctx context.Context) (map[string]int64, error)
}

// Options tunes a Server. The zero value serves the embedded templates
// with default limits.
type Options struct {
	Logger *applog.Logger
	// Title is shown in the page header.
	Title string
	// Ledger is nil unless the sqlite backend is in use.
	Ledger Ledger
	// PublishEnabled shows the publish button.
	PublishEnabled bool
	RateLimit      ratelimit.Config
	TrustedProxies []string
	RequestTimeout time.Duration
	// Templates and Static default to the embedded web assets.
	Templates fs.FS
	Static    fs.FS
}

// Server is the dashboard HTTP server.
type Server struct {
	http.Server

	reports   *services.ReportService
	ledger    Ledger
	templates *template.Template
	logger    *applog.Logger
	title     string
	publish   bool
	timeout   time.Duration

	detector *security.Detector
	limiter  *ratelimit.Limiter
	tracer   *trace.Middleware

	started         time.Time
	publishRequests atomic.Int64
	reportsRendered atomic.Int64
	shutdownOnce    sync.Once
}

// NewServer configures routes, middleware and templates. A template parse
// failure is logged and reported by /readyz.
func NewServer(addr string, reports *services.ReportService, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	s := &Server{
		reports:  reports,
		ledger:   opts.Ledger,
		logger:   logger,
		title:    opts.Title,
		publish:  opts.PublishEnabled,
		timeout:  opts.RequestTimeout,
		detector: security.NewDetector(),
		limiter:  ratelimit.NewLimiter(opts.RateLimit),
		started:  time.Now(),
	}
	if s.title == "" {
		s.title = defaultTitle
	}
	if s.timeout <= 0 {
		s.timeout = defaultRequestTimeout
	}
	for _, cidr := range opts.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", applog.FieldError, err)
		}
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	templatesFS := opts.Templates
	if templatesFS == nil {
		templatesFS = appweb.TemplatesFS
	}
	t, err := template.New("").Funcs(templateFuncs).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		logger.Warn("Failed parsing templates", applog.FieldError, err)
	} else {
		s.templates = t
	}

	staticFS := opts.Static
	if staticFS == nil {
		staticFS = appweb.StaticFS
	}

	mux := http.NewServeMux()
	if sub, err := fs.Sub(staticFS, "static"); err == nil {
		mux.Handle("GET /static/", security.CacheControl(staticMaxAge)(
			http.StripPrefix("/static/", http.FileServer(http.FS(sub)))))
	} else {
		logger.Warn("Failed to mount embedded static FS", applog.FieldError, err)
	}

	noStore := security.CacheControl(0)
	api := func(h http.HandlerFunc) http.Handler { return noStore(h) }

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /ui/report", s.handleReportPartial)
	mux.HandleFunc("GET /ui/balance-sheet", s.handleBalanceSheetPartial)
	mux.HandleFunc("GET /ui/cash-flow", s.handleCashFlowPartial)

	mux.Handle("GET /api/periods", api(s.handlePeriods))
	mux.Handle("GET /api/report", api(s.handleReport))
	mux.Handle("GET /api/balance-sheet", api(s.handleBalanceSheet))
	mux.Handle("GET /api/cash-flow", api(s.handleCashFlow))
	mux.Handle("POST /api/report/publish", s.limiter.Middleware(s.detector.ExtractClientIP, s.handleRateLimited)(api(s.handlePublish)))
	mux.Handle("GET /api/publications", api(s.handlePublications))
	mux.Handle("GET /api/publications/{id}", api(s.handlePublication))

	mux.Handle("GET /healthz", api(s.handleHealth))
	mux.Handle("GET /readyz", api(s.handleReady))
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	var handler http.Handler = mux
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.detector.Middleware(logger)(handler)
	handler = applog.Middleware(logger, trace.RequestID)(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown stops the rate limiter and gracefully shuts the server down.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// requestContext bounds reads from slow backends such as Google Sheets.
func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.timeout)
}
