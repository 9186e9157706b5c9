package security

import (
	"bytes"
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	applog "cruscotto/internal/log"
)

func TestInspect(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		target         string
		userAgent      string
		wantSuspicious bool
		wantBlocked    bool
	}{
		{"report request", http.MethodGet, "/api/report?period_1=Budget+2025", "Mozilla/5.0", false, false},
		{"csv export with curl", http.MethodGet, "/api/report?format=csv", "curl/8.4.0", false, false},
		{"dotenv probe", http.MethodGet, "/.env", "", true, true},
		{"git probe", http.MethodGet, "/.git/config", "", true, true},
		{"script in query", http.MethodGet, "/api/report?period_1=%3Cscript%3E", "", true, false},
		{"scanner agent", http.MethodGet, "/", "sqlmap/1.7", true, false},
		{"trace method", "TRACE", "/", "", true, true},
		{"overlong url", http.MethodGet, "/?q=" + strings.Repeat("a", maxURLLength), "", true, true},
	}

	d := NewDetector()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, nil)
			if tt.userAgent != "" {
				req.Header.Set("User-Agent", tt.userAgent)
			}
			suspicious, blocked := d.Inspect(req)
			if suspicious != tt.wantSuspicious || blocked != tt.wantBlocked {
				t.Errorf("Inspect() = (%v, %v), want (%v, %v)", suspicious, blocked, tt.wantSuspicious, tt.wantBlocked)
			}
		})
	}
}

func TestDetectorMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := applog.New(applog.Config{Output: &buf})
	d := NewDetector()

	reached := 0
	h := d.Middleware(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { reached++ }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/wp-admin/", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("blocked request status = %d, want 400", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("User-Agent", "nikto")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("suspicious request status = %d, want 200", rec.Code)
	}

	if reached != 1 {
		t.Errorf("handler reached %d times, want 1", reached)
	}
	m := d.GetMetrics()
	if m.SuspiciousRequests != 2 || m.BlockedRequests != 1 {
		t.Errorf("metrics = %+v, want 2 suspicious, 1 blocked", m)
	}
	if !strings.Contains(buf.String(), "Suspicious request") {
		t.Errorf("suspicious request not logged: %s", buf.String())
	}
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xRealIP    string
		want       string
	}{
		{"direct client", "198.51.100.4:5000", "", "", "198.51.100.4"},
		{"untrusted peer ignores xff", "198.51.100.4:5000", "203.0.113.9", "", "198.51.100.4"},
		{"trusted proxy xff", "10.0.0.2:5000", "203.0.113.9, 10.0.0.1", "", "203.0.113.9"},
		{"trusted proxy real ip", "127.0.0.1:5000", "", "203.0.113.10", "203.0.113.10"},
		{"trusted proxy bad xff", "192.168.1.1:5000", "garbage", "", "192.168.1.1"},
		{"spoofed leftmost entry ignored", "10.0.0.2:5000", "1.2.3.4, 203.0.113.9", "", "203.0.113.9"},
		{"garbage left of client ignored", "10.0.0.2:5000", "garbage, 203.0.113.9", "", "203.0.113.9"},
		{"trusted hops skipped", "127.0.0.1:5000", "203.0.113.9, 10.0.0.7, 192.168.0.3", "", "203.0.113.9"},
		{"all hops trusted", "10.0.0.2:5000", "10.0.0.5, 10.0.0.1", "", "10.0.0.5"},
		{"xff wins over real ip", "10.0.0.2:5000", "203.0.113.9", "198.51.100.7", "203.0.113.9"},
		{"no port", "198.51.100.4", "", "", "198.51.100.4"},
	}

	d := NewDetector()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xRealIP != "" {
				req.Header.Set("X-Real-IP", tt.xRealIP)
			}
			if got := d.ExtractClientIP(req); got != tt.want {
				t.Errorf("ExtractClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAddTrustedProxy(t *testing.T) {
	d := NewDetector()
	if err := d.AddTrustedProxy("not-a-cidr"); err == nil {
		t.Error("expected error for invalid CIDR")
	}
	if err := d.AddTrustedProxy("198.51.100.0/24"); err != nil {
		t.Fatalf("AddTrustedProxy: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.4:5000"
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	if got := d.ExtractClientIP(req); got != "203.0.113.9" {
		t.Errorf("ExtractClientIP() = %q, want forwarded address", got)
	}
}

func TestHeadersMiddleware(t *testing.T) {
	h := NewHeadersMiddleware(DefaultHeadersConfig()).Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if csp := rec.Header().Get("Content-Security-Policy"); !strings.Contains(csp, "https://unpkg.com") {
		t.Errorf("CSP does not allow htmx: %q", csp)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
	if got := rec.Header().Get("Strict-Transport-Security"); got != "" {
		t.Errorf("HSTS sent over plain HTTP: %q", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Strict-Transport-Security"); got != "max-age=31536000; includeSubDomains" {
		t.Errorf("HSTS = %q", got)
	}
}

func TestHeadersMiddlewareSkipsEmpty(t *testing.T) {
	h := NewHeadersMiddleware(HeadersConfig{XFrameOptions: "SAMEORIGIN"}).Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if _, ok := rec.Header()["Content-Security-Policy"]; ok {
		t.Error("empty CSP should not be sent")
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "SAMEORIGIN" {
		t.Errorf("X-Frame-Options = %q", got)
	}
}

func TestCacheControl(t *testing.T) {
	tests := []struct {
		maxAge int
		want   string
	}{
		{0, "no-store"},
		{3600, "public, max-age=3600, immutable"},
	}
	for _, tt := range tests {
		h := CacheControl(tt.maxAge)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if got := rec.Header().Get("Cache-Control"); got != tt.want {
			t.Errorf("CacheControl(%d) = %q, want %q", tt.maxAge, got, tt.want)
		}
	}
}
