package http

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"time"

	"cruscotto/internal/core"
	"cruscotto/internal/export"
	applog "cruscotto/internal/log"
	"cruscotto/internal/services"
	"cruscotto/internal/sheets/excel"
	"cruscotto/internal/storage"
)

const (
	balanceSheetTitle = "Stato Patrimoniale"
	cashFlowTitle     = "Rendiconto Finanziario"

	defaultPublicationsLimit = 20
	maxPublicationsLimit     = 100
)

type indexView struct {
	Title          string
	Periods        []string
	Period1        string
	Period2        string
	ShowDetail     bool
	PublishEnabled bool
	Error          string
}

type reportView struct {
	core.FormattedReport
	Cached bool
	Error  string
}

type tableView struct {
	Title   string
	Columns []string
	Rows    [][]string
	Error   string
}

type reportResponse struct {
	core.FormattedReport
	Title  string `json:"title"`
	Cached bool   `json:"cached"`
}

type publicationView struct {
	ID         string `json:"id"`
	Period1    string `json:"period_1"`
	Period2    string `json:"period_2"`
	ShowDetail bool   `json:"show_detail"`
	Status     string `json:"status"`
	SheetRef   string `json:"sheet_ref,omitempty"`
	Error      string `json:"error,omitempty"`
	Attempts   int    `json:"attempts"`
	CreatedAt  string `json:"created_at,omitempty"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

func newPublicationView(p storage.Publication) publicationView {
	v := publicationView{
		ID:         p.ID,
		Period1:    p.Period1,
		Period2:    p.Period2,
		ShowDetail: p.ShowDetail,
		Status:     p.Status,
		SheetRef:   p.SheetRef,
		Error:      p.Error,
		Attempts:   p.Attempts,
	}
	if !p.CreatedAt.IsZero() {
		v.CreatedAt = p.CreatedAt.Format(time.RFC3339)
	}
	if !p.UpdatedAt.IsZero() {
		v.UpdatedAt = p.UpdatedAt.Format(time.RFC3339)
	}
	return v
}

// render executes a template into a buffer so that a failure never leaves
// a half-written page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	if s.templates == nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Templates not loaded",
			applog.FieldPath, r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
			applog.FieldOperation, applog.OpRender,
			"template", name,
			applog.FieldError, err)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	q := ParseReportQuery(r.URL.Query())
	view := indexView{
		Title:          s.title,
		ShowDetail:     q.ShowDetail,
		PublishEnabled: s.publish,
	}

	periods, err := s.reports.Periods(ctx)
	if err != nil {
		applog.FromContext(ctx).ErrorContext(ctx, "Period list error", applog.FieldError, err)
		view.Error = "Impossibile leggere il conto economico: " + errorMessage(err, errorStatus(err))
		s.render(w, r, "index.html", view)
		return
	}
	view.Periods = periods
	if p1, p2, err := core.ResolvePeriods(periods, q.Period1, q.Period2); err == nil {
		view.Period1, view.Period2 = p1, p2
	} else {
		view.Period1, view.Period2, _ = core.DefaultPeriods(periods)
	}
	s.render(w, r, "index.html", view)
}

// handleReportPartial renders the report table. Errors are rendered in
// place so htmx swaps them in.
func (s *Server) handleReportPartial(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	res, err := s.computeReport(ctx, ParseReportQuery(r.URL.Query()))
	if err != nil {
		applog.FromContext(ctx).WarnContext(ctx, "Report partial error", applog.FieldError, err)
		s.render(w, r, "report.html", reportView{Error: errorMessage(err, errorStatus(err))})
		return
	}
	s.render(w, r, "report.html", reportView{FormattedReport: res.Formatted, Cached: res.Cached})
}

func (s *Server) handleBalanceSheetPartial(w http.ResponseWriter, r *http.Request) {
	s.renderTable(w, r, balanceSheetTitle, s.reports.BalanceSheet)
}

func (s *Server) handleCashFlowPartial(w http.ResponseWriter, r *http.Request) {
	s.renderTable(w, r, cashFlowTitle, s.reports.CashFlow)
}

func (s *Server) renderTable(w http.ResponseWriter, r *http.Request, title string, load func(context.Context) (core.FormattedTable, error)) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	view := tableView{Title: title}
	t, err := load(ctx)
	if err != nil {
		applog.FromContext(ctx).WarnContext(ctx, "Sheet partial error", applog.FieldSheet, title, applog.FieldError, err)
		view.Error = errorMessage(err, errorStatus(err))
	} else {
		view.Columns, view.Rows = t.Columns, t.Rows
	}
	s.render(w, r, "table.html", view)
}

func (s *Server) computeReport(ctx context.Context, q services.ReportQuery) (*services.ReportResult, error) {
	res, err := s.reports.Report(ctx, q)
	if err != nil {
		return nil, err
	}
	s.reportsRendered.Add(1)
	applog.NewStructuredLogger(applog.FromContext(ctx)).LogReportComputed(ctx,
		res.Report.Period1, res.Report.Period2, res.Report.ShowDetail, len(res.Report.Rows), res.Cached)
	return res, nil
}

func (s *Server) handlePeriods(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	periods, err := s.reports.Periods(ctx)
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	resp := map[string]any{"periods": periods}
	if p1, p2, ok := core.DefaultPeriods(periods); ok {
		resp["default_period_1"] = p1
		resp["default_period_2"] = p2
	}
	if s.ledger != nil {
		if at, ok, err := s.ledger.LastImport(ctx); err == nil && ok {
			resp["last_import"] = at.Format(time.RFC3339)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleReport serves the report as JSON, or as a CSV, XLSX or PDF
// download depending on the format parameter.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	query := r.URL.Query()
	format, ok := s.parseFormat(w, query.Get(paramFormat))
	if !ok {
		return
	}

	res, err := s.computeReport(ctx, ParseReportQuery(query))
	if err != nil {
		s.writeError(w, r, applog.OpCompute, err)
		return
	}
	title := s.reports.Title(res.Report)

	switch format {
	case export.FormatCSV:
		s.writeDownload(w, r, title, format, func(buf *bytes.Buffer) error {
			return export.CSV(buf, res.Formatted.Records())
		})
	case export.FormatXLSX:
		s.writeDownload(w, r, title, format, func(buf *bytes.Buffer) error {
			return excel.EncodeReport(buf, title, res.Formatted)
		})
	case export.FormatPDF:
		s.writeDownload(w, r, title, format, func(buf *bytes.Buffer) error {
			return export.PDF(buf, export.ReportDocument(title, res.Formatted))
		})
	default:
		writeJSON(w, http.StatusOK, reportResponse{FormattedReport: res.Formatted, Title: title, Cached: res.Cached})
	}
}

func (s *Server) handleBalanceSheet(w http.ResponseWriter, r *http.Request) {
	s.serveTable(w, r, balanceSheetTitle, s.reports.BalanceSheet)
}

func (s *Server) handleCashFlow(w http.ResponseWriter, r *http.Request) {
	s.serveTable(w, r, cashFlowTitle, s.reports.CashFlow)
}

func (s *Server) serveTable(w http.ResponseWriter, r *http.Request, title string, load func(context.Context) (core.FormattedTable, error)) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	format, ok := s.parseFormat(w, r.URL.Query().Get(paramFormat))
	if !ok {
		return
	}

	t, err := load(ctx)
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}

	switch format {
	case export.FormatCSV:
		s.writeDownload(w, r, title, format, func(buf *bytes.Buffer) error {
			return export.CSV(buf, export.TableRecords(t))
		})
	case export.FormatXLSX:
		s.writeDownload(w, r, title, format, func(buf *bytes.Buffer) error {
			return excel.EncodeTable(buf, title, t)
		})
	case export.FormatPDF:
		s.writeDownload(w, r, title, format, func(buf *bytes.Buffer) error {
			return export.PDF(buf, export.TableDocument(title, t))
		})
	default:
		writeJSON(w, http.StatusOK, t)
	}
}

// parseFormat reads the format parameter. An empty value means JSON.
func (s *Server) parseFormat(w http.ResponseWriter, raw string) (export.Format, bool) {
	if raw == "" {
		return export.FormatJSON, true
	}
	format, err := export.ParseFormat(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return "", false
	}
	return format, true
}

// writeDownload encodes into a buffer first so an encoding failure can
// still produce an error response.
func (s *Server) writeDownload(w http.ResponseWriter, r *http.Request, title string, format export.Format, encode func(*bytes.Buffer) error) {
	var buf bytes.Buffer
	if err := encode(&buf); err != nil {
		s.writeError(w, r, applog.OpExport, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName(title, format)+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = buf.WriteTo(w)
}

// handlePublish records a publish request for the worker. htmx callers get
// an HTML fragment and a notification; API callers get JSON.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		if isHTMX(r) {
			BadRequestError("Formato richiesta non valido").Write(w)
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	pub, err := s.reports.RequestPublish(ctx, parser.Query())
	if err != nil {
		if isHTMX(r) {
			status := errorStatus(err)
			msg := "Pubblicazione non riuscita: " + errorMessage(err, status)
			applog.FromContext(ctx).WarnContext(ctx, "Publish request failed", applog.FieldError, err)
			ErrorResponse(status, msg).TriggerErrorNotification(msg).Write(w)
			return
		}
		s.writeError(w, r, applog.OpPublish, err)
		return
	}
	s.publishRequests.Add(1)
	applog.FromContext(ctx).InfoContext(ctx, "Publish requested",
		applog.FieldPublicationID, pub.ID,
		applog.FieldPeriod1, pub.Period1,
		applog.FieldPeriod2, pub.Period2,
		applog.FieldShowDetail, pub.ShowDetail)

	if isHTMX(r) {
		NewHTMXResponse().
			Status(http.StatusAccepted).
			TriggerPublishRequested(pub.ID, pub.Period1, pub.Period2).
			TriggerSuccessNotification("Pubblicazione in coda").
			BodyHTML(`<div class="success">Pubblicazione in coda: ` +
				htmlEscape(pub.Period1) + ` vs ` + htmlEscape(pub.Period2) +
				` (#` + htmlEscape(pub.ID) + `)</div>`).
			Write(w)
		return
	}
	w.Header().Set("Location", "/api/publications/"+pub.ID)
	writeJSON(w, http.StatusAccepted, newPublicationView(pub))
}

func (s *Server) handlePublications(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		s.writeError(w, r, applog.OpRead, services.ErrPublishingDisabled)
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()

	limit := defaultPublicationsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxPublicationsLimit)
	}

	pubs, err := s.ledger.RecentPublications(ctx, limit)
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	views := make([]publicationView, 0, len(pubs))
	for _, p := range pubs {
		views = append(views, newPublicationView(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"publications": views})
}

func (s *Server) handlePublication(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	pub, err := s.reports.Publication(ctx, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, newPublicationView(pub))
}

// handleRateLimited answers requests rejected by the limiter.
func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	const msg = "Troppe richieste, riprova più tardi"
	if isHTMX(r) {
		ErrorResponse(http.StatusTooManyRequests, msg).TriggerErrorNotification(msg).Write(w)
		return
	}
	writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
}
