package http

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strings"

	"cruscotto/internal/core"
	applog "cruscotto/internal/log"
	"cruscotto/internal/services"
	"cruscotto/internal/sheets"
	"cruscotto/internal/storage"
)

var templateFuncs = template.FuncMap{
	// numeric reports whether report column i holds an amount.
	"numeric": func(i int, showDetail bool) bool {
		if showDetail {
			return i >= 2
		}
		return i >= 1
	},
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, core.ErrMissingPeriodColumn):
		return http.StatusUnprocessableEntity
	case errors.Is(err, sheets.ErrSheetNotFound), errors.Is(err, storage.ErrPublicationNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrPublishingDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage is the client-facing text for err. Internal failures are
// not described.
func errorMessage(err error, status int) string {
	if status == http.StatusInternalServerError {
		return "errore interno"
	}
	return err.Error()
}

// writeJSON encodes v with status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError logs err and writes a JSON error body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := errorStatus(err)
	logger := applog.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed",
			applog.FieldOperation, op,
			applog.FieldStatusCode, status,
			applog.FieldError, err)
	} else {
		logger.WarnContext(r.Context(), "Request rejected",
			applog.FieldOperation, op,
			applog.FieldStatusCode, status,
			applog.FieldError, err)
	}
	writeJSON(w, status, map[string]string{"error": errorMessage(err, status)})
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s))
}

// isHTMX reports whether r was issued by htmx.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

func htmlEscape(s string) string {
	return template.HTMLEscapeString(s)
}
