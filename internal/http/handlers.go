package http

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady checks that templates are loaded, the statement can be read
// and, with the sqlite backend, the database answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)
	fail := func(name string, err error) {
		checks[name] = "failed: " + err.Error()
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	if s.templates == nil {
		fail("templates", fmt.Errorf("templates not loaded"))
	} else {
		checks["templates"] = "ok"
	}

	if periods, err := s.reports.Periods(ctx); err != nil {
		fail("statement", err)
	} else {
		checks["statement"] = map[string]any{"status": "ok", "periods": len(periods)}
	}

	if s.ledger != nil {
		if err := s.ledger.Ping(ctx); err != nil {
			fail("database", err)
		} else {
			checks["database"] = "ok"
		}
	}

	if stats, ok := s.reports.CacheStats(); ok {
		checks["cache"] = map[string]any{"status": "ok", "entries": stats.Size}
	}
	checks["rate_limiter"] = map[string]any{"status": "ok", "active_clients": s.limiter.ActiveClients()}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	traceMetrics := s.tracer.GetMetrics()
	securityMetrics := s.detector.GetMetrics()
	rateLimitMetrics := s.limiter.GetMetrics()

	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}

	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_server_errors_total", "counter", "HTTP responses with a 5xx status", traceMetrics.ServerErrors)
	metric("http_response_time_avg_microseconds", "gauge", "Average HTTP response time", traceMetrics.AverageResponseTime)
	metric("reports_rendered_total", "counter", "Variance reports served", s.reportsRendered.Load())
	metric("report_publish_requests_total", "counter", "Accepted publish requests", s.publishRequests.Load())

	if stats, ok := s.reports.CacheStats(); ok {
		metric("report_cache_hits_total", "counter", "Report cache hits", stats.Hits)
		metric("report_cache_misses_total", "counter", "Report cache misses", stats.Misses)
		metric("report_cache_entries", "gauge", "Current report cache entries", stats.Size)
	}

	metric("rate_limit_hits_total", "counter", "Requests rejected by the rate limiter", rateLimitMetrics.TotalHits)
	metric("active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", rateLimitMetrics.ClientCount)
	metric("suspicious_requests_total", "counter", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)
	metric("blocked_requests_total", "counter", "Requests blocked by the detector", securityMetrics.BlockedRequests)

	if s.ledger != nil {
		if counts, err := s.ledger.PublicationCounts(r.Context()); err == nil {
			statuses := make([]string, 0, len(counts))
			for st := range counts {
				statuses = append(statuses, st)
			}
			sort.Strings(statuses)
			fmt.Fprintf(w, "# HELP publications Publications by status\n# TYPE publications gauge\n")
			for _, st := range statuses {
				fmt.Fprintf(w, "publications{status=%q} %d\n", st, counts[st])
			}
			fmt.Fprintln(w)
		}
	}

	metric("uptime_seconds", "gauge", "Application uptime in seconds", fmt.Sprintf("%.0f", time.Since(s.started).Seconds()))
}
