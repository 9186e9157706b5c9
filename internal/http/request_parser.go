package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"cruscotto/internal/services"
)

// maxBodyBytes bounds publish request bodies.
const maxBodyBytes = 64 << 10

// Report query parameters.
const (
	paramPeriod1 = "period_1"
	paramPeriod2 = "period_2"
	paramDetail  = "detail"
	paramFormat  = "format"
)

// ParseReportQuery reads period_1, period_2 and detail. Missing periods are
// left empty for the service to default.
func ParseReportQuery(values url.Values) services.ReportQuery {
	return services.ReportQuery{
		Period1:    sanitizeInput(values.Get(paramPeriod1)),
		Period2:    sanitizeInput(values.Get(paramPeriod2)),
		ShowDetail: parseFlag(values.Get(paramDetail)),
	}
}

// parseFlag accepts the usual checkbox and boolean spellings.
func parseFlag(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "on", "yes", "si", "sì":
		return true
	default:
		return false
	}
}

// RequestBodyParser reads a JSON or form-encoded body once. htmx posts
// forms; API clients post JSON.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads the body of r, up to maxBodyBytes.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	return p
}

// Parse decodes the body as JSON when it looks like an object and as a
// form otherwise.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}
	body := strings.TrimSpace(string(p.body))
	if body == "" {
		p.formData = url.Values{}
		return nil
	}
	if strings.HasPrefix(body, "{") || strings.Contains(p.contentType, "application/json") {
		p.jsonData = make(map[string]any)
		p.err = json.Unmarshal([]byte(body), &p.jsonData)
		return p.err
	}
	p.formData, p.err = url.ParseQuery(body)
	return p.err
}

// Get returns a sanitized string value from the parsed data.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// Query returns the report selection carried by the body.
func (p *RequestBodyParser) Query() services.ReportQuery {
	return services.ReportQuery{
		Period1:    p.Get(paramPeriod1),
		Period2:    p.Get(paramPeriod2),
		ShowDetail: parseFlag(p.Get(paramDetail)),
	}
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}
