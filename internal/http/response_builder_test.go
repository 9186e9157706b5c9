package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTMXResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		Status(http.StatusOK).
		BodyString("test").
		Write(w)

	if w.Code != http.StatusOK {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Body.String() != "test" {
		t.Errorf("Body = %q, want %q", w.Body.String(), "test")
	}
	if w.Header().Get("HX-Trigger") != "" {
		t.Error("HX-Trigger should not be set without triggers")
	}
}

func TestHTMXResponseBuilder_Triggers(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		Status(http.StatusAccepted).
		TriggerPublishRequested("abc", "Consuntivo 2025", "Budget 2025").
		TriggerSuccessNotification("Pubblicazione in coda").
		Write(w)

	if w.Code != http.StatusAccepted {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusAccepted)
	}

	var triggers map[string]json.RawMessage
	if err := json.Unmarshal([]byte(w.Header().Get("HX-Trigger")), &triggers); err != nil {
		t.Fatalf("HX-Trigger is not JSON: %v", err)
	}
	for _, name := range []string{"report:publish-requested", "show-notification"} {
		if _, ok := triggers[name]; !ok {
			t.Errorf("HX-Trigger missing %q", name)
		}
	}

	var published map[string]string
	if err := json.Unmarshal(triggers["report:publish-requested"], &published); err != nil {
		t.Fatal(err)
	}
	want := map[string]string{"id": "abc", "period_1": "Consuntivo 2025", "period_2": "Budget 2025"}
	for k, v := range want {
		if published[k] != v {
			t.Errorf("publish-requested[%s] = %q, want %q", k, published[k], v)
		}
	}

	var note struct {
		Type     string `json:"type"`
		Message  string `json:"message"`
		Duration int    `json:"duration"`
	}
	if err := json.Unmarshal(triggers["show-notification"], &note); err != nil {
		t.Fatal(err)
	}
	if note.Type != "success" || note.Message != "Pubblicazione in coda" || note.Duration != 3000 {
		t.Errorf("notification = %+v", note)
	}
}

func TestHTMXResponseBuilder_Notifications(t *testing.T) {
	tests := []struct {
		name         string
		build        func(*HTMXResponseBuilder) *HTMXResponseBuilder
		wantType     string
		wantDuration string
	}{
		{
			name:         "error",
			build:        func(b *HTMXResponseBuilder) *HTMXResponseBuilder { return b.TriggerErrorNotification("x") },
			wantType:     `"type":"error"`,
			wantDuration: `"duration":5000`,
		},
		{
			name: "warning",
			build: func(b *HTMXResponseBuilder) *HTMXResponseBuilder {
				return b.TriggerNotification(NotificationWarning, "x", 1000)
			},
			wantType:     `"type":"warning"`,
			wantDuration: `"duration":1000`,
		},
		{
			name: "info",
			build: func(b *HTMXResponseBuilder) *HTMXResponseBuilder {
				return b.TriggerNotification(NotificationInfo, "x", 0)
			},
			wantType:     `"type":"info"`,
			wantDuration: `"duration":0`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.build(NewHTMXResponse()).Write(w)

			trigger := w.Header().Get("HX-Trigger")
			if !strings.Contains(trigger, tt.wantType) || !strings.Contains(trigger, tt.wantDuration) {
				t.Errorf("HX-Trigger = %s", trigger)
			}
		})
	}
}

func TestHTMXResponseBuilder_Headers(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		Header("Location", "/api/publications/abc").
		BodyHTML("<p>ok</p>").
		Write(w)

	if got := w.Header().Get("Location"); got != "/api/publications/abc" {
		t.Errorf("Location = %q", got)
	}
	if got := w.Header().Get("Content-Type"); got != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q", got)
	}
	if w.Body.String() != "<p>ok</p>" {
		t.Errorf("Body = %q", w.Body.String())
	}
}

func TestErrorResponse(t *testing.T) {
	w := httptest.NewRecorder()
	ErrorResponse(http.StatusNotFound, `periodo "<x>" non trovato`).Write(w)

	if w.Code != http.StatusNotFound {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusNotFound)
	}
	body := w.Body.String()
	if strings.Contains(body, "<x>") {
		t.Errorf("message not escaped: %s", body)
	}
	if !strings.Contains(body, `<div class="error">`) || !strings.Contains(body, "&lt;x&gt;") {
		t.Errorf("Body = %s", body)
	}
}

func TestBadRequestError(t *testing.T) {
	w := httptest.NewRecorder()
	BadRequestError("corpo non valido").Write(w)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if !strings.Contains(w.Body.String(), "corpo non valido") {
		t.Errorf("Body = %s", w.Body.String())
	}
}
