package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hamed0406/uptimemonitor/internal/domain"
)

func TestWebhook_PayloadAndHeaders(t *testing.T) {
	var (
		method  string
		auth    string
		ctype   string
		payload webhookPayload
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		auth = r.Header.Get("Authorization")
		ctype = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	w := NewWebhook(ts.URL, "put", map[string]string{"Authorization": "Bearer t"}, time.Second)
	tgt, inc := sampleIncident()
	if err := w.Notify(context.Background(), domain.EventResolved, tgt, inc); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if method != http.MethodPut || auth != "Bearer t" || ctype != "application/json" {
		t.Fatalf("method=%s auth=%q ctype=%q", method, auth, ctype)
	}
	if payload.Type != domain.EventResolved || payload.Target.ID != "api" || payload.Target.Status != "up" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if payload.Incident.Duration != "3m 20s" || !payload.Incident.Resolved || payload.Incident.Error != inc.Error {
		t.Fatalf("unexpected incident payload: %+v", payload.Incident)
	}
}

func TestWebhook_Non2xx(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	tgt, inc := sampleIncident()
	if err := NewWebhook(ts.URL, "", nil, 0).Notify(context.Background(), domain.EventOpened, tgt, inc); err == nil {
		t.Fatalf("expected error on non-2xx")
	}
	if NewWebhook("", "", nil, 0) != nil {
		t.Fatalf("expected nil webhook without url")
	}
}
