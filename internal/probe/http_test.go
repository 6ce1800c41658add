package probe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hamed0406/uptimemonitor/internal/domain"
)

func httpTarget(url string) domain.Target {
	return domain.Target{ID: "T1", Kind: domain.KindHTTP, Address: url, Timeout: 2 * time.Second}.WithDefaults()
}

func TestHTTPChecker_StatusOK(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte("ok"))
	}))
	defer s.Close()

	out := NewHTTPChecker().Check(context.Background(), httpTarget(s.URL))
	if !out.Success {
		t.Fatalf("want success, got %+v", out)
	}
	if out.StatusCode != 200 || out.Body != "ok" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.LatencyMS < 0 {
		t.Fatalf("latency should be >= 0, got %f", out.LatencyMS)
	}
}

func TestHTTPChecker_Status500(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", 500)
	}))
	defer s.Close()

	out := NewHTTPChecker().Check(context.Background(), httpTarget(s.URL))
	if out.Success {
		t.Fatalf("want failure, got %+v", out)
	}
	if out.StatusCode != 500 {
		t.Fatalf("want status 500, got %d", out.StatusCode)
	}
	if out.Error != "expected status 200, got 500" {
		t.Fatalf("unexpected error: %q", out.Error)
	}
}

func TestHTTPChecker_CustomExpectedStatus(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer s.Close()

	tgt := httpTarget(s.URL)
	tgt.ExpectedStatus = 204
	if out := NewHTTPChecker().Check(context.Background(), tgt); !out.Success {
		t.Fatalf("204 expected and returned, got %+v", out)
	}
	// 200 is not a match when 204 is configured
	tgt2 := httpTarget(s.URL)
	if out := NewHTTPChecker().Check(context.Background(), tgt2); out.Success {
		t.Fatalf("default 200 should not match 204")
	}
}

func TestHTTPChecker_ExpectedText(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer s.Close()

	tgt := httpTarget(s.URL)
	tgt.ExpectedText = "healthy"
	if out := NewHTTPChecker().Check(context.Background(), tgt); !out.Success {
		t.Fatalf("want match, got %+v", out)
	}

	tgt.ExpectedText = "degraded"
	out := NewHTTPChecker().Check(context.Background(), tgt)
	if out.Success {
		t.Fatalf("want failure on missing text")
	}
	if !strings.Contains(out.Error, `"degraded"`) {
		t.Fatalf("error should name the missing text, got %q", out.Error)
	}
}

func TestHTTPChecker_MethodHeadersBody(t *testing.T) {
	var gotMethod, gotHeader, gotBody string
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Get("X-Probe")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(201)
	}))
	defer s.Close()

	tgt := httpTarget(s.URL)
	tgt.Method = http.MethodPost
	tgt.Headers = map[string]string{"X-Probe": "uptime"}
	tgt.Body = `{"ping":true}`
	tgt.ExpectedStatus = 201

	out := NewHTTPChecker().Check(context.Background(), tgt)
	if !out.Success {
		t.Fatalf("want success, got %+v", out)
	}
	if gotMethod != "POST" || gotHeader != "uptime" || gotBody != `{"ping":true}` {
		t.Fatalf("request not as configured: %s %q %q", gotMethod, gotHeader, gotBody)
	}
}

func TestHTTPChecker_TruncatesBody(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 5000) + "needle"))
	}))
	defer s.Close()

	tgt := httpTarget(s.URL)
	tgt.ExpectedText = "needle"
	out := NewHTTPChecker().Check(context.Background(), tgt)
	if !out.Success {
		t.Fatalf("text past the stored cap should still match, got %+v", out)
	}
	if len(out.Body) != domain.MaxBodyBytes {
		t.Fatalf("want body capped at %d, got %d", domain.MaxBodyBytes, len(out.Body))
	}
}

func TestHTTPChecker_TimeoutSetsStatusZero(t *testing.T) {
	// Server sleeps longer than the context deadline
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(200)
	}))
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	out := NewHTTPChecker().Check(ctx, httpTarget(s.URL))
	if out.Success {
		t.Fatalf("want failure due to timeout, got %+v", out)
	}
	if out.StatusCode != 0 {
		t.Fatalf("want status 0 on transport error, got %d", out.StatusCode)
	}
	if !strings.HasPrefix(out.Error, "timeout") {
		t.Fatalf("want timeout message, got %q", out.Error)
	}
}

func TestHTTPChecker_BadURL(t *testing.T) {
	out := NewHTTPChecker().Check(context.Background(), httpTarget("://nope"))
	if out.Success || out.Error == "" {
		t.Fatalf("want descriptive failure, got %+v", out)
	}
}

func TestNewHTTPChecker_SharesTransport(t *testing.T) {
	a, b := NewHTTPChecker(), NewHTTPChecker()
	if a.Client == b.Client {
		t.Fatalf("checkers should not share a client")
	}
	if a.Client.Transport != b.Client.Transport || a.Client.Transport != http.RoundTripper(sharedTransport) {
		t.Fatalf("checkers should share one transport")
	}
}
