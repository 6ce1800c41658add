package probe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hamed0406/uptimemonitor/internal/domain"
)

// matchReadLimit bounds how much of a response is scanned for ExpectedText.
const matchReadLimit = 1 << 20

// sharedTransport pools connections for every HTTP target, so rebuilding a
// checker after a config edit leaves no idle connections behind.
var sharedTransport = &http.Transport{
	Proxy:               http.ProxyFromEnvironment,
	MaxIdleConnsPerHost: 2,
	IdleConnTimeout:     90 * time.Second,
	TLSHandshakeTimeout: 10 * time.Second,
}

type HTTPChecker struct {
	Client *http.Client
}

// NewHTTPChecker returns a checker whose client has no timeout of its own;
// the per-attempt deadline comes from the context.
func NewHTTPChecker() *HTTPChecker {
	return &HTTPChecker{Client: &http.Client{Transport: sharedTransport}}
}

func (h *HTTPChecker) Check(ctx context.Context, t domain.Target) domain.CheckOutcome {
	start := time.Now()

	method := t.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if t.Body != "" {
		body = strings.NewReader(t.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.Address, body)
	if err != nil {
		return failed(t, start, err.Error())
	}
	for k, v := range t.Headers {
		req.Header.Set(k, v)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return failed(t, start, describeError(err))
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, matchReadLimit))
	out := domain.CheckOutcome{
		TargetID:   t.ID,
		CheckedAt:  time.Now().UTC(),
		LatencyMS:  sinceMS(start),
		StatusCode: resp.StatusCode,
		Body:       domain.TruncateBody(raw),
	}

	want := t.ExpectedStatus
	if want == 0 {
		want = domain.DefaultExpectedStatus
	}
	statusOK := resp.StatusCode == want
	textOK := t.ExpectedText == "" || bytes.Contains(raw, []byte(t.ExpectedText))

	switch {
	case !statusOK:
		out.Error = fmt.Sprintf("expected status %d, got %d", want, resp.StatusCode)
	case readErr != nil && !textOK:
		out.Error = "read body: " + describeError(readErr)
	case !textOK:
		out.Error = fmt.Sprintf("expected text %q not found in response", t.ExpectedText)
	}
	out.Success = statusOK && textOK
	return out
}
