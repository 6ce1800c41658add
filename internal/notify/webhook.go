package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hamed0406/uptimemonitor/internal/domain"
)

// Webhook posts a JSON document describing the transition to an arbitrary URL.
type Webhook struct {
	URL     string
	Method  string
	Headers map[string]string
	Client  *http.Client
	now     func() time.Time
}

// NewWebhook returns nil when url is empty. Method defaults to POST.
func NewWebhook(url, method string, headers map[string]string, timeout time.Duration) *Webhook {
	if url == "" {
		return nil
	}
	if method == "" {
		method = http.MethodPost
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Webhook{
		URL:     url,
		Method:  strings.ToUpper(method),
		Headers: headers,
		Client:  &http.Client{Timeout: timeout},
		now:     time.Now,
	}
}

type webhookTarget struct {
	ID      domain.TargetID `json:"id"`
	Name    string          `json:"name"`
	Kind    domain.Kind     `json:"kind"`
	Address string          `json:"address"`
	Status  string          `json:"status"`
}

type webhookIncident struct {
	ID        domain.IncidentID `json:"id"`
	StartedAt time.Time         `json:"started_at"`
	EndedAt   *time.Time        `json:"ended_at,omitempty"`
	Duration  string            `json:"duration"`
	Error     string            `json:"error_message"`
	Resolved  bool              `json:"is_resolved"`
}

type webhookPayload struct {
	Type      domain.EventKind `json:"type"`
	Target    webhookTarget    `json:"target"`
	Incident  webhookIncident  `json:"incident"`
	Timestamp time.Time        `json:"timestamp"`
}

func (w *Webhook) Notify(ctx context.Context, kind domain.EventKind, t domain.Target, inc domain.Incident) error {
	if w == nil || w.URL == "" {
		return errors.New("webhook disabled")
	}
	now := w.now()
	status := "down"
	if kind == domain.EventResolved {
		status = "up"
	}
	body, err := json.Marshal(webhookPayload{
		Type: kind,
		Target: webhookTarget{
			ID:      t.ID,
			Name:    t.Name,
			Kind:    t.Kind,
			Address: t.Address,
			Status:  status,
		},
		Incident: webhookIncident{
			ID:        inc.ID,
			StartedAt: inc.StartedAt.UTC(),
			EndedAt:   inc.EndedAt,
			Duration:  domain.FormatDuration(inc.Duration(now)),
			Error:     inc.Error,
			Resolved:  inc.Resolved,
		},
		Timestamp: now.UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, w.Method, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	for k, v := range w.Headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := w.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("webhook non-2xx: %d", resp.StatusCode)
	}
	return nil
}
