package domain

import (
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"
)

type TargetID string

// Kind selects the probe variant for a target.
type Kind string

const (
	KindHTTP Kind = "http"
	KindPing Kind = "ping"
	KindPort Kind = "port"
)

const (
	DefaultInterval       = 60 * time.Second
	DefaultTimeout        = 30 * time.Second
	DefaultExpectedStatus = http.StatusOK

	// MaxBodyBytes caps the response body kept on a CheckOutcome.
	MaxBodyBytes = 1000
)

type Target struct {
	ID             TargetID          `json:"id" yaml:"id"`
	Name           string            `json:"name" yaml:"name"`
	Kind           Kind              `json:"kind" yaml:"kind"`
	Address        string            `json:"address" yaml:"address"` // URL, host or host:port
	Method         string            `json:"method,omitempty" yaml:"method"`
	Headers        map[string]string `json:"headers,omitempty" yaml:"headers"`
	Body           string            `json:"body,omitempty" yaml:"body"`
	ExpectedStatus int               `json:"expected_status,omitempty" yaml:"expected_status"`
	ExpectedText   string            `json:"expected_text,omitempty" yaml:"expected_text"`
	Interval       time.Duration     `json:"interval" yaml:"interval"`
	Timeout        time.Duration     `json:"timeout" yaml:"timeout"`
	Retries        int               `json:"retries" yaml:"retries"` // extra attempts after the first failure
	Active         bool              `json:"active" yaml:"active"`
	CreatedAt      time.Time         `json:"created_at" yaml:"-"`
	UpdatedAt      time.Time         `json:"updated_at" yaml:"-"`
}

// WithDefaults fills zero-valued scheduling and HTTP fields. Interval is not
// checked against Timeout.
func (t Target) WithDefaults() Target {
	if t.Interval <= 0 {
		t.Interval = DefaultInterval
	}
	if t.Timeout <= 0 {
		t.Timeout = DefaultTimeout
	}
	if t.Retries < 0 {
		t.Retries = 0
	}
	if t.Kind == KindHTTP {
		if t.Method == "" {
			t.Method = http.MethodGet
		}
		if t.ExpectedStatus == 0 {
			t.ExpectedStatus = DefaultExpectedStatus
		}
	}
	return t
}

func (t Target) Label() string {
	if t.Name != "" {
		return t.Name
	}
	return string(t.ID)
}

func (k Kind) Valid() bool {
	switch k {
	case KindHTTP, KindPing, KindPort:
		return true
	}
	return false
}

// CheckOutcome is the finalized result of one check. Never mutated after creation.
type CheckOutcome struct {
	TargetID   TargetID  `json:"target_id"`
	CheckedAt  time.Time `json:"checked_at"`
	Success    bool      `json:"success"`
	LatencyMS  float64   `json:"latency_ms"`
	StatusCode int       `json:"status_code,omitempty"`
	Error      string    `json:"error,omitempty"`
	Body       string    `json:"body,omitempty"`
	Attempts   int       `json:"attempts"`
}

// TruncateBody keeps at most MaxBodyBytes of b, cut back to a rune boundary.
func TruncateBody(b []byte) string {
	if len(b) <= MaxBodyBytes {
		return string(b)
	}
	cut := MaxBodyBytes
	for cut > 0 && !utf8.RuneStart(b[cut]) {
		cut--
	}
	return string(b[:cut])
}

type IncidentID string

type Incident struct {
	ID        IncidentID `json:"id"`
	TargetID  TargetID   `json:"target_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Error     string     `json:"error,omitempty"`
	Resolved  bool       `json:"resolved"`
}

// Duration is measured up to now while the incident is open.
func (i Incident) Duration(now time.Time) time.Duration {
	end := now
	if i.EndedAt != nil {
		end = *i.EndedAt
	}
	if end.Before(i.StartedAt) {
		return 0
	}
	return end.Sub(i.StartedAt)
}

// FormatDuration renders "45s", "3m 20s" or "2h 5m".
func FormatDuration(d time.Duration) string {
	s := int64(d / time.Second)
	switch {
	case s < 60:
		return fmt.Sprintf("%ds", s)
	case s < 3600:
		return fmt.Sprintf("%dm %ds", s/60, s%60)
	default:
		return fmt.Sprintf("%dh %dm", s/3600, (s%3600)/60)
	}
}

type EventKind string

const (
	EventOpened   EventKind = "opened"
	EventResolved EventKind = "resolved"
)

// Event is emitted by the incident tracker on an up/down transition.
type Event struct {
	Kind     EventKind `json:"kind"`
	Target   Target    `json:"target"`
	Incident Incident  `json:"incident"`
	At       time.Time `json:"at"`
}
