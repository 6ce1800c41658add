// Package recorder appends check outcomes to history and tracks whether the
// history store is keeping up.
package recorder

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/domain"
	"github.com/hamed0406/uptimemonitor/internal/repo"
)

const DefaultDegradedAfter = 3

type Health struct {
	Degraded            bool      `json:"degraded"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
	LastErrorAt         time.Time `json:"last_error_at,omitempty"`
	Recorded            int64     `json:"recorded"`
	Failed              int64     `json:"failed"`
}

// Recorder wraps a HistoryStore. After degradedAfter consecutive write
// failures it reports itself degraded until the next successful write.
type Recorder struct {
	store         repo.HistoryStore
	degradedAfter int
	log           *zap.Logger
	now           func() time.Time

	mu     sync.Mutex
	health Health
}

func New(store repo.HistoryStore, degradedAfter int, log *zap.Logger) *Recorder {
	if degradedAfter <= 0 {
		degradedAfter = DefaultDegradedAfter
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{store: store, degradedAfter: degradedAfter, log: log, now: time.Now}
}

func (r *Recorder) Record(ctx context.Context, o domain.CheckOutcome) error {
	err := r.store.Record(ctx, o)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		if r.health.Degraded {
			r.log.Info("recorder_recovered", zap.Int("after_failures", r.health.ConsecutiveFailures))
		}
		r.health.Degraded = false
		r.health.ConsecutiveFailures = 0
		r.health.Recorded++
		return nil
	}

	r.health.Failed++
	r.health.ConsecutiveFailures++
	r.health.LastError = err.Error()
	r.health.LastErrorAt = r.now().UTC()
	r.log.Warn("recorder_write_error",
		zap.String("target_id", string(o.TargetID)),
		zap.Int("consecutive_failures", r.health.ConsecutiveFailures),
		zap.Error(err),
	)
	if !r.health.Degraded && r.health.ConsecutiveFailures >= r.degradedAfter {
		r.health.Degraded = true
		r.log.Error("recorder_degraded", zap.Int("consecutive_failures", r.health.ConsecutiveFailures))
	}
	return err
}

func (r *Recorder) LastOutcome(ctx context.Context, id domain.TargetID) (*domain.CheckOutcome, error) {
	return r.store.LastOutcome(ctx, id)
}

func (r *Recorder) History(ctx context.Context, id domain.TargetID, from, to time.Time) ([]domain.CheckOutcome, error) {
	return r.store.History(ctx, id, from, to)
}

func (r *Recorder) Healthy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.health.Degraded
}

func (r *Recorder) Health() Health {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.health
}
