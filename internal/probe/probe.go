package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/hamed0406/uptimemonitor/internal/domain"
)

// Prober performs a single verification attempt against a target. It never
// retries and reports every failure through the returned outcome.
type Prober interface {
	Check(ctx context.Context, t domain.Target) domain.CheckOutcome
}

// New picks the probe variant for the target's kind.
func New(t domain.Target) (Prober, error) {
	switch t.Kind {
	case domain.KindHTTP:
		return NewHTTPChecker(), nil
	case domain.KindPing:
		return NewPingChecker(), nil
	case domain.KindPort:
		return NewPortChecker(), nil
	default:
		return nil, fmt.Errorf("unsupported target kind %q", t.Kind)
	}
}

func failed(t domain.Target, start time.Time, msg string) domain.CheckOutcome {
	return domain.CheckOutcome{
		TargetID:  t.ID,
		CheckedAt: time.Now().UTC(),
		Success:   false,
		LatencyMS: sinceMS(start),
		Error:     msg,
	}
}

func sinceMS(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
