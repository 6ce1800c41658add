package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/hamed0406/uptimemonitor/internal/domain"
)

// Notifier delivers one incident transition over a single channel.
type Notifier interface {
	Notify(ctx context.Context, kind domain.EventKind, target domain.Target, inc domain.Incident) error
}

// Multi fans out to every channel and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, kind domain.EventKind, target domain.Target, inc domain.Incident) error {
	var err error
	for _, n := range m {
		if n == nil {
			continue
		}
		err = multierr.Append(err, n.Notify(ctx, kind, target, inc))
	}
	return err
}

// message renders the human readable title and text shared by chat channels.
func message(kind domain.EventKind, t domain.Target, inc domain.Incident, now time.Time) (string, string) {
	switch kind {
	case domain.EventOpened:
		reason := inc.Error
		if reason == "" {
			reason = "service unavailable"
		}
		return "🔴 Target DOWN: " + t.Label(), fmt.Sprintf(
			"Address: %s\nReason: %s\nSince: %s",
			t.Address, reason, inc.StartedAt.UTC().Format(time.RFC3339),
		)
	case domain.EventResolved:
		return "🟢 Target RECOVERED: " + t.Label(), fmt.Sprintf(
			"Address: %s\nDowntime: %s\nCause: %s",
			t.Address, domain.FormatDuration(inc.Duration(now)), inc.Error,
		)
	default:
		return "Target status change: " + t.Label(), "Address: " + t.Address
	}
}
