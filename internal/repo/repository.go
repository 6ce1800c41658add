package repo

import (
	"context"
	"errors"
	"time"

	"github.com/hamed0406/uptimemonitor/internal/domain"
)

// ErrNotFound is returned when a keyed lookup has no row.
var ErrNotFound = errors.New("not found")

// Ports (interfaces) the monitoring engine reads and writes through.

// TargetSource is the configuration store. The engine never writes to it.
type TargetSource interface {
	ListActiveTargets(ctx context.Context) ([]domain.Target, error)
	// LoadTarget returns nil, nil when the target no longer exists.
	LoadTarget(ctx context.Context, id domain.TargetID) (*domain.Target, error)
}

type HistoryStore interface {
	Record(ctx context.Context, o domain.CheckOutcome) error
	// LastOutcome returns nil, nil when the target has no history.
	LastOutcome(ctx context.Context, id domain.TargetID) (*domain.CheckOutcome, error)
	// History returns outcomes with from <= CheckedAt < to, oldest first.
	// A zero bound is open.
	History(ctx context.Context, id domain.TargetID, from, to time.Time) ([]domain.CheckOutcome, error)
}

type IncidentStore interface {
	OpenIncident(ctx context.Context, id domain.TargetID, start time.Time, errMsg string) (domain.IncidentID, error)
	ResolveIncident(ctx context.Context, id domain.IncidentID, end time.Time) error
	// FindOpenIncident returns the oldest open incident, nil, nil when none.
	FindOpenIncident(ctx context.Context, id domain.TargetID) (*domain.Incident, error)
	// ListOpenIncidents returns every unresolved incident for a target,
	// oldest first. More than one means the store has been corrupted.
	ListOpenIncidents(ctx context.Context, id domain.TargetID) ([]domain.Incident, error)
}

// Pruner drops records past their retention window.
type Pruner interface {
	PruneHistory(ctx context.Context, before time.Time) (int64, error)
	PruneIncidents(ctx context.Context, resolvedBefore time.Time) (int64, error)
}
