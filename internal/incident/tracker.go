package incident

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/domain"
	"github.com/hamed0406/uptimemonitor/internal/repo"
)

// Sink receives transition events. It must not block.
type Sink interface {
	Dispatch(ev domain.Event)
}

type targetState struct {
	mu     sync.Mutex
	loaded bool
	state  State
}

// Tracker applies Transition per target against an IncidentStore. Calls for
// the same target are serialized; different targets proceed in parallel.
type Tracker struct {
	store repo.IncidentStore
	sink  Sink
	log   *zap.Logger
	now   func() time.Time

	mu      sync.Mutex
	targets map[domain.TargetID]*targetState
}

func NewTracker(store repo.IncidentStore, sink Sink, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{
		store:   store,
		sink:    sink,
		log:     log,
		now:     time.Now,
		targets: make(map[domain.TargetID]*targetState),
	}
}

func (tr *Tracker) entry(id domain.TargetID) *targetState {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	ts, ok := tr.targets[id]
	if !ok {
		ts = &targetState{}
		tr.targets[id] = ts
	}
	return ts
}

// Forget drops cached state for a removed target.
func (tr *Tracker) Forget(id domain.TargetID) {
	tr.mu.Lock()
	delete(tr.targets, id)
	tr.mu.Unlock()
}

// State reports the cached state, false if the target has not been evaluated.
func (tr *Tracker) State(id domain.TargetID) (State, bool) {
	tr.mu.Lock()
	ts, ok := tr.targets[id]
	tr.mu.Unlock()
	if !ok {
		return State{}, false
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.state, ts.loaded
}

// Evaluate feeds one outcome through the state machine, persists the
// transition and emits its event. On a store error the cached state is left
// unchanged so the next outcome retries.
func (tr *Tracker) Evaluate(ctx context.Context, t domain.Target, o domain.CheckOutcome) error {
	ts := tr.entry(t.ID)
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if !ts.loaded {
		st, err := tr.load(ctx, t.ID)
		if err != nil {
			return err
		}
		ts.state = st
		ts.loaded = true
	}

	next, kind := Transition(ts.state, o)
	switch kind {
	case domain.EventOpened:
		iid, err := tr.store.OpenIncident(ctx, t.ID, next.Incident.StartedAt, next.Incident.Error)
		if err != nil {
			// The store may already hold an open incident we never saw.
			st, lerr := tr.load(ctx, t.ID)
			if lerr == nil && st.Down {
				tr.log.Warn("incident_adopted",
					zap.String("target_id", string(t.ID)),
					zap.String("incident_id", string(st.Incident.ID)),
					zap.Error(err),
				)
				ts.state = st
				return nil
			}
			return fmt.Errorf("open incident for %s: %w", t.ID, err)
		}
		next.Incident.ID = iid
		ts.state = next
		tr.log.Info("incident_opened",
			zap.String("target_id", string(t.ID)),
			zap.String("incident_id", string(iid)),
			zap.Time("started_at", next.Incident.StartedAt),
			zap.String("error", next.Incident.Error),
		)
	case domain.EventResolved:
		if err := tr.store.ResolveIncident(ctx, next.Incident.ID, *next.Incident.EndedAt); err != nil {
			return fmt.Errorf("resolve incident %s: %w", next.Incident.ID, err)
		}
		ts.state = next
		tr.log.Info("incident_resolved",
			zap.String("target_id", string(t.ID)),
			zap.String("incident_id", string(next.Incident.ID)),
			zap.String("duration", domain.FormatDuration(next.Incident.Duration(o.CheckedAt))),
		)
	default:
		ts.state = next
		return nil
	}

	if tr.sink != nil {
		tr.sink.Dispatch(domain.Event{Kind: kind, Target: t, Incident: next.Incident, At: o.CheckedAt})
	}
	return nil
}

// load rebuilds state from the store, resolving every open incident but the
// oldest when more than one is found.
func (tr *Tracker) load(ctx context.Context, id domain.TargetID) (State, error) {
	open, err := tr.store.ListOpenIncidents(ctx, id)
	if err != nil {
		return State{}, fmt.Errorf("list open incidents for %s: %w", id, err)
	}
	if len(open) == 0 {
		return State{}, nil
	}
	if len(open) > 1 {
		tr.log.Error("duplicate_open_incidents",
			zap.String("target_id", string(id)),
			zap.Int("count", len(open)),
			zap.String("kept_incident_id", string(open[0].ID)),
		)
		now := tr.now()
		for _, extra := range open[1:] {
			if err := tr.store.ResolveIncident(ctx, extra.ID, now); err != nil {
				tr.log.Error("duplicate_incident_resolve_error",
					zap.String("target_id", string(id)),
					zap.String("incident_id", string(extra.ID)),
					zap.Error(err),
				)
			}
		}
	}
	return State{Down: true, Incident: open[0]}, nil
}
