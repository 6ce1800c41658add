package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hamed0406/uptimemonitor/internal/domain"
	"github.com/hamed0406/uptimemonitor/internal/repo"
)

// Store keeps targets, history and incidents in process memory. It backs
// tests and the file-configured deployment.
type Store struct {
	mu        sync.RWMutex
	targets   map[domain.TargetID]*domain.Target
	history   map[domain.TargetID][]domain.CheckOutcome
	incidents map[domain.IncidentID]*domain.Incident
	order     []domain.IncidentID // creation order
}

func New() *Store {
	return &Store{
		targets:   make(map[domain.TargetID]*domain.Target),
		history:   make(map[domain.TargetID][]domain.CheckOutcome),
		incidents: make(map[domain.IncidentID]*domain.Incident),
	}
}

// ---- configuration (written by the surrounding service) ----

// Add inserts or replaces a target, assigning an ID when empty.
func (m *Store) Add(ctx context.Context, t *domain.Target) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if t.ID == "" {
		t.ID = domain.TargetID(uuid.NewString())
	}
	if prev, ok := m.targets[t.ID]; ok {
		t.CreatedAt = prev.CreatedAt
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	cp := cloneTarget(*t)
	m.targets[t.ID] = &cp
	return nil
}

func (m *Store) Remove(ctx context.Context, id domain.TargetID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.targets[id]; !ok {
		return repo.ErrNotFound
	}
	delete(m.targets, id)
	return nil
}

func (m *Store) SetActive(ctx context.Context, id domain.TargetID, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.targets[id]
	if !ok {
		return repo.ErrNotFound
	}
	t.Active = active
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// ---- TargetSource ----

func (m *Store) ListActiveTargets(ctx context.Context) ([]domain.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Target, 0, len(m.targets))
	for _, t := range m.targets {
		if t.Active {
			out = append(out, cloneTarget(*t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Store) LoadTarget(ctx context.Context, id domain.TargetID) (*domain.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.targets[id]
	if !ok {
		return nil, nil
	}
	cp := cloneTarget(*t)
	return &cp, nil
}

// ---- HistoryStore ----

func (m *Store) Record(ctx context.Context, o domain.CheckOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[o.TargetID] = append(m.history[o.TargetID], o)
	return nil
}

func (m *Store) LastOutcome(ctx context.Context, id domain.TargetID) (*domain.CheckOutcome, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h := m.history[id]
	if len(h) == 0 {
		return nil, nil
	}
	o := h[len(h)-1]
	return &o, nil
}

func (m *Store) History(ctx context.Context, id domain.TargetID, from, to time.Time) ([]domain.CheckOutcome, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.CheckOutcome
	for _, o := range m.history[id] {
		if !from.IsZero() && o.CheckedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !o.CheckedAt.Before(to) {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

// ---- IncidentStore ----

func (m *Store) OpenIncident(ctx context.Context, id domain.TargetID, start time.Time, errMsg string) (domain.IncidentID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc := &domain.Incident{
		ID:        domain.IncidentID(uuid.NewString()),
		TargetID:  id,
		StartedAt: start,
		Error:     errMsg,
	}
	m.incidents[inc.ID] = inc
	m.order = append(m.order, inc.ID)
	return inc.ID, nil
}

func (m *Store) ResolveIncident(ctx context.Context, id domain.IncidentID, end time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc, ok := m.incidents[id]
	if !ok {
		return fmt.Errorf("resolve incident %s: %w", id, repo.ErrNotFound)
	}
	if inc.Resolved {
		return nil
	}
	e := end
	inc.EndedAt = &e
	inc.Resolved = true
	return nil
}

func (m *Store) FindOpenIncident(ctx context.Context, id domain.TargetID) (*domain.Incident, error) {
	open, _ := m.ListOpenIncidents(ctx, id)
	if len(open) == 0 {
		return nil, nil
	}
	return &open[0], nil
}

func (m *Store) ListOpenIncidents(ctx context.Context, id domain.TargetID) ([]domain.Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Incident
	for _, iid := range m.order {
		inc := m.incidents[iid]
		if inc.TargetID == id && !inc.Resolved {
			out = append(out, *inc)
		}
	}
	return out, nil
}

// Incidents returns every incident of a target, oldest first.
func (m *Store) Incidents(ctx context.Context, id domain.TargetID) ([]domain.Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Incident
	for _, iid := range m.order {
		if inc := m.incidents[iid]; inc.TargetID == id {
			out = append(out, *inc)
		}
	}
	return out, nil
}

// ---- Pruner ----

func (m *Store) PruneHistory(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, h := range m.history {
		kept := h[:0]
		for _, o := range h {
			if o.CheckedAt.Before(before) {
				n++
				continue
			}
			kept = append(kept, o)
		}
		m.history[id] = kept
	}
	return n, nil
}

func (m *Store) PruneIncidents(ctx context.Context, resolvedBefore time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	kept := m.order[:0]
	for _, iid := range m.order {
		inc := m.incidents[iid]
		if inc.Resolved && inc.EndedAt != nil && inc.EndedAt.Before(resolvedBefore) {
			delete(m.incidents, iid)
			n++
			continue
		}
		kept = append(kept, iid)
	}
	m.order = kept
	return n, nil
}

func cloneTarget(t domain.Target) domain.Target {
	if t.Headers != nil {
		h := make(map[string]string, len(t.Headers))
		for k, v := range t.Headers {
			h[k] = v
		}
		t.Headers = h
	}
	return t
}
