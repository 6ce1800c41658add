package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hamed0406/uptimemonitor/internal/domain"
	"github.com/hamed0406/uptimemonitor/internal/repo"
)

func TestMemoryStore_TargetsActiveFilter(t *testing.T) {
	ctx := context.Background()
	s := New()

	a := &domain.Target{Kind: domain.KindHTTP, Address: "https://example.com", Active: true}
	b := &domain.Target{ID: "paused", Kind: domain.KindPing, Address: "example.com", Active: false}
	if err := s.Add(ctx, a); err != nil {
		t.Fatalf("Add a: %v", err)
	}
	if err := s.Add(ctx, b); err != nil {
		t.Fatalf("Add b: %v", err)
	}
	if a.ID == "" {
		t.Fatalf("expected target ID to be set")
	}

	active, err := s.ListActiveTargets(ctx)
	if err != nil {
		t.Fatalf("ListActiveTargets: %v", err)
	}
	if len(active) != 1 || active[0].ID != a.ID {
		t.Fatalf("unexpected active list: %+v", active)
	}

	if err := s.SetActive(ctx, "paused", true); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	active, _ = s.ListActiveTargets(ctx)
	if len(active) != 2 {
		t.Fatalf("want 2 active, got %d", len(active))
	}

	// paused targets are still loadable
	_ = s.SetActive(ctx, "paused", false)
	got, err := s.LoadTarget(ctx, "paused")
	if err != nil || got == nil || got.Active {
		t.Fatalf("LoadTarget paused: %+v err=%v", got, err)
	}

	if err := s.Remove(ctx, "paused"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if got, _ := s.LoadTarget(ctx, "paused"); got != nil {
		t.Fatalf("removed target still loadable")
	}
	if err := s.Remove(ctx, "paused"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_SnapshotIsCopy(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.Add(ctx, &domain.Target{ID: "T1", Active: true, Headers: map[string]string{"A": "1"}})

	list, _ := s.ListActiveTargets(ctx)
	list[0].Headers["A"] = "changed"

	again, _ := s.LoadTarget(ctx, "T1")
	if again.Headers["A"] != "1" {
		t.Fatalf("snapshot mutation leaked into store")
	}
}

func TestMemoryStore_HistoryOrderAndRange(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)

	if last, _ := s.LastOutcome(ctx, "T1"); last != nil {
		t.Fatalf("want nil last outcome, got %+v", last)
	}
	for i := 0; i < 5; i++ {
		o := domain.CheckOutcome{TargetID: "T1", CheckedAt: base.Add(time.Duration(i) * time.Minute), Success: i%2 == 0}
		if err := s.Record(ctx, o); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	last, _ := s.LastOutcome(ctx, "T1")
	if last == nil || !last.CheckedAt.Equal(base.Add(4*time.Minute)) {
		t.Fatalf("unexpected last: %+v", last)
	}

	h, _ := s.History(ctx, "T1", base.Add(time.Minute), base.Add(3*time.Minute))
	if len(h) != 2 || !h[0].CheckedAt.Equal(base.Add(time.Minute)) {
		t.Fatalf("unexpected range: %+v", h)
	}

	all, _ := s.History(ctx, "T1", time.Time{}, time.Time{})
	if len(all) != 5 {
		t.Fatalf("open range want 5, got %d", len(all))
	}
}

func TestMemoryStore_Incidents(t *testing.T) {
	ctx := context.Background()
	s := New()
	start := time.Now().UTC()

	id, err := s.OpenIncident(ctx, "T1", start, "boom")
	if err != nil {
		t.Fatalf("OpenIncident: %v", err)
	}
	open, _ := s.FindOpenIncident(ctx, "T1")
	if open == nil || open.ID != id || open.Error != "boom" {
		t.Fatalf("unexpected open incident: %+v", open)
	}

	if err := s.ResolveIncident(ctx, id, start.Add(time.Minute)); err != nil {
		t.Fatalf("ResolveIncident: %v", err)
	}
	if open, _ := s.FindOpenIncident(ctx, "T1"); open != nil {
		t.Fatalf("incident still open: %+v", open)
	}
	if err := s.ResolveIncident(ctx, "missing", start); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_Prune(t *testing.T) {
	ctx := context.Background()
	s := New()
	old := time.Now().Add(-48 * time.Hour)
	recent := time.Now()

	_ = s.Record(ctx, domain.CheckOutcome{TargetID: "T1", CheckedAt: old})
	_ = s.Record(ctx, domain.CheckOutcome{TargetID: "T1", CheckedAt: recent})

	oldInc, _ := s.OpenIncident(ctx, "T1", old, "x")
	_ = s.ResolveIncident(ctx, oldInc, old.Add(time.Minute))
	_, _ = s.OpenIncident(ctx, "T1", old, "still open")

	cutoff := time.Now().Add(-24 * time.Hour)
	n, _ := s.PruneHistory(ctx, cutoff)
	if n != 1 {
		t.Fatalf("want 1 pruned outcome, got %d", n)
	}
	n, _ = s.PruneIncidents(ctx, cutoff)
	if n != 1 {
		t.Fatalf("want 1 pruned incident, got %d", n)
	}
	left, _ := s.Incidents(ctx, "T1")
	if len(left) != 1 || left[0].Resolved {
		t.Fatalf("open incident must survive pruning: %+v", left)
	}
}
