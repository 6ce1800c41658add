package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/domain"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping Postgres integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, err := New(ctx, dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("New store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestPostgresStore_TargetsHistoryIncidents(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	// unique id per run to avoid collisions with previous runs
	id := domain.TargetID(fmt.Sprintf("pg-test-%d", time.Now().UTC().UnixNano()))
	tgt := &domain.Target{
		ID:       id,
		Kind:     domain.KindHTTP,
		Address:  "https://example.com",
		Headers:  map[string]string{"X-Probe": "1"},
		Interval: 30 * time.Second,
		Timeout:  5 * time.Second,
		Retries:  2,
		Active:   true,
	}
	if err := store.Add(ctx, tgt); err != nil {
		t.Fatalf("Add target: %v", err)
	}

	got, err := store.LoadTarget(ctx, id)
	if err != nil || got == nil {
		t.Fatalf("LoadTarget: %+v err=%v", got, err)
	}
	if got.Interval != 30*time.Second || got.Headers["X-Probe"] != "1" || got.Retries != 2 {
		t.Fatalf("target round trip mismatch: %+v", got)
	}
	if missing, err := store.LoadTarget(ctx, "does-not-exist"); err != nil || missing != nil {
		t.Fatalf("want nil,nil for missing target, got %+v %v", missing, err)
	}

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i := 0; i < 3; i++ {
		o := domain.CheckOutcome{TargetID: id, CheckedAt: base.Add(time.Duration(i) * time.Second), Success: i == 2, StatusCode: 500 + i, Attempts: 1}
		if err := store.Record(ctx, o); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	last, err := store.LastOutcome(ctx, id)
	if err != nil || last == nil || !last.Success || last.StatusCode != 502 {
		t.Fatalf("LastOutcome: %+v err=%v", last, err)
	}
	h, err := store.History(ctx, id, base.Add(time.Second), time.Time{})
	if err != nil || len(h) != 2 {
		t.Fatalf("History: %d err=%v", len(h), err)
	}

	incID, err := store.OpenIncident(ctx, id, base, "expected status 200, got 500")
	if err != nil {
		t.Fatalf("OpenIncident: %v", err)
	}
	// unique partial index refuses a second open incident
	if _, err := store.OpenIncident(ctx, id, base, "dup"); err == nil {
		t.Fatalf("expected second open incident to be rejected")
	}
	open, err := store.FindOpenIncident(ctx, id)
	if err != nil || open == nil || open.ID != incID {
		t.Fatalf("FindOpenIncident: %+v err=%v", open, err)
	}
	if err := store.ResolveIncident(ctx, incID, base.Add(time.Minute)); err != nil {
		t.Fatalf("ResolveIncident: %v", err)
	}
	if open, _ := store.FindOpenIncident(ctx, id); open != nil {
		t.Fatalf("incident still open after resolve")
	}
}
