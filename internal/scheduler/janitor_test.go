package scheduler

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/domain"
	"github.com/hamed0406/uptimemonitor/internal/repo/memory"
)

func TestJanitor_PrunesPastRetention(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	_ = store.Record(ctx, domain.CheckOutcome{TargetID: "a", CheckedAt: now.Add(-31 * 24 * time.Hour)})
	_ = store.Record(ctx, domain.CheckOutcome{TargetID: "a", CheckedAt: now.Add(-29 * 24 * time.Hour)})

	old, _ := store.OpenIncident(ctx, "a", now.Add(-100*24*time.Hour), "boom")
	_ = store.ResolveIncident(ctx, old, now.Add(-95*24*time.Hour))
	recent, _ := store.OpenIncident(ctx, "a", now.Add(-10*24*time.Hour), "boom")
	_ = store.ResolveIncident(ctx, recent, now.Add(-9*24*time.Hour))
	// open incidents are never pruned, however old
	_, _ = store.OpenIncident(ctx, "a", now.Add(-200*24*time.Hour), "still down")

	j := NewJanitor(store, JanitorConfig{}, zap.NewNop())
	j.now = func() time.Time { return now }
	if err := j.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	hist, _ := store.History(ctx, "a", time.Time{}, time.Time{})
	if len(hist) != 1 {
		t.Fatalf("want 1 outcome kept, got %d", len(hist))
	}
	incs, _ := store.Incidents(ctx, "a")
	if len(incs) != 2 {
		t.Fatalf("want recent and open incidents kept, got %+v", incs)
	}
	for _, inc := range incs {
		if inc.ID == old {
			t.Fatalf("old resolved incident survived")
		}
	}
}
