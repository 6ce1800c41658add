package scheduler

import (
	"context"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/repo"
)

type JanitorConfig struct {
	KeepHistory   time.Duration
	KeepIncidents time.Duration
	Every         time.Duration
}

// Janitor prunes check history and resolved incidents past retention.
type Janitor struct {
	pruner repo.Pruner
	cfg    JanitorConfig
	log    *zap.Logger
	now    func() time.Time
}

func NewJanitor(p repo.Pruner, cfg JanitorConfig, log *zap.Logger) *Janitor {
	if cfg.KeepHistory <= 0 {
		cfg.KeepHistory = 30 * 24 * time.Hour
	}
	if cfg.KeepIncidents <= 0 {
		cfg.KeepIncidents = 90 * 24 * time.Hour
	}
	if cfg.Every <= 0 {
		cfg.Every = 24 * time.Hour
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Janitor{pruner: p, cfg: cfg, log: log, now: time.Now}
}

func (j *Janitor) Run(ctx context.Context) error {
	t := time.NewTicker(j.cfg.Every)
	defer t.Stop()

	// initial pass
	_ = j.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			_ = j.RunOnce(ctx)
		}
	}
}

func (j *Janitor) RunOnce(ctx context.Context) error {
	now := j.now()
	outcomes, herr := j.pruner.PruneHistory(ctx, now.Add(-j.cfg.KeepHistory))
	incidents, ierr := j.pruner.PruneIncidents(ctx, now.Add(-j.cfg.KeepIncidents))
	err := multierr.Combine(herr, ierr)
	if err != nil {
		j.log.Warn("janitor_prune_error", zap.Error(err))
	}
	j.log.Info("janitor_pruned",
		zap.Int64("outcomes", outcomes),
		zap.Int64("incidents", incidents),
	)
	return err
}
