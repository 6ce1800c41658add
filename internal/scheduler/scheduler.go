package scheduler

import (
	"context"
	"reflect"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/domain"
	"github.com/hamed0406/uptimemonitor/internal/probe"
	"github.com/hamed0406/uptimemonitor/internal/repo"
)

const (
	DefaultTick          = time.Second
	DefaultMaxConcurrent = 50
)

// Runner produces one finalized outcome for a target.
type Runner interface {
	Run(ctx context.Context, t domain.Target) domain.CheckOutcome
}

// Factory builds the runner for a target. It is called when a target first
// appears and again only when its configuration changes.
type Factory func(t domain.Target) (Runner, error)

// ExecutorFactory picks the probe for the target's kind and wraps it with
// timeout and retry handling.
func ExecutorFactory(backoff time.Duration) Factory {
	return func(t domain.Target) (Runner, error) {
		p, err := probe.New(t)
		if err != nil {
			return nil, err
		}
		return probe.NewExecutor(p, backoff), nil
	}
}

type Recorder interface {
	Record(ctx context.Context, o domain.CheckOutcome) error
}

type Evaluator interface {
	Evaluate(ctx context.Context, t domain.Target, o domain.CheckOutcome) error
	Forget(id domain.TargetID)
}

type runtimeState struct {
	target   domain.Target
	runner   Runner
	inFlight bool
	removed  bool

	lastStarted         time.Time
	lastCompleted       time.Time
	lastSuccess         time.Time
	consecutiveFailures int
	checks              int64
	lastOutcome         *domain.CheckOutcome
}

func (rs *runtimeState) nextDue() time.Time {
	if rs.lastCompleted.IsZero() {
		return time.Time{}
	}
	return rs.lastCompleted.Add(rs.target.Interval)
}

type Scheduler struct {
	Logger        *zap.Logger
	Targets       repo.TargetSource
	Recorder      Recorder
	Incidents     Evaluator
	Factory       Factory
	Tick          time.Duration
	MaxConcurrent int

	now     func() time.Time
	sem     chan struct{}
	mu      sync.Mutex
	runtime map[domain.TargetID]*runtimeState
	resume  domain.TargetID // first target skipped by a saturated pass
	wg      sync.WaitGroup
}

func New(
	logger *zap.Logger,
	ts repo.TargetSource,
	rec Recorder,
	inc Evaluator,
	factory Factory,
	tick time.Duration,
	maxConcurrent int,
) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tick <= 0 {
		tick = DefaultTick
	}
	if maxConcurrent < 1 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if factory == nil {
		factory = ExecutorFactory(0)
	}
	return &Scheduler{
		Logger:        logger,
		Targets:       ts,
		Recorder:      rec,
		Incidents:     inc,
		Factory:       factory,
		Tick:          tick,
		MaxConcurrent: maxConcurrent,
		now:           time.Now,
		sem:           make(chan struct{}, maxConcurrent),
		runtime:       make(map[domain.TargetID]*runtimeState),
	}
}

// Run does an immediate pass, then one per tick until ctx is cancelled. It
// returns once in-flight checks have finished.
func (s *Scheduler) Run(ctx context.Context) {
	t := time.NewTicker(s.Tick)
	defer t.Stop()

	s.Logger.Info("scheduler_started", zap.Duration("tick", s.Tick), zap.Int("max_concurrent", s.MaxConcurrent))
	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.Wait()
			s.Logger.Info("scheduler_stopped")
			return
		case <-t.C:
			s.RunOnce(ctx)
		}
	}
}

// Wait blocks until every dispatched check has completed.
func (s *Scheduler) Wait() { s.wg.Wait() }

// RunOnce reconciles the runtime set with the configuration store and
// dispatches every due, idle target.
func (s *Scheduler) RunOnce(ctx context.Context) {
	list, err := s.Targets.ListActiveTargets(ctx)
	if err != nil {
		s.Logger.Warn("scheduler_list_error", zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	seen := make(map[domain.TargetID]struct{}, len(list))
	for _, raw := range list {
		t := raw.WithDefaults()
		seen[t.ID] = struct{}{}
		s.upsert(t)
	}
	for id, rs := range s.runtime {
		if _, ok := seen[id]; ok {
			continue
		}
		if rs.inFlight {
			rs.removed = true
			continue
		}
		s.drop(id)
	}

	// resume where the last saturated pass stopped
	start := 0
	if s.resume != "" {
		for i, t := range list {
			if t.ID == s.resume {
				start = i
				break
			}
		}
		s.resume = ""
	}
	for k := range list {
		t := list[(start+k)%len(list)]
		rs, ok := s.runtime[t.ID]
		if !ok || rs.runner == nil || rs.inFlight {
			continue
		}
		if due := rs.nextDue(); !due.IsZero() && now.Before(due) {
			continue
		}
		select {
		case s.sem <- struct{}{}:
		default:
			s.Logger.Warn("scheduler_saturated", zap.Int("max_concurrent", s.MaxConcurrent), zap.String("resume_at", string(t.ID)))
			s.resume = t.ID
			return
		}
		rs.inFlight = true
		rs.lastStarted = now
		s.wg.Add(1)
		go s.check(ctx, rs, rs.target, rs.runner)
	}
}

// upsert must be called with s.mu held.
func (s *Scheduler) upsert(t domain.Target) {
	rs, ok := s.runtime[t.ID]
	if !ok {
		rs = &runtimeState{}
		s.runtime[t.ID] = rs
	}
	rs.removed = false
	if ok && rs.runner != nil && reflect.DeepEqual(rs.target, t) {
		return
	}
	runner, err := s.Factory(t)
	if err != nil {
		s.Logger.Warn("scheduler_probe_error", zap.String("target_id", string(t.ID)), zap.Error(err))
		rs.target = t
		rs.runner = nil
		return
	}
	if ok {
		s.Logger.Info("scheduler_target_updated", zap.String("target_id", string(t.ID)))
	} else {
		s.Logger.Info("scheduler_target_added", zap.String("target_id", string(t.ID)), zap.String("kind", string(t.Kind)))
	}
	rs.target = t
	rs.runner = runner
}

// drop must be called with s.mu held.
func (s *Scheduler) drop(id domain.TargetID) {
	delete(s.runtime, id)
	if s.Incidents != nil {
		s.Incidents.Forget(id)
	}
	s.Logger.Info("scheduler_target_removed", zap.String("target_id", string(id)))
}

func (s *Scheduler) check(ctx context.Context, rs *runtimeState, t domain.Target, runner Runner) {
	defer s.wg.Done()
	defer func() { <-s.sem }()

	out := runner.Run(ctx, t)
	out.TargetID = t.ID
	if ctx.Err() != nil {
		s.Logger.Debug("scheduler_check_cancelled", zap.String("target_id", string(t.ID)))
		s.finish(rs, t.ID, nil)
		return
	}

	current, err := s.Targets.LoadTarget(ctx, t.ID)
	switch {
	case err != nil:
		s.Logger.Warn("scheduler_load_error", zap.String("target_id", string(t.ID)), zap.Error(err))
		current = &t
	case current == nil:
		s.Logger.Info("scheduler_result_discarded", zap.String("target_id", string(t.ID)))
		s.mu.Lock()
		rs.removed = true
		s.mu.Unlock()
		s.finish(rs, t.ID, nil)
		return
	}

	if s.Recorder != nil {
		if err := s.Recorder.Record(ctx, out); err != nil {
			s.Logger.Warn("scheduler_record_error", zap.String("target_id", string(t.ID)), zap.Error(err))
		}
	}
	if s.Incidents != nil {
		if err := s.Incidents.Evaluate(ctx, current.WithDefaults(), out); err != nil {
			s.Logger.Error("scheduler_incident_error", zap.String("target_id", string(t.ID)), zap.Error(err))
		}
	}

	s.Logger.Debug("scheduler_checked",
		zap.String("target_id", string(t.ID)),
		zap.Bool("success", out.Success),
		zap.Int("status", out.StatusCode),
		zap.Float64("latency_ms", out.LatencyMS),
		zap.Int("attempts", out.Attempts),
		zap.String("error", out.Error),
	)
	s.finish(rs, t.ID, &out)
}

func (s *Scheduler) finish(rs *runtimeState, id domain.TargetID, out *domain.CheckOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs.inFlight = false
	if out != nil {
		rs.lastCompleted = s.now()
		rs.checks++
		rs.lastOutcome = out
		if out.Success {
			rs.lastSuccess = out.CheckedAt
			rs.consecutiveFailures = 0
		} else {
			rs.consecutiveFailures++
		}
	}
	if rs.removed && s.runtime[id] == rs {
		s.drop(id)
	}
}

type TargetStatus struct {
	ID                  domain.TargetID      `json:"id"`
	Name                string               `json:"name"`
	Kind                domain.Kind          `json:"kind"`
	Address             string               `json:"address"`
	Interval            time.Duration        `json:"interval"`
	InFlight            bool                 `json:"in_flight"`
	LastStarted         time.Time            `json:"last_started"`
	LastCompleted       time.Time            `json:"last_completed"`
	NextDue             time.Time            `json:"next_due"`
	LastSuccess         time.Time            `json:"last_success"`
	ConsecutiveFailures int                  `json:"consecutive_failures"`
	Checks              int64                `json:"checks"`
	LastOutcome         *domain.CheckOutcome `json:"last_outcome,omitempty"`
}

// Snapshot returns the runtime state of every scheduled target, sorted by ID.
func (s *Scheduler) Snapshot() []TargetStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TargetStatus, 0, len(s.runtime))
	for id, rs := range s.runtime {
		out = append(out, TargetStatus{
			ID:                  id,
			Name:                rs.target.Name,
			Kind:                rs.target.Kind,
			Address:             rs.target.Address,
			Interval:            rs.target.Interval,
			InFlight:            rs.inFlight,
			LastStarted:         rs.lastStarted,
			LastCompleted:       rs.lastCompleted,
			NextDue:             rs.nextDue(),
			LastSuccess:         rs.lastSuccess,
			ConsecutiveFailures: rs.consecutiveFailures,
			Checks:              rs.checks,
			LastOutcome:         rs.lastOutcome,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Running reports how many checks are in flight.
func (s *Scheduler) Running() int { return len(s.sem) }
