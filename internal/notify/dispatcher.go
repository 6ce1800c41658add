package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hamed0406/uptimemonitor/internal/domain"
)

type DispatcherConfig struct {
	QueueSize   int           // buffered events before Dispatch starts dropping
	Workers     int           // concurrent deliveries; one target always maps to one worker
	Attempts    int           // delivery attempts per event and channel
	Backoff     time.Duration // wait between attempts
	SendTimeout time.Duration // per attempt
	PerMinute   int           // delivery rate cap, 0 disables
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.Backoff < 0 {
		c.Backoff = 0
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 30 * time.Second
	}
	return c
}

// Dispatcher hands incident events to a Notifier off the caller's goroutine.
// Events of one target are delivered in the order they were dispatched. A
// Multi is split into its channels and each channel is retried on its own.
type Dispatcher struct {
	channels []Notifier
	cfg      DispatcherConfig
	log      *zap.Logger
	limiter  *rate.Limiter

	queues []chan domain.Event
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool

	sent    atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

// NewDispatcher starts the worker pool. Call Close to drain and stop it.
func NewDispatcher(n Notifier, cfg DispatcherConfig, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		channels: channelsOf(n),
		cfg:      cfg,
		log:      log,
		queues:   make([]chan domain.Event, cfg.Workers),
		ctx:      ctx,
		cancel:   cancel,
	}
	if cfg.PerMinute > 0 {
		d.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.PerMinute)), cfg.PerMinute)
	}
	perWorker := (cfg.QueueSize + cfg.Workers - 1) / cfg.Workers
	for i := range d.queues {
		d.queues[i] = make(chan domain.Event, perWorker)
		d.wg.Add(1)
		go d.worker(d.queues[i])
	}
	return d
}

func channelsOf(n Notifier) []Notifier {
	m, ok := n.(Multi)
	if !ok {
		if n == nil {
			return nil
		}
		return []Notifier{n}
	}
	out := make([]Notifier, 0, len(m))
	for _, c := range m {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

// queueFor pins a target to one worker so its events stay ordered.
func (d *Dispatcher) queueFor(id domain.TargetID) chan domain.Event {
	return d.queues[xxhash.Sum64String(string(id))%uint64(len(d.queues))]
}

// Dispatch enqueues ev and returns immediately. A full queue drops the event.
func (d *Dispatcher) Dispatch(ev domain.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped.Add(1)
		d.log.Warn("notify_dropped_closed", eventFields(ev)...)
		return
	}
	select {
	case d.queueFor(ev.Target.ID) <- ev:
	default:
		d.dropped.Add(1)
		d.log.Error("notify_queue_full", eventFields(ev)...)
	}
}

// Close stops accepting events, waits for queued ones up to ctx, then aborts
// whatever is still in flight.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		for _, q := range d.queues {
			close(q)
		}
		d.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

type DispatcherStats struct {
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
	Dropped int64 `json:"dropped"`
	Queued  int   `json:"queued"`
}

// Stats counts Sent and Failed per channel delivery, Dropped per event.
func (d *Dispatcher) Stats() DispatcherStats {
	queued := 0
	for _, q := range d.queues {
		queued += len(q)
	}
	return DispatcherStats{
		Sent:    d.sent.Load(),
		Failed:  d.failed.Load(),
		Dropped: d.dropped.Load(),
		Queued:  queued,
	}
}

func (d *Dispatcher) worker(queue <-chan domain.Event) {
	defer d.wg.Done()
	for ev := range queue {
		for i, n := range d.channels {
			d.deliver(ev, n, i)
		}
	}
}

func (d *Dispatcher) deliver(ev domain.Event, n Notifier, channel int) {
	var lastErr error
	for attempt := 1; attempt <= d.cfg.Attempts; attempt++ {
		if d.limiter != nil {
			if err := d.limiter.Wait(d.ctx); err != nil {
				lastErr = err
				break
			}
		}
		ctx, cancel := context.WithTimeout(d.ctx, d.cfg.SendTimeout)
		err := n.Notify(ctx, ev.Kind, ev.Target, ev.Incident)
		cancel()
		if err == nil {
			d.sent.Add(1)
			d.log.Info("notify_sent", append(eventFields(ev), zap.Int("channel", channel), zap.Int("attempt", attempt))...)
			return
		}
		lastErr = err
		d.log.Warn("notify_attempt_failed", append(eventFields(ev), zap.Int("channel", channel), zap.Int("attempt", attempt), zap.Error(err))...)

		if attempt < d.cfg.Attempts && d.cfg.Backoff > 0 {
			select {
			case <-time.After(d.cfg.Backoff):
			case <-d.ctx.Done():
			}
		}
		if d.ctx.Err() != nil {
			break
		}
	}
	d.failed.Add(1)
	d.log.Error("notify_failed", append(eventFields(ev), zap.Int("channel", channel), zap.Int("attempts", d.cfg.Attempts), zap.Error(lastErr))...)
}

func eventFields(ev domain.Event) []zap.Field {
	return []zap.Field{
		zap.String("event", string(ev.Kind)),
		zap.String("target_id", string(ev.Target.ID)),
		zap.String("incident_id", string(ev.Incident.ID)),
	}
}
