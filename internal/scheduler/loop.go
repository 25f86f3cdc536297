package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/me/govm/pkg/model"
)

// LoopConfig holds loop configuration.
type LoopConfig struct {
	TickInterval time.Duration
}

// DefaultLoopConfig returns sensible defaults.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{TickInterval: 10 * time.Millisecond}
}

// Loop drives a Scheduler on a ticker and makes it safe to query from other
// goroutines. Ticks and snapshots are serialized; Receive never waits for a
// tick to finish.
type Loop struct {
	sched    *Scheduler
	config   LoopConfig
	logger   *slog.Logger
	mu       sync.Mutex
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewLoop creates a new scheduler loop.
func NewLoop(sched *Scheduler, cfg LoopConfig, logger *slog.Logger) *Loop {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultLoopConfig().TickInterval
	}
	return &Loop{
		sched:  sched,
		config: cfg,
		logger: logger.With("component", "scheduler-loop"),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins the scheduling loop. Blocks until ctx is cancelled, Stop is
// called, or a tick fails.
func (l *Loop) Start(ctx context.Context) error {
	defer close(l.doneCh)
	l.logger.Info("scheduler started", "tick_interval", l.config.TickInterval)
	ticker := time.NewTicker(l.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("scheduler stopping (context cancelled)")
			return ctx.Err()
		case <-l.stopCh:
			l.logger.Info("scheduler stopping (stop called)")
			return nil
		case <-ticker.C:
			if err := l.Tick(ctx); err != nil {
				// A failed tick leaves the scheduler halted.
				return err
			}
		}
	}
}

// Stop shuts down a started loop and waits for the current tick to finish.
// It must only be called after Start.
func (l *Loop) Stop() error {
	l.stopOnce.Do(func() { close(l.stopCh) })
	<-l.doneCh
	return nil
}

// Tick runs a single scheduling iteration.
func (l *Loop) Tick(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sched.Tick(ctx)
}

// Receive queues messages for the next tick.
func (l *Loop) Receive(msgs []*model.InstructionMessage) []string {
	return l.sched.Receive(msgs)
}

// HasUnitType reports whether messages for t can be expanded.
func (l *Loop) HasUnitType(t model.UnitType) bool {
	return l.sched.HasUnitType(t)
}

// Backpressure reports whether producers should hold off.
func (l *Loop) Backpressure() bool {
	return l.sched.Backpressure()
}

// Snapshot returns a consistent view between ticks.
func (l *Loop) Snapshot() model.Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sched.Snapshot()
}

// Object returns the snapshot of one logical object.
func (l *Loop) Object(id model.LogicalObjectID) (model.ObjectSnapshot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sched.Object(id)
}

// Err returns the error that halted the scheduler, if any.
func (l *Loop) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sched.Err()
}
