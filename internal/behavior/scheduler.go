// ABOUTME: Per-agent scheduler running each behavior on its own jittered timer
// ABOUTME: Serialises task bodies, isolates failures and panics, and stops deterministically

package behavior

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/2389/bot-fleet/internal/metrics"
	"github.com/2389/bot-fleet/internal/transport"
)

// DefaultSubTimeout bounds a single task body.
const DefaultSubTimeout = 10 * time.Second

// SchedulerOptions tunes a Scheduler.
type SchedulerOptions struct {
	// SubTimeout bounds each task body. Zero means DefaultSubTimeout.
	SubTimeout time.Duration
	Logger     *slog.Logger
}

// Scheduler runs a fixed set of tasks against one agent.
type Scheduler struct {
	env        Env
	tasks      []Task
	subTimeout time.Duration
	logger     *slog.Logger

	// execMu serialises task bodies for this agent.
	execMu sync.Mutex

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(env Env, tasks []Task, opts SchedulerOptions) *Scheduler {
	if opts.SubTimeout <= 0 {
		opts.SubTimeout = DefaultSubTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scheduler{
		env:        env,
		tasks:      tasks,
		subTimeout: opts.SubTimeout,
		logger:     opts.Logger.With("component", "behavior"),
	}
}

// Start arms every task. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true

	for _, t := range s.tasks {
		s.wg.Add(1)
		go s.loop(ctx, t)
	}
	s.logger.Debug("scheduler started", "tasks", len(s.tasks))
}

// Stop cancels every task and waits for in-flight bodies to return, then
// releases any held movement controls. Safe to call when not running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.running = false

	if m, ok := s.env.Transport().(transport.Mover); ok {
		if err := m.ClearControls(); err != nil {
			s.logger.Debug("clearing controls", "error", err)
		}
	}
	s.logger.Debug("scheduler stopped")
}

// Running reports whether the scheduler is armed.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context, t Task) {
	defer s.wg.Done()

	timer := time.NewTimer(nextDelay(t))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		s.execute(ctx, t)
		timer.Reset(nextDelay(t))
	}
}

// nextDelay draws uniformly from [Base, Base+Spread).
func nextDelay(t Task) time.Duration {
	if t.Spread <= 0 {
		return t.Base
	}
	return t.Base + rand.N(t.Spread)
}

func (s *Scheduler) execute(ctx context.Context, t Task) {
	s.execMu.Lock()
	defer s.execMu.Unlock()

	// Stop may have been requested while this body waited for its turn.
	if ctx.Err() != nil {
		return
	}

	name := t.Behavior.Name()
	runCtx, cancel := context.WithTimeout(ctx, s.subTimeout)
	defer cancel()

	start := time.Now()
	err := runSafely(runCtx, t.Behavior, s.env)
	metrics.BehaviorRunDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err == nil {
		metrics.BehaviorRunsTotal.WithLabelValues(name, "ok").Inc()
		return
	}
	if ctx.Err() != nil {
		// Cancelled by Stop; not a task failure.
		return
	}

	metrics.BehaviorRunsTotal.WithLabelValues(name, "error").Inc()
	s.logger.Warn("behavior task failed", "task", name, "error", err)
	s.env.Logf("⚠️ %v", err)
}

// runSafely converts a panic in b into a TaskError.
func runSafely(ctx context.Context, b Behavior, env Env) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &TaskError{Task: b.Name(), Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if runErr := b.Run(ctx, env); runErr != nil {
		return &TaskError{Task: b.Name(), Err: runErr}
	}
	return nil
}
