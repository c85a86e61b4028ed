// ABOUTME: Behavior plugin contract, per-task configuration, and the factory registry
// ABOUTME: Turns configured Specs into schedulable Tasks without touching the scheduler

package behavior

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/2389/bot-fleet/internal/transport"
)

// ErrUnknownBehavior is returned by Build for an unregistered behavior name.
var ErrUnknownBehavior = errors.New("unknown behavior")

// Env is the agent as seen by a behavior.
type Env interface {
	// Transport returns the live transport, or nil when there is none.
	Transport() transport.Transport
	// Connected reports whether the agent is currently logged in.
	Connected() bool
	// Logf appends a line to the agent's log.
	Logf(format string, args ...any)
}

// Behavior is one autonomous action.
type Behavior interface {
	Name() string
	Run(ctx context.Context, env Env) error
}

// Options holds free-form per-behavior settings from configuration.
type Options map[string]string

// String returns the option or def when unset.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok && v != "" {
		return v
	}
	return def
}

// Int returns the option parsed as an int, or def when unset.
func (o Options) Int(key string, def int) (int, error) {
	v, ok := o[key]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("option %s: %w", key, err)
	}
	return n, nil
}

// Float returns the option parsed as a float, or def when unset.
func (o Options) Float(key string, def float64) (float64, error) {
	v, ok := o[key]
	if !ok || v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("option %s: %w", key, err)
	}
	return f, nil
}

// List returns the option split on "|", or def when unset.
func (o Options) List(key string, def []string) []string {
	v, ok := o[key]
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	parts := strings.Split(v, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Spec configures one task. Disabled specs are skipped by Build.
type Spec struct {
	Name     string
	Base     time.Duration
	Spread   time.Duration
	Disabled bool
	Options  Options
}

// Task is a behavior with its cadence.
type Task struct {
	Behavior Behavior
	Base     time.Duration
	Spread   time.Duration
}

// Factory builds a behavior from its options.
type Factory func(opts Options) (Behavior, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{
		"chat":     newChat,
		"movement": newMovement,
		"combat":   newCombat,
		"survival": newSurvival,
	}
)

// Register adds or replaces a behavior factory.
func Register(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// Names returns the registered behavior names, sorted.
func Names() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Build instantiates a task per spec.
func Build(specs []Spec) ([]Task, error) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	tasks := make([]Task, 0, len(specs))
	for _, s := range specs {
		if s.Disabled {
			continue
		}
		f, ok := factories[s.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownBehavior, s.Name)
		}
		if s.Base <= 0 {
			return nil, fmt.Errorf("behavior %s: base interval must be positive", s.Name)
		}
		if s.Spread < 0 {
			return nil, fmt.Errorf("behavior %s: spread must not be negative", s.Name)
		}
		b, err := f(s.Options)
		if err != nil {
			return nil, fmt.Errorf("behavior %s: %w", s.Name, err)
		}
		tasks = append(tasks, Task{Behavior: b, Base: s.Base, Spread: s.Spread})
	}
	return tasks, nil
}

// DefaultSpecs is the stock task set: ambient chat every 20-40 minutes,
// wandering every few seconds, combat and survival checks on a short loop.
func DefaultSpecs() []Spec {
	return []Spec{
		{Name: "chat", Base: 20 * time.Minute, Spread: 20 * time.Minute},
		{Name: "movement", Base: 5 * time.Second, Spread: 10 * time.Second},
		{Name: "combat", Base: 2 * time.Second, Spread: 3 * time.Second},
		{Name: "survival", Base: 3 * time.Second, Spread: 2 * time.Second},
	}
}

// TaskError wraps a failed task execution.
type TaskError struct {
	Task string
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s task: %v", e.Task, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}
