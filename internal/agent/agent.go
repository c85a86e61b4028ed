// ABOUTME: Agent owns one transport connection, its log, and its behavior scheduler
// ABOUTME: Lifecycle transitions are serialised; transport events are applied via the transition table

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/bot-fleet/internal/behavior"
	"github.com/2389/bot-fleet/internal/logchan"
	"github.com/2389/bot-fleet/internal/metrics"
	"github.com/2389/bot-fleet/internal/ring"
	"github.com/2389/bot-fleet/internal/transport"
)

var (
	// ErrNotConnected is returned when a command is sent to an agent that is
	// not logged in.
	ErrNotConnected = errors.New("agent not connected")

	// ErrCommandFailed wraps a transport failure while forwarding a command.
	ErrCommandFailed = errors.New("command failed")

	// ErrConnectionTimeout is recorded when login does not happen in time.
	ErrConnectionTimeout = errors.New("connection timeout")
)

const (
	// DefaultConnectTimeout bounds the time from Connect to login.
	DefaultConnectTimeout = 30 * time.Second

	summaryLogLines    = 20
	summaryHistoryLen  = 10
	commandHistorySize = 50
)

// CommandRecord is one accepted command.
type CommandRecord struct {
	Command   string    `json:"command"`
	Timestamp time.Time `json:"timestamp"`
}

// Summary is the externally visible view of an agent.
type Summary struct {
	ID             string           `json:"id"`
	OwnerID        string           `json:"ownerId"`
	DisplayName    string           `json:"displayName"`
	Target         transport.Target `json:"target"`
	State          State            `json:"state"`
	LastCommandAt  *time.Time       `json:"lastCommandAt"`
	LastError      *string          `json:"lastError"`
	Log            []string         `json:"log"`
	CommandHistory []CommandRecord  `json:"commandHistory"`
}

// agentConfig carries everything NewAgent needs.
type agentConfig struct {
	ID             string
	OwnerID        string
	Target         transport.Target
	DisplayName    string
	Dialer         transport.Dialer
	Tasks          []behavior.Task
	ConnectTimeout time.Duration
	SubTimeout     time.Duration
	LogCapacity    int
	OnTransition   func(Transition)
	Logger         *slog.Logger
}

// Agent is one managed game identity.
type Agent struct {
	id          string
	ownerID     string
	target      transport.Target
	displayName string
	createdAt   time.Time

	dialer         transport.Dialer
	connectTimeout time.Duration
	onTransition   func(Transition)
	logger         *slog.Logger

	log   *logchan.Channel
	sched *behavior.Scheduler

	// lifecycleMu serialises transitions together with their side effects.
	lifecycleMu sync.Mutex
	retired     bool

	// mu guards the fields below. Never held while calling out.
	mu            sync.Mutex
	state         State
	lastError     string
	tr            transport.Transport
	gen           uint64
	cancelDial    context.CancelFunc
	timer         *time.Timer
	history       *ring.Buffer[CommandRecord]
	lastCommandAt *time.Time
}

func newAgent(cfg agentConfig) *Agent {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.LogCapacity <= 0 {
		cfg.LogCapacity = logchan.DefaultCapacity
	}
	logger := cfg.Logger.With("agent_id", cfg.ID)

	a := &Agent{
		id:             cfg.ID,
		ownerID:        cfg.OwnerID,
		target:         cfg.Target,
		displayName:    cfg.DisplayName,
		createdAt:      time.Now(),
		dialer:         cfg.Dialer,
		connectTimeout: cfg.ConnectTimeout,
		onTransition:   cfg.OnTransition,
		logger:         logger,
		log:            logchan.New(cfg.ID, cfg.LogCapacity, cfg.Logger),
		state:          StateIdle,
		history:        ring.New[CommandRecord](commandHistorySize),
	}
	a.sched = behavior.NewScheduler(agentEnv{a}, cfg.Tasks, behavior.SchedulerOptions{
		SubTimeout: cfg.SubTimeout,
		Logger:     logger,
	})
	return a
}

// ID returns the agent identifier.
func (a *Agent) ID() string { return a.id }

// OwnerID returns the controlling user.
func (a *Agent) OwnerID() string { return a.ownerID }

// DisplayName returns the in-game username.
func (a *Agent) DisplayName() string { return a.displayName }

// Target returns the game server address.
func (a *Agent) Target() transport.Target { return a.target }

// State returns the current lifecycle state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// LastError returns the most recent failure, or "" if none.
func (a *Agent) LastError() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastError
}

// Log returns the agent's log channel.
func (a *Agent) Log() *logchan.Channel { return a.log }

// BehaviorsRunning reports whether behavior tasks are scheduled.
func (a *Agent) BehaviorsRunning() bool { return a.sched.Running() }

// Attach subscribes an observer to the agent's log.
func (a *Agent) Attach(o logchan.Observer) { a.log.Attach(o) }

// Detach unsubscribes an observer. Safe to call more than once.
func (a *Agent) Detach(o logchan.Observer) { a.log.Detach(o) }

// ObserverCount returns the number of attached observers.
func (a *Agent) ObserverCount() int { return a.log.ObserverCount() }

// Summary returns a point-in-time view of the agent.
func (a *Agent) Summary() Summary {
	a.mu.Lock()
	s := Summary{
		ID:          a.id,
		OwnerID:     a.ownerID,
		DisplayName: a.displayName,
		Target:      a.target,
		State:       a.state,
	}
	if a.lastCommandAt != nil {
		at := *a.lastCommandAt
		s.LastCommandAt = &at
	}
	if a.lastError != "" {
		e := a.lastError
		s.LastError = &e
	}
	s.CommandHistory = a.history.Last(summaryHistoryLen)
	a.mu.Unlock()

	if s.CommandHistory == nil {
		s.CommandHistory = []CommandRecord{}
	}
	s.Log = a.log.Snapshot(summaryLogLines)
	if s.Log == nil {
		s.Log = []string{}
	}
	return s
}

// CommandHistory returns up to the last n accepted commands, oldest first.
func (a *Agent) CommandHistory(n int) []CommandRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.history.Last(n)
}

// SendCommand forwards text as chat. It fails with ErrNotConnected unless
// the agent is logged in, and with ErrCommandFailed if the transport rejects
// it. Neither failure changes state.
func (a *Agent) SendCommand(ctx context.Context, text string) error {
	a.mu.Lock()
	if a.state != StateConnected || a.tr == nil {
		a.mu.Unlock()
		metrics.CommandsTotal.WithLabelValues("rejected").Inc()
		return ErrNotConnected
	}
	t := a.tr
	now := time.Now().UTC()
	a.history.Push(CommandRecord{Command: text, Timestamp: now})
	a.lastCommandAt = &now
	a.mu.Unlock()

	a.log.Append("📝 Command: " + text)

	if err := t.Chat(ctx, text); err != nil {
		metrics.CommandsTotal.WithLabelValues("failed").Inc()
		a.log.Append(fmt.Sprintf("❌ Command failed: %v", err))
		a.logger.Warn("forwarding command", "error", err)
		return fmt.Errorf("%w: %v", ErrCommandFailed, err)
	}
	metrics.CommandsTotal.WithLabelValues("ok").Inc()
	return nil
}

// connected reports whether task bodies may act.
func (a *Agent) connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state == StateConnected && a.tr != nil
}

func (a *Agent) currentTransport() transport.Transport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tr
}

// agentEnv exposes an agent to its behaviors.
type agentEnv struct{ a *Agent }

func (e agentEnv) Transport() transport.Transport { return e.a.currentTransport() }

func (e agentEnv) Connected() bool { return e.a.connected() }

func (e agentEnv) Logf(format string, args ...any) {
	e.a.log.Append(fmt.Sprintf(format, args...))
}
