// ABOUTME: Registry of agents keyed by id with an owner index
// ABOUTME: Creates, looks up, delegates to, and removes agents; runs the reclamation sweep

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/bot-fleet/internal/behavior"
	"github.com/2389/bot-fleet/internal/logchan"
	"github.com/2389/bot-fleet/internal/transport"
)

var (
	// ErrDuplicateID indicates a caller-supplied id is already in use.
	ErrDuplicateID = errors.New("agent id already exists")

	// ErrNotFound indicates the agent does not exist.
	ErrNotFound = errors.New("agent not found")

	// ErrMissingTarget indicates a create request without a host.
	ErrMissingTarget = errors.New("target host is required")
)

const (
	DefaultPort          = 25565
	DefaultNamePrefix    = "NoobBot_"
	DefaultSweepInterval = 60 * time.Second

	nameSuffixLen = 6
	nameAlphabet  = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// Options configures a Registry.
type Options struct {
	Dialer transport.Dialer

	// Behaviors is the task set every agent runs. Nil means
	// behavior.DefaultSpecs.
	Behaviors []behavior.Spec

	ConnectTimeout time.Duration
	SubTimeout     time.Duration
	LogCapacity    int
	DefaultPort    int
	NamePrefix     string

	// OnTransition is called for every applied state change, while the
	// agent's lifecycle lock is held. It must not call back into the agent.
	OnTransition func(Transition)

	Logger *slog.Logger
}

// CreateParams describes a new agent.
type CreateParams struct {
	// ID is normally empty and generated.
	ID          string
	OwnerID     string
	Target      transport.Target
	DisplayName string
}

// Registry owns every agent.
type Registry struct {
	opts   Options
	logger *slog.Logger

	mu      sync.RWMutex
	agents  map[string]*Agent
	byOwner map[string]map[string]struct{}
}

// NewRegistry validates the behavior configuration and returns an empty
// registry.
func NewRegistry(opts Options) (*Registry, error) {
	if opts.Dialer == nil {
		return nil, errors.New("dialer is required")
	}
	if opts.Behaviors == nil {
		opts.Behaviors = behavior.DefaultSpecs()
	}
	if _, err := behavior.Build(opts.Behaviors); err != nil {
		return nil, fmt.Errorf("invalid behaviors: %w", err)
	}
	if opts.DefaultPort <= 0 {
		opts.DefaultPort = DefaultPort
	}
	if opts.NamePrefix == "" {
		opts.NamePrefix = DefaultNamePrefix
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Registry{
		opts:    opts,
		logger:  opts.Logger.With("component", "registry"),
		agents:  make(map[string]*Agent),
		byOwner: make(map[string]map[string]struct{}),
	}, nil
}

// Create allocates and indexes an agent, then starts connecting it. It does
// not wait for the connection.
func (r *Registry) Create(p CreateParams) (*Agent, error) {
	if p.Target.Host == "" {
		return nil, ErrMissingTarget
	}
	if p.Target.Port == 0 {
		p.Target.Port = r.opts.DefaultPort
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.DisplayName == "" {
		p.DisplayName = r.opts.NamePrefix + randomSuffix()
	}

	tasks, err := behavior.Build(r.opts.Behaviors)
	if err != nil {
		return nil, fmt.Errorf("building behaviors: %w", err)
	}

	a := newAgent(agentConfig{
		ID:             p.ID,
		OwnerID:        p.OwnerID,
		Target:         p.Target,
		DisplayName:    p.DisplayName,
		Dialer:         r.opts.Dialer,
		Tasks:          tasks,
		ConnectTimeout: r.opts.ConnectTimeout,
		SubTimeout:     r.opts.SubTimeout,
		LogCapacity:    r.opts.LogCapacity,
		OnTransition:   r.opts.OnTransition,
		Logger:         r.opts.Logger,
	})

	r.mu.Lock()
	if _, exists := r.agents[p.ID]; exists {
		r.mu.Unlock()
		return nil, ErrDuplicateID
	}
	r.agents[p.ID] = a
	owned, ok := r.byOwner[p.OwnerID]
	if !ok {
		owned = make(map[string]struct{})
		r.byOwner[p.OwnerID] = owned
	}
	owned[p.ID] = struct{}{}
	total := len(r.agents)
	r.mu.Unlock()

	r.logger.Info("agent created",
		"agent_id", p.ID,
		"owner_id", p.OwnerID,
		"display_name", p.DisplayName,
		"target", p.Target.String(),
		"total_agents", total,
	)

	a.Connect()
	return a, nil
}

func randomSuffix() string {
	b := make([]byte, nameSuffixLen)
	for i := range b {
		b[i] = nameAlphabet[rand.IntN(len(nameAlphabet))]
	}
	return string(b)
}

// Get returns the agent with the given id.
func (r *Registry) Get(id string) (*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a, nil
}

// ListByOwner returns summaries of the owner's agents, oldest first.
func (r *Registry) ListByOwner(ownerID string) []Summary {
	r.mu.RLock()
	owned := make([]*Agent, 0, len(r.byOwner[ownerID]))
	for id := range r.byOwner[ownerID] {
		owned = append(owned, r.agents[id])
	}
	r.mu.RUnlock()

	sort.Slice(owned, func(i, j int) bool {
		if owned[i].createdAt.Equal(owned[j].createdAt) {
			return owned[i].id < owned[j].id
		}
		return owned[i].createdAt.Before(owned[j].createdAt)
	})

	out := make([]Summary, 0, len(owned))
	for _, a := range owned {
		out = append(out, a.Summary())
	}
	return out
}

// SendCommand forwards a command to an agent.
func (r *Registry) SendCommand(ctx context.Context, id, text string) error {
	a, err := r.Get(id)
	if err != nil {
		return err
	}
	return a.SendCommand(ctx, text)
}

// Connect starts a fresh connection attempt for an agent.
func (r *Registry) Connect(id string) error {
	a, err := r.Get(id)
	if err != nil {
		return err
	}
	a.Connect()
	return nil
}

// Disconnect stops an agent without removing it.
func (r *Registry) Disconnect(id string) error {
	a, err := r.Get(id)
	if err != nil {
		return err
	}
	a.Disconnect()
	return nil
}

// Delete disconnects an agent and removes it from the registry.
func (r *Registry) Delete(id string) error {
	a, err := r.Get(id)
	if err != nil {
		return err
	}
	a.retire()
	r.remove(a)
	return nil
}

// remove drops a from both indices if it is still registered.
func (r *Registry) remove(a *Agent) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.agents[a.id]; !ok || cur != a {
		return false
	}
	delete(r.agents, a.id)
	if owned, ok := r.byOwner[a.ownerID]; ok {
		delete(owned, a.id)
		if len(owned) == 0 {
			delete(r.byOwner, a.ownerID)
		}
	}
	r.logger.Info("agent removed",
		"agent_id", a.id,
		"owner_id", a.ownerID,
		"total_agents", len(r.agents),
	)
	return true
}

// AttachObserver subscribes an observer to an agent's log.
func (r *Registry) AttachObserver(id string, o logchan.Observer) error {
	a, err := r.Get(id)
	if err != nil {
		return err
	}
	a.Attach(o)
	return nil
}

// DetachObserver unsubscribes an observer.
func (r *Registry) DetachObserver(id string, o logchan.Observer) error {
	a, err := r.Get(id)
	if err != nil {
		return err
	}
	a.Detach(o)
	return nil
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// CountByState returns the number of agents in each state. Every state is
// present in the result.
func (r *Registry) CountByState() map[State]int {
	counts := make(map[State]int, len(States))
	for _, s := range States {
		counts[s] = 0
	}
	for _, a := range r.snapshot() {
		counts[a.State()]++
	}
	return counts
}

func (r *Registry) snapshot() []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	return out
}

// Shutdown disconnects every agent. The registry keeps its entries.
func (r *Registry) Shutdown() {
	agents := r.snapshot()
	r.logger.Info("shutting down agents", "count", len(agents))

	var wg sync.WaitGroup
	for _, a := range agents {
		wg.Go(a.retire)
	}
	wg.Wait()
}
