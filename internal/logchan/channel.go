// ABOUTME: Bounded per-agent log with synchronous best-effort fan-out to observers
// ABOUTME: One failing observer never blocks or hides delivery to the others

package logchan

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/bot-fleet/internal/metrics"
	"github.com/2389/bot-fleet/internal/ring"
)

// DefaultCapacity is the number of log lines retained per agent.
const DefaultCapacity = 1000

// Frame types sent to observers.
const (
	FrameLog   = "log"
	FrameChat  = "chat"
	FrameInfo  = "info"
	FrameError = "error"
)

// Frame is a single message pushed to observers.
type Frame struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Sender  string `json:"sender,omitempty"`
	Message string `json:"message,omitempty"`
	Bot     any    `json:"bot,omitempty"`
}

// Observer receives broadcast frames. Send must not block.
type Observer interface {
	Send(f Frame) error
}

// opener is implemented by observers that can report a closed channel.
// Closed observers are skipped without counting as a failed send.
type opener interface {
	Open() bool
}

// Channel is an append-only bounded log with attached observers.
type Channel struct {
	agentID string

	mu        sync.Mutex
	entries   *ring.Buffer[string]
	observers map[Observer]struct{}

	now    func() time.Time
	logger *slog.Logger
}

// New creates a Channel for the given agent. Pass nil logger for default.
func New(agentID string, capacity int, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Channel{
		agentID:   agentID,
		entries:   ring.New[string](capacity),
		observers: make(map[Observer]struct{}),
		now:       time.Now,
		logger:    logger.With("component", "logchan", "agent_id", agentID),
	}
}

// Append timestamps line, stores it and broadcasts it to every open observer.
// Returns the stored entry.
func (c *Channel) Append(line string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := fmt.Sprintf("[%s] %s", c.now().UTC().Format(time.RFC3339Nano), line)
	c.entries.Push(entry)
	c.logger.Debug(line)

	c.broadcastLocked(Frame{Type: FrameLog, ID: c.agentID, Message: entry})
	return entry
}

// Publish broadcasts a frame without storing it in the log.
func (c *Channel) Publish(f Frame) {
	if f.ID == "" {
		f.ID = c.agentID
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.broadcastLocked(f)
}

// broadcastLocked delivers f to each observer. Must be called with mu held.
func (c *Channel) broadcastLocked(f Frame) {
	for obs := range c.observers {
		if o, ok := obs.(opener); ok && !o.Open() {
			continue
		}
		if err := obs.Send(f); err != nil {
			metrics.ObserverSends.WithLabelValues("failed").Inc()
			c.logger.Warn("observer send failed", "frame", f.Type, "error", err)
			continue
		}
		metrics.ObserverSends.WithLabelValues("ok").Inc()
	}
}

// Snapshot returns up to n of the most recent entries, oldest first.
func (c *Channel) Snapshot(n int) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Last(n)
}

// Len returns the number of stored entries.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Attach adds an observer. Attaching the same observer twice is a no-op.
func (c *Channel) Attach(obs Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.observers[obs]; ok {
		return
	}
	c.observers[obs] = struct{}{}
	c.logger.Debug("observer attached", "observers", len(c.observers))
}

// Detach removes an observer. Detaching an unknown observer is a no-op.
func (c *Channel) Detach(obs Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.observers[obs]; !ok {
		return
	}
	delete(c.observers, obs)
	c.logger.Debug("observer detached", "observers", len(c.observers))
}

// ObserverCount returns the number of attached observers.
func (c *Channel) ObserverCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.observers)
}
