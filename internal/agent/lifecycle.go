// ABOUTME: Agent connect/disconnect sequences and transport event handling
// ABOUTME: A generation counter discards events from superseded connection attempts

package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/2389/bot-fleet/internal/logchan"
	"github.com/2389/bot-fleet/internal/metrics"
	"github.com/2389/bot-fleet/internal/transport"
)

// Connect starts a new connection attempt and returns without waiting for
// it. Any existing connection is torn down first. Failures surface as the
// error state, never as a return value.
func (a *Agent) Connect() {
	a.lifecycleMu.Lock()
	defer a.lifecycleMu.Unlock()

	if a.retired {
		return
	}
	a.teardownLocked("reconnecting")

	if _, ok := a.fire(trigConnect, ""); !ok {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.gen++
	gen := a.gen
	a.cancelDial = cancel
	a.timer = time.AfterFunc(a.connectTimeout, func() { a.handleTimeout(gen) })
	a.mu.Unlock()

	a.log.Append(fmt.Sprintf("🔌 Connecting to %s as %s", a.target, a.displayName))
	go a.dial(ctx, gen)
}

// Disconnect stops behaviors and releases the connection. The error state is
// preserved. Safe to call in any state.
func (a *Agent) Disconnect() {
	a.lifecycleMu.Lock()
	defer a.lifecycleMu.Unlock()
	a.teardownLocked("disconnect requested")
}

// retire disconnects the agent for good. Later Connect calls are ignored.
func (a *Agent) retire() {
	a.lifecycleMu.Lock()
	defer a.lifecycleMu.Unlock()
	a.retired = true
	a.teardownLocked("agent removed")
}

// teardownLocked is the disconnect sequence. Caller holds lifecycleMu.
func (a *Agent) teardownLocked(reason string) {
	a.sched.Stop()

	a.mu.Lock()
	prev := a.state
	active := a.tr != nil || a.cancelDial != nil
	a.mu.Unlock()

	_, changed := a.fire(trigDisconnect, reason)
	graceful := prev == StateConnected || prev == StateConnecting
	a.releaseLocked(graceful, reason)

	if changed || active {
		a.log.Append("🔌 Disconnected: " + reason)
	}
}

// fire applies trig to the current state. Entering error records reason as
// the last error; entering connecting clears it. Caller holds lifecycleMu.
func (a *Agent) fire(trig trigger, reason string) (State, bool) {
	a.mu.Lock()
	from := a.state
	to, ok := next(from, trig)
	if !ok {
		a.mu.Unlock()
		a.logger.Debug("ignoring trigger", "trigger", trig, "state", from)
		return from, false
	}
	a.state = to
	switch to {
	case StateError:
		a.lastError = reason
	case StateConnecting:
		a.lastError = ""
	}
	a.mu.Unlock()

	metrics.AgentTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
	a.logger.Info("agent state changed", "from", from, "to", to, "trigger", trig)
	if a.onTransition != nil {
		a.onTransition(Transition{
			AgentID: a.id,
			OwnerID: a.ownerID,
			From:    from,
			To:      to,
			Reason:  reason,
			At:      time.Now().UTC(),
		})
	}
	return to, true
}

// releaseLocked invalidates the current attempt and frees its resources.
// Caller holds lifecycleMu.
func (a *Agent) releaseLocked(graceful bool, reason string) {
	a.mu.Lock()
	a.gen++
	t := a.tr
	a.tr = nil
	cancel := a.cancelDial
	a.cancelDial = nil
	timer := a.timer
	a.timer = nil
	a.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if cancel != nil {
		cancel()
	}
	if t == nil {
		return
	}

	var err error
	if graceful {
		err = t.Quit(reason)
	} else {
		err = t.Close()
	}
	if err != nil && !errors.Is(err, transport.ErrClosed) {
		a.logger.Debug("releasing transport", "error", err)
	}
}

// current reports whether gen is still the live attempt.
func (a *Agent) current(gen uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.gen == gen
}

func (a *Agent) dial(ctx context.Context, gen uint64) {
	t, err := a.dialer.Dial(ctx, transport.Options{Target: a.target, Username: a.displayName})

	a.lifecycleMu.Lock()
	defer a.lifecycleMu.Unlock()

	if !a.current(gen) {
		if t != nil {
			_ = t.Close()
		}
		return
	}
	if err != nil {
		a.failLocked(trigError, fmt.Sprintf("connection failed: %v", err), "❌ Connection failed: %v", err)
		return
	}

	a.mu.Lock()
	a.tr = t
	a.cancelDial = nil
	a.mu.Unlock()

	go a.pump(t, gen)
}

// pump feeds transport events to the state machine until the transport
// finishes.
func (a *Agent) pump(t transport.Transport, gen uint64) {
	for ev := range t.Events() {
		a.handleEvent(gen, ev)
	}

	// A transport that stops without a terminal event has still ended.
	a.handleEvent(gen, transport.Event{Type: transport.EventEnd, Reason: "connection closed"})
}

func (a *Agent) handleEvent(gen uint64, ev transport.Event) {
	a.lifecycleMu.Lock()
	defer a.lifecycleMu.Unlock()

	if !a.current(gen) {
		return
	}

	switch ev.Type {
	case transport.EventLogin:
		if _, ok := a.fire(trigLogin, ""); !ok {
			return
		}
		a.stopTimer()
		a.log.Append(fmt.Sprintf("✅ Logged in as %s", a.displayName))
		a.sched.Start()

	case transport.EventSpawn:
		a.log.Append("🌍 Spawned in world")

	case transport.EventChat:
		if ev.Sender == a.displayName {
			return
		}
		a.log.Publish(logchan.Frame{Type: logchan.FrameChat, Sender: ev.Sender, Message: ev.Message})
		a.log.Append(fmt.Sprintf("💬 <%s> %s", ev.Sender, ev.Message))

	case transport.EventEnd:
		reason := ev.Reason
		if reason == "" {
			reason = "connection ended"
		}
		to, ok := a.fire(trigEnd, "connection ended: "+reason)
		if !ok {
			return
		}
		a.sched.Stop()
		a.releaseLocked(false, reason)
		if to == StateError {
			a.log.Append("❌ Connection ended before login: " + reason)
		} else {
			a.log.Append("🔌 Disconnected: " + reason)
		}

	case transport.EventError:
		msg := "transport error"
		if ev.Err != nil {
			msg = ev.Err.Error()
		}
		a.failLocked(trigError, msg, "❌ Error: %s", msg)

	case transport.EventKicked:
		reason := ev.Reason
		if reason == "" {
			reason = "no reason given"
		}
		a.failLocked(trigKicked, "kicked: "+reason, "👢 Kicked: %s", reason)

	default:
		a.logger.Debug("ignoring transport event", "type", ev.Type)
	}
}

// failLocked moves the agent to error and force-closes the transport.
func (a *Agent) failLocked(trig trigger, lastErr, format string, args ...any) {
	if _, ok := a.fire(trig, lastErr); !ok {
		return
	}
	a.sched.Stop()
	a.releaseLocked(false, lastErr)
	a.log.Append(fmt.Sprintf(format, args...))
	a.logger.Warn("agent failed", "error", lastErr)
}

func (a *Agent) handleTimeout(gen uint64) {
	a.lifecycleMu.Lock()
	defer a.lifecycleMu.Unlock()

	if !a.current(gen) {
		return
	}
	a.failLocked(trigTimeout, ErrConnectionTimeout.Error(), "⏱️ Connection timeout after %s", a.connectTimeout)
}

func (a *Agent) stopTimer() {
	a.mu.Lock()
	timer := a.timer
	a.timer = nil
	a.mu.Unlock()
	if timer != nil {
		timer.Stop()
	}
}
