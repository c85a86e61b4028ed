// ABOUTME: Tests for the agent lifecycle state machine, commands, and behavior start/stop
// ABOUTME: Drives agents through the fake transport's scripted events

package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/bot-fleet/internal/behavior"
	"github.com/2389/bot-fleet/internal/logchan"
	"github.com/2389/bot-fleet/internal/transport"
	"github.com/2389/bot-fleet/internal/transport/transporttest"
)

func init() {
	behavior.Register("tick", func(behavior.Options) (behavior.Behavior, error) {
		return tickBehavior{}, nil
	})
}

// tickBehavior logs a line every run while connected.
type tickBehavior struct{}

func (tickBehavior) Name() string { return "tick" }

func (tickBehavior) Run(_ context.Context, env behavior.Env) error {
	if env.Connected() {
		env.Logf("🔁 tick")
	}
	return nil
}

var fastTicks = []behavior.Spec{{Name: "tick", Base: time.Millisecond, Spread: time.Millisecond}}

// recordingObserver collects frames.
type recordingObserver struct {
	mu     sync.Mutex
	frames []logchan.Frame
}

func (o *recordingObserver) Send(f logchan.Frame) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.frames = append(o.frames, f)
	return nil
}

func (o *recordingObserver) Frames() []logchan.Frame {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]logchan.Frame(nil), o.frames...)
}

func newTestRegistry(t *testing.T, dialer transport.Dialer, mutate ...func(*Options)) *Registry {
	t.Helper()
	opts := Options{
		Dialer:    dialer,
		Behaviors: fastTicks,
	}
	for _, m := range mutate {
		m(&opts)
	}
	reg, err := NewRegistry(opts)
	require.NoError(t, err)
	t.Cleanup(reg.Shutdown)
	return reg
}

var testTarget = transport.Target{Host: "h", Port: 25565}

// connectedAgent creates an agent and logs it in.
func connectedAgent(t *testing.T, reg *Registry, d *transporttest.Dialer, owner string) (*Agent, *transporttest.Fake) {
	t.Helper()
	a, err := reg.Create(CreateParams{OwnerID: owner, Target: testTarget})
	require.NoError(t, err)
	fake := d.Next(t)
	fake.Emit(transport.Event{Type: transport.EventLogin})
	waitState(t, a, StateConnected)
	return a, fake
}

func waitState(t *testing.T, a *Agent, want State) {
	t.Helper()
	transporttest.Eventually(t, func() bool { return a.State() == want }, "agent reaches "+string(want))
}

func TestCreateStartsConnecting(t *testing.T) {
	d := transporttest.NewDialer(nil)
	reg := newTestRegistry(t, d)

	a, err := reg.Create(CreateParams{OwnerID: "u1", Target: transport.Target{Host: "h"}})
	require.NoError(t, err)

	s := a.Summary()
	assert.Equal(t, StateConnecting, s.State)
	assert.Equal(t, "u1", s.OwnerID)
	assert.Equal(t, 25565, s.Target.Port, "default port")
	assert.Nil(t, s.LastError)
	assert.Nil(t, s.LastCommandAt)
	assert.NotNil(t, s.Log)
	assert.NotNil(t, s.CommandHistory)

	assert.True(t, strings.HasPrefix(s.DisplayName, "NoobBot_"))
	assert.Len(t, s.DisplayName, len("NoobBot_")+6)

	fake := d.Next(t)
	assert.Equal(t, s.DisplayName, fake.Opts.Username)
	assert.Equal(t, "h:25565", fake.Opts.Target.Addr())
}

func TestCreateRequiresHost(t *testing.T) {
	reg := newTestRegistry(t, transporttest.NewDialer(nil))

	_, err := reg.Create(CreateParams{OwnerID: "u1"})
	assert.ErrorIs(t, err, ErrMissingTarget)
	assert.Zero(t, reg.Len())
}

func TestLoginThenEnd(t *testing.T) {
	d := transporttest.NewDialer(nil)
	reg := newTestRegistry(t, d)

	a, fake := connectedAgent(t, reg, d, "U")
	assert.True(t, a.BehaviorsRunning())

	fake.Emit(transport.Event{Type: transport.EventEnd, Reason: "kicked"})
	waitState(t, a, StateDisconnected)

	assert.False(t, a.BehaviorsRunning())
	assert.Empty(t, a.LastError())
	assert.True(t, transporttest.Contains(a.Log().Snapshot(100), "Disconnected: kicked"))
	assert.True(t, fake.Closed())
}

func TestEndBeforeLoginIsAnError(t *testing.T) {
	d := transporttest.NewDialer(nil)
	reg := newTestRegistry(t, d)

	a, err := reg.Create(CreateParams{OwnerID: "U", Target: testTarget})
	require.NoError(t, err)
	d.Next(t).Emit(transport.Event{Type: transport.EventEnd, Reason: "server full"})

	waitState(t, a, StateError)
	assert.Contains(t, a.LastError(), "server full")
}

func TestTransportErrorAfterLogin(t *testing.T) {
	d := transporttest.NewDialer(nil)
	reg := newTestRegistry(t, d)

	a, fake := connectedAgent(t, reg, d, "U")
	fake.Emit(transport.Event{Type: transport.EventError, Err: errors.New("socket reset")})

	waitState(t, a, StateError)
	assert.Equal(t, "socket reset", a.LastError())
	assert.False(t, a.BehaviorsRunning())
	assert.True(t, fake.Closed())
	assert.True(t, transporttest.Contains(a.Log().Snapshot(100), "socket reset"))
}

func TestKickedIsAnError(t *testing.T) {
	d := transporttest.NewDialer(nil)
	reg := newTestRegistry(t, d)

	a, fake := connectedAgent(t, reg, d, "U")
	fake.Emit(transport.Event{Type: transport.EventKicked, Reason: "flying is not enabled"})

	waitState(t, a, StateError)
	assert.Equal(t, "kicked: flying is not enabled", a.LastError())
	assert.True(t, transporttest.Contains(a.Log().Snapshot(100), "Kicked: flying is not enabled"))
}

func TestTransportClosingWithoutEventEndsConnection(t *testing.T) {
	d := transporttest.NewDialer(nil)
	reg := newTestRegistry(t, d)

	a, fake := connectedAgent(t, reg, d, "U")
	require.NoError(t, fake.Close())

	waitState(t, a, StateDisconnected)
	assert.True(t, transporttest.Contains(a.Log().Snapshot(100), "connection closed"))
}

func TestDialFailure(t *testing.T) {
	d := transporttest.NewDialer(nil)
	d.FailWith(transporttest.ErrBoom)
	reg := newTestRegistry(t, d)

	a, err := reg.Create(CreateParams{OwnerID: "U", Target: testTarget})
	require.NoError(t, err, "connect failures never surface from Create")

	waitState(t, a, StateError)
	assert.Equal(t, "connection failed: boom", a.LastError())
}

func TestConnectionTimeout(t *testing.T) {
	d := transporttest.NewDialer(nil)
	reg := newTestRegistry(t, d, func(o *Options) { o.ConnectTimeout = 20 * time.Millisecond })

	a, err := reg.Create(CreateParams{OwnerID: "U", Target: testTarget})
	require.NoError(t, err)
	fake := d.Next(t)

	waitState(t, a, StateError)
	assert.Equal(t, ErrConnectionTimeout.Error(), a.LastError())
	assert.True(t, fake.Closed(), "timed-out transport is force-closed")

	// A late login from the abandoned transport changes nothing.
	fake.Emit(transport.Event{Type: transport.EventLogin})
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, StateError, a.State())
}

func TestConnectionTimeoutWhileDialing(t *testing.T) {
	d := transporttest.NewDialer(nil)
	d.Hold()
	reg := newTestRegistry(t, d, func(o *Options) { o.ConnectTimeout = 20 * time.Millisecond })

	a, err := reg.Create(CreateParams{OwnerID: "U", Target: testTarget})
	require.NoError(t, err)

	waitState(t, a, StateError)
	assert.Equal(t, "connection timeout", a.LastError())

	d.Release()
	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, d.Dialed(), "cancelled dial never yields a transport")
}

func TestLoginCancelsTimeout(t *testing.T) {
	d := transporttest.NewDialer(nil)
	reg := newTestRegistry(t, d, func(o *Options) { o.ConnectTimeout = 30 * time.Millisecond })

	a, _ := connectedAgent(t, reg, d, "U")
	time.Sleep(60 * time.Millisecond)

	assert.Equal(t, StateConnected, a.State())
}

func TestDisconnectStopsBehaviors(t *testing.T) {
	d := transporttest.NewDialer(nil)
	reg := newTestRegistry(t, d)

	a, fake := connectedAgent(t, reg, d, "U")
	transporttest.Eventually(t, func() bool {
		return transporttest.Contains(a.Log().Snapshot(100), "tick")
	}, "behavior task runs while connected")

	require.NoError(t, reg.Disconnect(a.ID()))
	assert.Equal(t, StateDisconnected, a.State())
	assert.False(t, a.BehaviorsRunning())

	reason, quit := fake.QuitReason()
	assert.True(t, quit, "connected transport is closed gracefully")
	assert.Equal(t, "disconnect requested", reason)
	assert.Equal(t, 1, fake.ClearCount(), "held controls are released")

	before := a.Log().Snapshot(logchan.DefaultCapacity)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, before, a.Log().Snapshot(logchan.DefaultCapacity), "no task output after disconnect")
}

func TestDisconnectIsIdempotent(t *testing.T) {
	d := transporttest.NewDialer(nil)
	reg := newTestRegistry(t, d)

	a, _ := connectedAgent(t, reg, d, "U")
	a.Disconnect()
	a.Disconnect()

	n := 0
	for _, line := range a.Log().Snapshot(100) {
		if strings.Contains(line, "Disconnected") {
			n++
		}
	}
	assert.Equal(t, 1, n)
	assert.Equal(t, StateDisconnected, a.State())
}

func TestDisconnectPreservesError(t *testing.T) {
	d := transporttest.NewDialer(nil)
	reg := newTestRegistry(t, d)

	a, fake := connectedAgent(t, reg, d, "U")
	fake.Emit(transport.Event{Type: transport.EventError, Err: transporttest.ErrBoom})
	waitState(t, a, StateError)

	a.Disconnect()
	assert.Equal(t, StateError, a.State())
	assert.Equal(t, "boom", a.LastError())
}

func TestDisconnectWhileConnecting(t *testing.T) {
	d := transporttest.NewDialer(nil)
	d.Hold()
	reg := newTestRegistry(t, d)

	a, err := reg.Create(CreateParams{OwnerID: "U", Target: testTarget})
	require.NoError(t, err)

	a.Disconnect()
	assert.Equal(t, StateDisconnected, a.State())

	d.Release()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, StateDisconnected, a.State())
	assert.Empty(t, d.Dialed())
}

func TestReconnectAfterError(t *testing.T) {
	d := transporttest.NewDialer(nil)
	reg := newTestRegistry(t, d)

	a, first := connectedAgent(t, reg, d, "U")
	first.Emit(transport.Event{Type: transport.EventKicked, Reason: "afk"})
	waitState(t, a, StateError)

	require.NoError(t, reg.Connect(a.ID()))
	assert.Equal(t, StateConnecting, a.State())
	assert.Empty(t, a.LastError(), "new attempt clears the last error")

	second := d.Next(t)
	require.NotSame(t, first, second)
	second.Emit(transport.Event{Type: transport.EventLogin})
	waitState(t, a, StateConnected)
}

func TestConnectWhileConnectedTearsDownFirst(t *testing.T) {
	d := transporttest.NewDialer(nil)
	reg := newTestRegistry(t, d)

	a, first := connectedAgent(t, reg, d, "U")
	a.Connect()

	assert.Equal(t, StateConnecting, a.State())
	assert.True(t, first.Closed())
	assert.False(t, a.BehaviorsRunning())

	second := d.Next(t)
	second.Emit(transport.Event{Type: transport.EventLogin})
	waitState(t, a, StateConnected)
	assert.True(t, a.BehaviorsRunning())
}

func TestSendCommand(t *testing.T) {
	d := transporttest.NewDialer(nil)
	reg := newTestRegistry(t, d)

	a, fake := connectedAgent(t, reg, d, "U")
	require.NoError(t, reg.SendCommand(t.Context(), a.ID(), "/time set day"))

	assert.Equal(t, []string{"/time set day"}, fake.Chats())
	s := a.Summary()
	require.Len(t, s.CommandHistory, 1)
	assert.Equal(t, "/time set day", s.CommandHistory[0].Command)
	require.NotNil(t, s.LastCommandAt)
	assert.True(t, transporttest.Contains(s.Log, "Command: /time set day"))
}

func TestSendCommandWhenNotConnected(t *testing.T) {
	d := transporttest.NewDialer(nil)
	reg := newTestRegistry(t, d)

	a, _ := connectedAgent(t, reg, d, "U")
	a.Disconnect()

	err := reg.SendCommand(t.Context(), a.ID(), "hello")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Empty(t, a.CommandHistory(10))
	assert.Nil(t, a.Summary().LastCommandAt)
}

func TestSendCommandTransportFailure(t *testing.T) {
	d := transporttest.NewDialer(nil)
	reg := newTestRegistry(t, d)

	a, fake := connectedAgent(t, reg, d, "U")
	fake.SetChatError(transporttest.ErrBoom)

	err := a.SendCommand(t.Context(), "hello")
	require.ErrorIs(t, err, ErrCommandFailed)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, StateConnected, a.State(), "failed forward does not change state")
	assert.True(t, transporttest.Contains(a.Log().Snapshot(100), "Command failed"))
}

func TestSendCommandUnknownAgent(t *testing.T) {
	reg := newTestRegistry(t, transporttest.NewDialer(nil))
	assert.ErrorIs(t, reg.SendCommand(t.Context(), "nope", "hi"), ErrNotFound)
}

func TestSummaryLimits(t *testing.T) {
	d := transporttest.NewDialer(nil)
	reg := newTestRegistry(t, d, func(o *Options) { o.Behaviors = []behavior.Spec{} })

	a, _ := connectedAgent(t, reg, d, "U")
	for i := range 25 {
		require.NoError(t, a.SendCommand(t.Context(), strings.Repeat("x", i+1)))
	}

	s := a.Summary()
	assert.Len(t, s.CommandHistory, 10)
	assert.Equal(t, strings.Repeat("x", 25), s.CommandHistory[9].Command)
	assert.Equal(t, strings.Repeat("x", 16), s.CommandHistory[0].Command)
	assert.Len(t, s.Log, 20)
}

func TestChatEventsReachObservers(t *testing.T) {
	d := transporttest.NewDialer(nil)
	reg := newTestRegistry(t, d, func(o *Options) { o.Behaviors = []behavior.Spec{} })

	a, fake := connectedAgent(t, reg, d, "U")
	obs := &recordingObserver{}
	require.NoError(t, reg.AttachObserver(a.ID(), obs))

	fake.Emit(transport.Event{Type: transport.EventChat, Sender: a.DisplayName(), Message: "echo"})
	fake.Emit(transport.Event{Type: transport.EventChat, Sender: "Steve", Message: "hi bot"})

	transporttest.Eventually(t, func() bool { return len(obs.Frames()) == 2 }, "chat and log frames")
	frames := obs.Frames()
	assert.Equal(t, logchan.Frame{Type: logchan.FrameChat, ID: a.ID(), Sender: "Steve", Message: "hi bot"}, frames[0])
	assert.Equal(t, logchan.FrameLog, frames[1].Type)
	assert.Contains(t, frames[1].Message, "<Steve> hi bot")
}

func TestObserversSurviveTerminalStates(t *testing.T) {
	d := transporttest.NewDialer(nil)
	reg := newTestRegistry(t, d, func(o *Options) { o.Behaviors = []behavior.Spec{} })

	a, fake := connectedAgent(t, reg, d, "U")
	fake.Emit(transport.Event{Type: transport.EventError, Err: transporttest.ErrBoom})
	waitState(t, a, StateError)

	obs := &recordingObserver{}
	require.NoError(t, reg.AttachObserver(a.ID(), obs))
	require.NoError(t, reg.DetachObserver(a.ID(), obs))
	require.NoError(t, reg.DetachObserver(a.ID(), obs))
	assert.Zero(t, a.ObserverCount())
}

func TestTransitionHook(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []Transition
	)
	d := transporttest.NewDialer(nil)
	reg := newTestRegistry(t, d, func(o *Options) {
		o.OnTransition = func(tr Transition) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, tr)
		}
	})

	a, fake := connectedAgent(t, reg, d, "U")
	fake.Emit(transport.Event{Type: transport.EventEnd, Reason: "bye"})
	waitState(t, a, StateDisconnected)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 3)
	assert.Equal(t, [2]State{StateIdle, StateConnecting}, [2]State{seen[0].From, seen[0].To})
	assert.Equal(t, [2]State{StateConnecting, StateConnected}, [2]State{seen[1].From, seen[1].To})
	assert.Equal(t, [2]State{StateConnected, StateDisconnected}, [2]State{seen[2].From, seen[2].To})
	assert.Equal(t, a.ID(), seen[2].AgentID)
	assert.Equal(t, "U", seen[2].OwnerID)
}

func TestTransitionTableFollowsLifecycleGraph(t *testing.T) {
	allowed := map[[2]State]bool{
		{StateIdle, StateConnecting}:         true,
		{StateConnecting, StateConnected}:    true,
		{StateConnecting, StateError}:        true,
		{StateConnecting, StateDisconnected}: true, // disconnect() while connecting
		{StateConnected, StateDisconnected}:  true,
		{StateConnected, StateError}:         true,
		{StateDisconnected, StateConnecting}: true,
		{StateError, StateConnecting}:        true,
	}

	for trig, edges := range transitions {
		for from, to := range edges {
			assert.True(t, allowed[[2]State{from, to}], "%s: %s -> %s", trig, from, to)
		}
	}

	_, ok := next(StateError, trigDisconnect)
	assert.False(t, ok, "disconnect preserves error")
	_, ok = next(StateError, trigEnd)
	assert.False(t, ok)
	_, ok = next(StateConnected, trigTimeout)
	assert.False(t, ok, "timeout after login is ignored")
}
