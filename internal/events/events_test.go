// ABOUTME: Tests for transition publishing over a fake and a live NATS connection
// ABOUTME: The live test is skipped unless NATS_URL is set

package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/bot-fleet/internal/agent"
)

type published struct {
	subject string
	data    []byte
}

type fakeConn struct {
	mu     sync.Mutex
	msgs   []published
	err    error
	closed bool
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{subject: subject, data: data})
	return nil
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func sampleTransition() agent.Transition {
	return agent.Transition{
		AgentID: "a1",
		OwnerID: "u1",
		From:    agent.StateConnecting,
		To:      agent.StateError,
		Reason:  "connection timeout",
		At:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestNATSPublisher_PublishesJSON(t *testing.T) {
	fc := &fakeConn{}
	p := newNATSPublisher(fc, "fleet.agents.")

	require.NoError(t, p.PublishTransition(t.Context(), sampleTransition()))

	require.Len(t, fc.msgs, 1)
	assert.Equal(t, "fleet.agents.a1.state", fc.msgs[0].subject)

	var got map[string]any
	require.NoError(t, json.Unmarshal(fc.msgs[0].data, &got))
	assert.Equal(t, "a1", got["agentId"])
	assert.Equal(t, "u1", got["ownerId"])
	assert.Equal(t, "connecting", got["from"])
	assert.Equal(t, "error", got["to"])
	assert.Equal(t, "connection timeout", got["reason"])
}

func TestNATSPublisher_DefaultPrefix(t *testing.T) {
	p := newNATSPublisher(&fakeConn{}, "")
	assert.Equal(t, DefaultSubjectPrefix+".x.state", p.Subject("x"))
}

func TestNATSPublisher_Errors(t *testing.T) {
	fc := &fakeConn{err: errors.New("nats: connection closed")}
	p := newNATSPublisher(fc, "p")

	err := p.PublishTransition(t.Context(), sampleTransition())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "p.a1.state")

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	assert.ErrorIs(t, p.PublishTransition(ctx, sampleTransition()), context.Canceled)
}

func TestNATSPublisher_Close(t *testing.T) {
	fc := &fakeConn{}
	require.NoError(t, newNATSPublisher(fc, "p").Close())
	assert.True(t, fc.closed)
}

func TestHook_LogsFailures(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	fc := &fakeConn{err: errors.New("boom")}

	Hook(newNATSPublisher(fc, "p"), logger)(sampleTransition())

	assert.Contains(t, buf.String(), "failed to publish agent transition")
	assert.Contains(t, buf.String(), "agent_id=a1")
}

func TestNoop(t *testing.T) {
	var p Publisher = Noop{}
	assert.NoError(t, p.PublishTransition(t.Context(), sampleTransition()))
	assert.NoError(t, p.Close())
}

func TestNATSPublisher_Live(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	p, err := ConnectNATS(url, "fleet.test", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	sub, err := nats.Connect(url)
	require.NoError(t, err)
	t.Cleanup(sub.Close)

	msgs := make(chan *nats.Msg, 1)
	s, err := sub.ChanSubscribe("fleet.test.*.state", msgs)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Unsubscribe() })
	require.NoError(t, sub.Flush())

	require.NoError(t, p.PublishTransition(t.Context(), sampleTransition()))

	select {
	case msg := <-msgs:
		assert.Equal(t, "fleet.test.a1.state", msg.Subject)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for transition message")
	}
}
