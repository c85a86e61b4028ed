// ABOUTME: WebSocket stream that attaches a browser to one bot's log channel
// ABOUTME: Pushes info/log/chat/error frames and accepts command frames from the client

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/2389/bot-fleet/internal/agent"
	"github.com/2389/bot-fleet/internal/logchan"
	"github.com/2389/bot-fleet/internal/metrics"
)

const (
	// streamQueueSize bounds frames waiting for the socket writer.
	streamQueueSize = 256

	streamWriteTimeout = 5 * time.Second
)

var (
	errStreamClosed    = errors.New("stream closed")
	errStreamQueueFull = errors.New("stream queue full")
)

// clientMessage is a frame sent by the browser.
type clientMessage struct {
	Type    string `json:"type"`
	Command string `json:"command"`
}

// streamObserver adapts a WebSocket to logchan.Observer. Send only enqueues;
// a single writer goroutine owns the socket.
type streamObserver struct {
	queue chan logchan.Frame
	done  chan struct{}
}

var _ logchan.Observer = (*streamObserver)(nil)

func newStreamObserver() *streamObserver {
	return &streamObserver{
		queue: make(chan logchan.Frame, streamQueueSize),
		done:  make(chan struct{}),
	}
}

// Send implements logchan.Observer.
func (o *streamObserver) Send(f logchan.Frame) error {
	if !o.Open() {
		return errStreamClosed
	}
	select {
	case o.queue <- f:
		return nil
	default:
		return errStreamQueueFull
	}
}

// Open reports whether the socket is still being served.
func (o *streamObserver) Open() bool {
	select {
	case <-o.done:
		return false
	default:
		return true
	}
}

func (o *streamObserver) sendError(msg string) {
	_ = o.Send(logchan.Frame{Type: logchan.FrameError, Message: msg})
}

// writeLoop drains the queue onto the socket until ctx ends or a write fails.
func (o *streamObserver) writeLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-o.queue:
			wctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
			err := wsjson.Write(wctx, conn, f)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

// handleStream serves GET /ws?token=&botId=.
func (g *Gateway) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		g.logger.Error("websocket accept failed", "error", err)
		return
	}
	metrics.StreamConnections.Inc()
	defer metrics.StreamConnections.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(g.closing, func() {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
	})
	defer stop()

	a, reason := g.authorizeStream(ctx, r.URL.Query().Get("token"), r.URL.Query().Get("botId"))
	if a == nil {
		g.rejectStream(ctx, conn, reason)
		return
	}

	logger := g.logger.With("bot_id", a.ID(), "remote", r.RemoteAddr)
	logger.Info("stream opened")

	obs := newStreamObserver()
	_ = obs.Send(logchan.Frame{Type: logchan.FrameInfo, ID: a.ID(), Bot: a.Summary()})
	if err := g.registry.AttachObserver(a.ID(), obs); err != nil {
		g.rejectStream(ctx, conn, "bot not found")
		return
	}
	// Detach from the agent itself so a bot deleted mid-stream still lets go.
	defer func() {
		close(obs.done)
		a.Detach(obs)
	}()

	writerDone := make(chan error, 1)
	go func() {
		writerDone <- obs.writeLoop(ctx, conn)
		cancel()
	}()

	g.readStream(ctx, conn, a.ID(), obs)
	cancel()
	if err := <-writerDone; err != nil && !errors.Is(err, context.Canceled) {
		logger.Debug("stream writer stopped", "error", err)
	}

	_ = conn.Close(websocket.StatusNormalClosure, "")
	logger.Info("stream closed")
}

// authorizeStream returns the agent the token's user may observe, or nil and
// the reason to send the client.
func (g *Gateway) authorizeStream(ctx context.Context, token, botID string) (*agent.Agent, string) {
	if token == "" || botID == "" {
		return nil, "missing token or botId query params"
	}
	caller, err := g.accounts.Authenticate(ctx, token)
	if err != nil {
		return nil, "invalid token"
	}
	a, err := g.lookupOwned(caller.UserID, botID)
	switch {
	case errors.Is(err, agent.ErrNotFound):
		return nil, "bot not found"
	case err != nil:
		return nil, "forbidden for this bot"
	}
	return a, ""
}

// rejectStream sends one error frame and closes the socket.
func (g *Gateway) rejectStream(ctx context.Context, conn *websocket.Conn, reason string) {
	wctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	_ = wsjson.Write(wctx, conn, logchan.Frame{Type: logchan.FrameError, Message: reason})
	_ = conn.Close(websocket.StatusPolicyViolation, reason)
}

// readStream handles client frames until the socket closes. Malformed frames
// get an error reply and the stream stays open.
func (g *Gateway) readStream(ctx context.Context, conn *websocket.Conn, botID string, obs *streamObserver) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			obs.sendError("invalid JSON format")
			continue
		}
		if msg.Type != "command" || msg.Command == "" {
			obs.sendError("unknown message type or invalid data")
			continue
		}

		err = g.registry.SendCommand(ctx, botID, msg.Command)
		switch {
		case err == nil:
		case errors.Is(err, agent.ErrNotConnected):
			obs.sendError("bot not connected")
		case errors.Is(err, agent.ErrNotFound):
			obs.sendError("bot not found")
		default:
			obs.sendError(err.Error())
		}
	}
}
