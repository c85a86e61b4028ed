// ABOUTME: Transport that speaks newline-delimited JSON to a protocol bridge over TCP
// ABOUTME: Correlates request/response pairs by id and turns unsolicited lines into events

package linewire

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/bot-fleet/internal/transport"
)

const (
	// eventBufferSize bounds queued events before the reader blocks.
	eventBufferSize = 64

	// maxLineSize caps a single inbound JSON line.
	maxLineSize = 1 << 20

	quitTimeout = 2 * time.Second
)

// request is a line sent to the bridge.
type request struct {
	ID   string `json:"id"`
	Op   string `json:"op"`
	Args any    `json:"args,omitempty"`
}

// inbound is any line received from the bridge. Responses carry ID; events
// carry Event.
type inbound struct {
	ID     string          `json:"id,omitempty"`
	OK     bool            `json:"ok,omitempty"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`

	Event   string `json:"event,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Sender  string `json:"sender,omitempty"`
	Message string `json:"message,omitempty"`
}

// Conn is a live bridge connection for one game identity.
type Conn struct {
	conn   net.Conn
	logger *slog.Logger

	writeMu sync.Mutex
	enc     *json.Encoder

	mu      sync.Mutex
	pending map[string]chan inbound
	closed  bool

	events    chan transport.Event
	done      chan struct{}
	closeOnce sync.Once
}

var (
	_ transport.Transport = (*Conn)(nil)
	_ transport.Mover     = (*Conn)(nil)
	_ transport.Fighter   = (*Conn)(nil)
	_ transport.Survivor  = (*Conn)(nil)
)

func newConn(c net.Conn, logger *slog.Logger) *Conn {
	lc := &Conn{
		conn:    c,
		logger:  logger,
		enc:     json.NewEncoder(c),
		pending: make(map[string]chan inbound),
		events:  make(chan transport.Event, eventBufferSize),
		done:    make(chan struct{}),
	}
	go lc.readLoop()
	return lc
}

// Events implements transport.Transport.
func (c *Conn) Events() <-chan transport.Event {
	return c.events
}

// readLoop dispatches inbound lines until the connection drops.
func (c *Conn) readLoop() {
	defer close(c.events)

	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		var msg inbound
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			c.logger.Warn("discarding malformed bridge line", "error", err)
			continue
		}

		if msg.Event != "" {
			if !c.emit(toEvent(msg)) {
				return
			}
			continue
		}
		c.handleResponse(msg)
	}

	err := scanner.Err()
	c.shutdown()

	// A drop we did not initiate is a transport failure.
	if !c.isClosedByUs() {
		if err == nil {
			err = errors.New("bridge closed connection")
		}
		c.emit(transport.Event{Type: transport.EventError, Err: err})
	}
}

func toEvent(msg inbound) transport.Event {
	ev := transport.Event{
		Type:    transport.EventType(msg.Event),
		Reason:  msg.Reason,
		Sender:  msg.Sender,
		Message: msg.Message,
	}
	if ev.Type == transport.EventError {
		text := msg.Message
		if text == "" {
			text = msg.Reason
		}
		ev.Err = errors.New(text)
	}
	return ev
}

// emit queues an event unless the connection is being torn down.
func (c *Conn) emit(ev transport.Event) bool {
	if c.isClosedByUs() {
		return false
	}
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return ev.Type == transport.EventError && c.tryEmit(ev)
	}
}

// tryEmit is a final non-blocking send used after shutdown.
func (c *Conn) tryEmit(ev transport.Event) bool {
	select {
	case c.events <- ev:
		return true
	default:
		return false
	}
}

// handleResponse routes a response to the waiting caller.
func (c *Conn) handleResponse(msg inbound) {
	c.mu.Lock()
	ch, ok := c.pending[msg.ID]
	delete(c.pending, msg.ID)
	c.mu.Unlock()

	if !ok {
		c.logger.Warn("received response for unknown request", "request_id", msg.ID)
		return
	}
	ch <- msg
}

// call sends op and waits for its response, decoding the result into out.
func (c *Conn) call(ctx context.Context, op string, args, out any) error {
	id := uuid.New().String()
	ch := make(chan inbound, 1)

	select {
	case <-c.done:
		return transport.ErrClosed
	default:
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return transport.ErrClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(ctx, request{ID: id, Op: op, Args: args}); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return transport.ErrClosed
	case resp := <-ch:
		if !resp.OK {
			if resp.Error == "" {
				resp.Error = "request failed"
			}
			return fmt.Errorf("%s: %s", op, resp.Error)
		}
		if out != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, out); err != nil {
				return fmt.Errorf("decoding %s result: %w", op, err)
			}
		}
		return nil
	}
}

func (c *Conn) write(ctx context.Context, req request) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer func() { _ = c.conn.SetWriteDeadline(time.Time{}) }()
	}
	if err := c.enc.Encode(req); err != nil {
		return fmt.Errorf("writing %s: %w", req.Op, err)
	}
	return nil
}

// Chat implements transport.Transport.
func (c *Conn) Chat(ctx context.Context, text string) error {
	return c.call(ctx, "chat", map[string]string{"text": text}, nil)
}

// Quit implements transport.Transport.
func (c *Conn) Quit(reason string) error {
	ctx, cancel := context.WithTimeout(context.Background(), quitTimeout)
	defer cancel()

	err := c.call(ctx, "quit", map[string]string{"reason": reason}, nil)
	if cerr := c.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close implements transport.Transport.
func (c *Conn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.shutdown()
}

func (c *Conn) shutdown() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func (c *Conn) isClosedByUs() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Position implements transport.Locator.
func (c *Conn) Position(ctx context.Context) (transport.Vec3, error) {
	var p transport.Vec3
	err := c.call(ctx, "position", nil, &p)
	return p, err
}

// MoveTo implements transport.Mover.
func (c *Conn) MoveTo(ctx context.Context, p transport.Vec3, reach float64) error {
	return c.call(ctx, "move_to", map[string]any{"x": p.X, "y": p.Y, "z": p.Z, "range": reach}, nil)
}

// Look implements transport.Mover.
func (c *Conn) Look(ctx context.Context, yaw, pitch float64) error {
	return c.call(ctx, "look", map[string]float64{"yaw": yaw, "pitch": pitch}, nil)
}

// ClearControls implements transport.Mover.
func (c *Conn) ClearControls() error {
	ctx, cancel := context.WithTimeout(context.Background(), quitTimeout)
	defer cancel()
	return c.call(ctx, "clear_controls", nil, nil)
}

// Entities implements transport.Fighter.
func (c *Conn) Entities(ctx context.Context) ([]transport.Entity, error) {
	var es []transport.Entity
	err := c.call(ctx, "entities", nil, &es)
	return es, err
}

// Attack implements transport.Fighter.
func (c *Conn) Attack(ctx context.Context, entityID int) error {
	return c.call(ctx, "attack", map[string]int{"id": entityID}, nil)
}

// Food implements transport.Survivor.
func (c *Conn) Food(ctx context.Context) (int, error) {
	var res struct {
		Food int `json:"food"`
	}
	err := c.call(ctx, "food", nil, &res)
	return res.Food, err
}

// Eat implements transport.Survivor.
func (c *Conn) Eat(ctx context.Context) error {
	return c.call(ctx, "eat", nil, nil)
}

// Inventory implements transport.Survivor.
func (c *Conn) Inventory(ctx context.Context) ([]transport.Item, error) {
	var items []transport.Item
	err := c.call(ctx, "inventory", nil, &items)
	return items, err
}

// Craft implements transport.Survivor.
func (c *Conn) Craft(ctx context.Context, item string) error {
	return c.call(ctx, "craft", map[string]string{"item": item}, nil)
}

// FindBlock implements transport.Survivor.
func (c *Conn) FindBlock(ctx context.Context, name string, maxDistance float64) (transport.Block, bool, error) {
	var res struct {
		Found bool            `json:"found"`
		Block transport.Block `json:"block"`
	}
	err := c.call(ctx, "find_block", map[string]any{"name": name, "max_distance": maxDistance}, &res)
	return res.Block, res.Found, err
}

// Collect implements transport.Survivor.
func (c *Conn) Collect(ctx context.Context, b transport.Block) error {
	return c.call(ctx, "collect", b, nil)
}
