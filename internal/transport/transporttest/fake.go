// ABOUTME: Scriptable in-memory Transport and Dialer for agent and behavior tests
// ABOUTME: Records every call and lets tests inject lifecycle events

package transporttest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/2389/bot-fleet/internal/transport"
)

// Fake implements transport.Transport and every optional capability.
type Fake struct {
	Opts transport.Options

	mu        sync.Mutex
	events    chan transport.Event
	closed    bool
	quit      bool
	quitMsg   string
	chats     []string
	chatErr   error
	pos       transport.Vec3
	entities  []transport.Entity
	food      int
	items     []transport.Item
	blocks    []transport.Block
	moves     []transport.Vec3
	looks     int
	attacks   []int
	crafted   []string
	eaten     int
	collected []transport.Block
	clears    int
	moveFunc  func(ctx context.Context, p transport.Vec3) error
}

var (
	_ transport.Transport = (*Fake)(nil)
	_ transport.Mover     = (*Fake)(nil)
	_ transport.Fighter   = (*Fake)(nil)
	_ transport.Survivor  = (*Fake)(nil)
)

// NewFake creates an open fake transport with 20 food points.
func NewFake(opts transport.Options) *Fake {
	return &Fake{
		Opts:   opts,
		events: make(chan transport.Event, 64),
		food:   20,
	}
}

// Emit delivers an event to the agent. Dropped if the fake is closed.
func (f *Fake) Emit(ev transport.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.events <- ev
}

// Events implements transport.Transport.
func (f *Fake) Events() <-chan transport.Event {
	return f.events
}

// Chat implements transport.Transport.
func (f *Fake) Chat(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return transport.ErrClosed
	}
	if f.chatErr != nil {
		return f.chatErr
	}
	f.chats = append(f.chats, text)
	return nil
}

// Quit implements transport.Transport.
func (f *Fake) Quit(reason string) error {
	f.mu.Lock()
	f.quit = true
	f.quitMsg = reason
	f.mu.Unlock()
	return f.Close()
}

// Close implements transport.Transport.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return nil
}

// Position implements transport.Locator.
func (f *Fake) Position(context.Context) (transport.Vec3, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos, nil
}

// MoveTo implements transport.Mover.
func (f *Fake) MoveTo(ctx context.Context, p transport.Vec3, _ float64) error {
	f.mu.Lock()
	fn := f.moveFunc
	f.moves = append(f.moves, p)
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, p)
	}

	f.mu.Lock()
	f.pos = p
	f.mu.Unlock()
	return nil
}

// Look implements transport.Mover.
func (f *Fake) Look(context.Context, float64, float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.looks++
	return nil
}

// ClearControls implements transport.Mover.
func (f *Fake) ClearControls() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
	return nil
}

// Entities implements transport.Fighter.
func (f *Fake) Entities(context.Context) ([]transport.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]transport.Entity, len(f.entities))
	copy(out, f.entities)
	return out, nil
}

// Attack implements transport.Fighter.
func (f *Fake) Attack(_ context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attacks = append(f.attacks, id)
	return nil
}

// Food implements transport.Survivor.
func (f *Fake) Food(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.food, nil
}

// Eat implements transport.Survivor.
func (f *Fake) Eat(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.eaten++
	f.food = 20
	return nil
}

// Inventory implements transport.Survivor.
func (f *Fake) Inventory(context.Context) ([]transport.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]transport.Item, len(f.items))
	copy(out, f.items)
	return out, nil
}

// Craft implements transport.Survivor.
func (f *Fake) Craft(_ context.Context, item string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.crafted = append(f.crafted, item)
	f.items = append(f.items, transport.Item{Name: item, Count: 1})
	return nil
}

// FindBlock implements transport.Survivor.
func (f *Fake) FindBlock(_ context.Context, name string, maxDistance float64) (transport.Block, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.blocks {
		if b.Name == name && f.pos.DistanceTo(b.Position) <= maxDistance {
			return b, true, nil
		}
	}
	return transport.Block{}, false, nil
}

// Collect implements transport.Survivor.
func (f *Fake) Collect(_ context.Context, b transport.Block) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collected = append(f.collected, b)
	return nil
}

// SetChatError makes every subsequent Chat call fail with err.
func (f *Fake) SetChatError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatErr = err
}

// SetMoveFunc overrides MoveTo behavior.
func (f *Fake) SetMoveFunc(fn func(ctx context.Context, p transport.Vec3) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moveFunc = fn
}

// SetEntities replaces the visible entities.
func (f *Fake) SetEntities(es ...transport.Entity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entities = es
}

// SetFood sets the hunger level.
func (f *Fake) SetFood(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.food = n
}

// SetItems replaces the inventory.
func (f *Fake) SetItems(items ...transport.Item) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = items
}

// SetBlocks replaces the blocks FindBlock can see.
func (f *Fake) SetBlocks(bs ...transport.Block) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocks = bs
}

// Chats returns every chat message sent.
func (f *Fake) Chats() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.chats...)
}

// Moves returns every MoveTo target.
func (f *Fake) Moves() []transport.Vec3 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transport.Vec3(nil), f.moves...)
}

// Looks returns the number of Look calls.
func (f *Fake) Looks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.looks
}

// Attacks returns the entity ids attacked.
func (f *Fake) Attacks() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.attacks...)
}

// Crafted returns crafted item names.
func (f *Fake) Crafted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.crafted...)
}

// Eaten returns the number of Eat calls.
func (f *Fake) Eaten() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.eaten
}

// Collected returns gathered blocks.
func (f *Fake) Collected() []transport.Block {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transport.Block(nil), f.collected...)
}

// ClearCount returns the number of ClearControls calls.
func (f *Fake) ClearCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clears
}

// Closed reports whether Close or Quit was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// QuitReason returns the reason passed to Quit, and whether Quit was called.
func (f *Fake) QuitReason() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quitMsg, f.quit
}

// Dialer hands out Fakes and remembers them in dial order.
type Dialer struct {
	mu     sync.Mutex
	dialed []*Fake
	err    error
	block  chan struct{}
	notify chan *Fake
	setup  func(*Fake)
}

// NewDialer creates a Dialer. setup, if non-nil, runs on each new Fake
// before it is returned.
func NewDialer(setup func(*Fake)) *Dialer {
	return &Dialer{
		notify: make(chan *Fake, 64),
		setup:  setup,
	}
}

// FailWith makes subsequent dials fail.
func (d *Dialer) FailWith(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// Hold makes subsequent dials block until ctx is cancelled or Release is called.
func (d *Dialer) Hold() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.block = make(chan struct{})
}

// Release unblocks held dials.
func (d *Dialer) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.block != nil {
		close(d.block)
		d.block = nil
	}
}

// Dial implements transport.Dialer.
func (d *Dialer) Dial(ctx context.Context, opts transport.Options) (transport.Transport, error) {
	d.mu.Lock()
	block, err := d.block, d.err
	d.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	f := NewFake(opts)
	if d.setup != nil {
		d.setup(f)
	}

	d.mu.Lock()
	d.dialed = append(d.dialed, f)
	d.mu.Unlock()
	d.notify <- f
	return f, nil
}

// Dialed returns every Fake handed out so far.
func (d *Dialer) Dialed() []*Fake {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Fake(nil), d.dialed...)
}

// Next waits for the next successful dial.
func (d *Dialer) Next(t testing.TB) *Fake {
	t.Helper()
	select {
	case f := <-d.notify:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dial")
		return nil
	}
}

// Eventually polls cond until it holds or two seconds pass.
func Eventually(t testing.TB, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}

// ErrBoom is a stock failure for tests.
var ErrBoom = errors.New("boom")

// Contains reports whether any line contains sub.
func Contains(lines []string, sub string) bool {
	for _, l := range lines {
		if strings.Contains(l, sub) {
			return true
		}
	}
	return false
}
