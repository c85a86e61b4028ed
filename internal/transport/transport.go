// ABOUTME: Transport and Dialer contracts plus the event vocabulary agents react to
// ABOUTME: Optional Mover/Fighter/Survivor capabilities are discovered by type assertion

package transport

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"
)

// ErrClosed is returned by operations on a transport that has been closed.
var ErrClosed = errors.New("transport closed")

// EventType names a transport lifecycle or world event.
type EventType string

const (
	EventLogin  EventType = "login"
	EventSpawn  EventType = "spawn"
	EventEnd    EventType = "end"
	EventError  EventType = "error"
	EventKicked EventType = "kicked"
	EventChat   EventType = "chat"
)

// Event is a single notification from a transport.
type Event struct {
	Type    EventType
	Reason  string // EventEnd, EventKicked
	Err     error  // EventError
	Sender  string // EventChat
	Message string // EventChat
}

// Target is the remote game server address.
type Target struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Addr returns host:port suitable for net.Dial.
func (t Target) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

func (t Target) String() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// Options describes a connection to open.
type Options struct {
	Target   Target
	Username string
}

// Transport is a live connection to the game service.
// Events is closed once the transport has finished; no events follow.
type Transport interface {
	Events() <-chan Event
	Chat(ctx context.Context, text string) error
	// Quit leaves the server gracefully and releases the connection.
	Quit(reason string) error
	// Close releases the connection immediately. Safe to call more than once.
	Close() error
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context, opts Options) (Transport, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, opts Options) (Transport, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, opts Options) (Transport, error) {
	return f(ctx, opts)
}

// Vec3 is a world position.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Add returns v+o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// DistanceTo returns the Euclidean distance between v and o.
func (v Vec3) DistanceTo(o Vec3) float64 {
	dx, dy, dz := v.X-o.X, v.Y-o.Y, v.Z-o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Entity is a visible creature or player.
type Entity struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Kind     string `json:"kind"` // "mob", "player", "object"
	Position Vec3   `json:"position"`
}

// Block is a world block at a position.
type Block struct {
	Name     string `json:"name"`
	Position Vec3   `json:"position"`
}

// Item is an inventory stack.
type Item struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Locator reports the agent's own position.
type Locator interface {
	Position(ctx context.Context) (Vec3, error)
}

// Mover can walk and look around.
type Mover interface {
	Locator
	// MoveTo paths to within reach blocks of p. It blocks until arrival,
	// failure, or ctx cancellation.
	MoveTo(ctx context.Context, p Vec3, reach float64) error
	Look(ctx context.Context, yaw, pitch float64) error
	// ClearControls releases every held movement control.
	ClearControls() error
}

// Fighter can see and attack entities.
type Fighter interface {
	Locator
	Entities(ctx context.Context) ([]Entity, error)
	Attack(ctx context.Context, entityID int) error
}

// Survivor can manage hunger, crafting and resource gathering.
type Survivor interface {
	Food(ctx context.Context) (int, error)
	Eat(ctx context.Context) error
	Inventory(ctx context.Context) ([]Item, error)
	Craft(ctx context.Context, item string) error
	FindBlock(ctx context.Context, name string, maxDistance float64) (Block, bool, error)
	Collect(ctx context.Context, b Block) error
}
