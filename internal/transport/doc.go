// Package transport defines the boundary between an agent and the remote
// game service.
//
// The game protocol itself lives outside this module. An agent only sees a
// Transport: a live connection that emits lifecycle events (login, spawn,
// end, error, kicked, chat) and accepts chat messages. Richer world actions
// are optional capabilities discovered by type assertion:
//
//   - Mover: position, pathing to a point, looking around
//   - Fighter: listing nearby entities and attacking one
//   - Survivor: hunger, inventory, crafting, block gathering
//
// Behaviors that need a capability the transport lacks simply skip their
// action.
//
// The linewire subpackage provides a Transport that talks to a protocol
// bridge process over TCP; transporttest provides a scriptable fake.
package transport
