// Package agent manages the fleet of game agents.
//
// # Overview
//
// An Agent is one game identity: a transport connection, a bounded log with
// attached observers, and a behavior scheduler. Its connection lifecycle is
// a small state machine:
//
//	idle -> connecting -> connected -> disconnected
//	             |            |
//	             +-> error <--+
//
// disconnected and error both accept a fresh Connect. The transition table
// in state.go is the only place transitions are defined; transport events
// and API calls are translated into triggers and applied against it.
//
// # Registry
//
// The Registry owns every Agent, keyed by id and indexed by owner:
//
//	reg, err := agent.NewRegistry(agent.Options{Dialer: dialer, Logger: logger})
//	a, err := reg.Create(agent.CreateParams{OwnerID: userID, Target: target})
//
// Key operations:
//
//   - Create(params): allocate, index and start connecting an agent
//   - Get(id), ListByOwner(ownerID): lookup
//   - SendCommand, Connect, Disconnect, Delete: delegate to the agent
//   - AttachObserver, DetachObserver: stream subscriptions
//   - Run(ctx, interval): reclamation sweep loop
//   - Shutdown(): disconnect everything
//
// The Registry does not check ownership. Callers compare OwnerID before
// delegating.
//
// # Reclamation
//
// Sweep removes agents that are in the error state with no observers
// attached. An errored agent that someone is still watching is kept so its
// final log stays visible.
//
// # Concurrency
//
// Lifecycle operations on one agent are serialised. Behavior task bodies
// never take the lifecycle lock, so stopping the scheduler from inside a
// transition cannot deadlock against a running task.
package agent
