// Package behavior runs an agent's autonomous, periodically repeating tasks.
//
// # Behaviors
//
// A Behavior is one self-driven action (chat, movement, combat, survival)
// executed against the agent's transport. Behaviors are plugins: each is
// registered under a name with a Factory, and the set an agent runs is pure
// configuration:
//
//	tasks, err := behavior.Build([]behavior.Spec{
//	    {Name: "chat", Base: 20 * time.Minute, Spread: 20 * time.Minute},
//	    {Name: "movement", Base: 5 * time.Second, Spread: 10 * time.Second},
//	})
//
// Behaviors reach capabilities (transport.Mover, transport.Fighter,
// transport.Survivor) by type assertion and skip their action when the
// transport lacks one.
//
// # Scheduler
//
// The Scheduler gives every task its own timer. After each run the next
// delay is drawn from [Base, Base+Spread) so tasks never fall into lockstep.
// Task bodies for one agent are serialised; different agents run
// independently.
//
// A failing or panicking body is logged to the agent's log and counted, and
// the task keeps its schedule. Each body runs under a timeout so a stuck
// sub-operation cannot hold up later runs.
//
// Stop cancels every timer and waits for in-flight bodies to return. Once
// Stop returns no task body runs until the next Start.
package behavior
