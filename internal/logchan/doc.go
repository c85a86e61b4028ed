// Package logchan keeps an agent's bounded activity log and fans each new
// line out to live observers.
//
// # Channel
//
// A Channel stores the most recent lines (1000 by default) and broadcasts
// every appended line to the observers attached at that moment:
//
//	ch := logchan.New(agentID, logchan.DefaultCapacity, logger)
//	ch.Attach(obs)
//	ch.Append("Connecting to play.example.net:25565 as NoobBot_x1y2z3...")
//
// Broadcast is best effort. An observer whose Send fails is logged and
// skipped; the remaining observers still receive the frame and Append never
// returns an error. Observers stay attached after a failure until the owner
// detaches them.
//
// # Ordering
//
// Frames for one channel are delivered in Append order because the broadcast
// happens while the channel lock is held. Observers must therefore never
// block inside Send.
package logchan
