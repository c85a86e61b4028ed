// Package gateway serves the fleet's HTTP API and observer stream.
//
// # Overview
//
// The Gateway owns the agent registry, the user store and the HTTP server.
// Run serves requests and runs the registry's reclamation sweep in one
// errgroup; cancelling its context shuts the server down, closes open
// streams, disconnects every agent and closes the store.
//
// # HTTP API
//
// Public:
//
//	GET  /health            liveness
//	GET  /health/ready      store ping plus agent counts by state
//	GET  /metrics           Prometheus scrape (metrics.enabled)
//	POST /api/register      {username, password} -> {userId, username}
//	POST /api/login         {username, password} -> {token}
//
// Bearer token required:
//
//	POST   /api/bots                 {serverIp, serverPort?, username?}
//	GET    /api/bots                 caller's bots
//	GET    /api/bots/{id}            summary
//	POST   /api/bots/{id}/command    {command}
//	POST   /api/bots/{id}/connect    reconnect after disconnect or error
//	POST   /api/bots/{id}/disconnect
//	DELETE /api/bots/{id}
//
// A bot that exists but belongs to someone else answers 403; an unknown id
// answers 404. All /api routes share a per-client-IP rate limit.
//
// POST /api/bots accepts an Idempotency-Key header. For ten minutes a repeat
// of the same key by the same user returns the bot the first request created,
// provided it has not been deleted.
//
// # Stream
//
// GET /ws?token=...&botId=... upgrades to a WebSocket. The server sends an
// "info" frame with the bot summary, then every "log" and "chat" frame the
// bot produces. The client may send {"type":"command","command":"..."}; any
// other message gets an "error" frame and the stream stays open. An invalid
// token, unknown bot or foreign bot gets one "error" frame and a close.
package gateway
