// Package events publishes agent lifecycle transitions to external
// subscribers.
//
// When nats.url is configured the gateway connects a NATSPublisher and wires
// its Hook into the agent registry; every applied state change becomes a JSON
// message on "<subject_prefix>.<agentID>.state":
//
//	{"agentId":"...","ownerId":"...","from":"connecting","to":"connected","reason":"","at":"..."}
//
// Without NATS the gateway uses Noop. Publish failures are logged and never
// affect the agent.
package events
