// ABOUTME: Agent state-transition publishing to NATS subjects
// ABOUTME: Publish failures are logged, never returned to the agent lifecycle

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/2389/bot-fleet/internal/agent"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "fleet.agents"

// Publisher delivers transitions to subscribers.
type Publisher interface {
	PublishTransition(ctx context.Context, tr agent.Transition) error
	Close() error
}

// Hook adapts a Publisher to the registry's OnTransition callback.
func Hook(p Publisher, logger *slog.Logger) func(agent.Transition) {
	if logger == nil {
		logger = slog.Default()
	}
	return func(tr agent.Transition) {
		if err := p.PublishTransition(context.Background(), tr); err != nil {
			logger.Warn("failed to publish agent transition",
				"agent_id", tr.AgentID,
				"to", tr.To,
				"error", err,
			)
		}
	}
}

// Noop discards every transition.
type Noop struct{}

func (Noop) PublishTransition(context.Context, agent.Transition) error { return nil }
func (Noop) Close() error                                              { return nil }

// conn is the subset of *nats.Conn the publisher needs.
type conn interface {
	Publish(subject string, data []byte) error
	Close()
}

// NATSPublisher publishes transitions as JSON on core NATS subjects.
type NATSPublisher struct {
	nc     conn
	prefix string
}

var _ Publisher = (*NATSPublisher)(nil)

// ConnectNATS dials the NATS server at url.
func ConnectNATS(url, prefix string, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name("bot-fleet-gateway"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	logger.Info("nats connected", "url", url, "subject_prefix", prefix)
	return newNATSPublisher(nc, prefix), nil
}

func newNATSPublisher(nc conn, prefix string) *NATSPublisher {
	prefix = strings.TrimSuffix(prefix, ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{nc: nc, prefix: prefix}
}

// Subject returns the subject transitions for agentID are published on.
func (p *NATSPublisher) Subject(agentID string) string {
	return p.prefix + "." + agentID + ".state"
}

// PublishTransition implements Publisher.
func (p *NATSPublisher) PublishTransition(ctx context.Context, tr agent.Transition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(tr)
	if err != nil {
		return fmt.Errorf("encoding transition: %w", err)
	}
	subject := p.Subject(tr.AgentID)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Close closes the NATS connection.
func (p *NATSPublisher) Close() error {
	p.nc.Close()
	return nil
}
