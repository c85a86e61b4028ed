// ABOUTME: Dialer that opens a bridge TCP connection and asks it to join a game server
// ABOUTME: The login event arrives later on the connection's event stream

package linewire

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/2389/bot-fleet/internal/transport"
)

// Dialer connects to a protocol bridge listening at Addr.
type Dialer struct {
	Addr   string
	Logger *slog.Logger
}

var _ transport.Dialer = (*Dialer)(nil)

// Dial implements transport.Dialer. It returns once the bridge has accepted
// the join request; login completes asynchronously.
func (d *Dialer) Dial(ctx context.Context, opts transport.Options) (transport.Transport, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var nd net.Dialer
	nc, err := nd.DialContext(ctx, "tcp", d.Addr)
	if err != nil {
		return nil, fmt.Errorf("dialing bridge %s: %w", d.Addr, err)
	}

	c := newConn(nc, logger.With("component", "linewire", "username", opts.Username))

	args := map[string]any{
		"host":     opts.Target.Host,
		"port":     opts.Target.Port,
		"username": opts.Username,
	}
	if err := c.call(ctx, "connect", args, nil); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("joining %s: %w", opts.Target, err)
	}
	return c, nil
}
