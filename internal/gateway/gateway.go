// ABOUTME: Gateway orchestrator that owns the HTTP server, agent registry, and user store
// ABOUTME: Runs the server and the reclamation sweep together and shuts both down on cancel

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/2389/bot-fleet/internal/agent"
	"github.com/2389/bot-fleet/internal/auth"
	"github.com/2389/bot-fleet/internal/config"
	"github.com/2389/bot-fleet/internal/dedupe"
	"github.com/2389/bot-fleet/internal/events"
	"github.com/2389/bot-fleet/internal/store"
	"github.com/2389/bot-fleet/internal/transport"
)

const (
	shutdownTimeout = 5 * time.Second

	// idempotencyTTL is how long an Idempotency-Key on bot creation is honored.
	idempotencyTTL  = 10 * time.Minute
	idempotencyKeys = 10000
)

// Options carries the collaborators the gateway does not build itself.
type Options struct {
	// Dialer opens game connections for agents.
	Dialer transport.Dialer

	// Users persists accounts. The gateway closes it on shutdown.
	Users store.UserStore

	// Publisher receives agent transitions. Nil means events.Noop.
	Publisher events.Publisher

	Logger *slog.Logger
}

// Gateway serves the fleet API and owns every agent.
type Gateway struct {
	config    *config.Config
	registry  *agent.Registry
	users     store.UserStore
	accounts  *auth.Accounts
	publisher events.Publisher
	limiter   *rateLimiter

	creates      *dedupe.Cache
	createFlight singleflight.Group

	handler    http.Handler
	httpServer *http.Server
	logger     *slog.Logger

	// closing is cancelled by Shutdown to end open streams, which
	// http.Server.Shutdown does not track.
	closing     context.Context
	closeStream context.CancelFunc
}

// New creates a Gateway from configuration.
func New(cfg *config.Config, opts Options) (*Gateway, error) {
	if opts.Users == nil {
		return nil, errors.New("user store is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Noop{}
	}
	logger := opts.Logger

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("creating JWT verifier: %w", err)
	}

	registry, err := agent.NewRegistry(agent.Options{
		Dialer:         opts.Dialer,
		Behaviors:      cfg.BehaviorSpecs(),
		ConnectTimeout: cfg.Agents.ConnectTimeout,
		SubTimeout:     cfg.Agents.SubTimeout,
		LogCapacity:    cfg.Agents.LogCapacity,
		DefaultPort:    cfg.Agents.DefaultPort,
		NamePrefix:     cfg.Agents.NamePrefix,
		OnTransition:   events.Hook(opts.Publisher, logger.With("component", "events")),
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating agent registry: %w", err)
	}

	closing, closeStream := context.WithCancel(context.Background())
	gw := &Gateway{
		config:      cfg,
		registry:    registry,
		users:       opts.Users,
		accounts:    auth.NewAccounts(opts.Users, verifier, cfg.Auth.TokenTTL),
		publisher:   opts.Publisher,
		limiter:     newRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window),
		creates:     dedupe.New(idempotencyTTL, idempotencyKeys),
		logger:      logger.With("component", "gateway"),
		closing:     closing,
		closeStream: closeStream,
	}
	gw.handler = gw.routes()
	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Handler returns the gateway's HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// Registry returns the agent registry.
func (g *Gateway) Registry() *agent.Registry {
	return g.registry
}

// Run serves HTTP and runs the reclamation sweep until ctx is cancelled or
// the server fails. Returns nil on graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}
	return g.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	g.logger.Info("starting gateway",
		"http_addr", ln.Addr().String(),
		"sweep_interval", g.config.Agents.SweepInterval,
	)

	eg, gctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		return g.registry.Run(gctx, g.config.Agents.SweepInterval)
	})

	eg.Go(func() error {
		<-gctx.Done()
		g.logger.Info("context canceled, initiating shutdown")
		return g.gracefulShutdown()
	})

	return eg.Wait()
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the HTTP server, ends open streams, disconnects every agent
// and releases the store and publisher.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	g.closeStream()

	g.registry.Shutdown()
	g.creates.Close()

	errs = appendCloseError(errs, "publisher close", g.publisher.Close())
	errs = appendCloseError(errs, "store close", g.users.Close())

	return errors.Join(errs...)
}
