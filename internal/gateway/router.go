// ABOUTME: HTTP route table for the fleet gateway
// ABOUTME: Public health, account and stream routes; bearer-protected bot routes

package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/2389/bot-fleet/internal/auth"
	"github.com/2389/bot-fleet/internal/metrics"
)

func (g *Gateway) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(g.logger.With("component", "http")))

	r.Get("/health", g.handleHealth)
	r.Get("/health/ready", g.handleReady)
	if g.config.Metrics.Enabled {
		r.Handle(g.config.Metrics.Path, metrics.Handler())
	}

	// Browsers cannot set headers on WebSocket upgrades, so the stream
	// authenticates from its query string.
	r.Get("/ws", g.handleStream)

	r.Route("/api", func(r chi.Router) {
		r.Use(g.limiter.Handler)

		r.Post("/register", g.handleRegister)
		r.Post("/login", g.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(auth.HTTPAuthMiddleware(g.accounts))

			r.Route("/bots", func(r chi.Router) {
				r.Post("/", g.handleCreateBot)
				r.Get("/", g.handleListBots)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", g.handleGetBot)
					r.Delete("/", g.handleDeleteBot)
					r.Post("/command", g.handleCommand)
					r.Post("/connect", g.handleConnect)
					r.Post("/disconnect", g.handleDisconnect)
				})
			})
		})
	})

	return r
}
