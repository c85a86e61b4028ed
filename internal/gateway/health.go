// ABOUTME: Liveness and readiness endpoints
// ABOUTME: Readiness pings the user store and reports agent counts by state

package gateway

import (
	"net/http"

	"github.com/2389/bot-fleet/internal/agent"
)

// ReadyResponse is the JSON response for GET /health/ready.
type ReadyResponse struct {
	Status string              `json:"status"`
	Agents int                 `json:"agents"`
	States map[agent.State]int `json:"states"`
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 when the store is reachable.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := g.users.Ping(r.Context()); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, ReadyResponse{
		Status: "ready",
		Agents: g.registry.Len(),
		States: g.registry.CountByState(),
	})
}
