// ABOUTME: Periodic reclamation of errored agents nobody is watching
// ABOUTME: Also refreshes the per-state agent gauge

package agent

import (
	"context"
	"time"

	"github.com/2389/bot-fleet/internal/metrics"
)

// reclaimable reports whether a has failed and is unobserved.
func reclaimable(a *Agent) bool {
	return a.State() == StateError && a.ObserverCount() == 0
}

// Sweep removes every agent in the error state with no observers and
// returns how many were removed.
func (r *Registry) Sweep() int {
	removed := 0
	for _, a := range r.snapshot() {
		if !reclaimable(a) {
			continue
		}
		a.retire()
		if r.remove(a) {
			removed++
			metrics.AgentsReclaimedTotal.Inc()
			r.logger.Info("reclaimed abandoned agent", "agent_id", a.id, "last_error", a.LastError())
		}
	}
	return removed
}

// Run sweeps every interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.updateGauge()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Debug("sweep complete", "removed", n, "remaining", r.Len())
			}
			r.updateGauge()
		}
	}
}

func (r *Registry) updateGauge() {
	for state, n := range r.CountByState() {
		metrics.AgentsTotal.WithLabelValues(string(state)).Set(float64(n))
	}
}
