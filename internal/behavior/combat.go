// ABOUTME: Combat behavior that attacks the nearest hostile mob in range
// ABOUTME: Hostile names and search radius come from options

package behavior

import (
	"context"
	"fmt"
	"slices"

	"github.com/2389/bot-fleet/internal/transport"
)

var defaultHostiles = []string{"zombie", "skeleton", "spider", "witch", "creeper"}

type combatBehavior struct {
	radius   float64
	hostiles []string
}

func newCombat(opts Options) (Behavior, error) {
	radius, err := opts.Float("radius", 16)
	if err != nil {
		return nil, err
	}
	return &combatBehavior{
		radius:   radius,
		hostiles: opts.List("hostiles", defaultHostiles),
	}, nil
}

func (c *combatBehavior) Name() string { return "combat" }

func (c *combatBehavior) Run(ctx context.Context, env Env) error {
	if !env.Connected() {
		return nil
	}
	fighter, ok := env.Transport().(transport.Fighter)
	if !ok {
		return nil
	}

	pos, err := fighter.Position(ctx)
	if err != nil {
		return fmt.Errorf("position: %w", err)
	}
	entities, err := fighter.Entities(ctx)
	if err != nil {
		return fmt.Errorf("entities: %w", err)
	}

	target, found := c.nearestHostile(pos, entities)
	if !found {
		return nil
	}

	env.Logf("⚔️ Attacking %s", target.Name)
	if err := fighter.Attack(ctx, target.ID); err != nil {
		return fmt.Errorf("attack %s: %w", target.Name, err)
	}
	return nil
}

func (c *combatBehavior) nearestHostile(pos transport.Vec3, entities []transport.Entity) (transport.Entity, bool) {
	var (
		best     transport.Entity
		bestDist = c.radius
		found    bool
	)
	for _, e := range entities {
		if e.Kind != "mob" || !slices.Contains(c.hostiles, e.Name) {
			continue
		}
		if d := pos.DistanceTo(e.Position); d <= bestDist {
			best, bestDist, found = e, d, true
		}
	}
	return best, found
}
