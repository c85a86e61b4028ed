// ABOUTME: Random-walk behavior that looks around and paths to a nearby point
// ABOUTME: Releases held controls when a walk fails or times out

package behavior

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/2389/bot-fleet/internal/transport"
)

type movementBehavior struct {
	radius float64
	reach  float64
}

func newMovement(opts Options) (Behavior, error) {
	radius, err := opts.Float("radius", 8)
	if err != nil {
		return nil, err
	}
	reach, err := opts.Float("reach", 1)
	if err != nil {
		return nil, err
	}
	if radius <= 0 {
		return nil, fmt.Errorf("radius must be positive, got %v", radius)
	}
	return &movementBehavior{radius: radius, reach: reach}, nil
}

func (m *movementBehavior) Name() string { return "movement" }

func (m *movementBehavior) Run(ctx context.Context, env Env) error {
	if !env.Connected() {
		return nil
	}
	mover, ok := env.Transport().(transport.Mover)
	if !ok {
		return nil
	}

	yaw := rand.Float64() * 2 * math.Pi
	if err := mover.Look(ctx, yaw, 0); err != nil {
		return fmt.Errorf("look: %w", err)
	}

	pos, err := mover.Position(ctx)
	if err != nil {
		return fmt.Errorf("position: %w", err)
	}
	dest := pos.Add(transport.Vec3{
		X: (rand.Float64()*2 - 1) * m.radius,
		Z: (rand.Float64()*2 - 1) * m.radius,
	})

	if err := mover.MoveTo(ctx, dest, m.reach); err != nil {
		_ = mover.ClearControls()
		return fmt.Errorf("walk to %.1f,%.1f: %w", dest.X, dest.Z, err)
	}
	env.Logf("🚶 Walked to %.1f, %.1f, %.1f", dest.X, dest.Y, dest.Z)
	return nil
}
