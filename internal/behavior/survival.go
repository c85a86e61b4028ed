// ABOUTME: Survival behavior: crafts a weapon when unarmed, eats when hungry, gathers wood
// ABOUTME: Does at most one of those things per run, in that priority order

package behavior

import (
	"context"
	"fmt"
	"strings"

	"github.com/2389/bot-fleet/internal/transport"
)

type survivalBehavior struct {
	tool         string
	toolMatch    string
	hungerBelow  int
	resource     string
	gatherRadius float64
}

func newSurvival(opts Options) (Behavior, error) {
	hunger, err := opts.Int("hunger_threshold", 15)
	if err != nil {
		return nil, err
	}
	radius, err := opts.Float("gather_radius", 20)
	if err != nil {
		return nil, err
	}
	return &survivalBehavior{
		tool:         opts.String("tool", "wooden_sword"),
		toolMatch:    opts.String("tool_match", "sword"),
		hungerBelow:  hunger,
		resource:     opts.String("resource", "oak_log"),
		gatherRadius: radius,
	}, nil
}

func (s *survivalBehavior) Name() string { return "survival" }

func (s *survivalBehavior) Run(ctx context.Context, env Env) error {
	if !env.Connected() {
		return nil
	}
	sv, ok := env.Transport().(transport.Survivor)
	if !ok {
		return nil
	}

	items, err := sv.Inventory(ctx)
	if err != nil {
		return fmt.Errorf("inventory: %w", err)
	}
	if !s.armed(items) {
		env.Logf("🛠️ Crafting %s", s.tool)
		if err := sv.Craft(ctx, s.tool); err != nil {
			return fmt.Errorf("craft %s: %w", s.tool, err)
		}
		return nil
	}

	food, err := sv.Food(ctx)
	if err != nil {
		return fmt.Errorf("food: %w", err)
	}
	if food < s.hungerBelow {
		env.Logf("🍗 Eating (food %d)", food)
		if err := sv.Eat(ctx); err != nil {
			return fmt.Errorf("eat: %w", err)
		}
		return nil
	}

	block, found, err := sv.FindBlock(ctx, s.resource, s.gatherRadius)
	if err != nil {
		return fmt.Errorf("find %s: %w", s.resource, err)
	}
	if !found {
		return nil
	}
	env.Logf("🌳 Found %s, mining", s.resource)
	if err := sv.Collect(ctx, block); err != nil {
		return fmt.Errorf("collect %s: %w", s.resource, err)
	}
	return nil
}

func (s *survivalBehavior) armed(items []transport.Item) bool {
	for _, it := range items {
		if strings.Contains(it.Name, s.toolMatch) {
			return true
		}
	}
	return false
}
