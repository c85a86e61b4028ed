// ABOUTME: Ambient chat behavior that posts a random line from a configured pool
// ABOUTME: Skips silently while the agent is not connected

package behavior

import (
	"context"
	"errors"
	"math/rand/v2"
)

var defaultChatLines = []string{
	"hello everyone!",
	"anyone around?",
	"nice day for mining",
	"brb, getting wood",
	"gg",
}

type chatBehavior struct {
	lines []string
}

func newChat(opts Options) (Behavior, error) {
	lines := opts.List("messages", defaultChatLines)
	if len(lines) == 0 {
		return nil, errors.New("messages must not be empty")
	}
	return &chatBehavior{lines: lines}, nil
}

func (c *chatBehavior) Name() string { return "chat" }

func (c *chatBehavior) Run(ctx context.Context, env Env) error {
	t := env.Transport()
	if t == nil || !env.Connected() {
		return nil
	}
	line := c.lines[rand.IntN(len(c.lines))]
	if err := t.Chat(ctx, line); err != nil {
		return err
	}
	env.Logf("💬 %s", line)
	return nil
}
