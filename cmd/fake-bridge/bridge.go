// ABOUTME: Fake bridge server: one session per TCP connection, JSON line requests and events
// ABOUTME: Simulates position, a nearby zombie, an oak log, food and a small inventory

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/2389/bot-fleet/internal/transport"
)

type request struct {
	ID   string          `json:"id"`
	Op   string          `json:"op"`
	Args json.RawMessage `json:"args,omitempty"`
}

type response struct {
	ID     string `json:"id"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	Result any    `json:"result,omitempty"`
}

type event struct {
	Event   string `json:"event"`
	Reason  string `json:"reason,omitempty"`
	Sender  string `json:"sender,omitempty"`
	Message string `json:"message,omitempty"`
}

type bridge struct {
	loginDelay time.Duration
	rejectHost string
	logger     *slog.Logger
}

// ListenAndServe accepts sessions until ctx is cancelled.
func (b *bridge) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening: %w", err)
	}
	return b.Serve(ctx, ln)
}

// Serve accepts sessions on ln until ctx is cancelled.
func (b *bridge) Serve(ctx context.Context, ln net.Listener) error {
	b.logger.Info("fake bridge listening", "addr", ln.Addr().String())
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accepting: %w", err)
		}
		s := newSession(c, b)
		wg.Go(func() { s.serve(ctx) })
	}
}

// session is one simulated player.
type session struct {
	conn   net.Conn
	bridge *bridge
	logger *slog.Logger

	writeMu sync.Mutex
	enc     *json.Encoder

	mu       sync.Mutex
	username string
	pos      transport.Vec3
	food     int
	items    []transport.Item
	zombieHP int
	logs     int
}

func newSession(c net.Conn, b *bridge) *session {
	return &session{
		conn:     c,
		bridge:   b,
		logger:   b.logger.With("remote", c.RemoteAddr().String()),
		enc:      json.NewEncoder(c),
		food:     14,
		zombieHP: 3,
		logs:     5,
	}
}

func (s *session) send(v any) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.enc.Encode(v); err != nil {
		s.logger.Debug("write failed", "error", err)
	}
}

func (s *session) serve(ctx context.Context) {
	defer s.conn.Close()
	stop := context.AfterFunc(ctx, func() {
		s.send(event{Event: "end", Reason: "bridge shutting down"})
		_ = s.conn.Close()
	})
	defer stop()

	scanner := bufio.NewScanner(s.conn)
	for scanner.Scan() {
		var req request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			s.logger.Warn("malformed request", "error", err)
			continue
		}

		result, err := s.handle(ctx, req)
		resp := response{ID: req.ID, OK: err == nil, Result: result}
		if err != nil {
			resp.Error = err.Error()
		}
		s.send(resp)

		if req.Op == "quit" {
			s.send(event{Event: "end", Reason: "quit"})
			return
		}
	}
	s.logger.Info("session closed", "username", s.username)
}

func (s *session) handle(ctx context.Context, req request) (any, error) {
	switch req.Op {
	case "connect":
		var args struct {
			Host     string `json:"host"`
			Port     int    `json:"port"`
			Username string `json:"username"`
		}
		if err := json.Unmarshal(req.Args, &args); err != nil {
			return nil, errors.New("bad connect args")
		}
		if args.Host == s.bridge.rejectHost {
			return nil, fmt.Errorf("connect ECONNREFUSED %s:%d", args.Host, args.Port)
		}
		s.mu.Lock()
		s.username = args.Username
		s.mu.Unlock()
		s.logger.Info("joining", "username", args.Username, "host", args.Host, "port", args.Port)
		go s.login(ctx)
		return nil, nil

	case "chat":
		var args struct {
			Text string `json:"text"`
		}
		_ = json.Unmarshal(req.Args, &args)
		s.mu.Lock()
		name := s.username
		s.mu.Unlock()
		s.send(event{Event: "chat", Sender: name, Message: args.Text})
		if !strings.HasPrefix(args.Text, "/") {
			s.send(event{Event: "chat", Sender: "Server", Message: "Echo: " + args.Text})
		}
		return nil, nil

	case "quit", "look", "clear_controls":
		return nil, nil

	case "position":
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.pos, nil

	case "move_to":
		var p transport.Vec3
		if err := json.Unmarshal(req.Args, &p); err != nil {
			return nil, errors.New("bad move_to args")
		}
		s.mu.Lock()
		s.pos = p
		s.mu.Unlock()
		return nil, nil

	case "entities":
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.zombieHP <= 0 {
			return []transport.Entity{}, nil
		}
		return []transport.Entity{{
			ID:       7,
			Name:     "zombie",
			Kind:     "mob",
			Position: s.pos.Add(transport.Vec3{X: 4}),
		}}, nil

	case "attack":
		s.mu.Lock()
		defer s.mu.Unlock()
		s.zombieHP--
		return nil, nil

	case "food":
		s.mu.Lock()
		defer s.mu.Unlock()
		return map[string]int{"food": s.food}, nil

	case "eat":
		s.mu.Lock()
		defer s.mu.Unlock()
		s.food = 20
		return nil, nil

	case "inventory":
		s.mu.Lock()
		defer s.mu.Unlock()
		return append([]transport.Item{}, s.items...), nil

	case "craft":
		var args struct {
			Item string `json:"item"`
		}
		_ = json.Unmarshal(req.Args, &args)
		s.mu.Lock()
		s.items = append(s.items, transport.Item{Name: args.Item, Count: 1})
		s.mu.Unlock()
		return nil, nil

	case "find_block":
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.logs <= 0 {
			return map[string]any{"found": false}, nil
		}
		return map[string]any{
			"found": true,
			"block": transport.Block{Name: "oak_log", Position: s.pos.Add(transport.Vec3{X: 3, Z: 2})},
		}, nil

	case "collect":
		s.mu.Lock()
		defer s.mu.Unlock()
		s.logs--
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown op %q", req.Op)
	}
}

func (s *session) login(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(s.bridge.loginDelay):
	}
	s.send(event{Event: "login"})
	s.send(event{Event: "spawn"})
}
