// ABOUTME: User administration subcommands that work directly against the database
// ABOUTME: adduser registers an account and prints a bearer token; users lists accounts

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/2389/bot-fleet/internal/auth"
	"github.com/2389/bot-fleet/internal/config"
	"github.com/2389/bot-fleet/internal/store"
)

func runAddUser(ctx context.Context, args []string) error {
	if len(args) < 1 || args[0] == "" {
		return errors.New("usage: fleet-gateway adduser <username> [password]")
	}
	username := args[0]

	password := ""
	if len(args) > 1 {
		password = args[1]
	} else {
		fmt.Print("Password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("reading password: %w", err)
		}
		password = strings.TrimSpace(line)
	}

	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return fmt.Errorf("creating JWT verifier: %w", err)
	}
	accounts := auth.NewAccounts(s, verifier, cfg.Auth.TokenTTL)

	user, err := accounts.Register(ctx, username, password)
	if errors.Is(err, store.ErrUsernameExists) {
		return fmt.Errorf("user %q already exists", username)
	}
	if err != nil {
		return fmt.Errorf("creating user: %w", err)
	}

	token, err := accounts.Login(ctx, username, password)
	if err != nil {
		return fmt.Errorf("issuing token: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Created user: %s\n", user.Username)
	fmt.Printf("  ID:      %s\n", user.ID)
	fmt.Printf("  Token:   %s\n", token)
	color.New(color.FgHiBlack).Printf("  (valid for %s)\n", cfg.Auth.TokenTTL)
	return nil
}

func runUsers(ctx context.Context) error {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	users, err := s.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("listing users: %w", err)
	}
	if len(users) == 0 {
		fmt.Println("No users. Create one with: fleet-gateway adduser <username>")
		return nil
	}

	cyan := color.New(color.FgCyan)
	cyan.Printf("  %-36s  %-20s  %s\n", "ID", "USERNAME", "CREATED")
	for _, u := range users {
		fmt.Printf("  %-36s  %-20s  %s\n", u.ID, u.Username, u.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}
