// ABOUTME: Entry point for fleet-gateway, the bot fleet registry and API server
// ABOUTME: Subcommands: serve, init, adduser, users, health, status

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/bot-fleet/internal/config"
	"github.com/2389/bot-fleet/internal/events"
	"github.com/2389/bot-fleet/internal/gateway"
	"github.com/2389/bot-fleet/internal/store"
	"github.com/2389/bot-fleet/internal/transport/linewire"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  __ _           _                   _
 / _| | ___  ___| |_       __ _  __ _| |_ _____      ____ _ _   _
| |_| |/ _ \/ _ \ __|____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
|  _| |  __/  __/ ||_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
|_| |_|\___|\___|\__|     \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                          |___/                             |___/
`

// getDataPath returns the path to the fleet data directory.
// Priority: XDG_DATA_HOME/bot-fleet > ~/.local/share/bot-fleet
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "bot-fleet")
}

func usage() {
	fmt.Println("Usage: fleet-gateway <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                       Start the gateway server")
	fmt.Println("  init                        Create a new config file interactively")
	fmt.Println("  adduser <username> [pass]   Create a user and print a token")
	fmt.Println("  users                       List registered users")
	fmt.Println("  health                      Check gateway health")
	fmt.Println("  status                      Show agent counts by state")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "adduser":
		err = runAddUser(ctx, os.Args[2:])
	case "users":
		err = runUsers(ctx)
	case "health":
		err = runHealth(ctx)
	case "status":
		err = runStatus(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openStore opens the configured database. FLEET_DB_PATH overrides the config.
func openStore(cfg *config.Config) (*store.SQLiteStore, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("FLEET_DB_PATH"); envPath != "" {
		dbPath = envPath
	}
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

func runServe(ctx context.Context) error {
	configPath := config.DefaultPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Bridge:    %s\n", cfg.Bridge.Addr)
	if cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:   %s\n", cfg.Metrics.Path)
	}
	if cfg.NATS.URL != "" {
		green.Print("    ▶ ")
		fmt.Printf("NATS:      ")
		cyan.Print(cfg.NATS.URL)
		gray.Printf(" (%s.<id>.state)\n", cfg.NATS.SubjectPrefix)
	}
	fmt.Println()

	logger.Info("starting fleet-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"bridge_addr", cfg.Bridge.Addr,
	)

	users, err := openStore(cfg)
	if err != nil {
		return err
	}

	var publisher events.Publisher = events.Noop{}
	if cfg.NATS.URL != "" {
		publisher, err = events.ConnectNATS(cfg.NATS.URL, cfg.NATS.SubjectPrefix, logger.With("component", "nats"))
		if err != nil {
			_ = users.Close()
			return err
		}
	}

	gw, err := gateway.New(cfg, gateway.Options{
		Dialer:    &linewire.Dialer{Addr: cfg.Bridge.Addr, Logger: logger},
		Users:     users,
		Publisher: publisher,
		Logger:    logger,
	})
	if err != nil {
		_ = publisher.Close()
		_ = users.Close()
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

// getJSON fetches path from the configured gateway and returns the body.
func getJSON(ctx context.Context, path string) (int, []byte, error) {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return 0, nil, fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s%s", cfg.Server.HTTPAddr, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func runHealth(ctx context.Context) error {
	status, _, err := getJSON(ctx, "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", status)
	}
	fmt.Println("healthy")
	return nil
}

func runStatus(ctx context.Context) error {
	status, body, err := getJSON(ctx, "/health/ready")
	if err != nil {
		return fmt.Errorf("status check failed: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("not ready: status %d: %s", status, body)
	}
	fmt.Println(string(body))
	return nil
}
