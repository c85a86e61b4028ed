// ABOUTME: Interactive config file generator for fleet-gateway
// ABOUTME: Writes a gateway.yaml with a freshly generated JWT secret

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/2389/bot-fleet/internal/config"
)

// generateSecret returns a random URL-safe secret long enough for HS256.
func generateSecret() (string, error) {
	b := make([]byte, 48)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func isYes(s string) bool {
	s = strings.ToLower(s)
	return s == "yes" || s == "y"
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("fleet-gateway configuration setup")
	fmt.Println("=================================")
	fmt.Println()

	defaultDBPath := filepath.Join(getDataPath(), "gateway.db")

	outputFile := prompt(reader, "Config file path", config.DefaultPath())
	if _, err := os.Stat(outputFile); err == nil {
		if !isYes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", config.DefaultHTTPAddr)
	bridgeAddr := prompt(reader, "Protocol bridge address", "localhost:25580")

	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDBPath)

	fmt.Println("\n--- Events ---")
	natsURL := prompt(reader, "NATS URL (leave empty to disable)", "")

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	secret, err := generateSecret()
	if err != nil {
		return err
	}

	var cfg strings.Builder
	cfg.WriteString("# fleet-gateway configuration\n")
	cfg.WriteString("# Generated by fleet-gateway init\n\n")

	fmt.Fprintf(&cfg, "server:\n  http_addr: %q\n\n", httpAddr)
	fmt.Fprintf(&cfg, "database:\n  path: %q\n\n", dbPath)
	fmt.Fprintf(&cfg, "auth:\n  jwt_secret: %q\n  token_ttl: \"12h\"\n\n", secret)
	fmt.Fprintf(&cfg, "bridge:\n  addr: %q\n\n", bridgeAddr)

	cfg.WriteString("agents:\n")
	cfg.WriteString("  connect_timeout: \"30s\"\n")
	cfg.WriteString("  sweep_interval: \"60s\"\n")
	cfg.WriteString("  task_timeout: \"10s\"\n")
	fmt.Fprintf(&cfg, "  default_port: %d\n", config.DefaultPort)
	fmt.Fprintf(&cfg, "  name_prefix: %q\n", config.DefaultNamePrefix)
	fmt.Fprintf(&cfg, "  log_capacity: %d\n\n", config.DefaultLogCapacity)

	cfg.WriteString("behaviors:\n")
	cfg.WriteString("  - name: chat\n    base: \"20m\"\n    spread: \"20m\"\n")
	cfg.WriteString("  - name: movement\n    base: \"5s\"\n    spread: \"10s\"\n")
	cfg.WriteString("  - name: combat\n    base: \"2s\"\n    spread: \"3s\"\n")
	cfg.WriteString("  - name: survival\n    base: \"3s\"\n    spread: \"2s\"\n\n")

	cfg.WriteString("rate_limit:\n  requests: 100\n  window: \"15m\"\n\n")
	fmt.Fprintf(&cfg, "logging:\n  level: %q\n  format: %q\n\n", logLevel, logFormat)
	cfg.WriteString("metrics:\n  enabled: true\n  path: \"/metrics\"\n")
	if natsURL != "" {
		fmt.Fprintf(&cfg, "\nnats:\n  url: %q\n  subject_prefix: %q\n", natsURL, config.DefaultSubjectPrefix)
	}

	if _, err := config.Parse([]byte(cfg.String())); err != nil {
		return fmt.Errorf("generated config is invalid: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nNext steps:")
	fmt.Println("  fleet-gateway adduser <username>")
	fmt.Println("  fleet-gateway serve")
	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}
