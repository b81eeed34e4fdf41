// ABOUTME: Entry point for the plaza coordination server.
// ABOUTME: Subcommands: serve, init, health, agents, tasks.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"

	"github.com/agoralabs/plaza/internal/config"
	"github.com/agoralabs/plaza/internal/plaza"
	"github.com/agoralabs/plaza/internal/protocol"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
        _
  _ __ | | __ _ ______ _
 | '_ \| |/ _' |_  / _' |
 | |_) | | (_| |/ / (_| |
 | .__/|_|\__,_/___\__,_|
 |_|
`

// getConfigPath returns the path to the plaza config file.
// Priority: PLAZA_CONFIG env var > XDG_CONFIG_HOME/plaza/plaza.yaml > ~/.config/plaza/plaza.yaml
func getConfigPath() string {
	if envPath := os.Getenv("PLAZA_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "plaza.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "plaza", "plaza.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: plaza <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the coordination server")
		fmt.Println("  init     Write a starter config file")
		fmt.Println("  health   Check server health")
		fmt.Println("  agents   List registered agents")
		fmt.Println("  tasks    List announced tasks")
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
	case "health":
		err = runHealth(ctx)
	case "agents":
		err = runAgents(ctx)
	case "tasks":
		err = runTasks(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the config file, falling back to defaults when no file
// exists at the resolved path.
func loadConfig() (*config.Config, string, error) {
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return config.Default(), "(defaults)", nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, configPath, err
	}
	return cfg, configPath, nil
}

func runServe(ctx context.Context) error {
	cfg, configPath, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)

	cyan.Print(banner)
	gray.Printf("    version: %s\n\n", version)

	green.Print("    ▶ ")
	fmt.Printf("Config:  %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Plaza:   ws://%s/ws\n", cfg.Server.WSAddr)
	green.Print("    ▶ ")
	fmt.Printf("API:     http://%s\n", cfg.Server.APIAddr)
	fmt.Println()

	logger := setupLogger(cfg.Logging)
	logger.Info("starting plaza",
		"config", configPath,
		"ws_addr", cfg.Server.WSAddr,
		"api_addr", cfg.Server.APIAddr,
	)

	srv := plaza.NewServer(cfg, logger)
	return srv.Run(ctx)
}

func runInit() error {
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists at %s", configPath)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	content := `# plaza configuration
# Generated by plaza init

server:
  ws_addr: "localhost:8080"
  api_addr: "localhost:8081"

plaza:
  heartbeat_interval: "15s"
  heartbeat_timeout: "60s"
  sweep_interval: "30s"
  message_log_capacity: 10000

logging:
  level: "info"
  format: "text"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Printf("Config written to %s\n", configPath)
	fmt.Println("\nTo start the server:")
	fmt.Println("  plaza serve")
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	body, status, err := apiGet(ctx, cfg, "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", status)
	}
	_ = body
	fmt.Println("healthy")
	return nil
}

func runAgents(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	body, status, err := apiGet(ctx, cfg, "/api/agents")
	if err != nil {
		return fmt.Errorf("listing agents: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("listing agents: status %d", status)
	}

	var agents []protocol.AgentCard
	if err := json.Unmarshal(body, &agents); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	if len(agents) == 0 {
		fmt.Println("no agents registered")
		return nil
	}
	for _, a := range agents {
		fmt.Printf("%-36s  %-20s  %-9s  %v\n", a.ID, a.Name, a.Status, a.Capabilities)
	}
	return nil
}

func runTasks(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	body, status, err := apiGet(ctx, cfg, "/api/tasks")
	if err != nil {
		return fmt.Errorf("listing tasks: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("listing tasks: status %d", status)
	}

	var tasks []protocol.Task
	if err := json.Unmarshal(body, &tasks); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	if len(tasks) == 0 {
		fmt.Println("no tasks announced")
		return nil
	}
	for _, t := range tasks {
		assigned := t.AssignedAgent
		if assigned == "" {
			assigned = "-"
		}
		fmt.Printf("%-36s  %-30s  %-11s  %12d  %s\n", t.ID, t.Title, t.Status, t.BountyAmount, assigned)
	}
	return nil
}

// apiGet performs a GET against the query API and returns body and status.
func apiGet(ctx context.Context, cfg *config.Config, path string) ([]byte, int, error) {
	url := fmt.Sprintf("http://%s%s", cfg.Server.APIAddr, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}
	return body, resp.StatusCode, nil
}
