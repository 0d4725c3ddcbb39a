// ABOUTME: Entry point for the atomix-gateway workflow server
// ABOUTME: Manages agent workflows and frontend WebSocket connections

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/Atomixxxx/MONPROJETIA2.0/internal/agent"
	"github.com/Atomixxxx/MONPROJETIA2.0/internal/config"
	"github.com/Atomixxxx/MONPROJETIA2.0/internal/ollama"
	"github.com/Atomixxxx/MONPROJETIA2.0/internal/registry"
	"github.com/Atomixxxx/MONPROJETIA2.0/internal/server"
	"github.com/Atomixxxx/MONPROJETIA2.0/internal/store"
	"github.com/Atomixxxx/MONPROJETIA2.0/internal/telemetry"
	"github.com/Atomixxxx/MONPROJETIA2.0/internal/workflow"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
       _                  _                         _
  __ _| |_ ___  _ __ ___ (_)_  __       __ _  __ _| |_ _____      ____ _ _   _
 / _' | __/ _ \| '_ ' _ \| \ \/ /_____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
| (_| | || (_) | | | | | | |>  <|_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
 \__,_|\__\___/|_| |_| |_|_/_/\_\      \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                                       |___/                             |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: ATOMIX_CONFIG env var > XDG_CONFIG_HOME/atomix/gateway.yaml > ~/.config/atomix/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("ATOMIX_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "atomix", "gateway.yaml")
}

// getDataPath returns the path to the atomix data directory.
// Priority: XDG_DATA_HOME/atomix > ~/.local/share/atomix
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "atomix")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: atomix-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve     Start the gateway server")
		fmt.Println("  init      Create a new config file interactively")
		fmt.Println("  health    Check gateway health")
		fmt.Println("  agents    List agents and their availability")
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
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the config file, falling back to built-in defaults when
// no file exists so the gateway runs out of the box.
func loadConfig(configPath string) (*config.Config, bool, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return config.Default(), false, nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, true, err
	}
	return cfg, true, nil
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, fromFile, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	// Startup info
	green := color.New(color.FgGreen)

	green.Print("    ▶ ")
	if fromFile {
		fmt.Printf("Config:   %s\n", configPath)
	} else {
		fmt.Printf("Config:   built-in defaults\n")
	}
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Ollama:   %s\n", cfg.Ollama.Host)
	if cfg.Database.Path != "" {
		green.Print("    ▶ ")
		fmt.Printf("Database: %s\n", cfg.Database.Path)
	}
	fmt.Println()

	logger.Info("starting atomix-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"ollama_host", cfg.Ollama.Host,
	)

	tel := telemetry.Noop()
	if cfg.Telemetry.Enabled {
		tel, err = telemetry.Init(ctx, cfg.Telemetry.Dir, version)
		if err != nil {
			return fmt.Errorf("initializing telemetry: %w", err)
		}
	}
	defer tel.Shutdown()

	backend := ollama.NewClient(cfg.Ollama.Host, cfg.Ollama.RequestTimeout)

	roster, err := agent.NewRoster(cfg.Agents.RosterPath, backend, agent.Options{
		Retries:        cfg.Workflow.Retries,
		Backoff:        time.Second,
		AttemptTimeout: cfg.Ollama.RequestTimeout,
		CacheValidity:  cfg.Workflow.CacheValidity,
		MaxResultLen:   cfg.Workflow.MaxResultLen,
	}, logger)
	if err != nil {
		return fmt.Errorf("loading agent roster: %w", err)
	}
	logger.Info("agent roster loaded", "agents", len(roster.Names()))

	var sink store.Store
	if cfg.Database.Path != "" {
		sink, err = store.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("initializing store: %w", err)
		}
	}

	reg := registry.New(registry.Config{
		MaxSessions:       cfg.Sessions.MaxSessions,
		MinSessionIDLen:   cfg.Sessions.MinSessionIDLen,
		HeartbeatInterval: cfg.Sessions.HeartbeatInterval,
		LivenessGrace:     cfg.Sessions.LivenessGrace,
	}, logger)
	reg.OnCountChange = tel.SetActiveSessions

	orch := workflow.New(workflow.Config{
		AgentCap:   cfg.Workflow.AgentCap,
		OnBusy:     cfg.Workflow.OnBusy,
		QueueDepth: cfg.Workflow.QueueDepth,
	}, roster, reg, sink, tel, logger)

	srv := server.New(cfg, reg, orch, roster, backend, sink, logger, version)
	return srv.Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	// A log file switches output to rotated JSON, the shape log shippers
	// expect. Otherwise log to the terminal.
	if cfg.File != "" {
		writer := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}
		return slog.New(slog.NewJSONHandler(writer, opts))
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runHealth(ctx context.Context) error {
	cfg, _, err := loadConfig(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func runAgents(ctx context.Context) error {
	cfg, _, err := loadConfig(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/api/agents", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("agents request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	fmt.Println(string(body))
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("atomix-gateway configuration setup")
	fmt.Println("==================================")
	fmt.Println()

	// Default paths
	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDbPath := filepath.Join(defaultDataPath, "gateway.db")

	// Output filename
	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Server configuration
	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", config.DefaultHTTPAddr)

	// Ollama
	fmt.Println("\n--- Ollama Configuration ---")
	ollamaHost := prompt(reader, "Ollama host", config.DefaultOllamaHost)

	// Database
	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)

	// Agents
	fmt.Println("\n--- Agent Configuration ---")
	rosterPath := prompt(reader, "Agent roster TOML (empty for builtins only)", "")

	// Workflow
	fmt.Println("\n--- Workflow Configuration ---")
	onBusy := prompt(reader, "Busy policy (reject/queue)", "reject")

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# atomix-gateway configuration\n")
	cfg.WriteString("# Generated by atomix-gateway init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	cfg.WriteString("\n")

	cfg.WriteString("ollama:\n")
	cfg.WriteString(fmt.Sprintf("  host: \"%s\"\n", ollamaHost))
	cfg.WriteString("  request_timeout: \"60s\"\n")
	cfg.WriteString("\n")

	if dbPath != "" {
		cfg.WriteString("database:\n")
		cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
		cfg.WriteString("\n")
	}

	if rosterPath != "" {
		cfg.WriteString("agents:\n")
		cfg.WriteString(fmt.Sprintf("  roster_path: \"%s\"\n", rosterPath))
		cfg.WriteString("\n")
	}

	cfg.WriteString("sessions:\n")
	cfg.WriteString("  heartbeat_interval: \"30s\"\n")
	cfg.WriteString("  liveness_grace: \"90s\"\n")
	cfg.WriteString("  idle_timeout: \"300s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("workflow:\n")
	cfg.WriteString(fmt.Sprintf("  on_busy: \"%s\"\n", onBusy))
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))
	cfg.WriteString("\n")

	cfg.WriteString("telemetry:\n")
	cfg.WriteString("  enabled: false\n")

	// Ensure config directory exists
	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write config file
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	if dbPath != "" {
		dataDir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
		fmt.Printf("Data directory: %s\n", dataDir)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  atomix-gateway serve\n")

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
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
