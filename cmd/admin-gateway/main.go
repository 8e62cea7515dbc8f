// ABOUTME: Entry point for the admin-gateway API server
// ABOUTME: Wires config, storage backends, event publishing, and the HTTP server

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/uniintel/admin-gateway/internal/auth"
	"github.com/uniintel/admin-gateway/internal/config"
	"github.com/uniintel/admin-gateway/internal/events"
	"github.com/uniintel/admin-gateway/internal/resource"
	"github.com/uniintel/admin-gateway/internal/server"
	"github.com/uniintel/admin-gateway/internal/store"
)

// version is set by goreleaser at build time.
var version = "dev"

const banner = `
           _           _
  __ _  __| |_ __ ___ (_)_ __         __ _  __ _| |_ _____      ____ _ _   _
 / _' |/ _' | '_ ' _ \| | '_ \ _____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
| (_| | (_| | | | | | | | | | |_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
 \__,_|\__,_|_| |_| |_|_|_| |_|      \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                                     |___/                             |___/
`

// getConfigPath returns the path to the config file, or "" when the
// configuration should come entirely from the environment.
// Priority: ADMIN_CONFIG env var > XDG_CONFIG_HOME/admin-gateway/config.yaml
// > ~/.config/admin-gateway/config.yaml (if it exists).
func getConfigPath() string {
	if envPath := os.Getenv("ADMIN_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	path := filepath.Join(configDir, "admin-gateway", "config.yaml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

func loadConfig() (*config.Config, string, error) {
	path := getConfigPath()
	if path == "" {
		cfg, err := config.FromEnv()
		return cfg, "(environment)", err
	}
	cfg, err := config.Load(path)
	return cfg, path, err
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: admin-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve     Start the admin API server")
		fmt.Println("  health    Check server health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, configSource, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:  %s\n", configSource)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:    %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Backends: %s\n", describeBackends(cfg))
	fmt.Println()

	logger.Info("starting admin-gateway",
		"config", configSource,
		"http_addr", cfg.Server.HTTPAddr,
	)

	selector, closeStores, err := buildSelector(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	var publisher *events.Publisher
	if cfg.Kafka.Broker != "" {
		publisher = events.NewPublisher(cfg.Kafka.Broker, cfg.Kafka.Topic, logger)
		defer publisher.Close()
	}

	service := resource.New(selector, publisher, logger)
	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))

	return server.New(service, verifier, cfg, logger).Run(ctx)
}

// buildSelector constructs every configured backend. The in-process store
// is always present so the server can come up with no storage configured
// at all.
func buildSelector(cfg *config.Config, logger *slog.Logger) (*store.Selector, func(), error) {
	var closers []func() error

	var proxy *store.ProxyStore
	if cfg.Upstream.BaseURL != "" {
		proxy = store.NewProxyStore(cfg.Upstream.BaseURL, cfg.Upstream.Timeout)
		logger.Info("remote proxy backend enabled", "base_url", cfg.Upstream.BaseURL)
	}

	var postgres *store.PostgresStore
	if cfg.Database.PostgresDSN != "" {
		pg, err := store.NewPostgresStore(cfg.Database.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("opening postgres store: %w", err)
		}
		postgres = pg
		closers = append(closers, pg.Close)
		logger.Info("document store backend enabled")
	}

	var sqlite *store.SQLiteStore
	if cfg.Database.Path != "" {
		sl, err := store.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		sqlite = sl
		closers = append(closers, sl.Close)
		logger.Info("relational store backend enabled", "path", cfg.Database.Path)
	}

	memory := store.NewMemoryStore()
	selector := store.NewSelector(proxy, postgres, sqlite, memory, logger)

	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn("closing store", "error", err)
			}
		}
	}
	return selector, closeAll, nil
}

func describeBackends(cfg *config.Config) string {
	var names []string
	if cfg.Upstream.BaseURL != "" {
		names = append(names, "proxy")
	}
	if cfg.Database.PostgresDSN != "" {
		names = append(names, "postgres")
	}
	if cfg.Database.Path != "" {
		names = append(names, "sqlite")
	}
	names = append(names, "memory")
	return strings.Join(names, " > ")
}

func runHealth(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	addr := cfg.Server.HTTPAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	url := fmt.Sprintf("http://%s/health", addr)
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

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

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

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

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
