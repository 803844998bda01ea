// ABOUTME: Entry point for coven-compose, a terminal client for co-writing posts with the compose assistant
// ABOUTME: Wires config, logging, the local cache and the HTTP client into cobra commands

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/coven-compose/internal/auth"
	"github.com/2389/coven-compose/internal/client"
	"github.com/2389/coven-compose/internal/config"
	"github.com/2389/coven-compose/internal/document"
	"github.com/2389/coven-compose/internal/notify"
	"github.com/2389/coven-compose/internal/session"
	"github.com/2389/coven-compose/internal/store"
)

// Version is set at build time.
var version = "dev"

var (
	configPath string
	baseURL    string
	dbPath     string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "coven-compose",
	Short:         "Co-write social posts with the compose assistant",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $XDG_CONFIG_HOME/coven/compose.yaml)")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "compose server URL, overrides server.base_url")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "local cache database, overrides database.path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file when there is one and applies flag overrides.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}

	cfg := config.Default()
	if _, err := os.Stat(path); err == nil {
		cfg, err = config.Read(path)
		if err != nil {
			return nil, err
		}
	} else if configPath != "" {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	if baseURL != "" {
		cfg.Server.BaseURL = baseURL
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// app holds what every networked command needs.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	cache  store.Store
	client *client.Client
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := setupLogger(cfg.Logging)

	tokens := auth.NewExpiryChecked(auth.Resolve(cfg.Auth.Token, cfg.Auth.TokenFile), 0)
	a := &app{
		cfg:    cfg,
		logger: logger,
		client: client.New(cfg.Server, tokens, nil, logger),
	}

	if cfg.Database.Path != "" {
		s, err := store.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("opening cache: %w", err)
		}
		a.cache = s
	}
	return a, nil
}

func (a *app) Close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("closing cache failed", "error", err)
		}
	}
}

// newSession opens a session on doc that prints notifications to the terminal.
func (a *app) newSession(doc *document.Document, editMode bool) (*session.Session, error) {
	toast := notify.Func(func(n notify.Notification) {
		if n.Level == notify.LevelError {
			color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "✗ %s: %s\n", n.Title, n.Message)
			return
		}
		color.New(color.FgCyan).Fprintf(os.Stderr, "• %s: %s\n", n.Title, n.Message)
	})

	return session.New(doc, session.Options{
		Client:           a.client,
		Cache:            a.cache,
		Notifier:         notify.Multi{toast, notify.NewLogNotifier(a.logger)},
		Tools:            a.cfg.Chat.Tools,
		EditMode:         editMode,
		DuplicateWindow:  a.cfg.Chat.DuplicateWindow,
		DeleteInterval:   a.cfg.Editor.DeleteInterval,
		PreviewMaxLength: a.cfg.Preview.MaxLength,
		Logger:           a.logger,
	})
}
