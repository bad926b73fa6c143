package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/contentsync/internal/client"
	"git.home.luguber.info/inful/contentsync/internal/config"
)

// Global context passed to subcommands.
type Global struct {
	Logger *slog.Logger
}

// CLI definition & global flags - used by commands that need access to root config.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"config.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Server  string           `help:"Content server URL (overrides client.server_url)" env:"CONTENTSYNC_SERVER_URL"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Serve     ServeCmd     `cmd:"" help:"Run the content server"`
	Status    StatusCmd    `cmd:"" help:"Show how the server's working copy relates to the remote"`
	Conflicts ConflictsCmd `cmd:"" help:"List remote commits missing from the working copy"`
	Sync      SyncCmd      `cmd:"" help:"Fast-forward the server's working copy from the remote"`
	Commit    CommitCmd    `cmd:"" help:"Commit content changes in the local working copy"`
	Publish   PublishCmd   `cmd:"" help:"Write a content file to the hosted repository"`
	Edit      EditCmd      `cmd:"" help:"Open an interactive editing session"`
	Init      InitCmd      `cmd:"" help:"Initialize a new configuration file"`
}

// AfterApply runs after flag parsing; setup logging once.
func (c *CLI) AfterApply() error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

// loadConfig loads the configuration and reapplies logging from it.
func (c *CLI) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, err
	}
	if c.Server != "" {
		cfg.Client.ServerURL = c.Server
	}
	slog.SetDefault(newLogger(cfg.Log, c.Verbose, os.Stderr))
	return cfg, nil
}

func newLogger(lc config.LogConfig, verbose bool, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch lc.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func newAPIClient(cfg *config.Config) (*client.Client, error) {
	return client.New(client.Options{
		BaseURL: cfg.Client.ServerURL,
		Timeout: cfg.Client.Timeout.Std(),
	})
}

// stdout receives user-facing output; logs go to stderr.
var stdout io.Writer = os.Stdout

func printf(format string, args ...any) {
	_, _ = fmt.Fprintf(stdout, format, args...)
}
