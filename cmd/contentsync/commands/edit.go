package commands

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/contentsync/internal/conflict"
	"git.home.luguber.info/inful/contentsync/internal/config"
	"git.home.luguber.info/inful/contentsync/internal/editor"
	"git.home.luguber.info/inful/contentsync/internal/history"
	"git.home.luguber.info/inful/contentsync/internal/scheduler"
	"git.home.luguber.info/inful/contentsync/internal/syncmonitor"
	"git.home.luguber.info/inful/contentsync/internal/syncstatus"
)

// EditCmd implements the 'edit' command.
type EditCmd struct {
	Pages   []string `arg:"" optional:"" help:"Pages to open, as <type>/<slug>/<locale>"`
	Author  string   `help:"Author recorded with saves (defaults to client.author)"`
	Variant string   `help:"Page variant to edit"`
}

func (e *EditCmd) Run(_ *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	if e.Author != "" {
		cfg.Client.Author = e.Author
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return RunEdit(ctx, cfg, e.Variant, e.Pages, os.Stdin, stdout)
}

// RunEdit wires an editing session to the content server and runs the shell
// until quit, end of input or ctx cancellation.
func RunEdit(ctx context.Context, cfg *config.Config, variant string, pages []string, in io.Reader, out io.Writer) error {
	api, err := newAPIClient(cfg)
	if err != nil {
		return err
	}

	monitor := syncmonitor.New(syncmonitor.Options{
		Client:   api,
		Interval: cfg.Sync.PollInterval.Std(),
		Backoff:  cfg.Sync.RetryPolicy(),
	})
	session := editor.NewSession(editor.Options{
		Client:  api,
		History: history.NewManager(cfg.History.MaxEntries),
		Gate:    monitor,
		Author:  cfg.Client.Author,
		Variant: variant,
	})
	resolver := conflict.New(conflict.Options{
		Client:   api,
		Monitor:  monitor,
		Reloader: session,
	})
	shell := editor.NewShell(editor.ShellOptions{
		Session:  session,
		Monitor:  monitor,
		Resolver: resolver,
		In:       in,
		Out:      out,
	})
	resolver.OnConflict(func(info syncstatus.ConflictInfo) {
		_, _ = io.WriteString(out, "\n"+conflict.Describe(info))
	})

	for _, raw := range pages {
		if _, err := shell.Execute(ctx, "open "+raw); err != nil {
			return err
		}
	}

	sched, err := scheduler.New()
	if err != nil {
		return err
	}
	sched.Start()
	defer func() { _ = sched.Stop() }()
	if err := monitor.Start(ctx, sched); err != nil {
		return err
	}

	return shell.Run(ctx)
}
