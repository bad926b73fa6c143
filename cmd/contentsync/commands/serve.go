package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"git.home.luguber.info/inful/contentsync/internal/config"
	"git.home.luguber.info/inful/contentsync/internal/content"
	"git.home.luguber.info/inful/contentsync/internal/edits"
	"git.home.luguber.info/inful/contentsync/internal/eventstore"
	"git.home.luguber.info/inful/contentsync/internal/forge"
	"git.home.luguber.info/inful/contentsync/internal/foundation/errors"
	"git.home.luguber.info/inful/contentsync/internal/git"
	"git.home.luguber.info/inful/contentsync/internal/logfields"
	"git.home.luguber.info/inful/contentsync/internal/metrics"
	"git.home.luguber.info/inful/contentsync/internal/notify"
	"git.home.luguber.info/inful/contentsync/internal/scheduler"
	"git.home.luguber.info/inful/contentsync/internal/server/httpserver"
	"git.home.luguber.info/inful/contentsync/internal/services"
	"git.home.luguber.info/inful/contentsync/internal/syncstatus"
)

// ServeCmd implements the 'serve' command.
type ServeCmd struct {
	Addr string `help:"Listen address (overrides server.addr)"`
}

func (s *ServeCmd) Run(_ *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	if s.Addr != "" {
		cfg.Server.Addr = s.Addr
	}
	return RunServe(cfg)
}

// RunServe runs the content server until SIGINT or SIGTERM.
func RunServe(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stack, err := newServerStack(ctx, cfg)
	if err != nil {
		return err
	}
	if err := stack.orchestrator.StartAll(ctx); err != nil {
		return err
	}
	slog.Info("Content server started, waiting for shutdown signal...",
		slog.String("strategy", string(stack.strategy)),
		slog.Bool("sync_configured", cfg.GitHub.Configured()))

	<-ctx.Done()
	slog.Info("Shutdown signal received, stopping content server...")

	timeout := cfg.Server.ShutdownTimeout.Std()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), timeout)
	defer stopCancel()
	if err := stack.orchestrator.StopAll(stopCtx); err != nil {
		return fmt.Errorf("failed to stop content server: %w", err)
	}
	slog.Info("Content server stopped successfully")
	return nil
}

// serverStack is the wired server, ready for StartAll.
type serverStack struct {
	orchestrator *services.Orchestrator
	http         *httpserver.Server
	status       *syncstatus.Service
	edits        *edits.Service
	strategy     config.CommitStrategy
}

func newServerStack(ctx context.Context, cfg *config.Config) (*serverStack, error) {
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o750); err != nil {
		return nil, errors.FileSystemError("create data directory").
			WithCause(err).WithContext("path", cfg.Storage.DataDir).Build()
	}

	store, err := eventstore.NewSQLiteStore(filepath.Join(cfg.Storage.DataDir, cfg.Storage.EventDB))
	if err != nil {
		return nil, err
	}
	journal := eventstore.NewJournal(store)

	publisher, err := notify.New(ctx, notify.Options{
		URL:     cfg.Notify.NATSURL,
		Subject: cfg.Notify.Subject,
		Stream:  cfg.Notify.Stream,
	})
	if err != nil {
		// Events are best effort; the server runs without them.
		slog.Warn("Event publishing disabled", logfields.Error(err))
		publisher = notify.Noop{}
	}

	registry := metrics.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(registry)

	pages := content.NewStore(cfg.Repository.Path, cfg.Repository.ContentPrefix)

	ref := cfg.GitHub.Ref()
	cloneURL := ""
	if !ref.IsZero() {
		cloneURL = ref.CloneURL()
	}
	tracker := git.NewTracker(git.TrackerOptions{
		RepoPath:       cfg.Repository.Path,
		Remote:         cfg.Repository.Remote,
		Branch:         cfg.GitHub.Branch,
		URL:            cloneURL,
		Auth:           git.TokenAuth(cfg.GitHub.Token),
		ResetOnDiverge: cfg.Sync.ResetOnDiverge,
	}, git.NewRemoteHeadCache(filepath.Join(cfg.Storage.DataDir, "remote-heads")))

	status := syncstatus.NewService(syncstatus.Options{
		Configured:  cfg.GitHub.Configured(),
		SyncEnabled: cfg.Sync.Enabled,
		RepoURL:     cloneURL,
		Branch:      cfg.GitHub.Branch,
		TTL:         cfg.Sync.StatusTTL.Std(),
		Tracker:     tracker,
		Content:     pages,
		Journal:     journal,
		Recorder:    recorder,
		Publisher:   publisher,
	})

	strategy := cfg.EffectiveCommitStrategy()
	committer := git.NewLocalCommitter(git.CommitterOptions{
		RepoPath:       cfg.Repository.Path,
		ContentPrefix:  cfg.Repository.ContentPrefix,
		GitBinary:      cfg.Repository.GitBinary,
		CommitterName:  cfg.Commit.AuthorName,
		CommitterEmail: cfg.Commit.AuthorEmail,
		Executor:       git.NewCLIExecutor(cfg.Repository.MaxOutputMB << 20),
	})
	editService := edits.NewService(edits.Options{
		Store:              pages,
		Strategy:           strategy,
		Local:              committer,
		Remote:             forge.NewContentsClientFromConfig(cfg, nil),
		Status:             status,
		EnforceGate:        cfg.Sync.EnforceGate,
		DefaultAuthorName:  cfg.Commit.AuthorName,
		DefaultAuthorEmail: cfg.Commit.AuthorEmail,
		Journal:            journal,
		Recorder:           recorder,
		Publisher:          publisher,
	})

	sched, err := scheduler.New()
	if err != nil {
		return nil, err
	}

	orch := services.NewOrchestrator()
	health := &serverHealth{
		started:  time.Now(),
		strategy: strategy,
		status:   status,
		states:   orch.States,
	}
	srv := httpserver.New(cfg.Server, httpserver.Options{
		Content:  editService,
		Sync:     status,
		Health:   health,
		Events:   store,
		Registry: registry,

		DependsOn: []string{"eventstore", "notify", "content-watcher"},
	})

	toRegister := []services.ManagedService{
		services.NewFuncService("eventstore", nil, func(context.Context) error {
			return store.Close()
		}),
		services.NewFuncService("notify", nil, func(context.Context) error {
			return publisher.Close()
		}),
		// The warmer runs on the server context; the start context only bounds startup.
		services.NewFuncService("scheduler", func(context.Context) error {
			sched.Start()
			_, err := status.Warm(ctx, sched, cfg.Sync.FetchInterval.Std())
			return err
		}, func(context.Context) error {
			return sched.Stop()
		}, "eventstore", "notify"),
		services.NewBackgroundService("content-watcher", pages.Watch),
		srv,
	}
	for _, svc := range toRegister {
		if err := orch.Register(svc); err != nil {
			return nil, err
		}
	}

	return &serverStack{
		orchestrator: orch,
		http:         srv,
		status:       status,
		edits:        editService,
		strategy:     strategy,
	}, nil
}

// serverHealth feeds the health endpoint.
type serverHealth struct {
	started  time.Time
	strategy config.CommitStrategy
	status   *syncstatus.Service
	states   func() map[string]string
}

func (h *serverHealth) StartTime() time.Time             { return h.started }
func (h *serverHealth) CommitStrategy() string           { return string(h.strategy) }
func (h *serverHealth) ServiceStates() map[string]string { return h.states() }

func (h *serverHealth) Relation(ctx context.Context) string {
	return string(h.status.Status(ctx).Relation)
}
