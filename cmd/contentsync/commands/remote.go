package commands

import (
	"context"

	"git.home.luguber.info/inful/contentsync/internal/conflict"
)

// StatusCmd implements the 'status' command.
type StatusCmd struct{}

func (s *StatusCmd) Run(_ *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	api, err := newAPIClient(cfg)
	if err != nil {
		return err
	}
	st, err := api.SyncStatus(context.Background())
	if err != nil {
		return err
	}
	printf("Relation:     %s\n", st.Relation)
	if st.Branch != "" {
		printf("Branch:       %s\n", st.Branch)
	}
	if st.RepoURL != "" {
		printf("Repository:   %s\n", st.RepoURL)
	}
	if st.BehindBy > 0 || st.AheadBy > 0 {
		printf("Behind/ahead: %d/%d\n", st.BehindBy, st.AheadBy)
	}
	printf("Sync gate:    %s\n", enabledLabel(st.SyncEnabled))
	if st.Error != "" {
		printf("Last error:   %s\n", st.Error)
	}
	return nil
}

// ConflictsCmd implements the 'conflicts' command.
type ConflictsCmd struct{}

func (c *ConflictsCmd) Run(_ *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	api, err := newAPIClient(cfg)
	if err != nil {
		return err
	}
	info, err := api.ConflictInfo(context.Background())
	if err != nil {
		return err
	}
	if !info.HasConflict {
		printf("No remote changes pending\n")
		return nil
	}
	printf("%s", conflict.Describe(info))
	return nil
}

// SyncCmd implements the 'sync' command.
type SyncCmd struct{}

func (s *SyncCmd) Run(_ *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	api, err := newAPIClient(cfg)
	if err != nil {
		return err
	}
	res, err := api.Sync(context.Background())
	if err != nil {
		return err
	}
	if res.Pulled == 0 {
		printf("Already up to date at %s\n", shortRef(res.ToRef))
		return nil
	}
	verb := "Fast-forwarded"
	if res.Reset {
		verb = "Reset"
	}
	printf("%s %s..%s (%d commits)\n", verb, shortRef(res.FromRef), shortRef(res.ToRef), res.Pulled)
	return nil
}

func enabledLabel(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}

func shortRef(ref string) string {
	if len(ref) > 8 {
		return ref[:8]
	}
	return ref
}
