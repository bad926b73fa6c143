package commands

import (
	"context"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/contentsync/internal/config"
	"git.home.luguber.info/inful/contentsync/internal/forge"
	"git.home.luguber.info/inful/contentsync/internal/foundation/errors"
	"git.home.luguber.info/inful/contentsync/internal/git"
)

// CommitCmd implements the 'commit' command.
type CommitCmd struct {
	Message     string `short:"m" help:"Commit message" required:""`
	AuthorName  string `name:"author-name" help:"Author name (defaults to commit.author_name)"`
	AuthorEmail string `name:"author-email" help:"Author email (defaults to commit.author_email)"`
}

func (c *CommitCmd) Run(_ *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	name, email := c.AuthorName, c.AuthorEmail
	if name == "" {
		name = cfg.Commit.AuthorName
	}
	if email == "" {
		email = cfg.Commit.AuthorEmail
	}
	return RunCommit(context.Background(), cfg, c.Message, name, email)
}

// RunCommit stages and commits changed content files in the configured working copy.
func RunCommit(ctx context.Context, cfg *config.Config, message, authorName, authorEmail string) error {
	committer := git.NewLocalCommitter(git.CommitterOptions{
		RepoPath:       cfg.Repository.Path,
		ContentPrefix:  cfg.Repository.ContentPrefix,
		GitBinary:      cfg.Repository.GitBinary,
		CommitterName:  cfg.Commit.AuthorName,
		CommitterEmail: cfg.Commit.AuthorEmail,
		Executor:       git.NewCLIExecutor(cfg.Repository.MaxOutputMB << 20),
	})
	res, err := committer.Commit(ctx, message, authorName, authorEmail)
	if err != nil {
		return err
	}
	if !res.Success {
		printf("%s\n", res.Error)
		return nil
	}
	printf("Committed %s (%d files)\n", shortRef(res.CommitID), len(res.Files))
	for _, f := range res.Files {
		printf("  %s\n", f)
	}
	return nil
}

// PublishCmd implements the 'publish' command.
type PublishCmd struct {
	Path    string `arg:"" help:"Repository-relative path of the file to publish"`
	Message string `short:"m" help:"Commit message (defaults to 'Update <path>')"`
}

func (p *PublishCmd) Run(_ *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	return RunPublish(context.Background(), cfg, forge.NewContentsClientFromConfig(cfg, nil), p.Path, p.Message)
}

// FileCommitter writes one file to the hosted repository.
type FileCommitter interface {
	CommitFile(ctx context.Context, path string, content []byte, message string) (forge.CommitFileResult, error)
}

// RunPublish reads path from the working copy and commits it through remote.
func RunPublish(ctx context.Context, cfg *config.Config, remote FileCommitter, path, message string) error {
	rel := filepath.ToSlash(filepath.Clean(path))
	data, err := os.ReadFile(filepath.Join(cfg.Repository.Path, filepath.FromSlash(rel)))
	if err != nil {
		return errors.FileSystemError("read file to publish").
			WithCause(err).WithContext("path", rel).Build()
	}
	if message == "" {
		message = "Update " + rel
	}
	res, err := remote.CommitFile(ctx, rel, data, message)
	if err != nil {
		return err
	}
	if res.Skipped {
		printf("Remote commits are not configured; %s was not published\n", rel)
		return nil
	}
	printf("Published %s as %s\n", rel, shortRef(res.CommitSHA))
	return nil
}
