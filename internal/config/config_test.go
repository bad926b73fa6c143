package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/contentsync/internal/foundation/errors"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"CONTENTSYNC_ENV", "APP_ENV", "GITHUB_TOKEN", "GITHUB_REPO", "GITHUB_BRANCH", "CONTENTSYNC_SYNC_ENABLED", "CONTENTSYNC_SERVER_URL", "CONTENTSYNC_AUTHOR", "CONTENTSYNC_NATS_URL", "CONTENTSYNC_LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contentsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, 60*time.Second, cfg.Sync.PollInterval.Std())
	assert.Equal(t, 30, cfg.History.MaxEntries)
	assert.Equal(t, "main", cfg.GitHub.Branch)
	assert.Equal(t, "content/", cfg.Repository.ContentPrefix)
	assert.False(t, cfg.GitHub.Configured())
	assert.Equal(t, CommitLocal, cfg.EffectiveCommitStrategy())
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("GITHUB_TOKEN", "secret")
	t.Setenv("GITHUB_BRANCH", "release")
	t.Setenv("SITE_REPO", "https://github.com/acme/site.git")

	path := writeConfig(t, `
environment: Production
github:
  repo: ${SITE_REPO}
  branch: main
sync:
  poll_interval: 15s
repository:
  content_prefix: pages
history:
  max_entries: 5
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "release", cfg.GitHub.Branch, "env overrides file")
	assert.Equal(t, 15*time.Second, cfg.Sync.PollInterval.Std())
	assert.Equal(t, "pages/", cfg.Repository.ContentPrefix)
	assert.Equal(t, 5, cfg.History.MaxEntries)
	require.True(t, cfg.GitHub.Configured())
	assert.Equal(t, "acme/site", cfg.GitHub.Ref().FullName())
	assert.Equal(t, CommitRemote, cfg.EffectiveCommitStrategy())
}

func TestLoad_SyncDisabledFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONTENTSYNC_SYNC_ENABLED", "false")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.Sync.Enabled)
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := map[string]string{
		"environment":  "environment: staging\n",
		"strategy":     "commit:\n  strategy: ftp\n",
		"history":      "history:\n  max_entries: 0\n",
		"backoff":      "sync:\n  backoff: random\n",
		"bad repo":     "environment: production\ngithub:\n  repo: not-a-repo\n",
		"remote prod":  "environment: production\ncommit:\n  strategy: remote\n",
		"bad duration": "sync:\n  poll_interval: soon\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
			assert.True(t, errors.HasCategory(err, errors.CategoryConfig), "got %v", err)
		})
	}
}

func TestLoad_MalformedRepoByEnvironment(t *testing.T) {
	t.Run("development skips the remote", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("GITHUB_TOKEN", "tok")
		t.Setenv("GITHUB_REPO", "not-a-repo")
		cfg, err := Load("")
		require.NoError(t, err)
		assert.False(t, cfg.GitHub.Configured())
		assert.True(t, cfg.GitHub.Ref().IsZero())
		assert.Equal(t, CommitLocal, cfg.EffectiveCommitStrategy())
	})

	t.Run("production refuses to start", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CONTENTSYNC_ENV", "production")
		t.Setenv("GITHUB_TOKEN", "tok")
		t.Setenv("GITHUB_REPO", "not-a-repo")
		cfg, err := Load("")
		require.Error(t, err)
		assert.Nil(t, cfg)
		assert.True(t, errors.HasCategory(err, errors.CategoryConfig))
	})
}

func TestLoadDotEnv_DoesNotOverrideProcessEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	require.NoError(t, os.WriteFile(".env", []byte("GITHUB_REPO=acme/from-dotenv\nGITHUB_BRANCH=dotenv\n"), 0o600))
	t.Setenv("GITHUB_BRANCH", "from-process")
	// godotenv only fills variables that are absent, not merely empty.
	require.NoError(t, os.Unsetenv("GITHUB_REPO"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "acme/from-dotenv", cfg.GitHub.Repo)
	assert.Equal(t, "from-process", cfg.GitHub.Branch)
}

func TestInit_WritesLoadableFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "contentsync.yaml")
	require.NoError(t, Init(path, false))
	require.Error(t, Init(path, false), "refuses to overwrite without force")
	require.NoError(t, Init(path, true))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.History.MaxEntries)
}
