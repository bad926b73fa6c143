package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/contentsync/internal/foundation/errors"
	"git.home.luguber.info/inful/contentsync/internal/logfields"
	"git.home.luguber.info/inful/contentsync/internal/retry"
)

// Environment selects production or development behaviour.
type Environment string

const (
	EnvProduction  Environment = "production"
	EnvDevelopment Environment = "development"
)

// CommitStrategy selects how saved content reaches version control.
type CommitStrategy string

const (
	// CommitAuto commits through the hosted API when GitHub is configured and locally otherwise.
	CommitAuto   CommitStrategy = "auto"
	CommitLocal  CommitStrategy = "local"
	CommitRemote CommitStrategy = "remote"
	CommitNone   CommitStrategy = "none"
)

// Config is the root configuration for both the server and the editing client.
type Config struct {
	Environment Environment      `yaml:"environment"`
	Server      ServerConfig     `yaml:"server"`
	Repository  RepositoryConfig `yaml:"repository"`
	GitHub      GitHubConfig     `yaml:"github"`
	Sync        SyncConfig       `yaml:"sync"`
	Commit      CommitConfig     `yaml:"commit"`
	History     HistoryConfig    `yaml:"history"`
	Storage     StorageConfig    `yaml:"storage"`
	Notify      NotifyConfig     `yaml:"notify"`
	Client      ClientConfig     `yaml:"client"`
	Log         LogConfig        `yaml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// RepositoryConfig describes the local working copy.
type RepositoryConfig struct {
	Path          string `yaml:"path"`
	ContentPrefix string `yaml:"content_prefix"` // allow-listed path prefix for commits
	Remote        string `yaml:"remote"`
	GitBinary     string `yaml:"git_binary"`
	MaxOutputMB   int    `yaml:"max_output_mb"`
}

// GitHubConfig configures the hosted contents API. Repo accepts either
// "owner/name" or a full clone URL.
type GitHubConfig struct {
	Token  string `yaml:"token"`
	Repo   string `yaml:"repo"`
	Branch string `yaml:"branch"`
	APIURL string `yaml:"api_url"`

	ref RepoRef
}

// SyncConfig controls remote synchronization and the editing gate.
type SyncConfig struct {
	Enabled        bool     `yaml:"enabled"`
	PollInterval   Duration `yaml:"poll_interval"`
	StatusTTL      Duration `yaml:"status_ttl"`
	FetchInterval  Duration `yaml:"fetch_interval"`
	EnforceGate    bool     `yaml:"enforce_gate"`
	ResetOnDiverge bool     `yaml:"reset_on_diverge"`
	Backoff        string   `yaml:"backoff"`
	BackoffInitial Duration `yaml:"backoff_initial"`
	BackoffMax     Duration `yaml:"backoff_max"`
}

// CommitConfig controls the commit strategy and default author.
type CommitConfig struct {
	Strategy    CommitStrategy `yaml:"strategy"`
	AuthorName  string         `yaml:"author_name"`
	AuthorEmail string         `yaml:"author_email"`
}

// HistoryConfig bounds the undo/redo stacks.
type HistoryConfig struct {
	MaxEntries int `yaml:"max_entries"`
}

// StorageConfig locates server-side state.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
	EventDB string `yaml:"event_db"`
}

// NotifyConfig configures NATS event publishing. Empty URL disables it.
type NotifyConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
	Stream  string `yaml:"stream"`
}

// ClientConfig configures the editing client.
type ClientConfig struct {
	ServerURL string   `yaml:"server_url"`
	Author    string   `yaml:"author"`
	Timeout   Duration `yaml:"timeout"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Load loads configuration with precedence: defaults, YAML file, environment.
// A missing file at path is not an error; an empty path skips the file.
func Load(path string) (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}

	cfg := Defaults()
	if path != "" {
		if err := loadYAMLFile(cfg, path); err != nil {
			return nil, err
		}
	}
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate normalizes derived fields and checks the configuration. Call it
// after modifying a Config built with Defaults.
func (c *Config) Validate() error {
	if err := c.normalize(); err != nil {
		return err
	}
	return c.validate()
}

// Defaults returns a Config with all default values.
func Defaults() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     Duration(15 * time.Second),
			WriteTimeout:    Duration(15 * time.Second),
			ShutdownTimeout: Duration(30 * time.Second),
		},
		Repository: RepositoryConfig{
			Path:          ".",
			ContentPrefix: "content/",
			Remote:        "origin",
			GitBinary:     "git",
			MaxOutputMB:   10,
		},
		GitHub: GitHubConfig{
			Branch: "main",
			APIURL: "https://api.github.com",
		},
		Sync: SyncConfig{
			Enabled:        true,
			PollInterval:   Duration(60 * time.Second),
			StatusTTL:      Duration(10 * time.Second),
			FetchInterval:  Duration(5 * time.Minute),
			Backoff:        string(retry.ModeExponential),
			BackoffInitial: Duration(5 * time.Second),
			BackoffMax:     Duration(5 * time.Minute),
		},
		Commit: CommitConfig{
			Strategy:    CommitAuto,
			AuthorName:  "contentsync",
			AuthorEmail: "contentsync@localhost",
		},
		History: HistoryConfig{MaxEntries: 30},
		Storage: StorageConfig{DataDir: "data", EventDB: "events.db"},
		Notify:  NotifyConfig{Subject: "contentsync.events", Stream: "CONTENTSYNC"},
		Client: ClientConfig{
			ServerURL: "http://localhost:8080",
			Timeout:   Duration(30 * time.Second),
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.WrapError(err, errors.CategoryConfig, "reading config file").
			WithContext("path", path).Build()
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return errors.WrapError(err, errors.CategoryConfig, "parsing config file").
			WithContext("path", path).Build()
	}
	return nil
}

// applyEnvOverrides applies the environment keys the deployment sets directly.
func applyEnvOverrides(cfg *Config) {
	if v := firstEnv("CONTENTSYNC_ENV", "APP_ENV"); v != "" {
		cfg.Environment = Environment(v)
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		cfg.GitHub.Token = v
	}
	if v := os.Getenv("GITHUB_REPO"); v != "" {
		cfg.GitHub.Repo = v
	}
	if v := os.Getenv("GITHUB_BRANCH"); v != "" {
		cfg.GitHub.Branch = v
	}
	if v := os.Getenv("CONTENTSYNC_SYNC_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Sync.Enabled = b
		}
	}
	if v := os.Getenv("CONTENTSYNC_SERVER_URL"); v != "" {
		cfg.Client.ServerURL = v
	}
	if v := os.Getenv("CONTENTSYNC_AUTHOR"); v != "" {
		cfg.Client.Author = v
	}
	if v := os.Getenv("CONTENTSYNC_NATS_URL"); v != "" {
		cfg.Notify.NATSURL = v
	}
	if v := os.Getenv("CONTENTSYNC_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func (c *Config) normalize() error {
	c.Environment = Environment(strings.ToLower(strings.TrimSpace(string(c.Environment))))
	c.Commit.Strategy = CommitStrategy(strings.ToLower(strings.TrimSpace(string(c.Commit.Strategy))))
	c.Log.Level = strings.ToLower(c.Log.Level)
	c.Log.Format = strings.ToLower(c.Log.Format)
	c.Client.ServerURL = strings.TrimRight(c.Client.ServerURL, "/")
	c.GitHub.APIURL = strings.TrimRight(c.GitHub.APIURL, "/")
	if c.Repository.ContentPrefix != "" && !strings.HasSuffix(c.Repository.ContentPrefix, "/") {
		c.Repository.ContentPrefix += "/"
	}
	c.Repository.ContentPrefix = strings.TrimPrefix(c.Repository.ContentPrefix, "/")

	c.GitHub.ref = RepoRef{}
	if strings.TrimSpace(c.GitHub.Repo) == "" {
		return nil
	}
	ref, err := ParseRepoRef(c.GitHub.Repo)
	if err != nil {
		if c.Environment == EnvProduction {
			return err
		}
		// Development runs on without a remote; Configured stays false.
		slog.Warn("Ignoring malformed GitHub repository", slog.String("repo", c.GitHub.Repo), logfields.Error(err))
		return nil
	}
	c.GitHub.ref = ref
	return nil
}

func (c *Config) validate() error {
	switch c.Environment {
	case EnvProduction, EnvDevelopment:
	default:
		return errors.ConfigError("environment must be production or development").
			WithContext("environment", string(c.Environment)).Build()
	}
	switch c.Commit.Strategy {
	case CommitAuto, CommitLocal, CommitRemote, CommitNone:
	default:
		return errors.ConfigError("unknown commit strategy").
			WithContext("strategy", string(c.Commit.Strategy)).Build()
	}
	if c.History.MaxEntries <= 0 {
		return errors.ConfigError("history.max_entries must be positive").Build()
	}
	if c.Sync.PollInterval.Std() <= 0 {
		return errors.ConfigError("sync.poll_interval must be positive").Build()
	}
	if _, ok := retry.ParseMode(c.Sync.Backoff); !ok {
		return errors.ConfigError("sync.backoff must be fixed, linear or exponential").
			WithContext("backoff", c.Sync.Backoff).Build()
	}
	if c.Repository.ContentPrefix == "" {
		return errors.ConfigError("repository.content_prefix must not be empty").Build()
	}
	if strings.Contains(c.Repository.ContentPrefix, "..") {
		return errors.ConfigError("repository.content_prefix must not contain '..'").Build()
	}
	if c.Commit.Strategy == CommitRemote && !c.GitHub.Configured() && c.IsProduction() {
		return errors.ConfigError("commit.strategy remote requires github.token and github.repo").Build()
	}
	return nil
}

// IsProduction reports whether the production environment is selected.
func (c *Config) IsProduction() bool { return c.Environment == EnvProduction }

// Configured reports whether both a token and a parsable repository are set.
// The same parsed reference answers "is sync configured" and "where do writes go".
func (g *GitHubConfig) Configured() bool {
	return g.Token != "" && !g.ref.IsZero()
}

// Ref returns the parsed repository reference.
func (g *GitHubConfig) Ref() RepoRef { return g.ref }

// EffectiveCommitStrategy resolves CommitAuto against the GitHub configuration.
func (c *Config) EffectiveCommitStrategy() CommitStrategy {
	if c.Commit.Strategy != CommitAuto {
		return c.Commit.Strategy
	}
	if c.GitHub.Configured() {
		return CommitRemote
	}
	return CommitLocal
}

// RetryPolicy builds the poll backoff policy.
func (s SyncConfig) RetryPolicy() retry.Policy {
	mode, _ := retry.ParseMode(s.Backoff)
	return retry.NewPolicy(mode, s.BackoffInitial.Std(), s.BackoffMax.Std(), 0)
}
