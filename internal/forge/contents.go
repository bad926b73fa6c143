package forge

import (
	"context"
	"encoding/base64"
	stderrors "errors"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"git.home.luguber.info/inful/contentsync/internal/config"
	"git.home.luguber.info/inful/contentsync/internal/logfields"
)

const defaultAPIURL = "https://api.github.com"

// ContentsOptions configure a ContentsClient.
type ContentsOptions struct {
	APIURL        string
	Token         string
	Owner         string
	Repo          string
	Branch        string
	ContentPrefix string
	// Production makes an unconfigured client fail instead of skipping writes.
	Production bool
	HTTPClient *http.Client
}

// CommitFileResult reports the outcome of a remote file write.
type CommitFileResult struct {
	// Skipped is true when the client is unconfigured outside production.
	Skipped    bool   `json:"skipped,omitempty"`
	CommitSHA  string `json:"commitSha,omitempty"`
	ContentSHA string `json:"contentSha,omitempty"`
}

// ContentsClient creates and updates single files on a hosted repository.
type ContentsClient struct {
	base *BaseForge
	opts ContentsOptions
}

// NewContentsClient creates a client.
func NewContentsClient(opts ContentsOptions) *ContentsClient {
	if opts.APIURL == "" {
		opts.APIURL = defaultAPIURL
	}
	if opts.Branch == "" {
		opts.Branch = "main"
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	opts.ContentPrefix = strings.TrimPrefix(opts.ContentPrefix, "/")
	base := NewBaseForge(opts.HTTPClient, opts.APIURL, opts.Token)
	base.SetCustomHeader("Accept", "application/vnd.github+json")
	base.SetCustomHeader("X-GitHub-Api-Version", "2022-11-28")
	return &ContentsClient{base: base, opts: opts}
}

// NewContentsClientFromConfig builds a client from the unified repository reference.
func NewContentsClientFromConfig(cfg *config.Config, httpClient *http.Client) *ContentsClient {
	ref := cfg.GitHub.Ref()
	token := cfg.GitHub.Token
	if ref.IsZero() {
		token = ""
	}
	return NewContentsClient(ContentsOptions{
		APIURL:        cfg.GitHub.APIURL,
		Token:         token,
		Owner:         ref.Owner,
		Repo:          ref.Name,
		Branch:        cfg.GitHub.Branch,
		ContentPrefix: cfg.Repository.ContentPrefix,
		Production:    cfg.IsProduction(),
		HTTPClient:    httpClient,
	})
}

// Configured reports whether remote writes can be attempted.
func (c *ContentsClient) Configured() bool {
	return c.opts.Token != "" && c.opts.Owner != "" && c.opts.Repo != ""
}

// Repository returns "owner/name".
func (c *ContentsClient) Repository() string { return c.opts.Owner + "/" + c.opts.Repo }

type contentsFile struct {
	SHA string `json:"sha"`
}

type putContentsRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha,omitempty"`
}

type putContentsResponse struct {
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

// CommitFile writes content to filePath on the configured branch as one commit.
// The current blob hash is read first and sent with the write, so a
// concurrent upstream change yields ErrStaleWrite. Stale writes are not retried.
func (c *ContentsClient) CommitFile(ctx context.Context, filePath string, content []byte, message string) (CommitFileResult, error) {
	clean, err := c.checkPath(filePath)
	if err != nil {
		return CommitFileResult{}, err
	}
	if !c.Configured() {
		if c.opts.Production {
			return CommitFileResult{}, ErrNotConfigured
		}
		slog.Info("Remote commits not configured; skipping write", logfields.Path(clean))
		return CommitFileResult{Skipped: true}, nil
	}

	sha, err := c.currentSHA(ctx, clean)
	if err != nil {
		return CommitFileResult{}, err
	}

	body := putContentsRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(content),
		Branch:  c.opts.Branch,
		SHA:     sha,
	}
	req, err := c.base.NewRequest(ctx, http.MethodPut, c.contentsEndpoint(clean), body)
	if err != nil {
		return CommitFileResult{}, err
	}
	var resp putContentsResponse
	status, err := c.base.DoRequest(req, &resp)
	if err != nil {
		if status == http.StatusConflict || status == http.StatusUnprocessableEntity {
			return CommitFileResult{}, ErrStaleWrite.WithCause(err).
				WithContext("path", clean).
				WithContext("sha", sha)
		}
		return CommitFileResult{}, err
	}

	slog.Info("Committed file to remote",
		logfields.Repository(c.Repository()),
		logfields.Branch(c.opts.Branch),
		logfields.Path(clean),
		logfields.Commit(resp.Commit.SHA))
	return CommitFileResult{CommitSHA: resp.Commit.SHA, ContentSHA: resp.Content.SHA}, nil
}

// currentSHA returns the blob hash of filePath on the branch, or "" when absent.
func (c *ContentsClient) currentSHA(ctx context.Context, filePath string) (string, error) {
	req, err := c.base.NewRequest(ctx, http.MethodGet,
		c.contentsEndpoint(filePath)+"?ref="+url.QueryEscape(c.opts.Branch), nil)
	if err != nil {
		return "", err
	}
	var file contentsFile
	status, err := c.base.DoRequest(req, &file)
	if status == http.StatusNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return file.SHA, nil
}

func (c *ContentsClient) contentsEndpoint(filePath string) string {
	return path.Join("repos", c.opts.Owner, c.opts.Repo, "contents", filePath)
}

// checkPath normalizes filePath and enforces the content prefix.
func (c *ContentsClient) checkPath(filePath string) (string, error) {
	p := strings.TrimPrefix(filePath, "/")
	clean := path.Clean(p)
	if p == "" || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") || strings.Contains(p, "\\") {
		return "", ErrPathNotAllowed.WithContext("path", filePath)
	}
	if c.opts.ContentPrefix != "" && !strings.HasPrefix(clean, c.opts.ContentPrefix) {
		return "", ErrPathNotAllowed.WithContext("path", filePath).WithContext("prefix", c.opts.ContentPrefix)
	}
	return clean, nil
}

// IsStaleWrite reports whether err is a rejected stale write.
func IsStaleWrite(err error) bool {
	return stderrors.Is(err, ErrStaleWrite)
}
