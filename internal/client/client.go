// Package client talks to the contentsync HTTP API: the persistence contract
// (page reads and edit batches) and the sync endpoints.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"git.home.luguber.info/inful/contentsync/internal/content"
	"git.home.luguber.info/inful/contentsync/internal/foundation/errors"
	"git.home.luguber.info/inful/contentsync/internal/syncstatus"
)

// DefaultTimeout applies when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client // optional
}

// Client is an API client. It is safe for concurrent use.
type Client struct {
	baseURL *url.URL
	http    *http.Client
}

// New creates a client for the server at opts.BaseURL.
func New(opts Options) (*Client, error) {
	raw := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.ConfigError("invalid server URL").
			WithCause(err).
			WithContext("url", opts.BaseURL).
			Build()
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: u, http: hc}, nil
}

// BaseURL returns the server URL.
func (c *Client) BaseURL() string { return c.baseURL.String() }

// SaveEdits submits one batch: POST /content/edit. A 2xx response whose body
// reports success=false is returned together with a validation error, so
// callers only treat err == nil && res.Success as persisted.
func (c *Client) SaveEdits(ctx context.Context, req content.EditRequest) (content.EditResult, error) {
	var res content.EditResult
	if err := c.do(ctx, http.MethodPost, "/content/edit", nil, req, &res); err != nil {
		return res, err
	}
	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = "save rejected"
		}
		return res, errors.ValidationError(msg).WithContext("page", req.Key().String()).Build()
	}
	return res, nil
}

// GetPage loads a page: GET /content/{type}/{slug}?locale=&variant=.
func (c *Client) GetPage(ctx context.Context, key content.PageKey, variant string) (*content.Page, error) {
	q := url.Values{"locale": {key.Locale}}
	if variant != "" {
		q.Set("variant", variant)
	}
	p := "/content/" + url.PathEscape(key.ContentType) + "/" + url.PathEscape(key.Slug)
	var page content.Page
	if err := c.do(ctx, http.MethodGet, p, q, nil, &page); err != nil {
		return nil, err
	}
	if page.Sections == nil {
		page.Sections = []content.Section{}
	}
	return &page, nil
}

// SyncStatus fetches GET /sync-status.
func (c *Client) SyncStatus(ctx context.Context) (syncstatus.Status, error) {
	var st syncstatus.Status
	err := c.do(ctx, http.MethodGet, "/sync-status", nil, nil, &st)
	return st, err
}

// ConflictInfo fetches GET /conflict-info.
func (c *Client) ConflictInfo(ctx context.Context) (syncstatus.ConflictInfo, error) {
	var info syncstatus.ConflictInfo
	if err := c.do(ctx, http.MethodGet, "/conflict-info", nil, nil, &info); err != nil {
		return info, err
	}
	if info.Commits == nil {
		info.Commits = []syncstatus.CommitSummary{}
	}
	return info, nil
}

// Sync asks the server to pull the remote branch: POST /sync.
func (c *Client) Sync(ctx context.Context) (syncstatus.SyncResult, error) {
	var res syncstatus.SyncResult
	err := c.do(ctx, http.MethodPost, "/sync", nil, nil, &res)
	return res, err
}

func (c *Client) do(ctx context.Context, method, p string, query url.Values, body, result any) error {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + p
	u.RawQuery = query.Encode()

	var reader io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.InternalError("failed to marshal request body").WithCause(err).Build()
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return errors.InternalError("failed to create request").WithCause(err).WithContext("url", u.String()).Build()
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", "contentsync/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.NetworkError("request to content server failed").
			WithCause(err).
			WithContext("method", method).
			WithContext("url", u.String()).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp, method, u.String())
	}
	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return errors.NetworkError("failed to decode response").
			WithCause(err).
			WithContext("url", u.String()).
			Build()
	}
	return nil
}

// decodeError rebuilds a classified error from the server's error payload so
// callers can branch on category (conflict, sync, validation) as the server did.
func decodeError(resp *http.Response, method, target string) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload errors.HTTPErrorResponse
	_ = json.Unmarshal(raw, &payload)

	category := errors.ErrorCategory(payload.Code)
	if category == "" {
		category = categoryForStatus(resp.StatusCode)
	}
	msg := payload.Error
	if msg == "" {
		msg = fmt.Sprintf("server returned %s", resp.Status)
	}
	b := errors.NewError(category, msg).
		WithContext("status", resp.StatusCode).
		WithContext("method", method).
		WithContext("url", target)
	for k, v := range payload.Details {
		b = b.WithContext(k, v)
	}
	return b.Build()
}

func categoryForStatus(code int) errors.ErrorCategory {
	switch {
	case code == http.StatusBadRequest:
		return errors.CategoryValidation
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return errors.CategoryAuth
	case code == http.StatusNotFound:
		return errors.CategoryNotFound
	case code == http.StatusConflict:
		return errors.CategoryConflict
	case code == http.StatusLocked:
		return errors.CategorySync
	case code >= 500:
		return errors.CategoryNetwork
	default:
		return errors.CategoryInternal
	}
}
