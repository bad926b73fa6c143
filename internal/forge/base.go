package forge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"git.home.luguber.info/inful/contentsync/internal/foundation/errors"
)

// BaseForge holds the HTTP plumbing shared by forge API calls.
type BaseForge struct {
	httpClient *http.Client
	apiURL     string
	token      string

	authHeaderPrefix string
	customHeaders    map[string]string
}

// NewBaseForge creates a BaseForge. A nil httpClient uses http.DefaultClient.
func NewBaseForge(httpClient *http.Client, apiURL, token string) *BaseForge {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &BaseForge{
		httpClient:       httpClient,
		apiURL:           apiURL,
		token:            token,
		authHeaderPrefix: "Bearer ",
		customHeaders:    make(map[string]string),
	}
}

// SetCustomHeader sets a header sent with every request.
func (b *BaseForge) SetCustomHeader(key, value string) {
	b.customHeaders[key] = value
}

// NewRequest builds a request against the API base URL. endpoint is relative
// ("repos/o/r/contents/x") and may carry a query string. Path segments are
// escaped individually.
func (b *BaseForge) NewRequest(ctx context.Context, method, endpoint string, body any) (*http.Request, error) {
	cleanEndpoint := strings.TrimPrefix(endpoint, "/")

	var rawQuery string
	if idx := strings.Index(cleanEndpoint, "?"); idx != -1 {
		rawQuery = cleanEndpoint[idx+1:]
		cleanEndpoint = cleanEndpoint[:idx]
	}

	u, err := url.Parse(b.apiURL)
	if err != nil {
		return nil, errors.ForgeError("failed to parse API URL").
			WithCause(err).
			WithContext("api_url", b.apiURL).
			Build()
	}

	basePath := strings.TrimSuffix(u.Path, "/")
	u.Path = path.Join(basePath, cleanEndpoint)
	u.RawPath = ""
	u.RawQuery = rawQuery

	var reader io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, errors.ForgeError("failed to marshal request body").WithCause(err).Build()
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, errors.ForgeError("failed to create request").
			WithCause(err).
			WithContext("method", method).
			WithContext("url", u.String()).
			Build()
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.token != "" {
		req.Header.Set("Authorization", b.authHeaderPrefix+b.token)
	}
	req.Header.Set("User-Agent", "contentsync/1.0")
	for key, value := range b.customHeaders {
		req.Header.Set(key, value)
	}
	return req, nil
}

// StatusError carries the HTTP status of a failed forge call.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("forge API returned %d: %s", e.Code, e.Body)
}

// DoRequest executes req and decodes a JSON response into result when non-nil.
// It returns the HTTP status code alongside any error so callers can react
// to specific statuses. Non-2xx responses wrap a *StatusError.
func (b *BaseForge) DoRequest(req *http.Request, result any) (int, error) {
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return 0, errors.NetworkError("failed to execute forge request").
			WithCause(err).
			WithContext("method", req.Method).
			WithContext("url", req.URL.String()).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		limitedBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		bodyStr := strings.ReplaceAll(string(limitedBody), "\n", " ")

		category := errors.CategoryForge
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			category = errors.CategoryAuth
		case http.StatusNotFound:
			category = errors.CategoryNotFound
		}
		return resp.StatusCode, errors.NewError(category, fmt.Sprintf("forge API error: %s", resp.Status)).
			WithCause(&StatusError{Code: resp.StatusCode, Body: bodyStr}).
			WithContext("code", resp.StatusCode).
			WithContext("url", req.URL.String()).
			Build()
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return resp.StatusCode, errors.ForgeError("failed to decode response").WithCause(err).Build()
		}
	}
	return resp.StatusCode, nil
}
