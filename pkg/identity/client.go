package identity

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

	"github.com/platinummonkey/keystone-auth/pkg/observability"
)

const (
	headerAuthToken    = "X-Auth-Token"
	headerSubjectToken = "X-Subject-Token"

	maxResponseBytes = 4 << 20
)

// ListOptions narrows a project listing
type ListOptions struct {
	// UserID lists the projects this user has a role on (v3)
	UserID string
	// Federated lists through the federation API, for tokens obtained via
	// an external identity provider (v3)
	Federated bool
}

// Client is the subset of the identity API the authentication backend uses.
// The implementation is bound to one API version at construction.
type Client interface {
	Version() Version
	Authenticate(ctx context.Context, authURL string, method AuthMethod) (AccessInfo, error)
	ListProjects(ctx context.Context, authURL, token string, opts ListOptions) ([]Project, error)
	RevokeToken(ctx context.Context, authURL, token string) error
}

// HTTPClient talks to the identity service over its JSON HTTP API
type HTTPClient struct {
	version Version
	http    *http.Client
	metrics *observability.AuthMetrics
}

// NewHTTPClient creates a client for version. httpClient usually comes from
// NewSession; metrics may be nil.
func NewHTTPClient(version Version, httpClient *http.Client, metrics *observability.AuthMetrics) *HTTPClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPClient{
		version: version,
		http:    httpClient,
		metrics: metrics,
	}
}

func (c *HTTPClient) Version() Version {
	return c.version
}

// Authenticate requests a token using method
func (c *HTTPClient) Authenticate(ctx context.Context, authURL string, method AuthMethod) (AccessInfo, error) {
	body, err := method.requestBody(c.version)
	if err != nil {
		return nil, &ClientError{Operation: "authenticate", Message: err.Error(), Err: ErrAuthorizationFailure}
	}

	endpoint := joinURL(authURL, "/tokens")
	if c.version.AtLeast3() {
		endpoint = joinURL(authURL, "/auth/tokens")
	}

	resp, data, err := c.do(ctx, "authenticate", http.MethodPost, endpoint, body, nil)
	if err != nil {
		if !IsClientError(err) || resp == nil {
			return nil, &ClientError{Operation: "authenticate", Message: err.Error(), Err: ErrAuthorizationFailure}
		}
		return nil, err
	}

	access, err := ParseAccessInfo(c.version, data, resp.Header.Get(headerSubjectToken))
	if err != nil {
		return nil, fmt.Errorf("failed to parse authentication response: %w", err)
	}
	return access, nil
}

// ListProjects lists the projects token may be scoped to
func (c *HTTPClient) ListProjects(ctx context.Context, authURL, token string, opts ListOptions) ([]Project, error) {
	var (
		endpoint string
		key      string
	)
	switch {
	case !c.version.AtLeast3():
		endpoint, key = joinURL(authURL, "/tenants"), "tenants"
	case opts.Federated:
		endpoint, key = joinURL(authURL, "/OS-FEDERATION/projects"), "projects"
	case opts.UserID != "":
		endpoint, key = joinURL(authURL, "/users/"+url.PathEscape(opts.UserID)+"/projects"), "projects"
	default:
		endpoint, key = joinURL(authURL, "/auth/projects"), "projects"
	}

	_, data, err := c.do(ctx, "list_projects", http.MethodGet, endpoint, nil, map[string]string{
		headerAuthToken: token,
	})
	if err != nil {
		return nil, err
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	raw, ok := envelope[key]
	if !ok {
		return nil, fmt.Errorf("%w: missing %q", ErrMalformedResponse, key)
	}
	var projects []Project
	if err := json.Unmarshal(raw, &projects); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return projects, nil
}

// RevokeToken invalidates token at the identity service
func (c *HTTPClient) RevokeToken(ctx context.Context, authURL, token string) error {
	headers := map[string]string{headerAuthToken: token}
	endpoint := joinURL(authURL, "/tokens/"+url.PathEscape(token))
	if c.version.AtLeast3() {
		endpoint = joinURL(authURL, "/auth/tokens")
		headers[headerSubjectToken] = token
	}

	_, _, err := c.do(ctx, "revoke_token", http.MethodDelete, endpoint, nil, headers)
	return err
}

func (c *HTTPClient) do(ctx context.Context, operation, method, endpoint string, body interface{}, headers map[string]string) (*http.Response, []byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, nil, &ClientError{Operation: operation, Message: err.Error()}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.ObserveIdentityRequest(operation, 0, time.Since(start))
		return nil, nil, &ClientError{Operation: operation, Message: err.Error()}
	}
	defer resp.Body.Close()
	c.metrics.ObserveIdentityRequest(operation, resp.StatusCode, time.Since(start))

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp, nil, &ClientError{Operation: operation, StatusCode: resp.StatusCode, Message: err.Error()}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return resp, data, statusError(operation, resp.StatusCode, errorMessage(data, resp.Status))
	}
	return resp, data, nil
}

// errorMessage extracts the identity service's {"error": {"message": ...}}
// text, falling back to the HTTP status line.
func errorMessage(data []byte, fallback string) string {
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Error.Message != "" {
		return body.Error.Message
	}
	return fallback
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
