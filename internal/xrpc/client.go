// Package xrpc is a thin client for the AT Protocol XRPC endpoints the
// bookmark manager uses. Authenticated requests recover from a 401 by
// refreshing the session through the Credentials hook and retrying,
// bounded by an explicit retry policy.
package xrpc

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

	"github.com/codeGROOVE-dev/retry"

	"github.com/skymark/skymark/internal/domain"
	"github.com/skymark/skymark/internal/logger"
	"github.com/skymark/skymark/internal/utils"
)

// XRPC method names.
const (
	EndpointCreateSession  = "com.atproto.server.createSession"
	EndpointRefreshSession = "com.atproto.server.refreshSession"
	EndpointGetProfile     = "app.bsky.actor.getProfile"
	EndpointResolveHandle  = "com.atproto.identity.resolveHandle"
	EndpointListRecords    = "com.atproto.repo.listRecords"
	EndpointCreateRecord   = "com.atproto.repo.createRecord"
	EndpointPutRecord      = "com.atproto.repo.putRecord"
	EndpointDeleteRecord   = "com.atproto.repo.deleteRecord"
	EndpointGetPosts       = "app.bsky.feed.getPosts"
)

// DefaultMaxRefreshAttempts bounds how many 401-triggered refresh
// cycles a single request may consume before raising ErrSessionExpired.
const DefaultMaxRefreshAttempts = 3

// Credentials supplies the authorization header and the refresh hook.
// Implemented by the auth session manager; the indirection keeps this
// package free of session-storage concerns.
type Credentials interface {
	// AuthHeader returns the Authorization header value, or "" when no
	// usable session exists.
	AuthHeader(ctx context.Context) string

	// RefreshSession performs (or joins) a session refresh. An error
	// means the refresh failed terminally and retrying is pointless.
	RefreshSession(ctx context.Context) error
}

// Options configures a Client.
type Options struct {
	// BaseURL is the authenticated PDS endpoint, e.g. "https://bsky.social/xrpc".
	BaseURL string
	// PublicBaseURL serves the unauthenticated AppView endpoints,
	// e.g. "https://public.api.bsky.app/xrpc".
	PublicBaseURL string
	// MaxRefreshAttempts defaults to DefaultMaxRefreshAttempts.
	MaxRefreshAttempts int
	// Timeout for a single HTTP round trip.
	Timeout time.Duration
}

// Client performs XRPC calls.
type Client struct {
	baseURL            string
	publicBaseURL      string
	http               *http.Client
	creds              Credentials
	maxRefreshAttempts int
	logger             logger.Logger
}

// New creates a Client. Credentials are attached afterwards via
// SetCredentials because the session manager needs the client to exist
// first (it performs the create/refresh calls itself).
func New(opts Options, log logger.Logger) *Client {
	if opts.MaxRefreshAttempts <= 0 {
		opts.MaxRefreshAttempts = DefaultMaxRefreshAttempts
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL:            strings.TrimSuffix(opts.BaseURL, "/"),
		publicBaseURL:      strings.TrimSuffix(opts.PublicBaseURL, "/"),
		http:               &http.Client{Timeout: opts.Timeout},
		maxRefreshAttempts: opts.MaxRefreshAttempts,
		logger:             log,
	}
}

// SetCredentials wires the session manager in. Must be called before
// any authenticated request.
func (c *Client) SetCredentials(creds Credentials) {
	c.creds = creds
}

// Request describes one XRPC call.
type Request struct {
	Endpoint string
	Method   string
	Query    url.Values
	Body     any
	// Public routes the call to the unauthenticated AppView base URL
	// and sends no authorization header.
	Public bool
	// Anonymous keeps the PDS base URL but sends no authorization
	// header. Used for public record listings, which the AppView does
	// not serve.
	Anonymous bool
}

// Do performs an XRPC call. On a 401 it refreshes the session and
// retries the identical request, at most maxRefreshAttempts times; a
// failed refresh or an exhausted budget surfaces as ErrSessionExpired.
// A 2xx with an empty or non-JSON body yields an empty JSON object.
func (c *Client) Do(ctx context.Context, req Request) (json.RawMessage, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	var out json.RawMessage
	refreshes := 0

	err := retry.Do(
		func() error {
			res, err := c.doOnce(ctx, req)
			if err == nil {
				out = res
				return nil
			}
			if !IsUnauthorized(err) {
				return retry.Unrecoverable(err)
			}
			if refreshes >= c.maxRefreshAttempts {
				return retry.Unrecoverable(fmt.Errorf("%w: %d refresh attempts exhausted", ErrSessionExpired, refreshes))
			}
			refreshes++
			c.logger.Warn("received 401, refreshing session",
				logger.String("endpoint", req.Endpoint),
				logger.Int("attempt", refreshes))
			if rerr := c.creds.RefreshSession(ctx); rerr != nil {
				return retry.Unrecoverable(fmt.Errorf("%w: %v", ErrSessionExpired, rerr))
			}
			return err // retryable: replay with the fresh token
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRefreshAttempts)+1),
		retry.Delay(0),
		retry.LastErrorOnly(true),
		retry.RetryIf(IsUnauthorized),
	)
	if err != nil {
		if IsUnauthorized(err) {
			return nil, fmt.Errorf("%w: %v", ErrSessionExpired, err)
		}
		return nil, err
	}
	return out, nil
}

func (c *Client) doOnce(ctx context.Context, req Request) (json.RawMessage, error) {
	var header string
	if !req.Public && !req.Anonymous {
		if c.creds == nil {
			return nil, ErrNotAuthenticated
		}
		header = c.creds.AuthHeader(ctx)
		if header == "" {
			return nil, ErrNotAuthenticated
		}
	}
	return c.roundTrip(ctx, req, header)
}

// roundTrip executes one HTTP exchange with an explicit authorization
// header ("" for none). Session bootstrap calls use it directly.
func (c *Client) roundTrip(ctx context.Context, req Request, authHeader string) (json.RawMessage, error) {
	base := c.baseURL
	if req.Public {
		base = c.publicBaseURL
	}
	u := base + "/" + req.Endpoint
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if authHeader != "" {
		httpReq.Header.Set("Authorization", authHeader)
	}

	c.logger.Debug("xrpc request",
		logger.String("method", req.Method),
		logger.String("endpoint", req.Endpoint))

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", req.Endpoint, err)
	}
	defer utils.Close(resp.Body)

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", req.Endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, parseAPIError(resp.StatusCode, payload)
	}

	// Bodyless success (e.g. deleteRecord) and non-JSON bodies collapse
	// to an empty object so callers never special-case them.
	if len(bytes.TrimSpace(payload)) == 0 || !json.Valid(payload) {
		return json.RawMessage("{}"), nil
	}
	return json.RawMessage(payload), nil
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &parsed) == nil && (parsed.Error != "" || parsed.Message != "") {
		apiErr.Code = parsed.Error
		apiErr.Message = parsed.Message
		if apiErr.Message == "" {
			apiErr.Message = parsed.Error
		}
		return apiErr
	}
	if msg := strings.TrimSpace(string(body)); msg != "" {
		const maxLen = 200
		if len(msg) > maxLen {
			msg = msg[:maxLen]
		}
		apiErr.Message = msg
	}
	return apiErr
}

// SessionData is the payload of createSession / refreshSession.
type SessionData struct {
	DID        string `json:"did"`
	Handle     string `json:"handle"`
	AccessJWT  string `json:"accessJwt"`
	RefreshJWT string `json:"refreshJwt"`
}

// Complete reports whether the server returned everything a usable
// session needs.
func (s *SessionData) Complete() bool {
	return s != nil && s.DID != "" && s.AccessJWT != "" && s.RefreshJWT != ""
}

// Profile is the subset of an actor profile the manager cares about.
type Profile struct {
	DID         string `json:"did"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
}

// CreateSession logs in with an identifier and app password. This is a
// bootstrap endpoint: unauthenticated by nature and never retried.
func (c *Client) CreateSession(ctx context.Context, identifier, password string) (*SessionData, error) {
	raw, err := c.roundTrip(ctx, Request{
		Endpoint: EndpointCreateSession,
		Method:   http.MethodPost,
		Body:     map[string]string{"identifier": identifier, "password": password},
	}, "")
	if err != nil {
		return nil, err
	}
	var out SessionData
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &out, nil
}

// RefreshSession exchanges a refresh token for new tokens. Bootstrap
// endpoint: authenticated by the refresh token itself.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*SessionData, error) {
	raw, err := c.roundTrip(ctx, Request{
		Endpoint: EndpointRefreshSession,
		Method:   http.MethodPost,
	}, "Bearer "+refreshToken)
	if err != nil {
		return nil, err
	}
	var out SessionData
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode refreshed session: %w", err)
	}
	return &out, nil
}

// GetProfile fetches an actor profile over the authenticated base.
func (c *Client) GetProfile(ctx context.Context, actor string) (*Profile, error) {
	return c.getProfile(ctx, actor, false)
}

// PublicGetProfile fetches an actor profile from the public AppView.
func (c *Client) PublicGetProfile(ctx context.Context, actor string) (*Profile, error) {
	return c.getProfile(ctx, actor, true)
}

func (c *Client) getProfile(ctx context.Context, actor string, public bool) (*Profile, error) {
	raw, err := c.Do(ctx, Request{
		Endpoint: EndpointGetProfile,
		Query:    url.Values{"actor": {actor}},
		Public:   public,
	})
	if err != nil {
		return nil, err
	}
	var out Profile
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	return &out, nil
}

// ResolveHandle resolves a handle to its DID via the public AppView.
func (c *Client) ResolveHandle(ctx context.Context, handle string) (string, error) {
	raw, err := c.Do(ctx, Request{
		Endpoint: EndpointResolveHandle,
		Query:    url.Values{"handle": {handle}},
		Public:   true,
	})
	if err != nil {
		return "", err
	}
	var out struct {
		DID string `json:"did"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("failed to decode resolved handle: %w", err)
	}
	return out.DID, nil
}

// ListRecordsResponse is one page of a record listing.
type ListRecordsResponse struct {
	Records []domain.BookmarkRecord `json:"records"`
	Cursor  string                  `json:"cursor"`
}

// ListRecords fetches one page of records from a repository.
// Public selects the unauthenticated path used by the feed viewer.
func (c *Client) ListRecords(ctx context.Context, repo, collection string, limit int, cursor string, public bool) (*ListRecordsResponse, error) {
	q := url.Values{
		"repo":       {repo},
		"collection": {collection},
		"limit":      {fmt.Sprintf("%d", limit)},
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	raw, err := c.Do(ctx, Request{Endpoint: EndpointListRecords, Query: q, Anonymous: public})
	if err != nil {
		return nil, err
	}
	var out ListRecordsResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode record page: %w", err)
	}
	return &out, nil
}

// CreateRecord creates one record; the server assigns the record key.
func (c *Client) CreateRecord(ctx context.Context, repo, collection string, value any) (json.RawMessage, error) {
	return c.Do(ctx, Request{
		Endpoint: EndpointCreateRecord,
		Method:   http.MethodPost,
		Body: map[string]any{
			"repo":       repo,
			"collection": collection,
			"record":     value,
		},
	})
}

// PutRecord fully replaces one record by key.
func (c *Client) PutRecord(ctx context.Context, repo, collection, rkey string, value any) (json.RawMessage, error) {
	return c.Do(ctx, Request{
		Endpoint: EndpointPutRecord,
		Method:   http.MethodPost,
		Body: map[string]any{
			"repo":       repo,
			"collection": collection,
			"rkey":       rkey,
			"record":     value,
		},
	})
}

// DeleteRecord removes one record by key.
func (c *Client) DeleteRecord(ctx context.Context, repo, collection, rkey string) error {
	_, err := c.Do(ctx, Request{
		Endpoint: EndpointDeleteRecord,
		Method:   http.MethodPost,
		Body: map[string]any{
			"repo":       repo,
			"collection": collection,
			"rkey":       rkey,
		},
	})
	return err
}

// GetPostsResponse holds the posts that currently resolve; URIs that
// are deleted or blocked are simply absent.
type GetPostsResponse struct {
	Posts []domain.Post `json:"posts"`
}

// GetPosts batch-fetches hydrated posts by at:// URI (max 25 per call),
// authenticated against the PDS.
func (c *Client) GetPosts(ctx context.Context, uris []string) (*GetPostsResponse, error) {
	return c.getPosts(ctx, uris, false)
}

// PublicGetPosts batch-fetches posts from the public AppView.
func (c *Client) PublicGetPosts(ctx context.Context, uris []string) (*GetPostsResponse, error) {
	return c.getPosts(ctx, uris, true)
}

func (c *Client) getPosts(ctx context.Context, uris []string, public bool) (*GetPostsResponse, error) {
	if len(uris) == 0 {
		return &GetPostsResponse{}, nil
	}
	raw, err := c.Do(ctx, Request{
		Endpoint: EndpointGetPosts,
		Query:    url.Values{"uris": uris},
		Public:   public,
	})
	if err != nil {
		return nil, err
	}
	var out GetPostsResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode posts: %w", err)
	}
	return &out, nil
}
