// Package identity implements the IdentityClient port against the remote
// school identity service's JSON API.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mkahmann/schulhub/internal/domain/model"
	"github.com/mkahmann/schulhub/internal/domain/port/driven"
)

// maxResponseBytes caps how much of a response body is read. Identity
// responses are tiny; anything larger is a misdirected page, not data.
const maxResponseBytes = 1 << 20

// Compile-time interface satisfaction check.
var _ driven.IdentityClient = (*Client)(nil)

// Client implements the driven.IdentityClient port over HTTP.
type Client struct {
	http    *http.Client
	baseURL string
}

// NewClient creates an identity client for the service at baseURL. The
// timeout applies per request; expiry surfaces as the network-error kind.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// CheckReachability probes GET /api/status. Only a 200 counts as reachable;
// for any other status the response body (when present) is the reason.
func (c *Client) CheckReachability(ctx context.Context) (bool, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/status", nil)
	if err != nil {
		return false, err.Error()
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, err.Error()
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return true, ""
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	reason := strings.TrimSpace(string(body))
	if reason == "" {
		reason = resp.Status
	}
	return false, reason
}

// Login exchanges username and password for a validated identity.
func (c *Client) Login(ctx context.Context, username, password string) (*model.Identity, error) {
	return c.authenticate(ctx, "/api/login", username, password)
}

// Refresh re-fetches identity attributes for a known username+password pair.
func (c *Client) Refresh(ctx context.Context, username, password string) (*model.Identity, error) {
	return c.authenticate(ctx, "/api/refresh", username, password)
}

func (c *Client) authenticate(ctx context.Context, endpoint, username, password string) (*model.Identity, error) {
	payload, err := json.Marshal(credentials{Username: username, Password: password})
	if err != nil {
		return nil, fmt.Errorf("marshal credentials: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &model.AuthError{Kind: model.AuthErrNetwork, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &model.AuthError{Kind: model.AuthErrNetwork, Err: err}
	}

	// An HTML page where JSON belongs is almost always a misconfigured
	// reverse proxy; report it as its own failure mode so the user-facing
	// message can say so.
	if looksLikeHTML(resp.Header.Get("Content-Type"), body) {
		return nil, &model.AuthError{
			Kind:    model.AuthErrProtocolMismatch,
			Message: fmt.Sprintf("%s returned HTML (status %d)", endpoint, resp.StatusCode),
		}
	}

	var ur userResponse
	if err := json.Unmarshal(body, &ur); err != nil {
		return nil, &model.AuthError{Kind: model.AuthErrMalformedResponse, Err: err}
	}

	if !bool(ur.Success) {
		msg := ur.Message
		if msg == "" {
			msg = "unknown error"
		}
		return nil, &model.AuthError{Kind: model.AuthErrServerRejected, Message: msg}
	}

	identity, ok := ur.identity()
	if !ok {
		return nil, &model.AuthError{
			Kind:    model.AuthErrMalformedResponse,
			Message: "response is missing required identity fields",
		}
	}
	return identity, nil
}

// looksLikeHTML reports whether a response is an HTML page rather than JSON.
func looksLikeHTML(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "text/html") {
		return true
	}
	head := strings.ToLower(string(bytes.TrimLeft(body, " \t\r\n")))
	return strings.HasPrefix(head, "<!doctype html") || strings.HasPrefix(head, "<html")
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// userResponse is the wire shape shared by the login and refresh endpoints.
// Identity fields are pointers so a missing field is distinguishable from an
// empty one.
type userResponse struct {
	Success     looseBool   `json:"success"`
	Message     string      `json:"message"`
	UserID      *looseInt64 `json:"user_id"`
	Username    *string     `json:"username"`
	FirstName   *string     `json:"first_name"`
	LastName    *string     `json:"last_name"`
	Email       *string     `json:"email"`
	SchoolClass *string     `json:"school_class"`
	WebdavURL   *string     `json:"webdav_url"`
}

// identity builds the typed Identity, reporting ok=false when any required
// field is absent. school_class and webdav_url are optional.
func (r userResponse) identity() (*model.Identity, bool) {
	if r.UserID == nil || r.Username == nil || r.FirstName == nil || r.LastName == nil || r.Email == nil {
		return nil, false
	}

	identity := &model.Identity{
		UserID:    int64(*r.UserID),
		Username:  *r.Username,
		FirstName: *r.FirstName,
		LastName:  *r.LastName,
		Email:     *r.Email,
	}
	if r.SchoolClass != nil {
		identity.SchoolClass = *r.SchoolClass
	}
	if r.WebdavURL != nil {
		identity.WebdavURL = *r.WebdavURL
	}
	return identity, true
}
