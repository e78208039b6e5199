package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"hybrid-workforce/agent/internal/session"
)

// orgHeader scopes every authenticated request to the session's organization.
const orgHeader = "X-Org-ID"

// maxErrorBody bounds the body snippet captured into a StatusError.
const maxErrorBody = 512

// Client issues requests against the workforce backend. Authenticated calls
// attach the bearer token and org header from the session store; a 401 with
// a refresh token present triggers exactly one refresh-and-retry.
type Client struct {
	baseURL string
	http    *http.Client
	store   session.Store
}

// NewClient returns a client for the backend at baseURL. Every request is
// bounded by timeout; a timed-out call is a transient failure, not an auth
// failure.
func NewClient(baseURL string, timeout time.Duration, store session.Store) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		store:   store,
	}
}

// do issues an authenticated request with a JSON body and decodes a JSON
// response into out (when non-nil). On a 401 with a refresh token present it
// refreshes once, persists the rotated tokens, and retries the original
// request exactly once with the new token; a second 401 propagates as
// ErrNotAuthenticated with no further refresh attempt.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: encode %s %s: %w", method, path, err)
		}
	}
	return c.doBytes(ctx, method, path, "application/json", payload, out)
}

// doBytes is do with a prebuilt body; used directly for multipart uploads.
func (c *Client) doBytes(ctx context.Context, method, path, contentType string, payload []byte, out any) error {
	sess, err := c.store.Get()
	if err != nil {
		return fmt.Errorf("api: load session: %w", err)
	}
	if sess == nil {
		return ErrNotAuthenticated
	}

	resp, err := c.send(ctx, method, path, contentType, payload, sess)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w: %w", method, path, ErrTransient, err)
	}

	if resp.StatusCode == http.StatusUnauthorized && sess.RefreshToken != "" {
		drain(resp)
		sess, err = c.refreshSession(ctx, sess)
		if err != nil {
			return err
		}
		resp, err = c.send(ctx, method, path, contentType, payload, sess)
		if err != nil {
			return fmt.Errorf("api: %s %s: %w: %w", method, path, ErrTransient, err)
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("api: %s %s: %w", method, path, ErrNotAuthenticated)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("api: %s %s: %w", method, path, classify(resp.StatusCode, string(snippet)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("api: decode %s %s response: %w", method, path, err)
		}
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path, contentType string, payload []byte, sess *session.Session) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Authorization", "Bearer "+sess.AccessToken)
	req.Header.Set(orgHeader, sess.OrgID)
	return c.http.Do(req)
}

// postJSON issues an unauthenticated JSON POST; used for login and refresh.
func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("api: encode POST %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("api: POST %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api: POST %s: %w: %w", path, ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("api: POST %s: %w", path, classify(resp.StatusCode, string(snippet)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("api: decode POST %s response: %w", path, err)
		}
	}
	return nil
}

// refreshSession rotates the access token through POST /auth/refresh and
// persists the result. The backend may also rotate the refresh token; when
// it does, both are stored together.
func (c *Client) refreshSession(ctx context.Context, sess *session.Session) (*session.Session, error) {
	var out struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	body := map[string]string{"refresh_token": sess.RefreshToken}
	if err := c.postJSON(ctx, "/auth/refresh", body, &out); err != nil {
		if isStatusClass(err, ErrRejected) {
			// A rejected refresh token means the session is revoked.
			return nil, fmt.Errorf("api: refresh: %w", ErrNotAuthenticated)
		}
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("api: refresh: %w", ErrNotAuthenticated)
	}
	sess.AccessToken = out.AccessToken
	if out.RefreshToken != "" {
		sess.RefreshToken = out.RefreshToken
	}
	if err := c.store.Set(sess); err != nil {
		return nil, fmt.Errorf("api: persist refreshed session: %w", err)
	}
	return sess, nil
}

func isStatusClass(err, class error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.class == class
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
}
