package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SignOutClient revokes the session at the hosted authentication service.
type SignOutClient interface {
	SignOut(ctx context.Context, reason string) error
}

// HTTPSignOutClient calls the auth provider's sign-out endpoint over HTTP.
type HTTPSignOutClient struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewHTTPSignOutClient returns a client for the given sign-out endpoint
// (e.g. https://auth.example.com/v1/session/sign-out). bearer, when non-empty,
// is sent as the Authorization header so the provider can identify the
// session being revoked.
func NewHTTPSignOutClient(endpoint, bearer string) *HTTPSignOutClient {
	return &HTTPSignOutClient{
		endpoint: endpoint,
		token:    bearer,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// SignOut posts the sign-out reason to the auth provider. Returns an error
// if the request fails or the provider returns a non-2xx status.
func (c *HTTPSignOutClient) SignOut(ctx context.Context, reason string) error {
	if c.endpoint == "" {
		return fmt.Errorf("identity: sign-out endpoint is empty")
	}
	body, err := json.Marshal(map[string]string{"reason": reason})
	if err != nil {
		return fmt.Errorf("identity: marshal sign-out body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("identity: build sign-out request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(c.token))
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("identity: sign-out request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("identity: sign-out returned status %d", resp.StatusCode)
	}
	return nil
}

// SignInURL appends the logout reason to the portal sign-in page URL so the
// page can surface why the previous session ended.
func SignInURL(base, reason string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("identity: parse sign-in URL: %w", err)
	}
	q := u.Query()
	q.Set("reason", reason)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
