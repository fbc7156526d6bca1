// Package identity implements external OAuth-style token verification
// against the configured identity provider.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/quothlabs/quoth/internal/domain"
)

// UserRecord is the provider's view of the token subject. Project
// binding is NOT read from here; the token's signed claims are
// authoritative for that.
type UserRecord struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Client calls the identity provider's user endpoint to validate a
// bearer token.
type Client struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
}

// New creates an identity client, or nil when no provider is configured.
func New(baseURL, serviceKey string) *Client {
	if baseURL == "" {
		return nil
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		serviceKey: serviceKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// VerifyToken asks the provider to validate the token and returns its
// user record. An invalid token maps to ErrUnauthenticated.
func (c *Client) VerifyToken(ctx context.Context, token string) (*UserRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("build identity request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("apikey", c.serviceKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity provider: %w: %w", domain.ErrBackend, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("identity provider rejected token: %w", domain.ErrUnauthenticated)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("identity provider returned %d: %w", resp.StatusCode, domain.ErrBackend)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read identity response: %w", err)
	}

	var user UserRecord
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("parse identity response: %w", err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("identity response missing user id: %w", domain.ErrUnauthenticated)
	}
	return &user, nil
}
