// Package property talks to the MaiSON listings API.
package property

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wolfman30/maison-chat-platform/pkg/logging"
)

const defaultTimeout = 10 * time.Second

var (
	// ErrNotFound is returned when the listings API has no such record.
	ErrNotFound = errors.New("property: not found")
	// ErrDisabled is returned when no listings API is configured.
	ErrDisabled = errors.New("property: listings api not configured")
)

// Provider is the read surface the chat engine needs from the listings API.
type Provider interface {
	Listings(ctx context.Context) ([]Listing, error)
	Listing(ctx context.Context, propertyID string) (*Listing, error)
	UserDashboard(ctx context.Context, userID string) (*UserDashboard, error)
}

// Client is a REST client for the listings API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *logging.Logger
}

// NewClient builds a listings client. An empty baseURL yields a client that
// reports ErrDisabled on every call.
func NewClient(baseURL string, timeout time.Duration, logger *logging.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		logger:     logger,
	}
}

var _ Provider = (*Client)(nil)

// Listings returns every property currently listed.
func (c *Client) Listings(ctx context.Context) ([]Listing, error) {
	var out []Listing
	if err := c.getJSON(ctx, "/api/properties", &out); err != nil {
		return nil, fmt.Errorf("property: list properties: %w", err)
	}
	return out, nil
}

// Listing returns one property's details.
func (c *Client) Listing(ctx context.Context, propertyID string) (*Listing, error) {
	if strings.TrimSpace(propertyID) == "" {
		return nil, errors.New("property: property id required")
	}
	var out Listing
	if err := c.getJSON(ctx, "/api/properties/"+url.PathEscape(propertyID), &out); err != nil {
		return nil, fmt.Errorf("property: get property %s: %w", propertyID, err)
	}
	return &out, nil
}

// UserDashboard returns a user's profile with saved and listed properties.
func (c *Client) UserDashboard(ctx context.Context, userID string) (*UserDashboard, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("property: user id required")
	}
	var out UserDashboard
	if err := c.getJSON(ctx, "/api/users/"+url.PathEscape(userID)+"/dashboard", &out); err != nil {
		return nil, fmt.Errorf("property: get dashboard %s: %w", userID, err)
	}
	return &out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	if c.baseURL == "" {
		return ErrDisabled
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := string(body)
		if len(msg) > 300 {
			msg = msg[:300]
		}
		c.logger.Warn("listings API non-2xx response", "status", resp.StatusCode, "path", path, "body", msg)
		return fmt.Errorf("listings API returned %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
