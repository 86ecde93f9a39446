package crowdsec

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

	"github.com/Wikid82/gatewatch/internal/version"
)

const maxResponseSize = 1 << 20

var (
	ErrNotConfigured = errors.New("crowdsec api key not configured")
	ErrNotFound      = errors.New("no crowdsec data for ip")
	ErrUnauthorized  = errors.New("crowdsec api key rejected")
	ErrRateLimited   = errors.New("crowdsec api rate limit reached")
)

// Client talks to the CrowdSec CTI smoke endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a client for baseURL (e.g. https://cti.api.crowdsec.net).
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

// Smoke fetches the reputation of ip. It returns the decoded body together
// with the raw bytes so callers can cache the payload verbatim.
// A 404 maps to ErrNotFound, 401/403 to ErrUnauthorized and 429 to ErrRateLimited.
func (c *Client) Smoke(ctx context.Context, ip string) (*Reputation, []byte, error) {
	if !c.Configured() {
		return nil, nil, ErrNotConfigured
	}

	endpoint := c.baseURL + "/v2/smoke/" + url.PathEscape(ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("smoke %s: %w", ip, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil, ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, nil, ErrUnauthorized
	case http.StatusTooManyRequests:
		return nil, nil, ErrRateLimited
	default:
		return nil, nil, fmt.Errorf("smoke %s: unexpected status %d", ip, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, nil, fmt.Errorf("read smoke response: %w", err)
	}
	rep, err := ParseReputation(raw)
	if err != nil {
		return nil, nil, err
	}
	return rep, raw, nil
}

// ParseReputation decodes a smoke payload.
func ParseReputation(raw []byte) (*Reputation, error) {
	var rep Reputation
	if err := json.Unmarshal(raw, &rep); err != nil {
		return nil, fmt.Errorf("decode smoke response: %w", err)
	}
	return &rep, nil
}
