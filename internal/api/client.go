package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/http2"
)

// Client talks JSON over HTTP to the matchmaking service.
type Client struct {
	baseURL string
	client  *http.Client
	headers map[string]string
}

type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.client = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.client.Timeout = timeout }
}

// WithAuthToken attaches a bearer token to every request.
func WithAuthToken(token string) ClientOption {
	return func(c *Client) { c.headers["Authorization"] = "Bearer " + token }
}

// WithH2C switches the transport to HTTP/2 over cleartext, for environments
// where the matchmaking service is reached directly rather than through a
// TLS-terminating edge.
func WithH2C() ClientOption {
	return func(c *Client) {
		c.client.Transport = &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		}
	}
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		headers: make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// QuickMatch joins the stake-matched quick queue.
func (c *Client) QuickMatch(ctx context.Context, req QuickMatchRequest) (*QuickMatchResponse, error) {
	var resp QuickMatchResponse
	if err := c.do(ctx, http.MethodPost, "/v1/matchmaking/quick", req, &resp); err != nil {
		return nil, err
	}
	if err := resp.Validate(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RandomMatch opens an open lobby against any opponent.
func (c *Client) RandomMatch(ctx context.Context, req RandomMatchRequest) (*RandomMatchResponse, error) {
	var resp RandomMatchResponse
	if err := c.do(ctx, http.MethodPost, "/v1/matchmaking/random", req, &resp); err != nil {
		return nil, err
	}
	if err := resp.Validate(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ChallengeFriend sends a direct challenge to the given user.
func (c *Client) ChallengeFriend(ctx context.Context, userID string, req ChallengeRequest) (*ChallengeResponse, error) {
	var resp ChallengeResponse
	endpoint := fmt.Sprintf("/v1/matchmaking/challenge/%s", url.PathEscape(userID))
	if err := c.do(ctx, http.MethodPost, endpoint, req, &resp); err != nil {
		return nil, err
	}
	if err := resp.Validate(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LeaveQueue removes the caller from the queue for the given game mode.
func (c *Client) LeaveQueue(ctx context.Context, gameMode string) (*LeaveQueueResponse, error) {
	var resp LeaveQueueResponse
	if err := c.do(ctx, http.MethodDelete, "/v1/matchmaking/queue", LeaveQueueRequest{GameMode: gameMode}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetQueueStatus fetches the caller's current queue membership.
func (c *Client) GetQueueStatus(ctx context.Context) (*QueueStatusResponse, error) {
	var resp QueueStatusResponse
	if err := c.do(ctx, http.MethodGet, "/v1/matchmaking/queue", nil, &resp); err != nil {
		return nil, err
	}
	if err := resp.Validate(); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{Status: resp.StatusCode, Message: errorMessage(responseBody)}
	}

	if out != nil {
		if err := json.Unmarshal(responseBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// errorMessage pulls a human-readable message out of an error body when the
// server sent structured JSON, falling back to the raw body.
func errorMessage(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return string(body)
}
