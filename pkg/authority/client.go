// Package authority is the client for the membership system that decides
// which cards may enter and records what happened at the door.
package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds every request to the authority.
const DefaultTimeout = 60 * time.Second

// Permission is the answer to a permission query.
type Permission struct {
	Allowed bool   `json:"allowed"`
	Name    string `json:"name"`
	UserID  int    `json:"id"`
}

// Client talks to the authority's JSON API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient returns a client for the API rooted at baseURL, e.g.
// https://example.org/api/v1.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type cardRequest struct {
	APIToken string `json:"api_token"`
	CardID   string `json:"card_id"`
}

type logRequest struct {
	APIToken string  `json:"api_token"`
	Log      logBody `json:"log"`
}

type logBody struct {
	UserID  *int   `json:"user_id"`
	Message string `json:"message"`
}

// CheckPermission asks whether cardID may enter. A card the authority does
// not know yields ErrUnknownCard; any other failure wraps ErrService.
func (c *Client) CheckPermission(ctx context.Context, cardID string) (*Permission, error) {
	start := time.Now()
	body, status, err := c.post(ctx, "/permissions", cardRequest{APIToken: c.token, CardID: cardID})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrService, err)
	}
	logrus.WithFields(logrus.Fields{
		"card":    cardID,
		"status":  status,
		"elapsed": time.Since(start),
	}).Debug("permission reply")

	switch {
	case status == http.StatusNotFound:
		return nil, ErrUnknownCard
	case status != http.StatusOK:
		return nil, fmt.Errorf("%w: permissions returned %d: %s", ErrService, status, body)
	}

	var p Permission
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: bad permission reply: %v", ErrService, err)
	}
	return &p, nil
}

// ReportUnknownCard files cardID so an administrator can assign it.
func (c *Client) ReportUnknownCard(ctx context.Context, cardID string) error {
	body, status, err := c.post(ctx, "/unknown_cards", cardRequest{APIToken: c.token, CardID: cardID})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrService, err)
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("%w: unknown_cards returned %d: %s", ErrService, status, body)
	}
	return nil
}

// PostLog records one audit entry.
func (c *Client) PostLog(ctx context.Context, e LogEntry) error {
	body, status, err := c.post(ctx, "/logs", logRequest{
		APIToken: c.token,
		Log:      logBody{UserID: e.UserID, Message: e.Message},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrService, err)
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("%w: logs returned %d: %s", ErrService, status, body)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logrus.Errorf("failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, resp.StatusCode, nil
}
