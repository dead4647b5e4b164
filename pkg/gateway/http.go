package gateway

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

// HTTPTransport talks to the gateway's acsstatus/acsquery endpoints.
type HTTPTransport struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPTransport returns a transport for the gateway at baseURL.
func NewHTTPTransport(baseURL, token string, timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPTransport{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type statusRequest struct {
	Token  string `json:"token"`
	Status Status `json:"status"`
}

type queryRequest struct {
	Token string `json:"token"`
}

type queryReply struct {
	Action *string `json:"action"`
}

// PushStatus implements Transport.
func (t *HTTPTransport) PushStatus(ctx context.Context, s Status) error {
	_, err := t.post(ctx, "/acsstatus", statusRequest{Token: t.token, Status: s})
	return err
}

// PullAction implements Transport.
func (t *HTTPTransport) PullAction(ctx context.Context) (string, error) {
	body, err := t.post(ctx, "/acsquery", queryRequest{Token: t.token})
	if err != nil {
		return "", err
	}
	var reply queryReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return "", fmt.Errorf("bad acsquery reply: %w", err)
	}
	if reply.Action == nil {
		logrus.Trace("no action in gateway reply")
		return "", nil
	}
	return *reply.Action, nil
}

// Close implements Transport.
func (t *HTTPTransport) Close() error {
	t.httpClient.CloseIdleConnections()
	return nil
}

func (t *HTTPTransport) post(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logrus.Errorf("failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s got %d: %s", path, resp.StatusCode, body)
	}
	return body, nil
}
