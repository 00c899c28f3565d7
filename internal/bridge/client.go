package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ibeckermayer/fauxpost/internal/broker"
	"github.com/ibeckermayer/fauxpost/internal/logger"
)

// Client is a broker.Sender that talks to a bridge Server
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a client for the bridge at base, e.g. http://127.0.0.1:8787
func NewClient(base string, h *http.Client) *Client {
	if h == nil {
		h = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{base: strings.TrimRight(base, "/"), http: h}
}

// Send posts req and decodes the reply
func (c *Client) Send(ctx context.Context, req broker.Request) (broker.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return broker.Response{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+MessagesPath, bytes.NewReader(body))
	if err != nil {
		return broker.Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if id := logger.RequestID(ctx); id != "" {
		httpReq.Header.Set("X-Request-Id", id)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return broker.Response{}, fmt.Errorf("failed to reach bridge: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return broker.Response{}, fmt.Errorf("bridge returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out broker.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return broker.Response{}, fmt.Errorf("%w: %v", broker.ErrProtocolMismatch, err)
	}
	return out, nil
}

// Healthz checks that a bridge is listening at base
func (c *Client) Healthz(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bridge health returned %d", resp.StatusCode)
	}
	return nil
}
