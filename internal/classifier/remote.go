package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ibeckermayer/fauxpost/internal/config"
	"github.com/ibeckermayer/fauxpost/internal/types"
)

// maxBody bounds how much of a response body is read
const maxBody = 1 << 20

type predictRequest struct {
	Text      string  `json:"text"`
	Threshold float64 `json:"threshold"`
}

// endpoint joins the base URL and path, tolerating trailing slashes on the base
func endpoint(base, path string) string {
	return strings.TrimRight(base, "/") + path
}

// do sends one request and returns status and body. Transport failures come
// back as *NetworkError.
func (c *Client) do(ctx context.Context, cfg config.Classifier, op, method, url string, body any) (int, []byte, error) {
	var reader io.Reader
	var reqBody []byte
	if body != nil {
		var err error
		reqBody, err = json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(reqBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, &NetworkError{Op: op, URL: url, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cfg.Credential != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Credential)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.dump(ctx, cfg, url, string(reqBody), "", 0, err)
		return 0, nil, &NetworkError{Op: op, URL: url, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return resp.StatusCode, nil, &NetworkError{Op: op, URL: url, Err: err}
	}
	c.dump(ctx, cfg, url, string(reqBody), string(respBody), resp.StatusCode, nil)

	return resp.StatusCode, respBody, nil
}

func ok(status int) bool { return status >= 200 && status < 300 }

// predictRemote calls POST {base}/predict
func (c *Client) predictRemote(ctx context.Context, cfg config.Classifier, text string) (types.ClassificationResult, error) {
	url := endpoint(cfg.EndpointBaseURL, "/predict")
	status, body, err := c.do(ctx, cfg, "predict", http.MethodPost, url, predictRequest{Text: text, Threshold: cfg.Threshold})
	if err != nil {
		return types.ClassificationResult{}, err
	}
	if !ok(status) {
		return types.ClassificationResult{}, &RemoteRejectionError{Op: "predict", StatusCode: status, Body: string(body)}
	}
	return parsePredictResponse(body)
}

// SendFeedback posts a correction to {base}/feedback and returns the decoded
// reply. Callers treat every error from here as soft.
func (c *Client) SendFeedback(ctx context.Context, cfg config.Classifier, p types.FeedbackPayload) (json.RawMessage, error) {
	url := endpoint(cfg.EndpointBaseURL, "/feedback")
	status, body, err := c.do(ctx, cfg, "feedback", http.MethodPost, url, p)
	if err != nil {
		return nil, err
	}
	if !ok(status) {
		return nil, &RemoteRejectionError{Op: "feedback", StatusCode: status, Body: string(body)}
	}
	if !json.Valid(body) {
		// servers are not required to answer with anything in particular
		return json.RawMessage(`{"status":"ok"}`), nil
	}
	return json.RawMessage(body), nil
}

// Health calls GET {base}/health and returns its body
func (c *Client) Health(ctx context.Context, cfg config.Classifier) (string, error) {
	url := endpoint(cfg.EndpointBaseURL, "/health")
	status, body, err := c.do(ctx, cfg, "health", http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	if !ok(status) {
		return "", &RemoteRejectionError{Op: "health", StatusCode: status, Body: string(body)}
	}
	return strings.TrimSpace(string(body)), nil
}
