// Package classifier talks to the classification backends: the remote
// /predict service and, optionally, Claude.
package classifier

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ibeckermayer/fauxpost/internal/config"
	"github.com/ibeckermayer/fauxpost/internal/logger"
	"github.com/ibeckermayer/fauxpost/internal/store"
	"github.com/ibeckermayer/fauxpost/internal/types"
)

// Client issues every outbound classifier request. Config is passed per call
// so a settings change applies to the very next request.
type Client struct {
	http          *http.Client
	anthropicOpts []option.RequestOption
	dumpDir       string
	dumps         bool
	log           *logger.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithAnthropicOptions adds request options for the Claude backend
func WithAnthropicOptions(opts ...option.RequestOption) Option {
	return func(c *Client) { c.anthropicOpts = append(c.anthropicOpts, opts...) }
}

// WithExchangeDumps writes every exchange to dir (the default cache dir when empty)
func WithExchangeDumps(dir string) Option {
	return func(c *Client) {
		c.dumps = true
		c.dumpDir = dir
	}
}

// New creates a client
func New(opts ...Option) *Client {
	c := &Client{
		http: &http.Client{Timeout: 30 * time.Second},
		log:  logger.Named("classifier"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Classify returns the verdict for text using the backend cfg selects
func (c *Client) Classify(ctx context.Context, cfg config.Classifier, text string) (types.ClassificationResult, error) {
	start := time.Now()

	var (
		res types.ClassificationResult
		err error
	)
	switch cfg.Provider {
	case config.ProviderRemote, "":
		res, err = c.predictRemote(ctx, cfg, text)
	case config.ProviderAnthropic:
		res, err = c.predictAnthropic(ctx, cfg, text)
	default:
		return types.ClassificationResult{}, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}

	l := logger.C(ctx, c.log)
	if err != nil {
		l.Warn().Err(err).Str("provider", cfg.Provider).Dur("took", time.Since(start)).Msg("classify failed")
		return types.ClassificationResult{}, err
	}
	l.Debug().
		Str("provider", cfg.Provider).
		Str("label", string(res.Label)).
		Float64("prob_fake", res.ProbFake).
		Dur("took", time.Since(start)).
		Msg("classified")
	return res, nil
}

func (c *Client) dump(ctx context.Context, cfg config.Classifier, url, req, resp string, status int, err error) {
	if !c.dumps {
		return
	}
	ex := store.Exchange{
		Timestamp: time.Now(),
		Provider:  cfg.Provider,
		Model:     cfg.Model,
		Endpoint:  url,
		Request:   req,
		Response:  resp,
		Status:    status,
	}
	if err != nil {
		ex.Error = err.Error()
	}

	var (
		path    string
		dumpErr error
	)
	if c.dumpDir != "" {
		path, dumpErr = store.SaveExchangeTo(c.dumpDir, ex)
	} else {
		path, dumpErr = store.SaveExchange(ex)
	}
	l := logger.C(ctx, c.log)
	if dumpErr != nil {
		l.Warn().Err(dumpErr).Msg("failed to save exchange")
		return
	}
	l.Debug().Str("path", path).Msg("saved exchange")
}
