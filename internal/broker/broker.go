// Package broker is the privileged side: the only code that touches the
// settings record, the scan cache, the feedback outbox and the classifier.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ibeckermayer/fauxpost/internal/config"
	"github.com/ibeckermayer/fauxpost/internal/logger"
	"github.com/ibeckermayer/fauxpost/internal/store"
	"github.com/ibeckermayer/fauxpost/internal/types"
)

// Classifier is the outbound client the broker drives
type Classifier interface {
	Classify(ctx context.Context, cfg config.Classifier, text string) (types.ClassificationResult, error)
	SendFeedback(ctx context.Context, cfg config.Classifier, p types.FeedbackPayload) (json.RawMessage, error)
}

// Outbox holds feedback that could not be delivered
type Outbox interface {
	Enqueue(ctx context.Context, p types.FeedbackPayload, cause error) (string, error)
	Pending(ctx context.Context, limit int) ([]store.QueuedFeedback, error)
	Ack(ctx context.Context, id string) error
	Retry(ctx context.Context, id string, cause error) error
}

// Handler serves one request kind
type Handler func(ctx context.Context, payload json.RawMessage) (Response, error)

// queuedLocal is the soft acknowledgement for feedback that went to the outbox
var queuedLocal = json.RawMessage(`{"status":"queued_local"}`)

// Broker dispatches requests to handlers. Requests are independent of each
// other; nothing serializes access to the stores.
type Broker struct {
	cfg      config.Store
	cache    store.Cache
	client   Classifier
	outbox   Outbox
	handlers map[MessageType]Handler
	now      func() time.Time
	log      *logger.Logger

	dedupe   bool
	inflight singleflight.Group

	flushRetries uint64
	flushBackoff time.Duration
}

// Option configures a Broker
type Option func(*Broker)

// WithClock replaces the time source used for feedback timestamps
func WithClock(now func() time.Time) Option {
	return func(b *Broker) { b.now = now }
}

// WithInflightDedupe collapses concurrent cache misses for the same fingerprint into one classifier call
func WithInflightDedupe(on bool) Option {
	return func(b *Broker) { b.dedupe = on }
}

// WithFlushRetry sets how often and how patiently FlushOutbox retries one entry
func WithFlushRetry(retries uint64, backoff time.Duration) Option {
	if backoff <= 0 {
		backoff = time.Millisecond
	}
	return func(b *Broker) {
		b.flushRetries = retries
		b.flushBackoff = backoff
	}
}

// New creates a broker over its collaborators
func New(cfg config.Store, cache store.Cache, client Classifier, outbox Outbox, opts ...Option) *Broker {
	b := &Broker{
		cfg:          cfg,
		cache:        cache,
		client:       client,
		outbox:       outbox,
		now:          time.Now,
		log:          logger.Named("broker"),
		flushRetries: 2,
		flushBackoff: 500 * time.Millisecond,
	}
	for _, o := range opts {
		o(b)
	}
	b.handlers = map[MessageType]Handler{
		TypeGetConfig: b.handleGetConfig,
		TypeSetConfig: b.handleSetConfig,
		TypePredict:   b.handlePredict,
		TypeFeedback:  b.handleFeedback,
	}
	return b
}

// Dispatch answers req exactly once. Unknown types, bad payloads and handler
// panics all become ok:false replies.
func (b *Broker) Dispatch(ctx context.Context, req Request) (resp Response) {
	l := logger.C(ctx, b.log)
	defer func() {
		if r := recover(); r != nil {
			l.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Str("type", string(req.Type)).Msg("handler panicked")
			resp = Failure(fmt.Errorf("internal error handling %s", req.Type))
		}
	}()

	h, ok := b.handlers[req.Type]
	if !ok {
		l.Warn().Str("type", string(req.Type)).Msg("unknown message type")
		return Failure(fmt.Errorf("%w: unknown message type %q", ErrProtocolMismatch, req.Type))
	}

	resp, err := h(ctx, req.Payload)
	if err != nil {
		l.Warn().Err(err).Str("type", string(req.Type)).Msg("request failed")
		return Failure(err)
	}
	return resp
}

// Send implements Sender with a direct in-process call
func (b *Broker) Send(ctx context.Context, req Request) (Response, error) {
	return b.Dispatch(ctx, req), nil
}

// Handle decodes a raw envelope, dispatches it and encodes the reply
func (b *Broker) Handle(ctx context.Context, raw []byte) []byte {
	var req Request
	var resp Response
	if err := json.Unmarshal(raw, &req); err != nil {
		logger.C(ctx, b.log).Warn().Err(err).Msg("malformed envelope")
		resp = Failure(fmt.Errorf("%w: %v", ErrProtocolMismatch, err))
	} else {
		resp = b.Dispatch(ctx, req)
	}
	out, err := json.Marshal(resp)
	if err != nil {
		out, _ = json.Marshal(Failure(err))
	}
	return out
}

func (b *Broker) handleGetConfig(ctx context.Context, _ json.RawMessage) (Response, error) {
	cfg, err := b.cfg.Get(ctx)
	if err != nil {
		return Response{}, err
	}
	return Response{OK: true, Cfg: &cfg}, nil
}

func (b *Broker) handleSetConfig(ctx context.Context, payload json.RawMessage) (Response, error) {
	var patch config.Patch
	if err := decodePayload(payload, &patch); err != nil {
		return Response{}, err
	}
	cfg, err := b.cfg.Set(ctx, patch)
	if err != nil {
		return Response{}, err
	}
	logger.C(ctx, b.log).Info().Str("endpoint", cfg.EndpointBaseURL).Float64("threshold", cfg.Threshold).Str("provider", cfg.Provider).Msg("config updated")
	return Response{OK: true, Cfg: &cfg}, nil
}

// ErrNoText is the predict failure for an empty text
var ErrNoText = errors.New("no text")

func (b *Broker) handlePredict(ctx context.Context, payload json.RawMessage) (Response, error) {
	var p PredictPayload
	if err := decodePayload(payload, &p); err != nil {
		return Response{}, err
	}
	if p.Text == "" {
		return Response{}, ErrNoText
	}
	l := logger.C(ctx, b.log)

	if p.Hash != "" {
		entry, ok, err := b.cache.Get(ctx, p.Hash)
		if err != nil {
			l.Warn().Err(err).Str("hash", p.Hash).Msg("cache read failed, treating as miss")
		} else if ok {
			l.Debug().Str("hash", p.Hash).Msg("cache hit")
			result := entry.Result
			return Response{OK: true, FromCache: true, Result: &result}, nil
		}
	}

	cfg, err := b.cfg.Get(ctx)
	if err != nil {
		return Response{}, err
	}

	result, err := b.classify(ctx, cfg, p)
	if err != nil {
		return Response{}, err
	}

	if p.Hash != "" {
		if err := b.cache.Put(ctx, p.Hash, result); err != nil {
			l.Warn().Err(err).Str("hash", p.Hash).Msg("cache write failed")
		}
	}
	return Response{OK: true, FromCache: false, Result: &result, Cfg: &cfg}, nil
}

func (b *Broker) classify(ctx context.Context, cfg config.Classifier, p PredictPayload) (types.ClassificationResult, error) {
	if !b.dedupe || p.Hash == "" {
		return b.client.Classify(ctx, cfg, p.Text)
	}
	v, err, shared := b.inflight.Do(p.Hash, func() (any, error) {
		return b.client.Classify(ctx, cfg, p.Text)
	})
	if shared {
		logger.C(ctx, b.log).Debug().Str("hash", p.Hash).Msg("joined in-flight classification")
	}
	if err != nil {
		return types.ClassificationResult{}, err
	}
	return v.(types.ClassificationResult), nil
}

func (b *Broker) handleFeedback(ctx context.Context, payload json.RawMessage) (Response, error) {
	var p types.FeedbackPayload
	if len(payload) == 0 {
		return Response{}, fmt.Errorf("%w: feedback without payload", ErrProtocolMismatch)
	}
	if err := decodePayload(payload, &p); err != nil {
		return Response{}, err
	}
	p.Context = &types.FeedbackContext{TS: b.now().UnixMilli()}
	l := logger.C(ctx, b.log)

	cfg, err := b.cfg.Get(ctx)
	if err == nil {
		var data json.RawMessage
		data, err = b.client.SendFeedback(ctx, cfg, p)
		if err == nil {
			l.Info().Str("our_label", string(p.OurLabel)).Str("user_label", string(p.UserLabel)).Msg("feedback delivered")
			return Response{OK: true, Data: data}, nil
		}
	}

	// feedback never surfaces as a failure
	l.Warn().Err(err).Msg("feedback send failed, queueing locally")
	if _, qerr := b.outbox.Enqueue(ctx, p, err); qerr != nil {
		l.Error().Err(qerr).Msg("failed to queue feedback")
	}
	return Response{OK: true, Data: queuedLocal}, nil
}
