package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ibeckermayer/fauxpost/internal/config"
	"github.com/ibeckermayer/fauxpost/internal/types"
)

// MessageType names a request kind
type MessageType string

const (
	TypeGetConfig MessageType = "getConfig"
	TypeSetConfig MessageType = "setConfig"
	TypePredict   MessageType = "predict"
	TypeFeedback  MessageType = "feedback"
)

// ErrProtocolMismatch marks a malformed or unexpected message
var ErrProtocolMismatch = errors.New("protocol mismatch")

// Request is the envelope sent from the page side
type Request struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response is the single reply to a Request
type Response struct {
	OK        bool                        `json:"ok"`
	Cfg       *config.Classifier          `json:"cfg,omitempty"`
	FromCache bool                        `json:"fromCache"`
	Result    *types.ClassificationResult `json:"result,omitempty"`
	Data      json.RawMessage             `json:"data,omitempty"`
	Error     string                      `json:"error,omitempty"`
}

// PredictPayload is the body of a predict request
type PredictPayload struct {
	Text string `json:"text"`
	Hash string `json:"hash,omitempty"`
}

// Sender delivers a request to the privileged side and waits for its reply
type Sender interface {
	Send(ctx context.Context, req Request) (Response, error)
}

// NewRequest builds an envelope with payload marshalled as JSON. A nil payload is omitted.
func NewRequest(t MessageType, payload any) (Request, error) {
	req := Request{Type: t}
	if payload == nil {
		return req, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Request{}, fmt.Errorf("failed to marshal %s payload: %w", t, err)
	}
	req.Payload = data
	return req, nil
}

// Failure builds an ok:false reply
func Failure(err error) Response {
	return Response{OK: false, Error: err.Error()}
}

// decodePayload unmarshals p into v. An absent payload leaves v zero.
func decodePayload(p json.RawMessage, v any) error {
	if len(p) == 0 || string(p) == "null" {
		return nil
	}
	if err := json.Unmarshal(p, v); err != nil {
		return fmt.Errorf("%w: %v", ErrProtocolMismatch, err)
	}
	return nil
}
