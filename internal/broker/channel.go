package broker

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ibeckermayer/fauxpost/internal/logger"
)

// ErrChannelClosed is returned by Send once the channel has stopped serving
var ErrChannelClosed = errors.New("broker channel closed")

type envelope struct {
	ctx   context.Context
	req   Request
	reply chan Response
}

// Channel is the asynchronous request/response link between the page side
// and the broker. Every request is handled on its own goroutine and answered once.
type Channel struct {
	broker *Broker
	in     chan envelope
	done   chan struct{}
}

// NewChannel creates a channel served by b
func NewChannel(b *Broker) *Channel {
	return &Channel{
		broker: b,
		in:     make(chan envelope, 64),
		done:   make(chan struct{}),
	}
}

// Serve handles requests until ctx is cancelled
func (c *Channel) Serve(ctx context.Context) error {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-c.in:
			go func() {
				env.reply <- c.broker.Dispatch(env.ctx, env.req)
			}()
		}
	}
}

// Send queues req and waits for its reply
func (c *Channel) Send(ctx context.Context, req Request) (Response, error) {
	if logger.RequestID(ctx) == "" {
		ctx = logger.WithRequest(ctx, uuid.NewString())
	}
	env := envelope{ctx: ctx, req: req, reply: make(chan Response, 1)}

	select {
	case c.in <- env:
	case <-c.done:
		return Response{}, ErrChannelClosed
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}

	select {
	case resp := <-env.reply:
		return resp, nil
	case <-c.done:
		select {
		case resp := <-env.reply:
			return resp, nil
		default:
			return Response{}, ErrChannelClosed
		}
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}
