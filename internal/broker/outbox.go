package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/sethvargo/go-retry"

	"github.com/ibeckermayer/fauxpost/internal/classifier"
	"github.com/ibeckermayer/fauxpost/internal/logger"
)

// FlushReport summarizes one outbox flush
type FlushReport struct {
	Delivered int
	Failed    int
}

// FlushOutbox re-sends queued feedback with the current config. Delivered
// entries are removed; the rest keep their place with the attempt recorded.
func (b *Broker) FlushOutbox(ctx context.Context) (FlushReport, error) {
	var report FlushReport
	l := logger.C(ctx, b.log)

	pending, err := b.outbox.Pending(ctx, 100)
	if err != nil {
		return report, fmt.Errorf("failed to read outbox: %w", err)
	}
	if len(pending) == 0 {
		return report, nil
	}

	cfg, err := b.cfg.Get(ctx)
	if err != nil {
		return report, err
	}

	for _, q := range pending {
		backoff := retry.WithMaxRetries(b.flushRetries, retry.NewExponential(b.flushBackoff))
		sendErr := retry.Do(ctx, backoff, func(ctx context.Context) error {
			_, err := b.client.SendFeedback(ctx, cfg, q.Payload)
			if err != nil && retryable(err) {
				return retry.RetryableError(err)
			}
			return err
		})

		if sendErr != nil {
			report.Failed++
			if err := b.outbox.Retry(ctx, q.ID, sendErr); err != nil {
				l.Warn().Err(err).Str("id", q.ID).Msg("failed to record outbox attempt")
			}
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			continue
		}

		report.Delivered++
		if err := b.outbox.Ack(ctx, q.ID); err != nil {
			l.Warn().Err(err).Str("id", q.ID).Msg("failed to remove delivered feedback")
		}
	}

	l.Info().Int("delivered", report.Delivered).Int("failed", report.Failed).Msg("outbox flushed")
	return report, nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var rej *classifier.RemoteRejectionError
	if errors.As(err, &rej) {
		return rej.Temporary()
	}
	return classifier.IsNetwork(err)
}
