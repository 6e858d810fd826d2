package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RishiKendai/overlap/internal/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ErrDeadLettered wraps the last processing error once a message is parked in the dead-letter queue
var ErrDeadLettered = errors.New("message moved to dead-letter queue")

// DeadLetterClient is the list command the dead-letter queue needs
type DeadLetterClient interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// permanent is implemented by errors that fail the same way on every attempt
type permanent interface {
	Permanent() bool
}

// IsPermanent reports whether err (or anything it wraps) will never succeed on retry
func IsPermanent(err error) bool {
	var p permanent
	return errors.As(err, &p) && p.Permanent()
}

type RetryHandler struct {
	client        DeadLetterClient
	deadLetterKey string
	maxRetries    int
	baseDelay     time.Duration
	maxDelay      time.Duration
}

func NewRetryHandler(client DeadLetterClient, deadLetterKey string, maxRetries int) *RetryHandler {
	return &RetryHandler{
		client:        client,
		deadLetterKey: deadLetterKey,
		maxRetries:    maxRetries,
		baseDelay:     500 * time.Millisecond,
		maxDelay:      30 * time.Second,
	}
}

// backoff returns the delay before the given retry attempt (1-based)
func (h *RetryHandler) backoff(attempt int) time.Duration {
	delay := h.baseDelay << (attempt - 1)
	if delay <= 0 || delay > h.maxDelay {
		return h.maxDelay
	}
	return delay
}

// RetryWithBackoff runs fn up to maxRetries+1 times, then pushes the message to
// the dead-letter list. Permanent errors are dead-lettered after the first attempt.
func (h *RetryHandler) RetryWithBackoff(ctx context.Context, fn func() error, messageID string, fields map[string]interface{}) error {
	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= h.maxRetries; attempt++ {
		if attempt > 0 {
			delay := h.backoff(attempt)
			log.Warn().
				Err(lastErr).
				Str("message_id", messageID).
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("Retrying message")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		attempts++
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if IsPermanent(lastErr) {
			break
		}
	}

	return h.DeadLetter(ctx, messageID, fields, lastErr, attempts)
}

// DeadLetter parks a message with its failure cause. It returns an error
// wrapping ErrDeadLettered on success.
func (h *RetryHandler) DeadLetter(ctx context.Context, messageID string, fields map[string]interface{}, cause error, attempts int) error {
	entry := map[string]interface{}{
		"message_id": messageID,
		"error":      cause.Error(),
		"attempts":   attempts,
		"permanent":  IsPermanent(cause),
		"failed_at":  time.Now().Format(time.RFC3339),
		"fields":     fields,
	}

	payload, err := marshalEntry(entry)
	if err != nil {
		return err
	}

	if err := h.client.RPush(ctx, h.deadLetterKey, payload).Err(); err != nil {
		return fmt.Errorf("failed to dead-letter message after %d attempts: %w", attempts, err)
	}

	metrics.DeadLettered.Inc()
	log.Error().
		Err(cause).
		Str("message_id", messageID).
		Str("dlq", h.deadLetterKey).
		Int("attempts", attempts).
		Msg("Message moved to dead-letter queue")

	return fmt.Errorf("%w: %v", ErrDeadLettered, cause)
}
