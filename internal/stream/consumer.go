package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/RishiKendai/overlap/internal/metrics"
	"github.com/RishiKendai/overlap/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// SubmissionProcessor stores the fingerprints of one submission
type SubmissionProcessor interface {
	ProcessSubmission(ctx context.Context, submission *models.Submission) error
}

// RunTrigger starts a detection run over a corpus. Errors marked permanent
// drop the request, anything else is retried one settle window later.
type RunTrigger interface {
	TriggerRun(ctx context.Context, corpusID string) error
}

// StreamClient is the part of the Redis client the consumer talks to
type StreamClient interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAutoClaim(ctx context.Context, a *redis.XAutoClaimArgs) *redis.XAutoClaimCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	XTrimMinID(ctx context.Context, key string, minID string) *redis.IntCmd
}

// Consumer reads fingerprint submissions from a Redis stream consumer group.
// Everything runs on the goroutine that calls Start: reading, reclaiming
// entries abandoned by dead consumers, trimming and auto-run triggers.
type Consumer struct {
	client        StreamClient
	streamKey     string
	consumerGroup string
	consumerName  string
	processor     SubmissionProcessor
	retryHandler  *RetryHandler
	retention     time.Duration

	batchSize     int64
	block         time.Duration
	claimIdle     time.Duration
	claimInterval time.Duration
	trimInterval  time.Duration

	trigger RunTrigger
	tracker *ingestTracker

	now       func() time.Time
	lastClaim time.Time
	lastTrim  time.Time
}

func NewConsumer(
	client StreamClient,
	streamKey string,
	consumerGroup string,
	consumerName string,
	processor SubmissionProcessor,
	retryHandler *RetryHandler,
	retention time.Duration,
) *Consumer {
	return &Consumer{
		client:        client,
		streamKey:     streamKey,
		consumerGroup: consumerGroup,
		consumerName:  consumerName,
		processor:     processor,
		retryHandler:  retryHandler,
		retention:     retention,
		batchSize:     10,
		block:         time.Second,
		claimIdle:     time.Minute,
		claimInterval: 30 * time.Second,
		trimInterval:  time.Hour,
		now:           time.Now,
	}
}

// WithRunTrigger starts a run for every corpus that received submissions and
// then stayed quiet for settle. A non-positive settle leaves auto runs off.
func (c *Consumer) WithRunTrigger(trigger RunTrigger, settle time.Duration) *Consumer {
	if trigger == nil || settle <= 0 {
		return c
	}
	c.trigger = trigger
	c.tracker = newIngestTracker(settle)
	return c
}

func (c *Consumer) Start(ctx context.Context) error {
	if err := c.ensureGroup(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to create consumer group")
	}

	// entries delivered to a consumer that died before acknowledging them
	if err := c.claimStale(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to claim stale entries on startup")
	}
	c.lastClaim = c.now()

	if err := c.trim(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to trim stream on startup")
	}
	c.lastTrim = c.now()

	log.Info().
		Str("stream", c.streamKey).
		Str("consumer", c.consumerName).
		Dur("retention", c.retention).
		Bool("auto_run", c.tracker != nil).
		Msg("Consuming submissions")

	for {
		select {
		case <-ctx.Done():
			if c.tracker != nil && c.tracker.size() > 0 {
				log.Info().Int("corpora", c.tracker.size()).Msg("Dropping pending auto runs on shutdown")
			}
			return ctx.Err()
		default:
		}

		if err := c.readBatch(ctx); err != nil {
			log.Error().Err(err).Msg("Error consuming submissions")
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
		c.maintain(ctx)
	}
}

func (c *Consumer) ensureGroup(ctx context.Context) error {
	// MKSTREAM creates the stream when nothing was produced yet
	err := c.client.XGroupCreateMkStream(ctx, c.streamKey, c.consumerGroup, "$").Err()
	if err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			log.Debug().Str("group", c.consumerGroup).Msg("Consumer group already exists")
			return nil
		}
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	log.Info().
		Str("group", c.consumerGroup).
		Str("stream", c.streamKey).
		Msg("Created consumer group")
	return nil
}

func (c *Consumer) readBatch(ctx context.Context) error {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.consumerGroup,
		Consumer: c.consumerName,
		Streams:  []string{c.streamKey, ">"},
		Count:    c.batchSize,
		Block:    c.block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read from stream: %w", err)
	}

	for _, stream := range streams {
		if stream.Stream != c.streamKey {
			continue
		}
		for _, msg := range stream.Messages {
			if err := c.handle(ctx, msg); err != nil {
				log.Error().Err(err).Str("message_id", msg.ID).Msg("Failed to process submission")
			}
		}
	}
	return nil
}

// maintain runs the periodic work between reads
func (c *Consumer) maintain(ctx context.Context) {
	now := c.now()

	if now.Sub(c.lastClaim) >= c.claimInterval {
		if err := c.claimStale(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to claim stale entries")
		}
		c.lastClaim = now
	}

	if now.Sub(c.lastTrim) >= c.trimInterval {
		if err := c.trim(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to trim stream")
		}
		c.lastTrim = now
	}

	c.triggerSettled(ctx, now)
}

// claimStale takes over entries idle in the pending list for longer than
// claimIdle, paging through the list with XAUTOCLAIM.
func (c *Consumer) claimStale(ctx context.Context) error {
	start := "0-0"
	claimed := 0

	for {
		messages, next, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   c.streamKey,
			Group:    c.consumerGroup,
			Consumer: c.consumerName,
			MinIdle:  c.claimIdle,
			Start:    start,
			Count:    100,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				break
			}
			return fmt.Errorf("failed to claim pending entries: %w", err)
		}

		for _, msg := range messages {
			if err := c.handle(ctx, msg); err != nil {
				log.Error().Err(err).Str("message_id", msg.ID).Msg("Failed to process claimed submission")
			}
		}
		claimed += len(messages)

		if next == "" || next == "0-0" {
			break
		}
		start = next
	}

	if claimed > 0 {
		log.Info().Int("claimed", claimed).Msg("Processed entries claimed from the pending list")
	}
	return nil
}

// handle processes one entry and acknowledges it once it is stored or parked
// in the dead-letter queue. Entries that could not be parked stay pending and
// are picked up again by claimStale.
func (c *Consumer) handle(ctx context.Context, msg redis.XMessage) error {
	fields := make(map[string]string, len(msg.Values))
	for key, val := range msg.Values {
		if value, ok := val.(string); ok {
			fields[key] = value
		}
	}

	submission, err := ParseSubmission(&StreamMessage{ID: msg.ID, Fields: fields})
	if err != nil {
		// malformed entries never parse, park them without retrying
		err = c.retryHandler.DeadLetter(ctx, msg.ID, msg.Values, err, 1)
	} else {
		err = c.retryHandler.RetryWithBackoff(ctx, func() error {
			return c.processor.ProcessSubmission(ctx, submission)
		}, msg.ID, msg.Values)
		if err == nil {
			c.recordIngest(submission.CorpusID)
		}
	}

	if err != nil && !errors.Is(err, ErrDeadLettered) {
		return err
	}
	if ackErr := c.acknowledge(ctx, msg.ID); ackErr != nil {
		return ackErr
	}
	return err
}

func (c *Consumer) recordIngest(corpusID string) {
	if c.tracker == nil {
		return
	}
	c.tracker.record(corpusID, c.now())
}

// triggerSettled starts runs for corpora whose ingestion went quiet
func (c *Consumer) triggerSettled(ctx context.Context, now time.Time) {
	if c.tracker == nil {
		return
	}

	for _, corpusID := range c.tracker.due(now) {
		err := c.trigger.TriggerRun(ctx, corpusID)
		switch {
		case err == nil:
			metrics.AutoRuns.WithLabelValues("started").Inc()
			log.Info().Str("corpusId", corpusID).Msg("Started run for settled corpus")
		case IsPermanent(err):
			metrics.AutoRuns.WithLabelValues("dropped").Inc()
			log.Warn().Err(err).Str("corpusId", corpusID).Msg("Skipped run for settled corpus")
		default:
			metrics.AutoRuns.WithLabelValues("deferred").Inc()
			log.Warn().Err(err).Str("corpusId", corpusID).Msg("Deferred run for settled corpus")
			c.tracker.retry(corpusID, now)
		}
	}
}

// trim drops entries older than the retention window
func (c *Consumer) trim(ctx context.Context) error {
	cutoff := c.now().Add(-c.retention)
	minID := fmt.Sprintf("%d-0", cutoff.UnixMilli())

	trimmed, err := c.client.XTrimMinID(ctx, c.streamKey, minID).Result()
	if err != nil {
		return fmt.Errorf("failed to trim stream: %w", err)
	}

	if trimmed > 0 {
		log.Debug().
			Int64("trimmed", trimmed).
			Str("cutoff", cutoff.Format(time.RFC3339)).
			Msg("Trimmed stream")
	}
	return nil
}

func (c *Consumer) acknowledge(ctx context.Context, messageID string) error {
	if err := c.client.XAck(ctx, c.streamKey, c.consumerGroup, messageID).Err(); err != nil {
		log.Error().Err(err).Str("message_id", messageID).Msg("Failed to acknowledge message")
		return err
	}
	return nil
}
