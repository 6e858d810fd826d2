package overlap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RishiKendai/overlap/internal/infra/redis"
	"github.com/RishiKendai/overlap/internal/models"
	"github.com/rs/zerolog/log"
)

const statusTTL = 12 * time.Hour

var validSteps = map[models.Step]bool{
	models.StepIdle:        true,
	models.StepInitiated:   true,
	models.StepLoading:     true,
	models.StepIndexing:    true,
	models.StepFiltering:   true,
	models.StepAggregating: true,
	models.StepRanking:     true,
	models.StepCompleted:   true,
	models.StepFailed:      true,
}

// StatusKey returns the Redis key holding a corpus' current run step
func StatusKey(corpusID string) string {
	return "overlap_run_status:" + corpusID
}

func UpdateStatus(ctx context.Context, redisClient *redis.Client, corpusID string, step models.Step) error {
	if !validSteps[step] {
		return fmt.Errorf("unknown step: %s", step)
	}

	rkey := StatusKey(corpusID)

	err := redisClient.Set(ctx, rkey, string(step), statusTTL).Err()
	if err != nil {
		log.Error().Err(err).
			Str("step", string(step)).
			Str("corpusId", corpusID).
			Str("redisKey", rkey).
			Msg("Failed to update status in Redis")
		return fmt.Errorf("failed to update status in Redis: %w", err)
	}

	log.Trace().
		Str("step", string(step)).
		Str("corpusId", corpusID).
		Msg("Status updated in Redis")

	return nil
}

// GetStatus reads the current run step, StepIdle when none is recorded
func GetStatus(ctx context.Context, redisClient *redis.Client, corpusID string) (models.Step, error) {
	val, err := redisClient.Get(ctx, StatusKey(corpusID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.StepIdle, nil
		}
		return "", fmt.Errorf("failed to read status from Redis: %w", err)
	}
	return models.Step(val), nil
}

// StatusTracker exposes the Redis run status as a small read/write store
type StatusTracker struct {
	client *redis.Client
}

func NewStatusTracker(client *redis.Client) *StatusTracker {
	return &StatusTracker{client: client}
}

func (t *StatusTracker) SetStep(ctx context.Context, corpusID string, step models.Step) error {
	return UpdateStatus(ctx, t.client, corpusID, step)
}

func (t *StatusTracker) GetStep(ctx context.Context, corpusID string) (models.Step, error) {
	return GetStatus(ctx, t.client, corpusID)
}
