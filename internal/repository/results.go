package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RishiKendai/overlap/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	runsCollection  = "overlap_runs"
	pairsCollection = "overlap_pairs"

	pairInsertBatch = 1000
)

// ErrRunNotFound is returned when a run report does not exist
var ErrRunNotFound = errors.New("run not found")

type ResultsRepository struct {
	mongoRepo *MongoRepository
}

func NewResultsRepository(mongoRepo *MongoRepository) *ResultsRepository {
	return &ResultsRepository{
		mongoRepo: mongoRepo,
	}
}

// EnsureIndexes creates the indexes used by report and pair lookups
func (r *ResultsRepository) EnsureIndexes(ctx context.Context) error {
	err := r.mongoRepo.EnsureIndexes(ctx, runsCollection, []mongo.IndexModel{
		{Keys: bson.D{{Key: "runId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "corpusId", Value: 1}, {Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create run indexes: %w", err)
	}

	err = r.mongoRepo.EnsureIndexes(ctx, pairsCollection, []mongo.IndexModel{
		{Keys: bson.D{{Key: "runId", Value: 1}, {Key: "rank", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create pair indexes: %w", err)
	}
	return nil
}

func (r *ResultsRepository) InsertRunReport(ctx context.Context, report *models.RunReport) error {
	report.CreatedAt = time.Now()

	err := r.mongoRepo.InsertOne(ctx, runsCollection, report)
	if err != nil {
		return fmt.Errorf("failed to insert run report: %w", err)
	}

	return nil
}

func (r *ResultsRepository) UpdateRunReport(ctx context.Context, report *models.RunReport) error {
	filter := bson.M{"runId": report.RunID}

	res, err := r.mongoRepo.ReplaceOne(ctx, runsCollection, filter, report)
	if err != nil {
		return fmt.Errorf("failed to update run report: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrRunNotFound
	}

	return nil
}

func (r *ResultsRepository) GetLatestRunByCorpusID(ctx context.Context, corpusID string) (*models.RunReport, error) {
	filter := bson.M{"corpusId": corpusID}
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	var report models.RunReport
	err := r.mongoRepo.FindOne(ctx, runsCollection, filter, opts).Decode(&report)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find run report: %w", err)
	}

	return &report, nil
}

// InsertPairs stores ranked pairs in batches
func (r *ResultsRepository) InsertPairs(ctx context.Context, pairs []models.PairResult) error {
	for start := 0; start < len(pairs); start += pairInsertBatch {
		end := min(start+pairInsertBatch, len(pairs))

		docs := make([]interface{}, 0, end-start)
		for i := start; i < end; i++ {
			docs = append(docs, pairs[i])
		}

		if err := r.mongoRepo.InsertMany(ctx, pairsCollection, docs, options.InsertMany().SetOrdered(false)); err != nil {
			return fmt.Errorf("failed to insert pairs: %w", err)
		}
	}

	return nil
}

// GetTopPairs returns up to limit pairs of a run scoring at least minScore,
// highest rank first
func (r *ResultsRepository) GetTopPairs(ctx context.Context, runID string, minScore int, limit int64) ([]models.PairResult, error) {
	filter := bson.M{"runId": runID, "score": bson.M{"$gte": minScore}}
	opts := options.Find().SetSort(bson.D{{Key: "rank", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cursor, err := r.mongoRepo.FindMany(ctx, pairsCollection, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find pairs: %w", err)
	}
	defer cursor.Close(ctx)

	pairs := make([]models.PairResult, 0)
	if err := cursor.All(ctx, &pairs); err != nil {
		return nil, fmt.Errorf("failed to decode pairs: %w", err)
	}

	return pairs, nil
}
