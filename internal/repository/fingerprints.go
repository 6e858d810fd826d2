package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/RishiKendai/overlap/internal/models"
	"github.com/RishiKendai/overlap/internal/overlap"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const fingerprintsCollection = "fingerprints"

type FingerprintsRepository struct {
	mongoRepo *MongoRepository
}

func NewFingerprintsRepository(mongoRepo *MongoRepository) *FingerprintsRepository {
	return &FingerprintsRepository{
		mongoRepo: mongoRepo,
	}
}

// EnsureIndexes creates the lookup index and the per-file uniqueness constraint
func (r *FingerprintsRepository) EnsureIndexes(ctx context.Context) error {
	err := r.mongoRepo.EnsureIndexes(ctx, fingerprintsCollection, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "corpusId", Value: 1},
				{Key: "repository", Value: 1},
				{Key: "revision", Value: 1},
				{Key: "file", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create fingerprint indexes: %w", err)
	}
	return nil
}

// UpsertFile stores the fingerprints of one file, replacing an earlier submission of the same file
func (r *FingerprintsRepository) UpsertFile(ctx context.Context, file *models.FileFingerprints) error {
	revision, err := canonicalRevision(file.Revision)
	if err != nil {
		return err
	}
	file.Revision = revision
	file.CreatedAt = time.Now()

	filter := bson.M{
		"corpusId":   file.CorpusID,
		"repository": file.Repository,
		"revision":   file.Revision,
		"file":       file.File,
	}
	_, err = r.mongoRepo.ReplaceOne(ctx, fingerprintsCollection, filter, file, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert fingerprints: %w", err)
	}

	return nil
}

// canonicalRevision lower-cases the hex so one commit maps to one document
func canonicalRevision(revision string) (string, error) {
	rev, err := overlap.ParseRevision(revision)
	if err != nil {
		return "", err
	}
	return rev.String(), nil
}

func (r *FingerprintsRepository) GetFingerprintsByCorpusID(ctx context.Context, corpusID string) ([]*models.FileFingerprints, error) {
	filter := bson.M{"corpusId": corpusID}

	cursor, err := r.mongoRepo.FindMany(ctx, fingerprintsCollection, filter, options.Find().SetBatchSize(500))
	if err != nil {
		return nil, fmt.Errorf("failed to find fingerprints: %w", err)
	}
	defer cursor.Close(ctx)

	var files []*models.FileFingerprints
	for cursor.Next(ctx) {
		var file models.FileFingerprints
		if err := cursor.Decode(&file); err != nil {
			return nil, fmt.Errorf("failed to decode fingerprints: %w", err)
		}
		files = append(files, &file)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate fingerprints: %w", err)
	}

	return files, nil
}

func (r *FingerprintsRepository) CountFilesByCorpusID(ctx context.Context, corpusID string) (int64, error) {
	filter := bson.M{"corpusId": corpusID}

	count, err := r.mongoRepo.CountDocuments(ctx, fingerprintsCollection, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count fingerprints: %w", err)
	}

	return count, nil
}
