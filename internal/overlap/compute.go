package overlap

import (
	"context"
	"fmt"
	"time"

	"github.com/RishiKendai/overlap/internal/models"
	"github.com/rs/zerolog/log"
)

// FingerprintSource loads the stored fingerprints of a corpus
type FingerprintSource interface {
	GetFingerprintsByCorpusID(ctx context.Context, corpusID string) ([]*models.FileFingerprints, error)
}

// ResultSink persists the outcome of a run
type ResultSink interface {
	UpdateRunReport(ctx context.Context, report *models.RunReport) error
	InsertPairs(ctx context.Context, pairs []models.PairResult) error
}

// ComputeOverlap loads a corpus, runs the detector and stores the ranked pairs.
// report must already exist in the sink; it is completed in place.
func ComputeOverlap(
	ctx context.Context,
	report *models.RunReport,
	source FingerprintSource,
	sink ResultSink,
	detector *Detector,
) error {
	detector.step(models.StepLoading)

	files, err := source.GetFingerprintsByCorpusID(ctx, report.CorpusID)
	if err != nil {
		log.Error().Err(err).Str("corpusId", report.CorpusID).Msg("Failed to load fingerprints")
		return fmt.Errorf("failed to load fingerprints: %w", err)
	}

	corpus, err := CorpusFromFiles(files)
	if err != nil {
		return fmt.Errorf("failed to build corpus: %w", err)
	}

	result, err := detector.Run(ctx, corpus)
	if err != nil {
		return fmt.Errorf("failed to run detection: %w", err)
	}

	if err := sink.InsertPairs(ctx, PairResults(report.RunID, report.CorpusID, result.Ranked)); err != nil {
		return fmt.Errorf("failed to store pairs: %w", err)
	}

	opts := detector.Options()
	report.Status = models.RunStatusCompleted
	report.UpperBound = opts.UpperBound
	report.PopularityScope = string(opts.Scope)
	report.IncludeSelfPairs = opts.IncludeSelfPairs
	report.Repositories = result.Stats.Repositories
	report.Fingerprints = result.Stats.Fingerprints
	report.DistinctHashes = result.Stats.DistinctHashes
	report.Interesting = result.Stats.Interesting
	report.Documents = result.Stats.Documents
	report.Pairs = result.Stats.Pairs
	if n := len(result.Ranked); n > 0 {
		report.MaxScore = result.Ranked[n-1].Score
	}
	report.CompletedAt = time.Now()

	if err := sink.UpdateRunReport(ctx, report); err != nil {
		return fmt.Errorf("failed to update run report: %w", err)
	}

	detector.step(models.StepCompleted)

	log.Info().
		Str("runId", report.RunID).
		Str("corpusId", report.CorpusID).
		Int("pairs", report.Pairs).
		Int("maxScore", report.MaxScore).
		Msg("Computation completed successfully")

	return nil
}
