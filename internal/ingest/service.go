package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/RishiKendai/overlap/internal/metrics"
	"github.com/RishiKendai/overlap/internal/models"
	"github.com/RishiKendai/overlap/internal/overlap"
	"github.com/rs/zerolog/log"
)

// ErrNoFingerprinter is returned for source-only submissions when no fingerprinting service is configured
var ErrNoFingerprinter = errors.New("submission has no fingerprints and no fingerprinter is configured")

// PermanentError marks submissions that fail the same way on every attempt
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

func (e *PermanentError) Permanent() bool { return true }

// Fingerprinter turns source code into fingerprints
type Fingerprinter interface {
	Fingerprint(ctx context.Context, req *models.FingerprintRequest) (*models.FingerprintResponse, error)
}

// FileStore persists the fingerprints of one file
type FileStore interface {
	UpsertFile(ctx context.Context, file *models.FileFingerprints) error
}

type Service struct {
	fingerprinter Fingerprinter
	store         FileStore
}

// NewService creates an ingest service. fingerprinter may be nil when every
// producer ships precomputed fingerprints.
func NewService(fingerprinter Fingerprinter, store FileStore) *Service {
	return &Service{
		fingerprinter: fingerprinter,
		store:         store,
	}
}

// ProcessSubmission resolves the fingerprints of a submission and stores them
func (s *Service) ProcessSubmission(ctx context.Context, submission *models.Submission) error {
	rev, err := overlap.ParseRevision(submission.Revision)
	if err != nil {
		return &PermanentError{Err: err}
	}

	entries := submission.Fingerprints
	if !submission.HasFingerprints() {
		if s.fingerprinter == nil {
			return &PermanentError{Err: ErrNoFingerprinter}
		}

		resp, err := s.fingerprinter.Fingerprint(ctx, &models.FingerprintRequest{
			Repository: submission.Repository,
			Revision:   rev.String(),
			File:       submission.File,
			Language:   submission.Language,
			SourceCode: submission.SourceCode,
		})
		if err != nil {
			return fmt.Errorf("failed to fingerprint: %w", err)
		}
		entries = resp.Fingerprints
	}

	file := &models.FileFingerprints{
		CorpusID:   submission.CorpusID,
		Repository: submission.Repository,
		Revision:   rev.String(),
		File:       submission.File,
		Language:   submission.Language,
		Hashes:     overlap.StoredHashes(entries),
	}

	if err := s.store.UpsertFile(ctx, file); err != nil {
		return fmt.Errorf("failed to store fingerprints: %w", err)
	}

	metrics.FingerprintsIngested.Add(float64(len(entries)))
	log.Debug().
		Str("corpusId", submission.CorpusID).
		Str("repository", submission.Repository).
		Str("file", submission.File).
		Int("fingerprints", len(entries)).
		Msg("Fingerprints stored")

	return nil
}
