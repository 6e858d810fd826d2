package overlap

import (
	"fmt"

	"github.com/RishiKendai/overlap/internal/models"
)

// CorpusFromFiles groups stored file fingerprints by repository
func CorpusFromFiles(files []*models.FileFingerprints) (Corpus, error) {
	corpus := make(Corpus)
	for _, file := range files {
		revision, err := ParseRevision(file.Revision)
		if err != nil {
			return nil, fmt.Errorf("file %s in %s: %w", file.File, file.Repository, err)
		}

		fingerprints := corpus[file.Repository]
		for _, h := range file.Hashes {
			fingerprints = append(fingerprints, Fingerprint{
				Hash: Hash(uint64(h.Hash)),
				Location: Location{
					Repository: file.Repository,
					Revision:   revision,
					File:       file.File,
					Line:       h.Line,
				},
			})
		}
		corpus[file.Repository] = fingerprints
	}
	return corpus, nil
}

// StoredHashes converts wire hash entries to their BSON form
func StoredHashes(entries []models.HashEntry) []models.StoredHash {
	stored := make([]models.StoredHash, len(entries))
	for i, e := range entries {
		stored[i] = models.StoredHash{Hash: int64(e.Hash), Line: e.Line}
	}
	return stored
}

func documentRef(d Document) models.DocumentRef {
	return models.DocumentRef{
		Repository: d.Repository,
		Revision:   d.Revision.String(),
		File:       d.File,
	}
}

// PairResults converts ranked pairs to their stored form, keeping the ascending rank
func PairResults(runID, corpusID string, ranked RankedPairs) []models.PairResult {
	results := make([]models.PairResult, len(ranked))
	for i, rp := range ranked {
		results[i] = models.PairResult{
			RunID:    runID,
			CorpusID: corpusID,
			Rank:     i,
			Source:   documentRef(rp.Pair.Source),
			Target:   documentRef(rp.Pair.Target),
			Score:    rp.Score,
		}
	}
	return results
}
