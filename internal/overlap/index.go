package overlap

import (
	"context"
	"fmt"
)

// BuildIndex builds the inverted index hash -> locations over the whole corpus.
// No filtering happens here.
func BuildIndex(corpus Corpus) InvertedIndex {
	index := make(InvertedIndex)
	for _, fingerprints := range corpus {
		index.add(fingerprints)
	}
	return index
}

func (idx InvertedIndex) add(fingerprints []Fingerprint) {
	for _, f := range fingerprints {
		idx[f.Hash] = append(idx[f.Hash], f.Location)
	}
}

// merge appends every location of other into idx
func (idx InvertedIndex) merge(other InvertedIndex) {
	for hash, locations := range other {
		idx[hash] = append(idx[hash], locations...)
	}
}

// Occurrences returns the total number of locations held by the index
func (idx InvertedIndex) Occurrences() int {
	n := 0
	for _, locations := range idx {
		n += len(locations)
	}
	return n
}

// indexShardJob indexes one repository into its own shard
type indexShardJob struct {
	fingerprints []Fingerprint
	resultChan   chan<- InvertedIndex
}

func (j *indexShardJob) Execute(ctx context.Context) error {
	shard := make(InvertedIndex)
	shard.add(j.fingerprints)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case j.resultChan <- shard:
		return nil
	}
}

// BuildIndexParallel indexes each repository on the worker pool and merges
// the per-repository shards. The result holds the same locations per hash as
// BuildIndex; only the order within a hash may differ.
func BuildIndexParallel(ctx context.Context, pool *WorkerPool, corpus Corpus) (InvertedIndex, error) {
	resultChan := make(chan InvertedIndex, len(corpus))

	submitted := 0
	for _, fingerprints := range corpus {
		if len(fingerprints) == 0 {
			continue
		}
		job := &indexShardJob{
			fingerprints: fingerprints,
			resultChan:   resultChan,
		}
		if err := pool.Submit(job); err != nil {
			return nil, fmt.Errorf("failed to submit index job: %w", err)
		}
		submitted++
	}

	index := make(InvertedIndex)
	for received := 0; received < submitted; received++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-pool.Done():
			return nil, ErrPoolClosed
		case shard := <-resultChan:
			index.merge(shard)
		}
	}

	return index, nil
}
