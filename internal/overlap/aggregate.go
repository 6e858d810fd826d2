package overlap

import (
	"context"
	"fmt"
)

// AggregateOptions configures the pair aggregator
type AggregateOptions struct {
	// IncludeSelfPairs keeps (D, D) entries. Off by default: every document
	// matches itself through its own fingerprints.
	IncludeSelfPairs bool
}

// groupBySource flattens the match map into document -> matched locations
func groupBySource(matches MatchMap) map[Document][]Location {
	groups := make(map[Document][]Location)
	for source, matched := range matches {
		doc := source.Document()
		groups[doc] = append(groups[doc], matched...)
	}
	return groups
}

// Aggregate counts, for every document, the matched locations per target
// document. Pairs are directional: (A, B) and (B, A) are counted independently.
func Aggregate(docs []Document, matches MatchMap, opts AggregateOptions) PairScore {
	scores := make(PairScore)
	accumulate(scores, docs, groupBySource(matches), opts)
	return scores
}

func accumulate(scores PairScore, docs []Document, groups map[Document][]Location, opts AggregateOptions) {
	for _, doc := range docs {
		for _, matched := range groups[doc] {
			pair := DocumentPair{Source: doc, Target: matched.Document()}
			if pair.IsSelf() && !opts.IncludeSelfPairs {
				continue
			}
			scores[pair]++
		}
	}
}

// merge sums other into s
func (s PairScore) merge(other PairScore) {
	for pair, count := range other {
		s[pair] += count
	}
}

// aggregateJob scores one partition of documents into a local PairScore
type aggregateJob struct {
	docs       []Document
	groups     map[Document][]Location
	opts       AggregateOptions
	resultChan chan<- PairScore
}

func (j *aggregateJob) Execute(ctx context.Context) error {
	partial := make(PairScore)
	accumulate(partial, j.docs, j.groups, j.opts)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case j.resultChan <- partial:
		return nil
	}
}

// AggregateParallel partitions documents across the worker pool; each job
// accumulates a local PairScore and the partials are merged by summing counts.
func AggregateParallel(ctx context.Context, pool *WorkerPool, docs []Document, matches MatchMap, opts AggregateOptions) (PairScore, error) {
	groups := groupBySource(matches)
	partitions := partition(docs, pool.Size()*4)
	resultChan := make(chan PairScore, len(partitions))

	for _, part := range partitions {
		job := &aggregateJob{
			docs:       part,
			groups:     groups,
			opts:       opts,
			resultChan: resultChan,
		}
		if err := pool.Submit(job); err != nil {
			return nil, fmt.Errorf("failed to submit aggregate job: %w", err)
		}
	}

	scores := make(PairScore)
	for received := 0; received < len(partitions); received++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-pool.Done():
			return nil, ErrPoolClosed
		case partial := <-resultChan:
			scores.merge(partial)
		}
	}

	return scores, nil
}

// partition splits docs into at most n contiguous chunks of near-equal size
func partition(docs []Document, n int) [][]Document {
	if len(docs) == 0 {
		return nil
	}
	n = max(1, min(n, len(docs)))
	size := (len(docs) + n - 1) / n

	parts := make([][]Document, 0, n)
	for start := 0; start < len(docs); start += size {
		end := min(start+size, len(docs))
		parts = append(parts, docs[start:end])
	}
	return parts
}
