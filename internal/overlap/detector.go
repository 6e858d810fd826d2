package overlap

import (
	"context"
	"time"

	"github.com/RishiKendai/overlap/internal/metrics"
	"github.com/RishiKendai/overlap/internal/models"
	"github.com/rs/zerolog/log"
)

// Options configures a detection run
type Options struct {
	UpperBound       int
	Scope            PopularityScope
	IncludeSelfPairs bool
	// Parallel runs index building and aggregation on the worker pool when one is set
	Parallel bool
}

// DefaultOptions returns the repository-scoped filter with bound 1000 and no self pairs
func DefaultOptions() Options {
	return Options{
		UpperBound: DefaultUpperBound,
		Scope:      ScopeRepository,
		Parallel:   true,
	}
}

// Stats summarises the size of every stage's output
type Stats struct {
	Repositories   int `json:"repositories"`
	Fingerprints   int `json:"fingerprints"`
	DistinctHashes int `json:"distinctHashes"`
	// Interesting counts fingerprint occurrences that passed the filter
	Interesting    int `json:"interesting"`
	Matches        int `json:"matches"`
	Documents      int `json:"documents"`
	Pairs          int `json:"pairs"`
}

// Result holds the output of every stage of one run
type Result struct {
	Index     InvertedIndex
	Matches   MatchMap
	Documents []Document
	Scores    PairScore
	Ranked    RankedPairs
	Stats     Stats
}

// StepFunc is notified when the pipeline enters a stage
type StepFunc func(step models.Step)

// Detector runs the five stage overlap pipeline over a materialised corpus
type Detector struct {
	opts   Options
	pool   *WorkerPool
	onStep StepFunc
}

// NewDetector creates a detector. A nil pool forces sequential execution.
func NewDetector(opts Options, pool *WorkerPool) *Detector {
	if opts.UpperBound <= 0 {
		opts.UpperBound = DefaultUpperBound
	}
	if opts.Scope == "" {
		opts.Scope = ScopeRepository
	}
	return &Detector{
		opts: opts,
		pool: pool,
	}
}

// WithStepFunc registers a stage transition callback
func (d *Detector) WithStepFunc(fn StepFunc) *Detector {
	d.onStep = fn
	return d
}

// Options returns the effective options
func (d *Detector) Options() Options {
	return d.opts
}

func (d *Detector) step(step models.Step) {
	if d.onStep != nil {
		d.onStep(step)
	}
}

func (d *Detector) parallel() bool {
	return d.opts.Parallel && d.pool != nil
}

// Run executes index build, match filter, document enumeration, pair
// aggregation and ranking. The only errors come from ctx or a closed pool.
func (d *Detector) Run(ctx context.Context, corpus Corpus) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var err error
	result := &Result{}

	// 1. Index
	d.step(models.StepIndexing)
	start := time.Now()
	if d.parallel() {
		result.Index, err = BuildIndexParallel(ctx, d.pool, corpus)
		if err != nil {
			return nil, err
		}
	} else {
		result.Index = BuildIndex(corpus)
	}
	metrics.ObserveStage("index", start)
	log.Debug().
		Int("hashes", len(result.Index)).
		Int("occurrences", result.Index.Occurrences()).
		Dur("took", time.Since(start)).
		Msg("Inverted index built")

	// 2. Filter
	d.step(models.StepFiltering)
	start = time.Now()
	var interesting int
	result.Matches, interesting = filterMatches(result.Index, corpus, FilterOptions{
		UpperBound: d.opts.UpperBound,
		Scope:      d.opts.Scope,
	})
	metrics.ObserveStage("filter", start)

	// 3. Documents
	start = time.Now()
	result.Documents = Documents(result.Index)
	metrics.ObserveStage("documents", start)

	// 4. Aggregate
	d.step(models.StepAggregating)
	start = time.Now()
	aggOpts := AggregateOptions{IncludeSelfPairs: d.opts.IncludeSelfPairs}
	if d.parallel() {
		result.Scores, err = AggregateParallel(ctx, d.pool, result.Documents, result.Matches, aggOpts)
		if err != nil {
			return nil, err
		}
	} else {
		result.Scores = Aggregate(result.Documents, result.Matches, aggOpts)
	}
	metrics.ObserveStage("aggregate", start)

	// 5. Rank
	d.step(models.StepRanking)
	start = time.Now()
	result.Ranked = Rank(result.Scores)
	metrics.ObserveStage("rank", start)

	result.Stats = Stats{
		Repositories:   len(corpus),
		Fingerprints:   corpus.Size(),
		DistinctHashes: len(result.Index),
		Interesting:    interesting,
		Matches:        result.Matches.Size(),
		Documents:      len(result.Documents),
		Pairs:          len(result.Ranked),
	}
	metrics.PairsRanked.Observe(float64(len(result.Ranked)))

	log.Info().
		Int("repositories", result.Stats.Repositories).
		Int("fingerprints", result.Stats.Fingerprints).
		Int("documents", result.Stats.Documents).
		Int("pairs", result.Stats.Pairs).
		Bool("parallel", d.parallel()).
		Msg("Overlap detection completed")

	return result, nil
}
