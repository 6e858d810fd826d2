package main

import (
	"context"
	"fmt"
	"time"

	"github.com/RishiKendai/overlap/internal/corpusfile"
	"github.com/RishiKendai/overlap/internal/overlap"
	"github.com/RishiKendai/overlap/internal/report"
	"github.com/spf13/cobra"
)

type rankOptions struct {
	corpusPath  string
	upperBound  int
	scope       string
	includeSelf bool
	minScore    int
	top         int
	format      string
	workers     int
	sequential  bool
	noSummary   bool
}

func NewRankCmd() *cobra.Command {
	opts := &rankOptions{}

	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Rank document pairs of a corpus file",
		Long: `Rank document pairs of a corpus file by the number of shared interesting
fingerprints, lowest score first.

Examples:
  overlapctl rank --corpus corpus.json
  overlapctl rank --corpus corpus.json.lz4 --top 20
  overlapctl rank --corpus corpus.json --scope global --upper-bound 50
  overlapctl rank --corpus corpus.json --min 10 --format csv > pairs.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRank(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.corpusPath, "corpus", "", "Corpus file (.json or .json.lz4)")
	cmd.Flags().IntVar(&opts.upperBound, "upper-bound", overlap.DefaultUpperBound, "Popularity at which a fingerprint is ignored")
	cmd.Flags().StringVar(&opts.scope, "scope", string(overlap.ScopeRepository), "Popularity scope (repository|global)")
	cmd.Flags().BoolVar(&opts.includeSelf, "include-self", false, "Score a document against itself")
	cmd.Flags().IntVar(&opts.minScore, "min", 0, "Only report pairs scoring at least this much")
	cmd.Flags().IntVar(&opts.top, "top", 0, "Only report the N highest scoring pairs (0 = all)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", string(report.FormatTable), "Output format (table|json|csv)")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "Worker pool size (0 = number of CPUs)")
	cmd.Flags().BoolVar(&opts.sequential, "sequential", false, "Run every stage on one goroutine")
	cmd.Flags().BoolVar(&opts.noSummary, "no-summary", false, "Do not print the run summary")
	_ = cmd.MarkFlagRequired("corpus")

	return cmd
}

func runRank(cmd *cobra.Command, opts *rankOptions) error {
	format, err := report.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	scope, err := overlap.ParsePopularityScope(opts.scope)
	if err != nil {
		return err
	}
	if opts.upperBound <= 1 {
		return fmt.Errorf("--upper-bound must be greater than 1")
	}
	if opts.minScore < 0 || opts.top < 0 || opts.workers < 0 {
		return fmt.Errorf("--min, --top and --workers must not be negative")
	}

	corpus, err := corpusfile.Load(opts.corpusPath)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var pool *overlap.WorkerPool
	if !opts.sequential {
		if opts.workers > 0 {
			pool = overlap.NewWorkerPoolSize(ctx, opts.workers)
		} else {
			pool = overlap.NewWorkerPool(ctx)
		}
		defer pool.Close()
	}

	detectorOpts := overlap.Options{
		UpperBound:       opts.upperBound,
		Scope:            scope,
		IncludeSelfPairs: opts.includeSelf,
		Parallel:         !opts.sequential,
	}

	start := time.Now()
	result, err := overlap.NewDetector(detectorOpts, pool).Run(ctx, corpus)
	if err != nil {
		return fmt.Errorf("detection failed: %w", err)
	}

	pairs := result.Ranked.AtLeast(opts.minScore).Top(opts.top)
	if err := report.Write(cmd.OutOrStdout(), format, report.Rows(pairs)); err != nil {
		return err
	}

	if !opts.noSummary {
		fmt.Fprintln(cmd.ErrOrStderr(), report.Summary(result.Stats, detectorOpts, time.Since(start)))
	}
	return nil
}
