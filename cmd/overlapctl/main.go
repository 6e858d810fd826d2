package main

import (
	"os"

	"github.com/RishiKendai/overlap/internal/logger"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:   "overlapctl",
		Short: "Rank document pairs by shared fingerprints",
		Long: `overlapctl runs overlap detection over a fingerprint corpus file.

Fingerprints that are frequent inside their own repository are treated as
boilerplate and ignored. Every other shared fingerprint counts towards the
score of the (source, target) document pair it links.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Init(logLevel, "console")
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (trace|debug|info|warn|error)")

	root.AddCommand(NewRankCmd())
	root.AddCommand(NewConvertCmd())

	return root
}

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
