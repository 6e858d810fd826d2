package main

import (
	"fmt"

	"github.com/RishiKendai/overlap/internal/corpusfile"
	"github.com/spf13/cobra"
)

func NewConvertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "convert SRC DST",
		Short: "Rewrite a corpus file, compressing or decompressing by extension",
		Long: `Rewrite a corpus file. A destination ending in .lz4 is written as an LZ4
frame, anything else as plain JSON.

Examples:
  overlapctl convert corpus.json corpus.json.lz4
  overlapctl convert corpus.json.lz4 corpus.json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			corpus, err := corpusfile.Load(args[0])
			if err != nil {
				return err
			}
			if err := corpusfile.Save(args[1], corpus); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d fingerprints to %s\n", corpus.Size(), args[1])
			return nil
		},
	}
}
