package main

import (
	"github.com/spf13/cobra"
)

func reindexCmd(o *rootOptions) *cobra.Command {
	var batch int

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Push every stored chunk vector into the vector index",
		Long: `Upserts all stored chunks that carry an embedding into the configured
vector index. Use it after the index was unavailable during ingestion.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := o.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			n, err := a.Ingest.Reindex(cmd.Context(), batch)
			if err != nil {
				return err
			}
			cmd.Printf("reindexed %d chunks\n", n)
			return nil
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 64, "points per upsert")
	return cmd
}
