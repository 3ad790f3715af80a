package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/groundwork/engine/store"
)

func migrateCmd(o *rootOptions) *cobra.Command {
	var direction string
	var steps int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if direction != "up" && direction != "down" {
				return fmt.Errorf("unknown direction %q, want up or down", direction)
			}
			cfg, err := o.config()
			if err != nil {
				return err
			}
			if err := store.Migrate(cfg.Store.DSN, direction, steps); err != nil {
				return err
			}
			cmd.Printf("migrations applied (%s)\n", direction)
			return nil
		},
	}
	cmd.Flags().StringVar(&direction, "direction", "up", "up or down")
	cmd.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")
	return cmd
}
