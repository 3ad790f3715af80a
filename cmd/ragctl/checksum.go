package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/groundwork/engine/checksum"
)

func checksumCmd() *cobra.Command {
	var verify string

	cmd := &cobra.Command{
		Use:   "checksum <file>",
		Short: "Print or verify the SHA-256 checksum of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if verify == "" {
				sum, err := checksum.File(args[0])
				if err != nil {
					return err
				}
				cmd.Printf("%s  %s\n", sum, args[0])
				return nil
			}
			ok, err := checksum.Verify(args[0], verify)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("checksum mismatch for %s", args[0])
			}
			cmd.Println("OK")
			return nil
		},
	}
	cmd.Flags().StringVar(&verify, "verify", "", "expected hex digest")
	return cmd
}
