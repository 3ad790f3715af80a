package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/groundwork/engine/ingest"
)

func ingestCmd(o *rootOptions) *cobra.Command {
	var dir string
	var incremental bool
	var watch time.Duration

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a directory of Markdown files",
		Long: `Scans the directory for Markdown files, then chunks, embeds and indexes
every new or changed document. With --incremental, files whose content is
already stored are skipped without being read twice. With --watch, an
incremental pass repeats at that interval until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := o.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if dir == "" {
				dir = a.Config.Ingest.SourceDir
			}

			if watch > 0 {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				return a.Ingest.Watch(ctx, dir, watch, func(res ingest.Result) {
					cmd.Printf("processed=%d skipped=%d chunks=%d errors=%d\n",
						res.Processed, res.Skipped, res.CreatedChunks, len(res.Errors))
				})
			}

			var res ingest.Result
			if incremental {
				res, err = a.Ingest.RunIncremental(cmd.Context(), dir)
			} else {
				res, err = a.Ingest.RunFull(cmd.Context(), dir)
			}
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return err
			}
			cmd.Println(string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "source directory (default from config)")
	cmd.Flags().BoolVar(&incremental, "incremental", false, "skip documents whose checksum is already stored")
	cmd.Flags().DurationVar(&watch, "watch", 0, "rescan interval; 0 runs once")
	return cmd
}
