package main

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/groundwork/engine/citation"
	"github.com/WessleyAI/groundwork/engine/rag"
)

func queryCmd(o *rootOptions) *cobra.Command {
	var topK int
	var threshold float64
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Ask a question against the ingested documents",
		Long: `Retrieves the most similar chunks, generates an answer from them and
prints it with its citations, or prints the refusal. With --memory the
configured source directory is ingested first.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			req := rag.Request{Question: strings.Join(args, " "), TopK: topK}
			if cmd.Flags().Changed("threshold") {
				req.Threshold = &threshold
			}
			if req, err = a.RAG.Resolve(req); err != nil {
				return err
			}
			if o.memory {
				if _, err := a.Ingest.RunFull(cmd.Context(), a.Config.Ingest.SourceDir); err != nil {
					return err
				}
			}

			resp := a.RAG.Query(cmd.Context(), req)
			if asJSON {
				out, err := json.MarshalIndent(resp, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(out))
				return nil
			}
			printResponse(cmd, resp)
			return nil
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of chunks to retrieve (default from config)")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "minimum similarity score (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full response as JSON")
	return cmd
}

func printResponse(cmd *cobra.Command, resp rag.Response) {
	cmd.Println(resp.Answer)
	if resp.Refused {
		cmd.Println()
		cmd.Printf("refused: %s (confidence %.2f)\n", resp.Reason, resp.Confidence)
		return
	}
	if len(resp.Citations) > 0 {
		cmd.Println()
		cmd.Println("Sources:")
		cmd.Print(citation.Format(resp.Citations))
	}
}
