// Package main implements ragctl, the command-line client for ingestion,
// one-off queries and schema migrations.
package main

import (
	"os"

	"github.com/WessleyAI/groundwork/engine/app"
)

func main() {
	if err := newRootCmd(app.Deps{}).Execute(); err != nil {
		os.Exit(1)
	}
}
