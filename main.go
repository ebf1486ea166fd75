// Command ragconsole drives a retrieval-augmented generation backend: it
// submits three source URLs for indexing, asks questions against them, and
// shows the answer with the cited evidence.
//
//	ragconsole ingest https://a.example https://b.example https://c.example
//	ragconsole ask "What changed in the last release?"
//	ragconsole serve
//
// Settings come from the environment or a .env file; see config.Load.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// errAttemptFailed marks a submission whose failure was already printed.
var errAttemptFailed = errors.New("attempt failed")

type rootOptions struct {
	backendURL string
	logLevel   string
}

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		if !errors.Is(err, errAttemptFailed) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "ragconsole",
		Short:         "Ingest sources into a RAG backend and ask questions against them",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.backendURL, "backend", "", "backend base URL (overrides RAG_BACKEND_URL)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")

	rootCmd.AddCommand(
		buildIngestCmd(opts),
		buildAskCmd(opts),
		buildStatusCmd(opts),
		buildShellCmd(opts),
		buildServeCmd(opts),
		buildHistoryCmd(opts),
		buildClearCmd(opts),
	)
	return rootCmd
}
