package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fabfab/ragconsole/chat"
	"github.com/fabfab/ragconsole/session"
)

func buildIngestCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [url1] [url2] [url3]",
		Short: "Submit up to three source URLs for indexing",
		Long: `Submit the three source slots to the backend for indexing.
Missing arguments leave their slot empty; the backend decides whether that is acceptable.`,
		Args: cobra.MaximumNArgs(session.SourceCount),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := runWithSignals(cmd.Context())
			defer cancel()

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			for i, url := range args {
				if err := a.session.SetSource(i, url); err != nil {
					return err
				}
			}

			status := a.ingest.Submit(ctx)
			fmt.Fprintln(cmd.OutOrStdout(), status.String())
			if status.Phase == session.IngestionFailed {
				return errAttemptFailed
			}
			return nil
		},
	}
}

func buildAskCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question against the indexed sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			if strings.TrimSpace(question) == "" {
				fmt.Fprint(cmd.OutOrStdout(), "Enter your question: ")
				scanner := bufio.NewScanner(cmd.InOrStdin())
				if scanner.Scan() {
					question = scanner.Text()
				}
				if err := scanner.Err(); err != nil {
					return fmt.Errorf("read question: %w", err)
				}
			}

			ctx, cancel := runWithSignals(cmd.Context())
			defer cancel()

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			a.session.SetQuestion(question)
			res := a.query.Submit(ctx)
			printAnswer(cmd.OutOrStdout(), res)
			if res.Answer.Phase == session.AnswerFailed {
				return errAttemptFailed
			}
			return nil
		},
	}
}

func buildStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check that the backend is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			if err := a.client.Health(ctx); err != nil {
				return fmt.Errorf("backend %s: %w", a.client.BaseURL(), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backend %s: ok\n", a.client.BaseURL())
			return nil
		},
	}
}

func buildHistoryCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived questions and the most cited sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			if a.archive == nil && a.graph == nil {
				return errors.New("history needs POSTGRES_DSN or NEO4J_URI to be set")
			}

			out := cmd.OutOrStdout()
			if a.archive != nil {
				exchanges, err := a.archive.Recent(ctx, limit)
				if err != nil {
					return fmt.Errorf("load history: %w", err)
				}
				for _, ex := range exchanges {
					fmt.Fprintf(out, "%s  %s\n", ex.FinishedAt.Format("2006-01-02 15:04:05"), ex.Question)
					switch {
					case ex.Outcome != "succeeded":
						fmt.Fprintf(out, "  %s: %s\n", ex.Outcome, ex.Message)
					default:
						fmt.Fprintf(out, "  %s\n", ex.Answer)
					}
					for _, item := range ex.Evidence {
						fmt.Fprintf(out, "    - %s\n", item.String())
					}
					if !ex.Applied {
						fmt.Fprintln(out, "  (superseded by a newer question)")
					}
				}
			}

			if a.graph != nil {
				top, err := a.graph.TopSources(ctx, limit)
				if err != nil {
					return fmt.Errorf("load cited sources: %w", err)
				}
				if len(top) > 0 {
					fmt.Fprintln(out, "Most cited sources:")
				}
				for i, src := range top {
					fmt.Fprintf(out, "%d. %s (cited %d, ingested %d)\n", i+1, src.URL, src.Citations, src.Ingested)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of entries to show")
	return cmd
}

func buildClearCmd(opts *rootOptions) *cobra.Command {
	var confirmed bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove archived attempts from Postgres and Neo4j",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(),
				"This will permanently delete archived questions and citations from Postgres and Neo4j. Continue? [y/N]: ") {
				fmt.Fprintln(cmd.OutOrStdout(), "clear aborted")
				return nil
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			if a.archive != nil {
				if err := a.archive.Truncate(ctx); err != nil {
					return fmt.Errorf("truncate archive: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "cleared Postgres archive")
			}
			if a.graph != nil {
				if err := a.graph.Purge(ctx); err != nil {
					return fmt.Errorf("clear neo4j: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "cleared Neo4j citation graph")
			}
			if a.archive == nil && a.graph == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "no archive configured")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&confirmed, "confirm", false, "skip confirmation prompt")
	return cmd
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}

func printAnswer(w io.Writer, res chat.Result) {
	fmt.Fprintln(w, res.Answer.String())
	if len(res.Evidence) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Evidence:")
	for i, item := range res.Evidence {
		fmt.Fprintf(w, "%d. %s\n", i+1, item.String())
	}
}

func runWithSignals(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
