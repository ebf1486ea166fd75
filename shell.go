package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

const shellHelp = `Commands:
  source <1-3> [url]  set or clear a source slot
  ingest              submit the three sources for indexing
  ask <question>      ask a question
  show                print the current session
  help                show this message
  quit                leave the shell`

func buildShellCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive session: edit sources, ingest, and ask questions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := runWithSignals(cmd.Context())
			defer cancel()

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			return runShell(ctx, a, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func runShell(ctx context.Context, a *app, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "Connected to %s. Type \"help\" for commands.\n", a.client.BaseURL())

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		verb, rest, _ := strings.Cut(strings.TrimSpace(scanner.Text()), " ")
		rest = strings.TrimSpace(rest)

		switch strings.ToLower(verb) {
		case "":
		case "source":
			slot, url, _ := strings.Cut(rest, " ")
			n, err := strconv.Atoi(slot)
			if err != nil {
				fmt.Fprintln(out, "usage: source <1-3> [url]")
				continue
			}
			if err := a.session.SetSource(n-1, strings.TrimSpace(url)); err != nil {
				fmt.Fprintln(out, err)
			}
		case "ingest":
			fmt.Fprintln(out, "Ingesting...")
			fmt.Fprintln(out, a.ingest.Submit(ctx).String())
		case "ask":
			a.session.SetQuestion(rest)
			fmt.Fprintln(out, "Thinking...")
			printAnswer(out, a.query.Submit(ctx))
		case "show":
			printSession(out, a)
		case "help":
			fmt.Fprintln(out, shellHelp)
		case "quit", "exit":
			return nil
		default:
			fmt.Fprintf(out, "unknown command %q, type \"help\"\n", verb)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func printSession(out io.Writer, a *app) {
	snap := a.session.Snapshot()
	for i, url := range snap.Sources {
		fmt.Fprintf(out, "Source %d: %s\n", i+1, url)
	}
	if status := snap.Ingestion.String(); status != "" {
		fmt.Fprintf(out, "Ingestion: %s\n", status)
	}
	if snap.Question != "" {
		fmt.Fprintf(out, "Question: %s\n", snap.Question)
	}
	if answer := snap.Answer.String(); answer != "" {
		fmt.Fprintf(out, "Answer: %s\n", answer)
	}
	for _, item := range snap.Evidence {
		fmt.Fprintf(out, "  - %s\n", item.String())
	}
}
