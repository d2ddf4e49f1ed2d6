package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/use-agent/prisma/models"
	"github.com/use-agent/prisma/modelstore"
	"github.com/use-agent/prisma/pipeline"
	"github.com/use-agent/prisma/progress"
)

type runFlags struct {
	file       string
	concurrent bool
	jsonOut    bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "Read URLs from a .txt or .docx file")
	cmd.Flags().BoolVar(&f.concurrent, "concurrent", false, "Scrape several pages at once")
	cmd.Flags().BoolVar(&f.jsonOut, "json", false, "Print the run summary as JSON")
}

func newScrapeCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "scrape [URL...]",
		Short: "Scrape pages to Markdown files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, ctx, args, flags, pipeline.Request{})
		},
	}
	flags.register(cmd)
	return cmd
}

// runPipeline executes one run and prints its outcome. req carries the
// topic and analyze settings; URLs come from args and flags.
func runPipeline(cmd *cobra.Command, ctx *commandContext, args []string, flags runFlags, req pipeline.Request) error {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	list, err := collectURLs(args, flags.file, stderr)
	if err != nil {
		return err
	}
	req.URLs = list
	req.Concurrent = flags.concurrent

	comp, err := ctx.build(buildOptions{analyzer: req.Analyze, history: true})
	if err != nil {
		return err
	}
	defer comp.Close()

	runCtx, stop := stopOnSignal(cmd.Context())
	defer stop()
	runCtx = progress.WithObserver(runCtx, func(ev progress.ScrapeEvent) {
		fmt.Fprintf(stderr, "[%d/%d] %s\n", ev.Current, ev.Total, ev.URL)
	})
	comp.pipeline.OnStatus(func(m progress.Message) { fmt.Fprintln(stderr, m) })
	if comp.analyzer != nil {
		comp.analyzer.OnProgress(func(m progress.Message) { fmt.Fprintln(stderr, m) })
	}
	comp.models.OnProgress(downloadPrinter(stderr))

	summary, runErr := comp.pipeline.Run(runCtx, req)
	if summary == nil {
		return runErr
	}
	if flags.jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			return err
		}
	} else {
		printSummary(stdout, summary)
	}
	return runErr
}

func printSummary(w io.Writer, run *models.RunSummary) {
	fmt.Fprintln(w, resultsTable(run.Results))
	fmt.Fprintf(w, "%d/%d pages scraped in %s\n", run.Succeeded, run.Total, formatDuration(run.Duration))
	for _, s := range run.Skipped {
		fmt.Fprintf(w, "skipped: %s\n", s)
	}
	if a := run.Analysis; a != nil {
		if a.Success {
			fmt.Fprintf(w, "report: %s (%d tokens)\n", run.ReportPath, a.TokensUsed)
		} else {
			fmt.Fprintf(w, "report failed [%s]: %s\n", a.ErrorCode, a.Error)
		}
	}
	if len(run.Files) > 0 {
		fmt.Fprintf(w, "%d files written\n", len(run.Files))
	}
}

func downloadPrinter(w io.Writer) func(ev modelstore.DownloadEvent) {
	return func(ev modelstore.DownloadEvent) {
		if ev.Message != "" {
			fmt.Fprintln(w, ev.Message)
			return
		}
		if p := ev.Percent(); p >= 0 {
			fmt.Fprintf(w, "\rdownloading model: %3.0f%%", p)
			if p >= 100 {
				fmt.Fprintln(w)
			}
		}
	}
}

// stopOnSignal returns a context canceled by SIGINT or SIGTERM.
func stopOnSignal(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
