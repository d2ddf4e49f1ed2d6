package main

import (
	"github.com/spf13/cobra"

	"github.com/use-agent/prisma/pipeline"
)

func newResearchCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags
	var topic string
	var noAnalyze bool

	cmd := &cobra.Command{
		Use:   "research [URL...]",
		Short: "Scrape pages and write a research report from them",
		Long: "Scrapes every URL, saves the pages that produced content, and asks the\n" +
			"local model for a report covering all of them. The model is loaded on\n" +
			"first use and downloaded first when model.auto_download is set.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, ctx, args, flags, pipeline.Request{
				Topic:   topic,
				Analyze: !noAnalyze,
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&topic, "topic", "t", "", "Research topic used in the report title and prompt")
	cmd.Flags().BoolVar(&noAnalyze, "no-analyze", false, "Only scrape; skip the report")
	return cmd
}
