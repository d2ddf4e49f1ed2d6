package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/use-agent/prisma/modelstore"
)

func newModelCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Manage the local model weights",
	}
	cmd.AddCommand(newModelStatusCommand(ctx))
	cmd.AddCommand(newModelDownloadCommand(ctx))
	cmd.AddCommand(newModelDeleteCommand(ctx))
	return cmd
}

func (c *commandContext) modelStore() (*modelstore.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return modelstore.New(cfg.Model, modelstore.WithLogger(c.logger)), nil
}

func newModelStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether the model weights are installed",
		RunE: func(cmd *cobra.Command, args []string) error {
			ms, err := ctx.modelStore()
			if err != nil {
				return err
			}
			st := ms.Status()
			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			rows := [][]string{
				{"Model", st.Name},
				{"Installed", yesNo(st.Available)},
				{"Path", st.Path},
				{"Size", humanBytes(st.SizeBytes)},
				{"Source", ms.URL()},
			}
			fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print status as JSON")
	return cmd
}

func newModelDownloadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "download",
		Short: "Download the model weights",
		RunE: func(cmd *cobra.Command, args []string) error {
			ms, err := ctx.modelStore()
			if err != nil {
				return err
			}
			ms.OnProgress(downloadPrinter(cmd.ErrOrStderr()))

			runCtx, stop := stopOnSignal(cmd.Context())
			defer stop()
			path, err := ms.Download(runCtx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "model ready: %s\n", path)
			return nil
		},
	}
}

func newModelDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Remove the downloaded model weights",
		RunE: func(cmd *cobra.Command, args []string) error {
			ms, err := ctx.modelStore()
			if err != nil {
				return err
			}
			if err := ms.Delete(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", ms.ModelPath())
			return nil
		},
	}
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
