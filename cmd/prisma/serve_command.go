package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/use-agent/prisma/api"
	"github.com/use-agent/prisma/cache"
	"github.com/use-agent/prisma/webhook"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addrFlag string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the scrape and research HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			comp, err := ctx.build(buildOptions{analyzer: true, history: true})
			if err != nil {
				return err
			}
			defer comp.Close()
			cfg, logger := comp.cfg, comp.logger

			addr := addrFlag
			if addr == "" {
				addr = fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
			}
			logger.Info("prisma starting",
				"addr", addr,
				"mode", cfg.Server.Mode,
				"max_concurrent", cfg.Scraper.MaxConcurrent,
				"model", comp.models.ModelPath(),
			)

			var cc *cache.Cache
			if cfg.Cache.MaxEntries > 0 {
				cc = cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL.Std())
			}

			router := api.NewRouter(api.Services{
				Scraper:  comp.scraper,
				Session:  comp.scraper,
				Pipeline: comp.pipeline,
				Model:    comp.analyzer,
				Weights:  comp.models,
				Cache:    cc,
				Metrics:  comp.metrics,
				Hooks:    webhook.NewSender(cfg.Webhook, webhook.WithLogger(logger)),
				Logger:   logger,
			}, cfg, time.Now())

			runCtx, stop := stopOnSignal(cmd.Context())
			defer stop()
			go router.Run(runCtx)

			srv := &http.Server{
				Addr:              addr,
				Handler:           router.Engine,
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				logger.Info("HTTP server listening", "addr", addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("HTTP server: %w", err)
				}
			case <-runCtx.Done():
				logger.Info("shutdown signal received")
			}

			// Give in-flight requests 5 seconds to complete.
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(runCtx), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server forced shutdown", "error", err)
			} else {
				logger.Info("HTTP server drained gracefully")
			}
			logger.Info("prisma stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addrFlag, "addr", "", "Listen address (default server.host:server.port)")
	return cmd
}
