package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/pollen-map/internal/adapter/fs"
	httpadapter "github.com/couchcryptid/pollen-map/internal/adapter/http"
)

func newServeCmd() *cobra.Command {
	var generate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Preview the generated site over HTTP",
		Long: `Serves the output directory together with /healthz, /readyz and /metrics.
/readyz reports ready once index.html exists. With --generate the site is
generated first, in the background, and /readyz waits for that run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			site, err := fs.NewWriter(e.cfg.OutputDir, false)
			if err != nil {
				return err
			}
			var ready httpadapter.ReadinessChecker = site

			if generate {
				gen, closeFn, err := e.generator()
				if err != nil {
					return err
				}
				defer closeFn()
				ready = gen

				go func() {
					if err := runGeneration(ctx, gen, cmd.OutOrStdout()); err != nil {
						e.logger.Error("generation error", "error", err)
					}
				}()
			}

			srv := httpadapter.NewServer(e.cfg.HTTPAddr, site.Root(), ready, e.logger)
			errCh := make(chan error, 1)
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return err
				}
			case <-ctx.Done():
			}
			e.logger.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), e.cfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				e.logger.Error("http server shutdown error", "error", err)
			}
			e.logger.Info("shutdown complete")
			return nil
		},
	}

	f := cmd.Flags()
	f.BoolVar(&generate, "generate", false, "generate the site before serving it")
	f.String("http-addr", "", "listen address")
	f.StringP("input", "i", "", "measurement table to read (with --generate)")
	f.String("input-format", "", "input format: csv, json or jsonl (default from extension)")
	f.Int("workers", 0, "concurrent document renders (with --generate)")
	return cmd
}
