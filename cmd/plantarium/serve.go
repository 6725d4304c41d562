package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chazu/plantarium/pkg/server"
	"github.com/chazu/plantarium/pkg/store"
)

func newServeCmd(e *env) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, live sessions and metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("addr") {
				e.cfg.Server.Addr = addr
			}

			st, err := store.Open(store.Config{
				Path:       e.cfg.Store.Path,
				InMemory:   e.cfg.Store.InMemory,
				SyncWrites: !e.cfg.Store.InMemory,
				Logger:     e.logger,
			})
			if err != nil {
				return err
			}
			defer func() {
				if err := st.Close(); err != nil {
					e.logger.Warn("close store", zap.Error(err))
				}
			}()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return server.New(e.app, st, e.logger).ListenAndServe(ctx, e.cfg.Server.Addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}
