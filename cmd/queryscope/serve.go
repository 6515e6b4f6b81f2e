package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/QTest-hq/queryscope/internal/api"
	"github.com/QTest-hq/queryscope/internal/config"
)

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API server. Configuration comes from the environment
(PORT, DATABASE_URL, NATS_URL, ...); --port overrides PORT.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if port != 0 {
				cfg.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			// request logs stay on unless --log-level was given
			if !cmd.Flags().Changed("log-level") {
				if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
					zerolog.SetGlobalLevel(level)
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return api.Run(ctx, cfg)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on")

	return cmd
}
