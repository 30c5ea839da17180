package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/guttosm/rental-manager/internal/app"
)

func newServeCmd(load loadFunc, configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start memory monitoring and the admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			components, err := app.New(ctx, cfg, app.Options{ConfigPath: *configPath})
			if err != nil {
				return err
			}
			defer func() {
				if err := components.Close(); err != nil {
					log.Error().Err(err).Msg("Shutdown finished with errors")
				}
			}()

			return components.Run(ctx)
		},
	}
}

