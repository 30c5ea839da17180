package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/guttosm/rental-manager/internal/app"
	"github.com/guttosm/rental-manager/internal/logger"
)

func newMailCmd(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "mail <folder>...",
		Short: "Fetch messages from maildir folders and extract booking details",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			logger.Init(cfg.Log.Level, cfg.Log.Pretty)
			if cfg.Mail.Root == "" {
				return errors.New("mail.root (or MAIL_ROOT) is not set")
			}

			services, err := app.InitializeServices(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = services.Close() }()

			processed, err := services.Mail.FetchAndProcess(cmd.Context(), args, services.Text)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, p := range processed {
				if err := enc.Encode(p); err != nil {
					return err
				}
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Processed %d messages from %d folders\n", len(processed), len(args))
			return nil
		},
	}
}
