package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/guttosm/rental-manager/internal/app"
	"github.com/guttosm/rental-manager/internal/cache"
	"github.com/guttosm/rental-manager/internal/logger"
)

func newNormalizeCmd(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "normalize <text>",
		Short: "Print the normalized cache key of a message and the entities extracted from it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			logger.Init(cfg.Log.Level, cfg.Log.Pretty)
			cfg.Mail.Root = ""

			services, err := app.InitializeServices(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = services.Close() }()

			text := strings.Join(args, " ")
			entities, err := services.Text.Process(cmd.Context(), text)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Normalized: %s\n", cache.Normalize(text))
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(entities)
		},
	}
}
