// Package main is the entry point for the rental manager.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/guttosm/rental-manager/config"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "rental-manager",
		Short:         "Rental manager backend: cached queries, guest message extraction and an admin API",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_PATH"), "path to config file (env CONFIG_PATH)")

	load := func() (*config.Config, error) {
		return config.Load(configPath)
	}

	root.AddCommand(
		newServeCmd(load, &configPath),
		newQueryCmd(load),
		newNormalizeCmd(load),
		newMailCmd(load),
		newTokenCmd(load),
	)
	return root
}

// loadFunc loads the configuration named by the --config flag.
type loadFunc func() (*config.Config, error)
