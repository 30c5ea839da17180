package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/guttosm/rental-manager/internal/app"
	"github.com/guttosm/rental-manager/internal/logger"
)

func newQueryCmd(load loadFunc) *cobra.Command {
	var (
		exec   bool
		repeat int
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "query <sql> [args...]",
		Short: "Run SQL through the query cache and print rows and cache metrics",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			logger.Init(cfg.Log.Level, cfg.Log.Pretty)

			ctx := cmd.Context()
			db, err := app.InitializeDatabase(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			query := args[0]
			params := make([]interface{}, 0, len(args)-1)
			for _, a := range args[1:] {
				params = append(params, a)
			}

			out := cmd.OutOrStdout()
			if exec {
				n, err := db.Querier.Exec(ctx, query, params...)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(out, "Result: %d\n", n)
				return nil
			}

			enc := json.NewEncoder(out)
			for i := 0; i < repeat; i++ {
				rows, err := db.Querier.QueryTTL(ctx, ttl, query, params...)
				if err != nil {
					return err
				}
				if i > 0 {
					continue
				}
				for _, row := range rows {
					if err := enc.Encode(row); err != nil {
						return err
					}
				}
			}

			m := db.Cache.Metrics()
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Cache: hits %d, misses %d, computes %d, size %d, hit ratio %.2f\n",
				m.Hits, m.Misses, m.Computes, m.Size, m.HitRatio())
			return nil
		},
	}

	cmd.Flags().BoolVar(&exec, "exec", false, "run a write and print the insert id or affected rows")
	cmd.Flags().IntVar(&repeat, "repeat", 1, "run the read this many times to exercise the cache")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "cache TTL for the read (default: cache_ttl)")
	return cmd
}
