package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/geosocial/proximity/internal/config"
	"github.com/geosocial/proximity/internal/factory"
	"github.com/geosocial/proximity/internal/logger"
	"github.com/geosocial/proximity/internal/reindex"
)

// runReindex reconciles the configured geo index with the configured store once.
func runReindex(ctx context.Context, cfg *config.Config, log zerolog.Logger, out io.Writer) error {
	st, err := factory.NewStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.DB().Close()

	caching, err := factory.NewCaching(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer caching.Close()

	w := reindex.NewWorker(st, caching.Index, reindex.Config{BatchSize: cfg.ReindexBatchSize}, log)
	stats, err := w.RunOnce(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}

func init() {
	reindexCmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the geo index from the store (reads PROXIMITY_* configuration)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New()
			if err != nil {
				return err
			}
			log := logger.NewWithWriter(cmd.ErrOrStderr(), "proximityctl", cfg.LogLevel)
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runReindex(ctx, cfg, log, cmd.OutOrStdout())
		},
	}
	rootCmd.AddCommand(reindexCmd)
}
