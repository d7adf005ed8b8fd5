package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/app"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/config"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/domain"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/rating"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/repository/postgres"
	rediscache "github.com/thecolossalsparkle/dbms-marrow-sub000/internal/repository/redis"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/migrations"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/database"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/logger"
)

type ratingOps interface {
	Recompute(ctx context.Context, doctorID string) (*domain.RatingSummary, error)
	Sweep(ctx context.Context) (rating.SweepResult, error)
}

// env is what a command needs from the outside world.
type env struct {
	ratings ratingOps
	migrate func(ctx context.Context) ([]string, error)
	close   func()
}

type envOpener func(ctx context.Context, log *slog.Logger) (*env, error)

func newRootCmd(open envOpener) *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:          "portalctl",
		Short:        "Doctor portal operator tool",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	withEnv := func(fn func(cmd *cobra.Command, args []string, e *env) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			log := logger.NewWithWriter("portalctl", logLevel, cmd.ErrOrStderr())
			e, err := open(cmd.Context(), log)
			if err != nil {
				return err
			}
			defer e.close()
			return fn(cmd, args, e)
		}
	}

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: withEnv(func(cmd *cobra.Command, _ []string, e *env) error {
			applied, err := e.migrate(cmd.Context())
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
			}
			return nil
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "reconcile",
		Short: "Recompute every doctor's rating from its reviews",
		Args:  cobra.NoArgs,
		RunE: withEnv(func(cmd *cobra.Command, _ []string, e *env) error {
			res, err := e.ratings.Sweep(cmd.Context())
			if err != nil {
				return fmt.Errorf("reconcile: %w", err)
			}
			if err := writeJSON(cmd, res); err != nil {
				return err
			}
			if res.Failed > 0 {
				return fmt.Errorf("reconcile: %d doctors failed", res.Failed)
			}
			return nil
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "recompute <doctor-id>...",
		Short: "Recompute the rating of specific doctors",
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(_ *cobra.Command, args []string) error {
			for _, id := range args {
				if _, err := uuid.Parse(id); err != nil {
					return fmt.Errorf("invalid doctor id %q", id)
				}
			}
			return nil
		},
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			type line struct {
				DoctorID      string  `json:"doctor_id"`
				Found         bool    `json:"found"`
				AverageRating float64 `json:"average_rating"`
				ReviewCount   int     `json:"review_count"`
			}
			for _, id := range args {
				summary, err := e.ratings.Recompute(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("recompute %s: %w", id, err)
				}
				out := line{DoctorID: id}
				if summary != nil {
					out.Found = true
					out.AverageRating = summary.AverageRating
					out.ReviewCount = summary.ReviewCount
				}
				if err := writeJSON(cmd, out); err != nil {
					return err
				}
			}
			return nil
		}),
	})

	return root
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	return enc.Encode(v)
}

// openEnv connects to PostgreSQL and, when reachable, Redis so recomputed
// doctors drop out of the profile cache.
func openEnv(ctx context.Context, log *slog.Logger) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	pool, err := app.ConnectPostgres(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	closers := []func(){pool.Close}

	var invalidator rating.CacheInvalidator
	if cfg.CacheTTL() > 0 {
		client, err := app.ConnectRedis(ctx, cfg)
		if err != nil {
			log.Warn("redis unavailable, cached profiles expire on their own", slog.String("error", err.Error()))
		} else {
			invalidator = rediscache.NewDoctorCache(client, cfg.CacheTTL())
			closers = append(closers, func() { _ = client.Close() })
		}
	}

	agg := rating.NewAggregator(postgres.NewRatingRepository(pool), nil, invalidator, rating.Config{
		BatchSize:   cfg.RatingSweepBatchSize,
		Concurrency: cfg.RatingSweepConcurrency,
	}, log)

	return &env{
		ratings: agg,
		migrate: func(ctx context.Context) ([]string, error) {
			return database.RunMigrations(ctx, pool, migrations.FS, log)
		},
		close: func() {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		},
	}, nil
}
