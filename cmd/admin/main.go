// Command admin runs operator tasks against the SmartSendr database:
// schema migrations and the monthly usage reset.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // postgres driver
	"github.com/spf13/cobra"

	"github.com/nyashahama/smartsendr-backend/internal/config"
	"github.com/nyashahama/smartsendr-backend/internal/db"
	"github.com/nyashahama/smartsendr-backend/internal/quota"
	"github.com/nyashahama/smartsendr-backend/internal/store"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(logger).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:          "admin",
		Short:        "SmartSendr operator commands",
		SilenceUsage: true,
	}
	root.AddCommand(newMigrateCmd(logger), newResetUsageCmd(logger))
	return root
}

// ─── migrate ─────────────────────────────────────────────────────────────────

func newMigrateCmd(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back schema migrations",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, err := config.LoadDatabaseURL()
			if err != nil {
				return err
			}
			version, err := db.Migrate(url)
			if err != nil {
				return err
			}
			logger.Info("migrate: up to date", "version", version)
			return nil
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if steps < 1 {
				return fmt.Errorf("--steps must be at least 1, got %d", steps)
			}
			url, err := config.LoadDatabaseURL()
			if err != nil {
				return err
			}
			if err := db.MigrateDown(url, steps); err != nil {
				return err
			}
			logger.Info("migrate: rolled back", "steps", steps)
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	cmd.AddCommand(up, down)
	return cmd
}

// ─── reset-usage ─────────────────────────────────────────────────────────────

func newResetUsageCmd(logger *slog.Logger) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "reset-usage",
		Short: "Zero free-tier email counters for the current month",
		Long: "Without --force the reset runs at most once per calendar month, " +
			"the same as the scheduled job. --force resets unconditionally.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, err := config.LoadDatabaseURL()
			if err != nil {
				return err
			}
			pool, err := sql.Open("postgres", url)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer pool.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			queries := db.New(pool)
			tracker := quota.NewTracker(queries, store.New(pool, queries), logger)

			if force {
				n, err := tracker.ResetMonthlyUsage(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reset %d profiles\n", n)
				return nil
			}

			n, ran, err := tracker.ResetIfDue(ctx)
			if err != nil {
				return err
			}
			if !ran {
				fmt.Fprintln(cmd.OutOrStdout(), "usage already reset for this period")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reset %d profiles\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "reset even if this month was already reset")
	return cmd
}
