// tryonctl is the operator CLI: API key management, manual watchdog sweeps
// and requeueing of failed jobs.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"tryon/internal/adapter/repo"
	"tryon/internal/infra"
)

func main() {
	root := &cobra.Command{
		Use:           "tryonctl",
		Short:         "Operator tooling for the try-on service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(apiKeyCommand())
	root.AddCommand(sweepCommand())
	root.AddCommand(requeueCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func connect(ctx context.Context) (*pgxpool.Pool, *infra.Config, error) {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return pool, cfg, nil
}

func apiKeyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
	}

	var rpmLimit int
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Mint a new API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, _, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()
			key, err := repo.NewApiKeyRepository(pool).Create(cmd.Context(), args[0], rpmLimit)
			if err != nil {
				return err
			}
			fmt.Printf("id:  %s\nkey: %s\nrpm: %d\n", key.ID, key.Key, key.RPMLimit)
			return nil
		},
	}
	create.Flags().IntVar(&rpmLimit, "rpm", 60, "requests per minute allowed for this key")

	revoke := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, _, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := repo.NewApiKeyRepository(pool).Revoke(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("revoked", args[0])
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, _, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()
			keys, err := repo.NewApiKeyRepository(pool).List(cmd.Context(), 100)
			if err != nil {
				return err
			}
			for _, k := range keys {
				state := "active"
				if !k.IsActive {
					state = "revoked"
				}
				fmt.Printf("%s  %-20s %-8s rpm=%d\n", k.ID, k.Name, state, k.RPMLimit)
			}
			return nil
		},
	}

	cmd.AddCommand(create, revoke, list)
	return cmd
}

func sweepCommand() *cobra.Command {
	var timeoutSeconds int
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one watchdog sweep over stuck jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, cfg, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()
			timeout := cfg.WorkerJobTimeout
			if timeoutSeconds > 0 {
				timeout = time.Duration(timeoutSeconds) * time.Second
			}
			count, err := repo.NewJobRepository(pool).SweepStuck(cmd.Context(), timeout)
			if err != nil {
				return err
			}
			fmt.Printf("swept %d job(s)\n", count)
			return nil
		},
	}
	cmd.Flags().IntVar(&timeoutSeconds, "timeout", 0, "processing timeout in seconds (default: configured value)")
	return cmd
}

func requeueCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <job-id>",
		Short: "Requeue an errored job for another attempt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, _, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()
			tag, err := pool.Exec(cmd.Context(), `
UPDATE tryon_jobs
SET status = 'queued',
    error_code = NULL,
    error_message = NULL,
    processing_started_at = NULL,
    attempts = 0,
    updated_at = now()
WHERE id = $1 AND status = 'error';
`, args[0])
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("job %s not found or not in error state", args[0])
			}
			fmt.Println("requeued", args[0])
			return nil
		},
	}
}
