// ClaimGuard - Multi-tenant healthcare claim validation.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/claimguard/internal/api"
	"github.com/opensource-finance/claimguard/internal/config"
	"github.com/opensource-finance/claimguard/internal/domain"
	"github.com/opensource-finance/claimguard/internal/logging"
	"github.com/opensource-finance/claimguard/internal/scheduler"
	"github.com/opensource-finance/claimguard/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "claimguard",
		Short:         "Multi-tenant healthcare claim validation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(validateCmd(&configPath))
	rootCmd.AddCommand(rulesCmd(&configPath))
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setup loads configuration and installs the default logger.
func setup(configPath string) (*domain.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(cfg.Logging)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API, validation worker and pending-claim sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*configPath)
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg, logger)
		},
	}
}

func runServer(parent context.Context, cfg *domain.Config, logger *slog.Logger) error {
	logger.Info("starting claimguard",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
		"tier", cfg.Tier,
	)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	w := worker.NewWorker(a.bus, a.repo, a.pipeline, cfg.Worker.Concurrency, logger)
	if err := w.Start(); err != nil {
		return fmt.Errorf("start validation worker: %w", err)
	}

	var sweeper *scheduler.Sweeper
	if cfg.Scheduler.Cron != "" {
		sweeper, err = scheduler.New(cfg.Scheduler.Cron, a.repo, w, logger)
		if err != nil {
			w.Stop()
			return err
		}
		if err := sweeper.Start(); err != nil {
			w.Stop()
			return err
		}
	}

	srv := api.NewServer(cfg.Server, api.Deps{
		Repo:     a.repo,
		Cache:    a.cache,
		Bus:      a.bus,
		Loader:   a.loader,
		Engine:   a.engine,
		Enqueuer: w,
		Version:  Version,
	}, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	logger.Info("claimguard is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)
	printBanner(cfg, Version)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down...")
	case err := <-serverErr:
		runErr = fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Stop intake first, then let running passes finish.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if sweeper != nil {
		sweeper.Stop()
	}
	if err := w.Stop(); err != nil {
		logger.Error("failed to stop validation worker", "error", err)
	}

	logger.Info("claimguard shutdown complete")
	return runErr
}

func validateCmd(configPath *string) *cobra.Command {
	var tenantID string
	var all bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run a validation pass in the foreground",
		Long:  "Validate the Pending claims of one tenant (--tenant) or of every tenant with Pending claims (--all).",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (tenantID == "") == !all {
				return errors.New("exactly one of --tenant or --all is required")
			}

			cfg, logger, err := setup(*configPath)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			tenants := []string{tenantID}
			if all {
				if tenants, err = a.repo.ListPendingTenants(ctx); err != nil {
					return err
				}
			}

			var failed []error
			for _, t := range tenants {
				job, err := a.pipeline.Run(ctx, "", t)
				if err != nil {
					failed = append(failed, fmt.Errorf("tenant %s: %w", t, err))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %-10s selected=%d validated=%d not_validated=%d\n",
					t, job.Status, job.ClaimsSelected, job.ClaimsValidated, job.ClaimsNotValidated)
			}
			return errors.Join(failed...)
		},
	}
	cmd.Flags().StringVarP(&tenantID, "tenant", "t", "", "tenant to validate")
	cmd.Flags().BoolVar(&all, "all", false, "validate every tenant with Pending claims")
	return cmd
}

func rulesCmd(configPath *string) *cobra.Command {
	var tenantID string

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Print the effective rule set of a tenant as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*configPath)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			set := a.loader.Load(cmd.Context(), tenantID)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(set.RuleSet())
		},
	}
	cmd.Flags().StringVarP(&tenantID, "tenant", "t", "", "tenant whose overrides to apply")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "claimguard %s (commit %s, built %s)\n", Version, Commit, BuildDate)
		},
	}
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ClaimGuard - healthcare claim validation")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /api/claims             - Upload claims (validated asynchronously)")
	fmt.Println("    GET  /api/claims             - List claims")
	fmt.Println("    GET  /api/claims/{id}        - Claim with violations")
	fmt.Println("    GET  /api/metrics            - Error classification metrics")
	fmt.Println("    GET  /api/rules              - Effective rule set")
	fmt.Println("    PUT  /api/rules/{category}   - Upload technical, medical or custom rules")
	fmt.Println("    POST /api/validations        - Start a validation pass")
	fmt.Println("    GET  /api/jobs/{id}          - Validation job status")
	fmt.Println("    GET  /health                 - Health check")
	fmt.Println("    GET  /metrics                - Prometheus metrics")
	fmt.Println()
}
