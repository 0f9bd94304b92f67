package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwbudde/gpcont/internal/config"
	"github.com/cwbudde/gpcont/internal/store"
	"github.com/spf13/cobra"
)

var (
	configPath    string
	runID         string
	seederName    string
	minimizerName string
	workers       int
	seed          int64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a continuation from a parameter file",
	Long: `Runs Ndmu continuation steps starting at mu, screening several local
minimizations per step. Each step is appended to the run's trace and
checkpointed so the run can be resumed.`,
	RunE: runContinuation,
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "Parameter file (required)")
	runCmd.Flags().StringVar(&runID, "run-id", "", "Run identifier (default: random UUID)")
	addScreeningFlags(runCmd)

	runCmd.MarkFlagRequired("config")
	rootCmd.AddCommand(runCmd)
}

func addScreeningFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&seederName, "seeder", "", "Override seeder: grid, random, mayfly")
	cmd.Flags().StringVar(&minimizerName, "minimizer", "", "Override local minimizer: nelder-mead, gonum")
	cmd.Flags().IntVar(&workers, "workers", -1, "Override screening workers (0 = sequential)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Override random seed")
}

// loadConfig reads the parameter file and applies flag overrides
func loadConfig(cmd *cobra.Command, path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if seederName != "" {
		cfg.Screening.Seeder = seederName
	}
	if minimizerName != "" {
		cfg.Screening.Minimizer = minimizerName
	}
	if workers >= 0 {
		cfg.Screening.Workers = workers
	}
	if cmd != nil && cmd.Flags().Changed("seed") {
		cfg.Screening.Seed = seed
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runContinuation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, configPath)
	if err != nil {
		return err
	}

	id := runID
	if id == "" {
		id = store.NewRunID()
	}

	s, err := openSession(cfg, configPath, id, false)
	if err != nil {
		return err
	}

	slog.Info("Starting continuation",
		"runID", id,
		"dim", cfg.Screening.Dim,
		"steps", cfg.Steps(),
		"mu", cfg.Physics.Mu,
		"dmu", cfg.Dmu(),
		"seeder", cfg.Screening.Seeder,
		"minimizer", cfg.Screening.Minimizer,
	)

	return execute(s, 0, cfg.Physics.Mu)
}

// execute runs the continuation loop until done or interrupted
func execute(s *session, start int, mu float64) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	begin := time.Now()
	summary, runErr := s.runner(start, mu).Run(ctx)

	if err := s.finish(summary); err != nil {
		if runErr != nil {
			slog.Error("Failed to finalize run", "runID", s.runID, "error", err)
			return runErr
		}
		return err
	}
	if runErr != nil {
		if ctx.Err() != nil {
			slog.Warn("Run interrupted, resume with the run ID", "runID", s.runID)
		}
		return runErr
	}

	fmt.Printf("Run %s: %d steps (%d found, %d without candidate) in %s, final mu %.4g, t = %v\n",
		s.runID, summary.Steps, summary.Found, summary.NotFound,
		time.Since(begin).Round(time.Millisecond), summary.FinalMu, summary.FinalT)
	return nil
}
