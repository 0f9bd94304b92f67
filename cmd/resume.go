package main

import (
	"fmt"
	"log/slog"

	"github.com/cwbudde/gpcont/internal/store"
	"github.com/spf13/cobra"
)

var resumeConfigPath string

var resumeCmd = &cobra.Command{
	Use:   "resume [run-id]",
	Short: "Resume a continuation from its last checkpoint",
	Long: `Restores step, mu, t and the screening guess from a run's checkpoint and
continues with the next step. The parameter file recorded in the checkpoint
is used unless --config is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().StringVar(&resumeConfigPath, "config", "", "Parameter file (default: the one recorded in the checkpoint)")
	addScreeningFlags(resumeCmd)
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	id := args[0]

	checkpointStore, err := store.NewFSStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint store: %w", err)
	}

	checkpoint, err := checkpointStore.LoadCheckpoint(id)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if err := checkpoint.Validate(); err != nil {
		return fmt.Errorf("invalid checkpoint: %w", err)
	}

	path := resumeConfigPath
	if path == "" {
		path = checkpoint.Config.ConfigPath
	}
	cfg, err := loadConfig(cmd, path)
	if err != nil {
		return err
	}
	if err := checkpoint.IsCompatible(newRunConfig(cfg, path)); err != nil {
		return err
	}
	if checkpoint.Done() {
		fmt.Printf("Run %s already completed %d steps\n", id, checkpoint.Step+1)
		return nil
	}

	s, err := openSession(cfg, path, id, true)
	if err != nil {
		return err
	}
	if err := restore(s, checkpoint); err != nil {
		return err
	}

	next := checkpoint.Step + 1
	mu := checkpoint.Mu + cfg.Dmu()
	slog.Info("Resuming continuation", "runID", id, "step", next, "mu", mu, "t", checkpoint.T)

	return execute(s, next, mu)
}

// restore loads the continuation state of a checkpoint into the session
func restore(s *session, checkpoint *store.Checkpoint) error {
	if err := s.controller.SetT(checkpoint.T); err != nil {
		return err
	}
	if err := s.controller.SetGuess(checkpoint.Guess); err != nil {
		return err
	}
	s.controller.SetCounter(checkpoint.Counter)
	return nil
}
