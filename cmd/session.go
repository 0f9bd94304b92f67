package main

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/cwbudde/gpcont/internal/config"
	"github.com/cwbudde/gpcont/internal/cont"
	"github.com/cwbudde/gpcont/internal/model"
	"github.com/cwbudde/gpcont/internal/opt"
	"github.com/cwbudde/gpcont/internal/store"
)

// session ties one run's model, controller and persistence together
type session struct {
	runID      string
	cfg        *config.Config
	runConfig  store.RunConfig
	model      *model.GPE
	controller *cont.Controller
	timer      *cont.Timer
	store      *store.FSStore
	trace      *store.TraceWriter
}

func newRunConfig(cfg *config.Config, configPath string) store.RunConfig {
	s := cfg.Screening
	return store.RunConfig{
		ConfigPath: configPath,
		Dim:        s.Dim,
		Steps:      cfg.Steps(),
		Dmu:        cfg.Dmu(),
		Omega:      cfg.Omega(),
		G:          cfg.G(),
		Seeder:     s.Seeder,
		Minimizer:  s.Minimizer,
		SeedCount:  s.SeedCount,
		Spread:     s.Spread,
		Seed:       s.Seed,
	}
}

func newMinimizer(name string) (opt.LocalMinimizer, error) {
	nm := opt.NewNelderMead()
	switch name {
	case "nelder-mead":
		return nm, nil
	case "gonum":
		return opt.NewGonumNelderMead(nm.StepSize, nm.SizeTolerance, nm.MaxIterations), nil
	default:
		return nil, fmt.Errorf("unknown minimizer: %s", name)
	}
}

func newSeeder(s config.Screening, objective opt.Objective) (cont.Seeder, error) {
	switch s.Seeder {
	case "grid":
		return cont.GridSeeder{}, nil
	case "random":
		return cont.NewRandomSeeder(s.Seed), nil
	case "mayfly":
		optimizer := opt.NewMayfly(s.MayflyIters, s.MayflyPop, s.Seed)
		return cont.NewMayflySeeder(optimizer, objective, cont.NewRandomSeeder(s.Seed)), nil
	default:
		return nil, fmt.Errorf("unknown seeder: %s", s.Seeder)
	}
}

// openSession builds the model and controller for cfg and opens the run's
// trace. With resume set the trace is appended to.
func openSession(cfg *config.Config, configPath, runID string, resume bool) (*session, error) {
	fsStore, err := store.NewFSStore(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkpoint store: %w", err)
	}

	gpe, err := model.NewGPE(model.Params{
		Omega:            cfg.Omega(),
		G:                cfg.G(),
		Mu:               cfg.Physics.Mu,
		XMin:             cfg.Mesh.XRange[0],
		XMax:             cfg.Mesh.XRange[1],
		GlobalRefinement: cfg.GlobalRefinement(),
		FirstMode:        cfg.FirstMode(),
		Modes:            cfg.Screening.Dim,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create model: %w", err)
	}

	minimizer, err := newMinimizer(cfg.Screening.Minimizer)
	if err != nil {
		return nil, err
	}
	seeder, err := newSeeder(cfg.Screening, gpe.Evaluate)
	if err != nil {
		return nil, err
	}

	timer := cont.NewTimer()
	controller, err := cont.NewController(cfg.Screening.Dim, gpe, gpe.Evaluate, cont.Options{
		Ti:                 cfg.Ti(),
		SeedCount:          cfg.Screening.SeedCount,
		Spread:             cfg.Screening.Spread,
		ZeroTolerance:      cfg.Screening.ZeroTol,
		DuplicateTolerance: cfg.Screening.DuplicateTol,
		Workers:            cfg.Screening.Workers,
		Minimizer:          minimizer,
		Seeder:             seeder,
		Df:                 cfg.Df(),
		Logger:             slog.Default().With("runID", runID),
		Timer:              timer,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create controller: %w", err)
	}
	controller.SetMeshInfo(cfg.GlobalRefinement(), gpe.Cells(), gpe.Cells())

	trace, err := store.NewTraceWriter(fsStore.BaseDir(), runID, resume)
	if err != nil {
		return nil, err
	}

	return &session{
		runID:      runID,
		cfg:        cfg,
		runConfig:  newRunConfig(cfg, configPath),
		model:      gpe,
		controller: controller,
		timer:      timer,
		store:      fsStore,
		trace:      trace,
	}, nil
}

// runner returns the continuation loop starting at step start with parameter mu
func (s *session) runner(start int, mu float64) *cont.Runner {
	return &cont.Runner{
		Controller: s.controller,
		Model:      s.model,
		Start:      start,
		Steps:      s.cfg.Steps(),
		Mu:         mu,
		DMu:        s.cfg.Dmu(),
		Strict:     *s.cfg.Screening.Strict,
		TrackGuess: s.cfg.Screening.TrackGuess,
		OnStep:     s.record,
		Logger:     slog.Default().With("runID", s.runID),
	}
}

// record writes the trace entry and checkpoint for a finished step
func (s *session) record(rep cont.StepReport) error {
	objective := math.NaN()
	if rep.Found {
		objective = rep.Result.Candidates[rep.Result.Selected].F
	}

	entry := store.TraceEntry{
		Step:       rep.Step,
		Mu:         rep.Mu,
		T:          rep.T,
		Candidates: len(rep.Result.Candidates),
		Found:      rep.Found,
		Distance:   rep.Result.Distance,
		ElapsedMs:  int64(rep.Elapsed * 1000),
		Timestamp:  rep.Timestamp,
	}
	if rep.Found {
		entry.Objective = &objective
	}
	if err := s.trace.Write(entry); err != nil {
		return err
	}
	if err := s.trace.Flush(); err != nil {
		return err
	}

	checkpoint := store.NewCheckpoint(s.runID, rep.Step, rep.Mu, rep.T, rep.Guess, rep.Scalars.Counter, objective, s.runConfig)
	if err := s.store.SaveCheckpoint(s.runID, checkpoint); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	slog.Info("Step complete",
		"runID", s.runID,
		"step", rep.Step,
		"mu", rep.Mu,
		"found", rep.Found,
		"t", rep.T,
		"candidates", len(rep.Result.Candidates),
	)
	return nil
}

// finish closes the trace and writes the timing table, the summary and the
// final coefficient vector into the run directory.
func (s *session) finish(summary cont.RunSummary) error {
	if err := s.trace.Close(); err != nil {
		return err
	}

	dir := s.store.RunDir(s.runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	bench, err := os.Create(filepath.Join(dir, "benchmark.txt"))
	if err != nil {
		return fmt.Errorf("failed to create benchmark file: %w", err)
	}
	defer bench.Close()
	if err := s.timer.WriteSummary(bench); err != nil {
		return fmt.Errorf("failed to write benchmark: %w", err)
	}

	data, err := json.MarshalIndent(struct {
		RunID    string          `json:"runId"`
		Summary  cont.RunSummary `json:"summary"`
		Scalars  cont.Scalars    `json:"scalars"`
		Finished time.Time       `json:"finished"`
	}{s.runID, summary, s.controller.Scalars(), time.Now()}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize summary: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "summary.json"), data, 0644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}

	if name := s.cfg.Parameter.Filename; name != "" {
		if err := writeVector(filepath.Join(dir, filepath.Base(name)), summary.FinalT); err != nil {
			return err
		}
	}
	return nil
}

// writeVector stores v as little-endian float64 values
func writeVector(path string, v []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if err := binary.Write(f, binary.LittleEndian, v); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
