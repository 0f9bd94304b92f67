package main

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/cwbudde/gpcont/internal/store"
)

const testParams = `{
  "parameter": {"filename": "final.bin"},
  "physics": {"omega": [1.0], "gs_1": [1.0], "mu": 2.0},
  "mesh": {"xrange": [-10.0, 10.0], "global_refinements": [8]},
  "algorithm": {"ti": [1.0], "epsilon": [1e-10, 1e-6], "Ndmu": [3], "dmu": [0.5]},
  "screening": {"dim": 1, "spread": 4, "track_guess": true}
}`

// groundState is the nonzero minimum of the single-mode energy for mu
func groundState(mu float64) float64 {
	c := math.Sqrt(1 / (2 * math.Pi))
	return math.Sqrt((mu - 0.5) / c)
}

func writeParams(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "params.json")
	if err := os.WriteFile(path, []byte(testParams), 0644); err != nil {
		t.Fatalf("Failed to write params: %v", err)
	}
	return path
}

func runTestContinuation(t *testing.T, id string) (*store.FSStore, string) {
	t.Helper()
	tmpDir := useDataDir(t)

	configPath = writeParams(t)
	runID = id
	t.Cleanup(func() { configPath, runID = "", "" })

	if err := runContinuation(nil, nil); err != nil {
		t.Fatalf("runContinuation failed: %v", err)
	}

	s, err := store.NewFSStore(tmpDir)
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	return s, configPath
}

func readTrace(t *testing.T, s *store.FSStore, id string) []store.TraceEntry {
	t.Helper()
	reader, err := store.NewTraceReader(s.BaseDir(), id)
	if err != nil {
		t.Fatalf("NewTraceReader failed: %v", err)
	}
	defer reader.Close()

	entries, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	return entries
}

func TestRunContinuation(t *testing.T) {
	s, _ := runTestContinuation(t, "e2e")

	checkpoint, err := s.LoadCheckpoint("e2e")
	if err != nil {
		t.Fatalf("LoadCheckpoint failed: %v", err)
	}
	if err := checkpoint.Validate(); err != nil {
		t.Fatalf("Checkpoint invalid: %v", err)
	}
	if checkpoint.Step != 2 || checkpoint.Counter != 3 || !checkpoint.Done() {
		t.Errorf("Expected three successful steps, got step %d counter %d", checkpoint.Step, checkpoint.Counter)
	}
	if math.Abs(checkpoint.Mu-3) > 1e-12 {
		t.Errorf("Expected last mu 3, got %f", checkpoint.Mu)
	}
	if got, want := math.Abs(checkpoint.T[0]), groundState(3); math.Abs(got-want) > 1e-3 {
		t.Errorf("Expected |t| = %f, got %f", want, got)
	}

	entries := readTrace(t, s, "e2e")
	if len(entries) != 3 {
		t.Fatalf("Expected 3 trace entries, got %d", len(entries))
	}
	for i, e := range entries {
		if e.Step != i || !e.Found || e.Objective == nil {
			t.Errorf("Entry %d unexpected: %+v", i, e)
		}
		if got, want := math.Abs(e.T[0]), groundState(e.Mu); math.Abs(got-want) > 1e-3 {
			t.Errorf("Entry %d: expected |t| = %f, got %f", i, want, got)
		}
	}

	for _, name := range []string{"benchmark.txt", "summary.json"} {
		if _, err := os.Stat(filepath.Join(s.RunDir("e2e"), name)); err != nil {
			t.Errorf("Missing %s: %v", name, err)
		}
	}

	f, err := os.Open(filepath.Join(s.RunDir("e2e"), "final.bin"))
	if err != nil {
		t.Fatalf("Missing final vector: %v", err)
	}
	defer f.Close()
	final := make([]float64, 1)
	if err := binary.Read(f, binary.LittleEndian, final); err != nil {
		t.Fatalf("Failed to read final vector: %v", err)
	}
	if final[0] != checkpoint.T[0] {
		t.Errorf("Final vector %v does not match checkpoint %v", final, checkpoint.T)
	}
}

func TestResumeContinuesAfterCheckpoint(t *testing.T) {
	s, _ := runTestContinuation(t, "resumed")

	// Rewind to the first step as if the run had been interrupted there
	checkpoint, err := s.LoadCheckpoint("resumed")
	if err != nil {
		t.Fatalf("LoadCheckpoint failed: %v", err)
	}
	entries := readTrace(t, s, "resumed")
	checkpoint.Step = 0
	checkpoint.Mu = entries[0].Mu
	checkpoint.T = entries[0].T
	checkpoint.Guess = entries[0].T
	checkpoint.Counter = 1
	if err := s.SaveCheckpoint("resumed", checkpoint); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}

	if err := runResume(nil, []string{"resumed"}); err != nil {
		t.Fatalf("runResume failed: %v", err)
	}

	checkpoint, err = s.LoadCheckpoint("resumed")
	if err != nil {
		t.Fatalf("LoadCheckpoint failed: %v", err)
	}
	if checkpoint.Step != 2 || checkpoint.Counter != 3 {
		t.Errorf("Expected resume to finish at step 2 with counter 3, got %d, %d", checkpoint.Step, checkpoint.Counter)
	}
	if math.Abs(checkpoint.Mu-3) > 1e-12 {
		t.Errorf("Expected last mu 3, got %f", checkpoint.Mu)
	}

	// Resumed steps are appended to the existing trace
	if got := len(readTrace(t, s, "resumed")); got != 5 {
		t.Errorf("Expected 5 trace entries after resume, got %d", got)
	}
}

func TestResumeCompletedRun(t *testing.T) {
	runTestContinuation(t, "complete")

	if err := runResume(nil, []string{"complete"}); err != nil {
		t.Errorf("Resuming a completed run should be a no-op, got %v", err)
	}
}

func TestResumeUnknownRun(t *testing.T) {
	useDataDir(t)

	if err := runResume(nil, []string{"missing"}); err == nil {
		t.Error("Expected error for unknown run")
	}
}

func TestNewMinimizer(t *testing.T) {
	for _, name := range []string{"nelder-mead", "gonum"} {
		if _, err := newMinimizer(name); err != nil {
			t.Errorf("newMinimizer(%s): %v", name, err)
		}
	}
	if _, err := newMinimizer("bfgs"); err == nil {
		t.Error("Expected error for unknown minimizer")
	}
}
