// Package app wires the project config, sweep files, script composer,
// submitter and ledger into the operations the CLI exposes.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/kingrea/gridlaunch/internal/batch"
	"github.com/kingrea/gridlaunch/internal/config"
	"github.com/kingrea/gridlaunch/internal/grid"
	"github.com/kingrea/gridlaunch/internal/history"
	"github.com/kingrea/gridlaunch/internal/logbook"
	"github.com/kingrea/gridlaunch/internal/script"
	"github.com/kingrea/gridlaunch/internal/submit"
	"github.com/kingrea/gridlaunch/internal/sweepfile"
)

// IDSource produces the run id stamped on a generated script.
type IDSource func() string

// NewRunID returns the first eight hex characters of a random UUID.
func NewRunID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// App carries the per-invocation dependencies.
type App struct {
	Config    *config.Config
	Journal   *logbook.Logbook
	NewID     IDSource
	Confirmer submit.Confirmer
	Runner    submit.Runner
	Overrides map[string]string
}

// New loads the project at projectDir and opens its journal.
func New(projectDir string) (*App, error) {
	cfg, err := config.NewConfig(projectDir)
	if err != nil {
		return nil, err
	}
	journal, err := logbook.New(cfg.JournalPath())
	if err != nil {
		return nil, fmt.Errorf("app: open journal: %w", err)
	}
	return &App{Config: cfg, Journal: journal, NewID: NewRunID}, nil
}

// Generated describes a composed script.
type Generated struct {
	Path      string
	RunID     string
	SweepFile string
	Sweep     sweepfile.Sweep
	Resources script.ResourceSpec
	Plan      batch.Plan
	Doc       script.Document
}

// Prepare loads the sweep, merges it over project defaults and composes the
// script without touching the filesystem.
func (a *App) Prepare(ctx context.Context, sweepPath string) (Generated, error) {
	if err := ctx.Err(); err != nil {
		return Generated{}, err
	}
	sweep, err := sweepfile.Load(sweepPath)
	if err != nil {
		return Generated{}, err
	}
	if err := ApplyOverrides(&sweep, a.Overrides); err != nil {
		return Generated{}, err
	}
	if err := sweep.Validate(); err != nil {
		return Generated{}, err
	}

	res := a.Config.Resources()
	res.Override(sweep.ResourceSpec())
	res.WorkDir = a.resolve(res.WorkDir)
	res.OutputDir = a.resolve(res.OutputDir)
	if err := res.Validate(); err != nil {
		return Generated{}, err
	}
	launch := mergeLaunch(a.Config.Launch(), sweep.LaunchSpec())

	plan, err := batch.New(grid.Expand(sweep.Grid), sweep.PerJob)
	if err != nil {
		return Generated{}, err
	}
	runID := a.newID()
	return Generated{
		Path:      a.Config.ScriptPath(),
		RunID:     runID,
		SweepFile: sweepPath,
		Sweep:     sweep,
		Resources: res,
		Plan:      plan,
		Doc:       script.Compose(res, plan, launch, runID),
	}, nil
}

// Generate prepares the script, creates the scheduler output directory and
// writes the script to the configured path, replacing any previous one.
func (a *App) Generate(ctx context.Context, sweepPath string) (Generated, error) {
	gen, err := a.Prepare(ctx, sweepPath)
	if err != nil {
		a.Journal.Error("generate %s failed: %v", sweepPath, err)
		return Generated{}, err
	}
	if dir := gen.Resources.OutputDir; dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Generated{}, fmt.Errorf("app: create output dir: %w", err)
		}
	}
	if err := script.WriteFile(gen.Doc, gen.Path); err != nil {
		a.Journal.Error("write %s failed: %v", gen.Path, err)
		return Generated{}, err
	}
	a.Journal.Info("generated run=%s job=%s configs=%d per_job=%d num_jobs=%d script=%s",
		gen.RunID, gen.Sweep.Name, gen.Plan.Len(), gen.Plan.PerJob(), gen.Plan.NumJobs(), gen.Path)
	return gen, nil
}

// Submit asks for confirmation and submits the script at scriptPath. sweepFile
// is only recorded in the ledger and may be empty.
func (a *App) Submit(ctx context.Context, scriptPath, sweepFile string) (submit.Result, error) {
	if scriptPath == "" {
		scriptPath = a.Config.ScriptPath()
	}
	s := &submit.Submitter{
		Sbatch:    a.Config.SbatchBinary(),
		Runner:    a.Runner,
		Confirmer: a.Confirmer,
	}
	res, err := s.Submit(ctx, scriptPath)
	switch {
	case errors.Is(err, submit.ErrScriptNotFound):
		a.Journal.Error("submit: no script at %s", scriptPath)
		return res, err
	case errors.Is(err, submit.ErrAborted):
		a.Journal.Warn("submit %s aborted by user", scriptPath)
		return res, err
	}

	var subErr *submit.SubmissionError
	status := history.StatusSubmitted
	if err != nil {
		if !errors.As(err, &subErr) {
			a.Journal.Error("submit %s: %v", scriptPath, err)
			return res, err
		}
		status = history.StatusFailed
		a.Journal.Error("sbatch failed for %s: %v", scriptPath, subErr.Err)
	} else if res.JobID == "" {
		a.Journal.Warn("no job id in sbatch output for %s", scriptPath)
	} else {
		a.Journal.Info("submitted run=%s job_id=%s script=%s", res.Recap.Summary.RunID, res.JobID, scriptPath)
	}

	if recErr := a.record(ctx, res, scriptPath, sweepFile, status); recErr != nil {
		a.Journal.Warn("ledger: %v", recErr)
	}
	return res, err
}

// Launch generates the script for sweepPath and submits it.
func (a *App) Launch(ctx context.Context, sweepPath string) (Generated, submit.Result, error) {
	gen, err := a.Generate(ctx, sweepPath)
	if err != nil {
		return Generated{}, submit.Result{}, err
	}
	res, err := a.Submit(ctx, gen.Path, sweepPath)
	return gen, res, err
}

// History lists recorded submissions, newest first.
func (a *App) History(ctx context.Context, limit int) ([]history.Submission, error) {
	ledger, err := history.Open(a.Config.HistoryPath())
	if err != nil {
		return nil, err
	}
	defer ledger.Close()
	return ledger.List(ctx, limit)
}

func (a *App) record(ctx context.Context, res submit.Result, scriptPath, sweepFile, status string) error {
	ledger, err := history.Open(a.Config.HistoryPath())
	if err != nil {
		return err
	}
	defer ledger.Close()
	sum := res.Recap.Summary
	_, err = ledger.Record(ctx, history.Submission{
		RunID:      sum.RunID,
		JobName:    sum.JobName,
		SweepFile:  sweepFile,
		ScriptPath: scriptPath,
		Configs:    sum.Configs,
		PerJob:     sum.PerJob,
		NumJobs:    sum.NumJobs,
		JobID:      res.JobID,
		Status:     status,
		Output:     res.Output,
	})
	return err
}

func (a *App) newID() string {
	if a.NewID == nil {
		return NewRunID()
	}
	return a.NewID()
}

func (a *App) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(a.Config.ProjectDir, path)
}

// mergeLaunch layers the sweep's launch settings over project defaults.
func mergeLaunch(base, sweep script.LaunchSpec) script.LaunchSpec {
	out := base
	out.Program = sweep.Program
	out.StaticParams = sweep.StaticParams
	if sweep.Interpreter != "" {
		out.Interpreter = sweep.Interpreter
	}
	if sweep.Launcher != "" {
		out.Launcher = sweep.Launcher
	}
	if sweep.JitterBound != nil {
		out.JitterBound = sweep.JitterBound
	}
	if sweep.Stagger != nil {
		out.Stagger = sweep.Stagger
	}
	return out
}
