package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/kingrea/gridlaunch/internal/app"
	"github.com/kingrea/gridlaunch/internal/config"
	"github.com/kingrea/gridlaunch/internal/logbook"
	"github.com/kingrea/gridlaunch/internal/submit"
	"github.com/kingrea/gridlaunch/internal/tui"
)

// errUsage marks an error already reported with the command's usage text.
var errUsage = errors.New("usage")

type cli struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// commonFlags are shared by every command that loads a project.
type commonFlags struct {
	project string
	sets    keyValueFlag
	yes     bool
	plain   bool
}

func (c *cli) newFlagSet(name string, common *commonFlags, withSets, withPrompt bool) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	fs.StringVar(&common.project, "project", "", "path to the project directory (defaults to cwd)")
	if withSets {
		fs.Var(&common.sets, "set", "sweep override (key=value, repeatable)")
	}
	if withPrompt {
		fs.BoolVar(&common.yes, "yes", false, "submit without asking for confirmation")
		fs.BoolVar(&common.plain, "plain", false, "ask on a plain line instead of the interactive prompt")
	}
	return fs
}

func (c *cli) parse(fs *flag.FlagSet, args []string) error {
	// flag already printed the problem and the defaults
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	return nil
}

func (c *cli) initCmd(args []string) error {
	var common commonFlags
	fs := c.newFlagSet("init", &common, false, false)
	if err := c.parse(fs, args); err != nil {
		return err
	}
	dir, err := projectDir(common.project)
	if err != nil {
		return err
	}
	if err := config.InitProjectDir(dir); err != nil {
		return fmt.Errorf("init %s: %w", config.ProjectDirName, err)
	}
	fmt.Fprintf(c.stdout, "Initialized %s\n", filepath.Join(dir, config.ProjectDirName))
	return nil
}

func (c *cli) generateCmd(ctx context.Context, args []string) error {
	var common commonFlags
	fs := c.newFlagSet("generate", &common, true, false)
	if err := c.parse(fs, args); err != nil {
		return err
	}
	sweep, err := oneArg(fs, "generate <sweep.yaml|sweep.hcl>")
	if err != nil {
		return err
	}
	a, err := c.loadApp(common)
	if err != nil {
		return err
	}
	gen, err := a.Generate(ctx, sweep)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Wrote %s (run %s): %d configs, %d per job, %d jobs\n",
		gen.Path, gen.RunID, gen.Plan.Len(), gen.Plan.PerJob(), gen.Plan.NumJobs())
	return nil
}

func (c *cli) planCmd(ctx context.Context, args []string) error {
	var common commonFlags
	fs := c.newFlagSet("plan", &common, true, false)
	if err := c.parse(fs, args); err != nil {
		return err
	}
	sweep, err := oneArg(fs, "plan <sweep.yaml|sweep.hcl>")
	if err != nil {
		return err
	}
	a, err := c.loadApp(common)
	if err != nil {
		return err
	}
	gen, err := a.Prepare(ctx, sweep)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, tui.RenderPlan(gen.Sweep.Name, gen.Plan))
	return nil
}

func (c *cli) submitCmd(ctx context.Context, args []string) error {
	var common commonFlags
	fs := c.newFlagSet("submit", &common, false, true)
	if err := c.parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() > 1 {
		fmt.Fprintln(c.stderr, "Usage: gridlaunch submit [script]")
		return errUsage
	}
	a, err := c.loadApp(common)
	if err != nil {
		return err
	}
	res, err := a.Submit(ctx, fs.Arg(0), "")
	c.printOutput(res)
	return err
}

func (c *cli) launchCmd(ctx context.Context, args []string) error {
	var common commonFlags
	fs := c.newFlagSet("launch", &common, true, true)
	if err := c.parse(fs, args); err != nil {
		return err
	}
	sweep, err := oneArg(fs, "launch <sweep.yaml|sweep.hcl>")
	if err != nil {
		return err
	}
	a, err := c.loadApp(common)
	if err != nil {
		return err
	}
	gen, res, err := a.Launch(ctx, sweep)
	if gen.Path != "" {
		fmt.Fprintf(c.stdout, "Wrote %s (run %s)\n", gen.Path, gen.RunID)
	}
	c.printOutput(res)
	return err
}

func (c *cli) historyCmd(ctx context.Context, args []string) error {
	var common commonFlags
	fs := c.newFlagSet("history", &common, false, false)
	limit := fs.Int("limit", 20, "number of submissions to show (0 for all)")
	if err := c.parse(fs, args); err != nil {
		return err
	}
	a, err := c.loadApp(common)
	if err != nil {
		return err
	}
	rows, err := a.History(ctx, *limit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(c.stdout, "No submissions recorded.")
		return nil
	}
	for _, r := range rows {
		jobID := r.JobID
		if jobID == "" {
			jobID = "-"
		}
		fmt.Fprintf(c.stdout, "%s  %-9s  run=%s  job=%s  job_id=%s  configs=%d  jobs=%d\n",
			r.CreatedAt.Local().Format(time.DateTime), r.Status, r.RunID, r.JobName, jobID, r.Configs, r.NumJobs)
	}
	return nil
}

func (c *cli) logCmd(args []string) error {
	var common commonFlags
	fs := c.newFlagSet("log", &common, false, false)
	lines := fs.Int("n", 20, "number of lines to show")
	level := fs.String("level", "", "only show entries at or above this level (INFO, WARN, ERROR)")
	if err := c.parse(fs, args); err != nil {
		return err
	}
	a, err := c.loadApp(common)
	if err != nil {
		return err
	}
	if *level != "" {
		minLevel, err := logbook.ParseLevel(*level)
		if err != nil {
			return err
		}
		entries := a.Journal.Entries(minLevel)
		if len(entries) > *lines {
			entries = entries[len(entries)-*lines:]
		}
		for _, e := range entries {
			fmt.Fprintf(c.stdout, "%s %-5s %s\n", e.Time.Format(time.RFC3339), e.Level, e.Message)
		}
		return nil
	}
	tail, total := a.Journal.Tail(*lines)
	for _, line := range tail {
		fmt.Fprintln(c.stdout, line)
	}
	if total > len(tail) {
		fmt.Fprintf(c.stdout, "(%d of %d lines)\n", len(tail), total)
	}
	return nil
}

func (c *cli) loadApp(common commonFlags) (*app.App, error) {
	dir, err := projectDir(common.project)
	if err != nil {
		return nil, err
	}
	a, err := app.New(dir)
	if err != nil {
		return nil, err
	}
	a.Overrides = common.sets
	a.Confirmer = c.confirmer(common)
	return a, nil
}

// confirmer picks the prompt: none with --yes, a plain line when asked or
// when stdin is not a terminal, otherwise the interactive prompt.
func (c *cli) confirmer(common commonFlags) submit.Confirmer {
	if common.yes {
		return submit.AlwaysConfirm
	}
	if common.plain || !isTerminal(c.stdin) {
		return submit.LineConfirmer{In: c.stdin, Out: c.stdout}
	}
	return tui.Prompt{In: c.stdin, Out: c.stdout}
}

func (c *cli) printOutput(res submit.Result) {
	if res.Output != "" {
		fmt.Fprint(c.stdout, res.Output)
	}
}

func (c *cli) exitCode(err error) int {
	var subErr *submit.SubmissionError
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		return 2
	case errors.Is(err, submit.ErrAborted):
		fmt.Fprintln(c.stderr, "Aborted.")
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(c.stderr, "Aborted.")
	case errors.As(err, &subErr):
		fmt.Fprintf(c.stderr, "sbatch failed: %v\n", subErr.Err)
	default:
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
	}
	return 1
}

func oneArg(fs *flag.FlagSet, usage string) (string, error) {
	if fs.NArg() != 1 || strings.TrimSpace(fs.Arg(0)) == "" {
		fmt.Fprintf(fs.Output(), "Usage: gridlaunch %s\n", usage)
		return "", errUsage
	}
	return fs.Arg(0), nil
}

func projectDir(flagValue string) (string, error) {
	if flagValue != "" {
		return filepath.Abs(flagValue)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("determine working directory: %w", err)
	}
	return cwd, nil
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
