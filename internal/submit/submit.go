// Package submit hands a generated batch script to the scheduler after the
// user approves a recap of what it will request. It makes one attempt and
// reports the scheduler's response as is.
package submit

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/kingrea/gridlaunch/internal/script"
)

var (
	// ErrScriptNotFound indicates there is no script to submit.
	ErrScriptNotFound = errors.New("submit: script not found")
	// ErrAborted indicates the user declined the recap.
	ErrAborted = errors.New("submit: aborted by user")
)

var jobIDRe = regexp.MustCompile(`Submitted batch job (\d+)`)

// SubmissionError reports a scheduler command that exited unsuccessfully.
type SubmissionError struct {
	Script string
	Output string
	Err    error
}

func (e *SubmissionError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("submit %s: %v", e.Script, e.Err)
	}
	return fmt.Sprintf("submit %s: %v: %s", e.Script, e.Err, out)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// Runner executes an external command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes name with args.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Result describes a completed submission.
type Result struct {
	Recap  Recap
	Output string
	// JobID is parsed from the scheduler output when present. It is empty when
	// the output did not match.
	JobID string
}

// Submitter submits scripts with a configurable command, runner and
// confirmation provider. Zero fields fall back to sbatch, ExecRunner and
// AlwaysConfirm.
type Submitter struct {
	Sbatch    string
	Runner    Runner
	Confirmer Confirmer
}

// Submit checks the script exists, asks for confirmation and runs the
// scheduler command once.
func (s *Submitter) Submit(ctx context.Context, scriptPath string) (Result, error) {
	data, err := os.ReadFile(scriptPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Result{}, fmt.Errorf("%w: %s", ErrScriptNotFound, scriptPath)
		}
		return Result{}, fmt.Errorf("submit: read script: %w", err)
	}
	recap := Recap{ScriptPath: scriptPath}
	if summary, err := script.ParseSummary(string(data)); err == nil {
		recap.Summary = summary
		recap.HasSummary = true
	}

	ok, err := s.confirmer().Confirm(ctx, recap)
	if err != nil {
		return Result{Recap: recap}, fmt.Errorf("submit: confirm: %w", err)
	}
	if !ok {
		return Result{Recap: recap}, ErrAborted
	}

	out, err := s.runner().Run(ctx, s.sbatch(), scriptPath)
	res := Result{Recap: recap, Output: string(out)}
	if err != nil {
		return res, &SubmissionError{Script: scriptPath, Output: res.Output, Err: err}
	}
	res.JobID = ParseJobID(res.Output)
	return res, nil
}

// ParseJobID extracts the job id from sbatch output, or returns "".
func ParseJobID(output string) string {
	m := jobIDRe.FindStringSubmatch(output)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func (s *Submitter) sbatch() string {
	if s.Sbatch == "" {
		return "sbatch"
	}
	return s.Sbatch
}

func (s *Submitter) runner() Runner {
	if s.Runner == nil {
		return ExecRunner{}
	}
	return s.Runner
}

func (s *Submitter) confirmer() Confirmer {
	if s.Confirmer == nil {
		return AlwaysConfirm
	}
	return s.Confirmer
}
