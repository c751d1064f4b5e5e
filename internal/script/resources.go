// internal/script/resources.go
//
// Resource and launch settings for one sweep submission. Zero values mean
// "not requested": the composer leaves the matching directive out rather than
// emitting it empty.

package script

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultLauncher wraps each command when a slot runs a single config.
	DefaultLauncher = "srun"
	// DefaultInterpreter runs the target program.
	DefaultInterpreter = "python -u"
	// DefaultJitterBound is the exclusive upper bound, in seconds, of the random
	// sleep before a single-config slot starts.
	DefaultJitterBound = 20
	// DefaultStagger separates concurrent launches inside one slot.
	DefaultStagger = 60 * time.Second
	// DefaultCondaSetup is sourced before `conda activate`.
	DefaultCondaSetup = "/usr/local/anaconda3/etc/profile.d/conda.sh"
)

// ErrInvalidTimeLimit indicates a wall clock limit sbatch would reject.
var ErrInvalidTimeLimit = errors.New("script: invalid time limit")

// EnvVar is one exported variable. Order is preserved in the script.
type EnvVar struct {
	Name  string
	Value string
}

// Environment selects how the runtime environment is activated. An empty Name
// disables activation. A nil Conda means conda.
type Environment struct {
	Name       string
	Conda      *bool
	CondaSetup string
}

// UsesConda reports whether activation goes through conda.
func (e Environment) UsesConda() bool {
	return e.Conda == nil || *e.Conda
}

// ResourceSpec describes the allocation requested for each array slot.
type ResourceSpec struct {
	JobName      string
	GPUs         int
	MemoryGB     int
	TimeLimit    string
	CPUsPerTask  int
	Partition    string
	Account      string
	ExcludeNodes []string
	Env          []EnvVar
	Environment  Environment
	WorkDir      string
	OutputDir    string
}

// LaunchSpec describes how each command line is assembled and paced. A nil
// JitterBound or Stagger takes the default; an explicit zero or negative
// value turns the matching sleep off.
type LaunchSpec struct {
	Interpreter  string
	Program      string
	StaticParams string
	Launcher     string
	JitterBound  *int
	Stagger      *time.Duration
}

// WithDefaults fills unset launch fields.
func (l LaunchSpec) WithDefaults() LaunchSpec {
	if strings.TrimSpace(l.Interpreter) == "" {
		l.Interpreter = DefaultInterpreter
	}
	if strings.TrimSpace(l.Launcher) == "" {
		l.Launcher = DefaultLauncher
	}
	if l.JitterBound == nil {
		l.JitterBound = Jitter(DefaultJitterBound)
	}
	if l.Stagger == nil {
		l.Stagger = Stagger(DefaultStagger)
	}
	return l
}

// Jitter returns a jitter bound for LaunchSpec.
func Jitter(seconds int) *int { return &seconds }

// Stagger returns a stagger for LaunchSpec.
func Stagger(d time.Duration) *time.Duration { return &d }

// Override copies every set field of other onto r. Slices replace rather than
// merge, except Env, which appends and lets later names win.
func (r *ResourceSpec) Override(other ResourceSpec) {
	if other.JobName != "" {
		r.JobName = other.JobName
	}
	if other.GPUs > 0 {
		r.GPUs = other.GPUs
	}
	if other.MemoryGB > 0 {
		r.MemoryGB = other.MemoryGB
	}
	if t := strings.TrimSpace(other.TimeLimit); t != "" {
		r.TimeLimit = t
	}
	if other.CPUsPerTask > 0 {
		r.CPUsPerTask = other.CPUsPerTask
	}
	if other.Partition != "" {
		r.Partition = other.Partition
	}
	if other.Account != "" {
		r.Account = other.Account
	}
	if other.ExcludeNodes != nil {
		r.ExcludeNodes = append([]string(nil), other.ExcludeNodes...)
	}
	if len(other.Env) > 0 {
		r.Env = MergeEnv(r.Env, other.Env)
	}
	if other.Environment.Name != "" {
		r.Environment.Name = other.Environment.Name
	}
	if other.Environment.Conda != nil {
		conda := *other.Environment.Conda
		r.Environment.Conda = &conda
	}
	if other.Environment.CondaSetup != "" {
		r.Environment.CondaSetup = other.Environment.CondaSetup
	}
	if other.WorkDir != "" {
		r.WorkDir = other.WorkDir
	}
	if other.OutputDir != "" {
		r.OutputDir = other.OutputDir
	}
}

// MergeEnv appends overrides to base. A name already present keeps its
// original position and takes the new value.
func MergeEnv(base, overrides []EnvVar) []EnvVar {
	out := append([]EnvVar(nil), base...)
	index := make(map[string]int, len(out))
	for i, e := range out {
		index[e.Name] = i
	}
	for _, e := range overrides {
		if i, ok := index[e.Name]; ok {
			out[i].Value = e.Value
			continue
		}
		index[e.Name] = len(out)
		out = append(out, e)
	}
	return out
}

// Validate rejects values sbatch cannot parse. Unset fields are valid.
func (r ResourceSpec) Validate() error {
	if strings.TrimSpace(r.JobName) == "" {
		return fmt.Errorf("script: job name is required")
	}
	if strings.ContainsAny(r.JobName, " \t\n/") {
		return fmt.Errorf("script: job name %q must not contain whitespace or '/'", r.JobName)
	}
	if r.GPUs < 0 || r.MemoryGB < 0 || r.CPUsPerTask < 0 {
		return fmt.Errorf("script: resource counts must be >= 0")
	}
	if r.TimeLimit != strings.TrimSpace(r.TimeLimit) {
		return fmt.Errorf("%w: %q has surrounding whitespace", ErrInvalidTimeLimit, r.TimeLimit)
	}
	if err := ValidateTimeLimit(r.TimeLimit); err != nil {
		return err
	}
	for _, e := range r.Env {
		if !validEnvName(e.Name) {
			return fmt.Errorf("script: invalid environment variable name %q", e.Name)
		}
	}
	return nil
}

// ValidateTimeLimit accepts the sbatch --time forms: "M", "M:S", "H:M:S",
// "D-H", "D-H:M" and "D-H:M:S". Empty is accepted as unset.
func ValidateTimeLimit(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if strings.EqualFold(value, "infinite") || strings.EqualFold(value, "unlimited") {
		return nil
	}
	hms := value
	withDays := false
	if idx := strings.Index(value, "-"); idx >= 0 {
		if !allDigits(value[:idx]) {
			return fmt.Errorf("%w: %s", ErrInvalidTimeLimit, value)
		}
		hms = value[idx+1:]
		withDays = true
	}
	parts := strings.Split(hms, ":")
	if len(parts) > 3 || (withDays && len(parts) == 0) {
		return fmt.Errorf("%w: %s", ErrInvalidTimeLimit, value)
	}
	for _, p := range parts {
		if !allDigits(p) {
			return fmt.Errorf("%w: %s", ErrInvalidTimeLimit, value)
		}
	}
	return nil
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.ParseUint(s, 10, 64)
	return err == nil
}

func validEnvName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
