// Package sweepfile loads sweep definitions from YAML or HCL files. Both
// formats describe the same Sweep: a target program, an ordered grid of
// parameters, optional flags and the resources every array slot requests.
package sweepfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kingrea/gridlaunch/internal/grid"
	"github.com/kingrea/gridlaunch/internal/script"
)

// ErrUnknownFormat indicates a file extension no decoder is registered for.
var ErrUnknownFormat = errors.New("sweepfile: unknown sweep file format")

// Format names a supported encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatHCL  Format = "hcl"
)

// Sweep is a fully decoded sweep definition. Resources and Launch hold only
// what the file sets; the caller layers them over project defaults.
type Sweep struct {
	Name      string
	Program   string
	PerJob    int
	Grid      grid.Spec
	Resources script.ResourceSpec
	Launch    script.LaunchSpec
	Source    string
}

// ResourceSpec returns the file's resources with the job name applied.
func (s Sweep) ResourceSpec() script.ResourceSpec {
	r := s.Resources
	r.JobName = s.Name
	return r
}

// LaunchSpec returns the file's launch settings with the program and static
// parameters applied.
func (s Sweep) LaunchSpec() script.LaunchSpec {
	l := s.Launch
	l.Program = s.Program
	l.StaticParams = s.Grid.StaticParams
	return l
}

// Validate checks the definition without consulting project defaults.
func (s Sweep) Validate() error {
	var problems []string
	if strings.TrimSpace(s.Name) == "" {
		problems = append(problems, "name is required")
	}
	if strings.TrimSpace(s.Program) == "" {
		problems = append(problems, "program is required")
	}
	if s.PerJob < 1 {
		problems = append(problems, fmt.Sprintf("per_job must be >= 1 (got %d)", s.PerJob))
	}
	if err := s.Grid.Validate(); err != nil {
		problems = append(problems, err.Error())
	}
	if s.Name != "" {
		if err := s.ResourceSpec().Validate(); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("sweep %s invalid: %s", s.label(), strings.Join(problems, "; "))
	}
	return nil
}

func (s Sweep) label() string {
	if s.Source != "" {
		return s.Source
	}
	if s.Name != "" {
		return s.Name
	}
	return "<unnamed>"
}

// FormatOf picks the decoder for path by extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".hcl":
		return FormatHCL, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}

// Load reads, decodes and validates the sweep file at path.
func Load(path string) (Sweep, error) {
	format, err := FormatOf(path)
	if err != nil {
		return Sweep{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Sweep{}, fmt.Errorf("read sweep file: %w", err)
	}
	return Parse(data, path, format)
}

// Parse decodes data in the given format. filename is used in diagnostics.
func Parse(data []byte, filename string, format Format) (Sweep, error) {
	var (
		sweep Sweep
		err   error
	)
	switch format {
	case FormatYAML:
		sweep, err = parseYAML(data)
	case FormatHCL:
		sweep, err = parseHCL(data, filename)
	default:
		return Sweep{}, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
	if err != nil {
		return Sweep{}, fmt.Errorf("decode %s: %w", filename, err)
	}
	sweep.Source = filename
	if sweep.PerJob == 0 {
		sweep.PerJob = 1
	}
	if err := sweep.Validate(); err != nil {
		return Sweep{}, err
	}
	return sweep, nil
}

// ParseStagger accepts a Go duration ("90s", "2m") or a bare number of
// seconds. Empty means unset and returns nil.
func ParseStagger(value string) (*time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return script.Stagger(time.Duration(secs) * time.Second), nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return nil, fmt.Errorf("invalid stagger %q: %w", value, err)
	}
	return script.Stagger(d), nil
}
