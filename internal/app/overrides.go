package app

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kingrea/gridlaunch/internal/grid"
	"github.com/kingrea/gridlaunch/internal/script"
	"github.com/kingrea/gridlaunch/internal/sweepfile"
)

// ErrUnknownOverride indicates a --set key that names no sweep field.
var ErrUnknownOverride = errors.New("app: unknown override key")

// ApplyOverrides sets sweep fields from key=value pairs. Keys are applied in
// sorted order. "env.NAME" sets an exported variable and "grid.KEY" replaces
// (or appends) a parameter with a comma-separated value list.
func ApplyOverrides(s *sweepfile.Sweep, overrides map[string]string) error {
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := applyOverride(s, key, overrides[key]); err != nil {
			return fmt.Errorf("--set %s: %w", key, err)
		}
	}
	return nil
}

func applyOverride(s *sweepfile.Sweep, key, value string) error {
	if name, ok := strings.CutPrefix(key, "env."); ok {
		s.Resources.Env = script.MergeEnv(s.Resources.Env, []script.EnvVar{{Name: name, Value: value}})
		return nil
	}
	if name, ok := strings.CutPrefix(key, "grid."); ok {
		setParam(&s.Grid, name, splitList(value))
		return nil
	}
	var err error
	switch key {
	case "name", "job_name":
		s.Name = value
	case "program":
		s.Program = value
	case "static_params":
		s.Grid.StaticParams = value
	case "flags":
		s.Grid.Flags = strings.Split(value, ",")
	case "per_job":
		s.PerJob, err = strconv.Atoi(value)
	case "gpus":
		s.Resources.GPUs, err = strconv.Atoi(value)
	case "mem_gb":
		s.Resources.MemoryGB, err = strconv.Atoi(value)
	case "cpus_per_task":
		s.Resources.CPUsPerTask, err = strconv.Atoi(value)
	case "time":
		s.Resources.TimeLimit = strings.TrimSpace(value)
	case "partition":
		s.Resources.Partition = value
	case "account":
		s.Resources.Account = value
	case "exclude":
		s.Resources.ExcludeNodes = splitList(value)
	case "output_dir":
		s.Resources.OutputDir = value
	case "workdir":
		s.Resources.WorkDir = value
	case "environment":
		s.Resources.Environment.Name = value
	case "conda":
		var conda bool
		if conda, err = strconv.ParseBool(value); err == nil {
			s.Resources.Environment.Conda = &conda
		}
	case "interpreter":
		s.Launch.Interpreter = value
	case "launcher":
		s.Launch.Launcher = value
	case "jitter":
		var jitter int
		if jitter, err = strconv.Atoi(value); err == nil {
			s.Launch.JitterBound = script.Jitter(jitter)
		}
	case "stagger":
		var stagger *time.Duration
		if stagger, err = sweepfile.ParseStagger(value); err == nil && stagger != nil {
			s.Launch.Stagger = stagger
		}
	default:
		return ErrUnknownOverride
	}
	return err
}

func setParam(spec *grid.Spec, key string, values []string) {
	for i := range spec.Params {
		if spec.Params[i].Key == key {
			spec.Params[i].Values = values
			return
		}
	}
	spec.Params = append(spec.Params, grid.Param{Key: key, Values: values})
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
