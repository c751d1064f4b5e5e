package sweepfile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/kingrea/gridlaunch/internal/grid"
	"github.com/kingrea/gridlaunch/internal/script"
)

// hclFile is the top-level layout of an HCL sweep file.
type hclFile struct {
	Sweeps []*hclSweep `hcl:"sweep,block"`
}

type hclSweep struct {
	Name         string          `hcl:"name,label"`
	Program      string          `hcl:"program"`
	StaticParams string          `hcl:"static_params,optional"`
	PerJob       int             `hcl:"per_job,optional"`
	Flags        []string        `hcl:"flags,optional"`
	WorkDir      string          `hcl:"workdir,optional"`
	Params       []*hclParam     `hcl:"param,block"`
	Env          []*hclEnv       `hcl:"env,block"`
	Resources    *hclResources   `hcl:"resources,block"`
	Environment  *hclEnvironment `hcl:"environment,block"`
	Launch       *hclLaunch      `hcl:"launch,block"`
}

type hclParam struct {
	Key    string    `hcl:"key,label"`
	Values cty.Value `hcl:"values"`
}

type hclEnv struct {
	Name  string    `hcl:"name,label"`
	Value cty.Value `hcl:"value"`
}

type hclResources struct {
	GPUs        int      `hcl:"gpus,optional"`
	MemoryGB    int      `hcl:"mem_gb,optional"`
	Time        string   `hcl:"time,optional"`
	CPUsPerTask int      `hcl:"cpus_per_task,optional"`
	Partition   string   `hcl:"partition,optional"`
	Account     string   `hcl:"account,optional"`
	Exclude     []string `hcl:"exclude,optional"`
	OutputDir   string   `hcl:"output_dir,optional"`
}

type hclEnvironment struct {
	Name       string `hcl:"name"`
	Conda      *bool  `hcl:"conda,optional"`
	CondaSetup string `hcl:"conda_setup,optional"`
}

type hclLaunch struct {
	Interpreter string `hcl:"interpreter,optional"`
	Launcher    string `hcl:"launcher,optional"`
	Jitter      *int   `hcl:"jitter,optional"`
	Stagger     string `hcl:"stagger,optional"`
}

func parseHCL(data []byte, filename string) (Sweep, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return Sweep{}, fmt.Errorf("failed to parse HCL: %w", diags)
	}
	var parsed hclFile
	if diags := gohcl.DecodeBody(file.Body, nil, &parsed); diags.HasErrors() {
		return Sweep{}, fmt.Errorf("failed to decode HCL: %w", diags)
	}
	switch len(parsed.Sweeps) {
	case 0:
		return Sweep{}, errors.New("no sweep block found")
	case 1:
	default:
		return Sweep{}, fmt.Errorf("expected one sweep block, found %d", len(parsed.Sweeps))
	}
	raw := parsed.Sweeps[0]

	params := make([]grid.Param, 0, len(raw.Params))
	for _, p := range raw.Params {
		values, err := ctyStrings(p.Values)
		if err != nil {
			return Sweep{}, fmt.Errorf("param %q: %w", p.Key, err)
		}
		params = append(params, grid.Param{Key: p.Key, Values: values})
	}
	env := make([]script.EnvVar, 0, len(raw.Env))
	for _, e := range raw.Env {
		value, err := ctyString(e.Value)
		if err != nil {
			return Sweep{}, fmt.Errorf("env %q: %w", e.Name, err)
		}
		env = append(env, script.EnvVar{Name: e.Name, Value: value})
	}

	sweep := Sweep{
		Name:    raw.Name,
		Program: raw.Program,
		PerJob:  raw.PerJob,
		Grid: grid.Spec{
			StaticParams: raw.StaticParams,
			Params:       params,
			Flags:        raw.Flags,
		},
		Resources: script.ResourceSpec{Env: env, WorkDir: raw.WorkDir},
	}
	if r := raw.Resources; r != nil {
		sweep.Resources.GPUs = r.GPUs
		sweep.Resources.MemoryGB = r.MemoryGB
		sweep.Resources.TimeLimit = strings.TrimSpace(r.Time)
		sweep.Resources.CPUsPerTask = r.CPUsPerTask
		sweep.Resources.Partition = r.Partition
		sweep.Resources.Account = r.Account
		sweep.Resources.ExcludeNodes = r.Exclude
		sweep.Resources.OutputDir = r.OutputDir
	}
	if e := raw.Environment; e != nil {
		sweep.Resources.Environment = script.Environment{
			Name:       e.Name,
			Conda:      e.Conda,
			CondaSetup: e.CondaSetup,
		}
	}
	if l := raw.Launch; l != nil {
		stagger, err := ParseStagger(l.Stagger)
		if err != nil {
			return Sweep{}, err
		}
		sweep.Launch = script.LaunchSpec{
			Interpreter: l.Interpreter,
			Launcher:    l.Launcher,
			JitterBound: l.Jitter,
			Stagger:     stagger,
		}
	}
	return sweep, nil
}

// ctyStrings flattens a list, tuple or set into command-line text. A single
// primitive is treated as a one-element list.
func ctyStrings(v cty.Value) ([]string, error) {
	if v.IsNull() {
		return nil, nil
	}
	t := v.Type()
	if !(t.IsListType() || t.IsTupleType() || t.IsSetType()) {
		s, err := ctyString(v)
		if err != nil {
			return nil, err
		}
		return []string{s}, nil
	}
	out := make([]string, 0, v.LengthInt())
	for it := v.ElementIterator(); it.Next(); {
		_, elem := it.Element()
		s, err := ctyString(elem)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// ctyString renders a primitive. Numbers use plain decimal notation and bools
// render as true or false.
func ctyString(v cty.Value) (string, error) {
	if v.IsNull() || !v.IsKnown() {
		return "", errors.New("value must be known and non-null")
	}
	if !v.Type().IsPrimitiveType() {
		return "", fmt.Errorf("expected a string, number or bool, got %s", v.Type().FriendlyName())
	}
	s, err := convert.Convert(v, cty.String)
	if err != nil {
		return "", err
	}
	return s.AsString(), nil
}
