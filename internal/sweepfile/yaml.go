package sweepfile

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/gridlaunch/internal/grid"
	"github.com/kingrea/gridlaunch/internal/script"
)

// yamlSweep mirrors the YAML layout. grid and env stay as nodes so mapping
// order survives decoding.
type yamlSweep struct {
	Name         string          `yaml:"name"`
	Program      string          `yaml:"program"`
	StaticParams string          `yaml:"static_params"`
	PerJob       int             `yaml:"per_job"`
	Grid         yaml.Node       `yaml:"grid"`
	Flags        []string        `yaml:"flags"`
	WorkDir      string          `yaml:"workdir"`
	Env          yaml.Node       `yaml:"env"`
	Resources    yamlResources   `yaml:"resources"`
	Environment  yamlEnvironment `yaml:"environment"`
	Launch       yamlLaunch      `yaml:"launch"`
}

type yamlResources struct {
	GPUs        int      `yaml:"gpus"`
	MemoryGB    int      `yaml:"mem_gb"`
	Time        string   `yaml:"time"`
	CPUsPerTask int      `yaml:"cpus_per_task"`
	Partition   string   `yaml:"partition"`
	Account     string   `yaml:"account"`
	Exclude     []string `yaml:"exclude"`
	OutputDir   string   `yaml:"output_dir"`
}

type yamlEnvironment struct {
	Name       string `yaml:"name"`
	Conda      *bool  `yaml:"conda"`
	CondaSetup string `yaml:"conda_setup"`
}

type yamlLaunch struct {
	Interpreter string `yaml:"interpreter"`
	Launcher    string `yaml:"launcher"`
	Jitter      *int   `yaml:"jitter"`
	Stagger     string `yaml:"stagger"`
}

func parseYAML(data []byte) (Sweep, error) {
	var raw yamlSweep
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Sweep{}, err
	}
	params, err := yamlParams(&raw.Grid)
	if err != nil {
		return Sweep{}, err
	}
	env, err := yamlEnv(&raw.Env)
	if err != nil {
		return Sweep{}, err
	}
	stagger, err := ParseStagger(raw.Launch.Stagger)
	if err != nil {
		return Sweep{}, err
	}
	return Sweep{
		Name:    raw.Name,
		Program: raw.Program,
		PerJob:  raw.PerJob,
		Grid: grid.Spec{
			StaticParams: raw.StaticParams,
			Params:       params,
			Flags:        raw.Flags,
		},
		Resources: script.ResourceSpec{
			GPUs:         raw.Resources.GPUs,
			MemoryGB:     raw.Resources.MemoryGB,
			TimeLimit:    strings.TrimSpace(raw.Resources.Time),
			CPUsPerTask:  raw.Resources.CPUsPerTask,
			Partition:    raw.Resources.Partition,
			Account:      raw.Resources.Account,
			ExcludeNodes: raw.Resources.Exclude,
			Env:          env,
			Environment: script.Environment{
				Name:       raw.Environment.Name,
				Conda:      raw.Environment.Conda,
				CondaSetup: raw.Environment.CondaSetup,
			},
			WorkDir:   raw.WorkDir,
			OutputDir: raw.Resources.OutputDir,
		},
		Launch: script.LaunchSpec{
			Interpreter: raw.Launch.Interpreter,
			Launcher:    raw.Launch.Launcher,
			JitterBound: raw.Launch.Jitter,
			Stagger:     stagger,
		},
	}, nil
}

// yamlParams walks the grid mapping in document order. A scalar value is a
// single candidate; a null value is an empty candidate list.
func yamlParams(node *yaml.Node) ([]grid.Param, error) {
	if node.Kind == 0 {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: grid must be a mapping", node.Line)
	}
	params := make([]grid.Param, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		values, err := yamlValues(key.Value, value)
		if err != nil {
			return nil, err
		}
		params = append(params, grid.Param{Key: key.Value, Values: values})
	}
	return params, nil
}

func yamlValues(key string, node *yaml.Node) ([]string, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			return nil, nil
		}
		return []string{node.Value}, nil
	case yaml.SequenceNode:
		values := make([]string, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: grid %s: values must be scalars", item.Line, key)
			}
			values = append(values, item.Value)
		}
		return values, nil
	default:
		return nil, fmt.Errorf("line %d: grid %s: expected a scalar or a list", node.Line, key)
	}
}

func yamlEnv(node *yaml.Node) ([]script.EnvVar, error) {
	if node.Kind == 0 {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: env must be a mapping", node.Line)
	}
	env := make([]script.EnvVar, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if value.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("line %d: env %s must be a scalar", value.Line, key.Value)
		}
		env = append(env, script.EnvVar{Name: key.Value, Value: value.Value})
	}
	return env, nil
}
