// internal/config/config.go
//
// This package handles configuration and the .gridlaunch directory structure.
// Every project that launches sweeps gets a .gridlaunch/ folder in its root
// holding the project defaults, the journal and the submission ledger.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/gridlaunch/internal/script"
)

const (
	// ProjectDirName is the name of the directory we create in each project
	ProjectDirName = ".gridlaunch"

	defaultPartition   = "prod"
	defaultCPUsPerTask = 2
	defaultOutputDir   = "slurm_logs"
	defaultScriptPath  = "__sbatch__.sh"
	defaultSbatch      = "sbatch"
	defaultHistoryPath = ProjectDirName + "/state/history.db"
)

const defaultProjectConfigYAML = `# gridlaunch project configuration
version: 1

# Scheduler defaults applied under every sweep file.
slurm:
  partition: prod
  # account: my-account
  cpus_per_task: 2
  output_dir: slurm_logs
  sbatch: sbatch
  # exclude: [node01]

# How each configuration is launched inside an array slot.
launch:
  interpreter: python -u
  launcher: srun
  jitter: 20
  stagger: 60s

# Runtime environment activated before the commands run.
environment:
  conda: true
  conda_setup: /usr/local/anaconda3/etc/profile.d/conda.sh
  # name: my-env

# Variables exported in every script, in this order.
env:
  WANDB__SERVICE_WAIT: "300"

paths:
  script: __sbatch__.sh
  history: .gridlaunch/state/history.db
`

// SlurmConfig holds scheduler defaults.
type SlurmConfig struct {
	Partition   string   `yaml:"partition"`
	Account     string   `yaml:"account,omitempty"`
	CPUsPerTask int      `yaml:"cpus_per_task"`
	OutputDir   string   `yaml:"output_dir"`
	Sbatch      string   `yaml:"sbatch"`
	Exclude     []string `yaml:"exclude,omitempty"`
}

// LaunchConfig holds command launch defaults.
type LaunchConfig struct {
	Interpreter string `yaml:"interpreter"`
	Launcher    string `yaml:"launcher"`
	Jitter      *int   `yaml:"jitter"`
	Stagger     string `yaml:"stagger"`
}

// EnvironmentConfig selects the default activation.
type EnvironmentConfig struct {
	Name       string `yaml:"name,omitempty"`
	Conda      *bool  `yaml:"conda,omitempty"`
	CondaSetup string `yaml:"conda_setup"`
}

// PathsConfig locates generated files. Relative paths resolve against the
// project directory.
type PathsConfig struct {
	Script  string `yaml:"script"`
	History string `yaml:"history"`
}

// ProjectConfig models .gridlaunch/config.yaml.
type ProjectConfig struct {
	Version     int               `yaml:"version"`
	Slurm       SlurmConfig       `yaml:"slurm"`
	Launch      LaunchConfig      `yaml:"launch"`
	Environment EnvironmentConfig `yaml:"environment"`
	Env         OrderedEnv        `yaml:"env"`
	Paths       PathsConfig       `yaml:"paths"`
}

// OrderedEnv is a YAML mapping of exported variables that keeps file order.
type OrderedEnv []script.EnvVar

// UnmarshalYAML walks the mapping node pairwise so order survives.
func (e *OrderedEnv) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: env must be a mapping", node.Line)
	}
	out := make(OrderedEnv, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if value.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: env %s must be a scalar", value.Line, key.Value)
		}
		out = append(out, script.EnvVar{Name: key.Value, Value: value.Value})
	}
	*e = out
	return nil
}

// Config holds the runtime configuration for one project.
type Config struct {
	// ProjectDir is the directory sweeps are launched from
	ProjectDir string

	// StateRoot is ProjectDir/.gridlaunch
	StateRoot string

	Project ProjectConfig
}

// InitProjectDir creates the .gridlaunch directory structure in the given
// project directory and writes a commented default config if none exists.
//
// Structure created:
// .gridlaunch/
// ├── config.yaml
// ├── logs/     <- journal of generate/submit activity
// └── state/    <- submission ledger
func InitProjectDir(projectDir string) error {
	root := filepath.Join(projectDir, ProjectDirName)
	dirs := []string{
		filepath.Join(root, "logs"),
		filepath.Join(root, "state"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return ensureProjectConfig(filepath.Join(root, "config.yaml"))
}

// NewConfig creates a Config populated with project settings. A missing
// config file means built-in defaults.
func NewConfig(projectDir string) (*Config, error) {
	abs, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("config: resolve project dir: %w", err)
	}
	cfg := &Config{
		ProjectDir: abs,
		StateRoot:  filepath.Join(abs, ProjectDirName),
		Project:    defaultProjectConfig(),
	}
	cfg.Project.normalize(abs)
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.StateRoot, "logs")
}

// JournalPath returns the journal file inside LogsDir.
func (c *Config) JournalPath() string {
	return filepath.Join(c.LogsDir(), "gridlaunch.log")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.StateRoot, "config.yaml")
}

// ScriptPath is where generated scripts are written and submitted from.
func (c *Config) ScriptPath() string {
	return c.Project.Paths.Script
}

// HistoryPath is the submission ledger database.
func (c *Config) HistoryPath() string {
	return c.Project.Paths.History
}

// SbatchBinary is the submission command.
func (c *Config) SbatchBinary() string {
	return c.Project.Slurm.Sbatch
}

// Resources returns project-level resource defaults for a sweep to override.
func (c *Config) Resources() script.ResourceSpec {
	s := c.Project.Slurm
	env := c.Project.Environment
	return script.ResourceSpec{
		CPUsPerTask:  s.CPUsPerTask,
		Partition:    s.Partition,
		Account:      s.Account,
		ExcludeNodes: append([]string(nil), s.Exclude...),
		Env:          append([]script.EnvVar(nil), c.Project.Env...),
		Environment: script.Environment{
			Name:       env.Name,
			Conda:      env.Conda,
			CondaSetup: env.CondaSetup,
		},
		WorkDir:   c.ProjectDir,
		OutputDir: s.OutputDir,
	}
}

// Launch returns project-level launch defaults.
func (c *Config) Launch() script.LaunchSpec {
	l := c.Project.Launch
	// validate already rejected unparsable values
	stagger, _ := time.ParseDuration(l.Stagger)
	launch := script.LaunchSpec{
		Interpreter: l.Interpreter,
		Launcher:    l.Launcher,
		Stagger:     script.Stagger(stagger),
	}
	if l.Jitter != nil {
		launch.JitterBound = script.Jitter(*l.Jitter)
	}
	return launch
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize(c.ProjectDir)
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	pc := ProjectConfig{Env: OrderedEnv{{Name: "WANDB__SERVICE_WAIT", Value: "300"}}}
	pc.applyDefaults()
	return pc
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if pc.Slurm.Partition == "" {
		pc.Slurm.Partition = defaultPartition
	}
	if pc.Slurm.CPUsPerTask == 0 {
		pc.Slurm.CPUsPerTask = defaultCPUsPerTask
	}
	if pc.Slurm.OutputDir == "" {
		pc.Slurm.OutputDir = defaultOutputDir
	}
	if pc.Slurm.Sbatch == "" {
		pc.Slurm.Sbatch = defaultSbatch
	}
	if pc.Launch.Interpreter == "" {
		pc.Launch.Interpreter = script.DefaultInterpreter
	}
	if pc.Launch.Launcher == "" {
		pc.Launch.Launcher = script.DefaultLauncher
	}
	if pc.Launch.Jitter == nil {
		pc.Launch.Jitter = script.Jitter(script.DefaultJitterBound)
	}
	if pc.Launch.Stagger == "" {
		pc.Launch.Stagger = script.DefaultStagger.String()
	}
	if pc.Environment.CondaSetup == "" {
		pc.Environment.CondaSetup = script.DefaultCondaSetup
	}
	if pc.Paths.Script == "" {
		pc.Paths.Script = defaultScriptPath
	}
	if pc.Paths.History == "" {
		pc.Paths.History = defaultHistoryPath
	}
}

func (pc *ProjectConfig) normalize(base string) {
	pc.Slurm.Partition = strings.TrimSpace(pc.Slurm.Partition)
	pc.Slurm.Account = strings.TrimSpace(pc.Slurm.Account)
	pc.Slurm.Sbatch = strings.TrimSpace(pc.Slurm.Sbatch)
	pc.Slurm.OutputDir = resolvePath(base, pc.Slurm.OutputDir)
	pc.Launch.Stagger = strings.TrimSpace(pc.Launch.Stagger)
	pc.Environment.Name = strings.TrimSpace(pc.Environment.Name)
	pc.Paths.Script = resolvePath(base, pc.Paths.Script)
	pc.Paths.History = resolvePath(base, pc.Paths.History)
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if pc.Slurm.CPUsPerTask < 0 {
		return fmt.Errorf("slurm.cpus_per_task must be >= 0")
	}
	if pc.Slurm.Sbatch == "" {
		return fmt.Errorf("slurm.sbatch is required")
	}
	if _, err := time.ParseDuration(pc.Launch.Stagger); err != nil {
		return fmt.Errorf("launch.stagger: %w", err)
	}
	for _, e := range pc.Env {
		if strings.TrimSpace(e.Name) == "" {
			return fmt.Errorf("env: variable name is required")
		}
	}
	return nil
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0o644)
}
