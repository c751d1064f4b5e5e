package script

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/kingrea/gridlaunch/internal/batch"
)

// Directive is one scheduler option. Options starting with "--" render as
// "--name=value"; short options render as "-p value". A directive with an empty
// Value is skipped by the renderer.
type Directive struct {
	Option string
	Value  string
}

// Line renders the directive without the "#SBATCH " prefix.
func (d Directive) Line() string {
	if strings.HasPrefix(d.Option, "--") {
		return d.Option + "=" + d.Value
	}
	return d.Option + " " + d.Value
}

// Document is the structured form of one batch script. Render turns it into
// text; Compose builds it from a plan.
type Document struct {
	Summary    Summary
	Directives []Directive
	Activation []string
	WorkDir    string
	Exports    []EnvVar
	Commands   []string
	Body       []string
}

// Compose lays out the script for plan under the given resources. runID tags
// the summary line so the ledger can tie a submission back to its script.
func Compose(res ResourceSpec, plan batch.Plan, launch LaunchSpec, runID string) Document {
	launch = launch.WithDefaults()
	return Document{
		Summary: Summary{
			JobName:   res.JobName,
			RunID:     runID,
			Configs:   plan.Len(),
			PerJob:    plan.PerJob(),
			NumJobs:   plan.NumJobs(),
			GPUs:      res.GPUs,
			MemoryGB:  res.MemoryGB,
			TimeLimit: res.TimeLimit,
		},
		Directives: directives(res, plan),
		Activation: activation(res.Environment),
		WorkDir:    res.WorkDir,
		Exports:    append([]EnvVar(nil), res.Env...),
		Commands:   commands(plan, launch),
		Body:       body(plan.PerJob(), launch),
	}
}

// Directive order is fixed so repeated runs produce identical scripts.
func directives(res ResourceSpec, plan batch.Plan) []Directive {
	out := []Directive{
		{Option: "-p", Value: res.Partition},
		{Option: "--account", Value: res.Account},
		{Option: "--job-name", Value: res.JobName},
		{Option: "--nodes", Value: "1"},
	}
	if plan.IsArray() {
		out = append(out, Directive{Option: "--array", Value: fmt.Sprintf("0-%d", plan.NumJobs()-1)})
	}
	out = append(out,
		Directive{Option: "--output", Value: quoted(logPath(res.OutputDir, res.JobName, plan.IsArray(), "out"))},
		Directive{Option: "--error", Value: quoted(logPath(res.OutputDir, res.JobName, plan.IsArray(), "err"))},
		Directive{Option: "--time", Value: res.TimeLimit},
		Directive{Option: "--mem", Value: positive(res.MemoryGB, "%dG")},
		Directive{Option: "--gres", Value: positive(res.GPUs, "gpu:%d")},
		Directive{Option: "--cpus-per-task", Value: positive(res.CPUsPerTask, "%d")},
		Directive{Option: "--exclude", Value: strings.Join(nonEmpty(res.ExcludeNodes), ",")},
	)
	return out
}

// logPath names the per-job output file. %A is the job id and %a the array
// index; single jobs have no index.
func logPath(dir, job string, array bool, ext string) string {
	name := job + "_%A"
	if array {
		name += "_%a"
	}
	name += "." + ext
	if dir == "" {
		return name
	}
	return path.Join(dir, name)
}

func activation(env Environment) []string {
	if strings.TrimSpace(env.Name) == "" {
		return nil
	}
	if !env.UsesConda() {
		return []string{"source activate " + env.Name}
	}
	setup := env.CondaSetup
	if setup == "" {
		setup = DefaultCondaSetup
	}
	return []string{". " + setup, "conda activate " + env.Name}
}

func commands(plan batch.Plan, launch LaunchSpec) []string {
	prefix := make([]string, 0, 4)
	if plan.PerJob() == 1 {
		prefix = append(prefix, launch.Launcher)
	}
	prefix = append(prefix, launch.Interpreter, launch.Program)
	if s := strings.TrimSpace(launch.StaticParams); s != "" {
		prefix = append(prefix, s)
	}
	head := strings.Join(nonEmpty(prefix), " ")
	out := make([]string, 0, plan.Len())
	for _, cfg := range plan.Configs() {
		out = append(out, head+" "+cfg.String())
	}
	return out
}

// body selects the slot's commands from the arguments array by TASK_ID.
func body(perJob int, launch LaunchSpec) []string {
	if perJob == 1 {
		if jitter := *launch.JitterBound; jitter > 0 {
			return []string{fmt.Sprintf("sleep $((RANDOM %% %d)); ${arguments[$TASK_ID]}", jitter)}
		}
		return []string{"${arguments[$TASK_ID]}"}
	}
	stagger := int(*launch.Stagger / time.Second)
	out := make([]string, 0, perJob*2)
	for i := 0; i < perJob; i++ {
		if i > 0 && stagger > 0 {
			out = append(out, fmt.Sprintf("sleep %ds", stagger))
		}
		out = append(out, fmt.Sprintf("${arguments[$((TASK_ID * %d + %d))]} &", perJob, i))
	}
	return append(out, "wait")
}

func positive(n int, format string) string {
	if n <= 0 {
		return ""
	}
	return fmt.Sprintf(format, n)
}

func quoted(s string) string {
	return `"` + s + `"`
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
