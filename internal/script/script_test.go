package script

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kingrea/gridlaunch/internal/batch"
	"github.com/kingrea/gridlaunch/internal/grid"
)

func testPlan(t *testing.T, configs []grid.ResolvedConfig, perJob int) batch.Plan {
	t.Helper()
	plan, err := batch.New(configs, perJob)
	if err != nil {
		t.Fatalf("new plan: %v", err)
	}
	return plan
}

func baseResources() ResourceSpec {
	return ResourceSpec{
		JobName:     "sweep",
		GPUs:        1,
		MemoryGB:    32,
		TimeLimit:   "24:00:00",
		CPUsPerTask: 2,
		Partition:   "prod",
		Env:         []EnvVar{{Name: "WANDB__SERVICE_WAIT", Value: "300"}},
		Environment: Environment{Name: "ml"},
		WorkDir:     "/proj",
		OutputDir:   "slurm_logs",
	}
}

func TestRenderSingleConfigPerJobGolden(t *testing.T) {
	plan := testPlan(t, []grid.ResolvedConfig{"--lr 0.1 ", "--lr 0.01 "}, 1)
	doc := Compose(baseResources(), plan, LaunchSpec{Program: "train.py"}, "abcd1234")

	want := `#!/bin/bash
# gridlaunch: job=sweep run=abcd1234 configs=2 per_job=1 num_jobs=2 gpus=1 mem=32G time=24:00:00
#SBATCH -p prod
#SBATCH --job-name=sweep
#SBATCH --nodes=1
#SBATCH --array=0-1
#SBATCH --output="slurm_logs/sweep_%A_%a.out"
#SBATCH --error="slurm_logs/sweep_%A_%a.err"
#SBATCH --time=24:00:00
#SBATCH --mem=32G
#SBATCH --gres=gpu:1
#SBATCH --cpus-per-task=2

. /usr/local/anaconda3/etc/profile.d/conda.sh
conda activate ml

cd /proj
export PYTHONPATH=/proj

export WANDB__SERVICE_WAIT=300

arguments=(
'srun python -u train.py --lr 0.1 '
'srun python -u train.py --lr 0.01 '
)

TASK_ID=${SLURM_ARRAY_TASK_ID:-0}
sleep $((RANDOM % 20)); ${arguments[$TASK_ID]}
`
	if diff := cmp.Diff(want, doc.String()); diff != "" {
		t.Fatalf("unexpected script (-want +got):\n%s", diff)
	}
}

func TestRenderPackedSlotsStaggerAndWait(t *testing.T) {
	configs := make([]grid.ResolvedConfig, 8)
	for i := range configs {
		configs[i] = grid.ResolvedConfig("--seed " + string(rune('0'+i)) + " ")
	}
	plan := testPlan(t, configs, 4)
	doc := Compose(baseResources(), plan, LaunchSpec{Program: "train.py"}, "r")
	text := doc.String()

	if strings.Contains(text, "srun") {
		t.Fatalf("packed slots must not use srun:\n%s", text)
	}
	if got := strings.Count(text, " &\n"); got != 4 {
		t.Fatalf("expected 4 background launches, got %d", got)
	}
	if got := strings.Count(text, "sleep 60s\n"); got != 3 {
		t.Fatalf("expected 3 stagger sleeps, got %d", got)
	}
	if !strings.HasSuffix(text, "wait\n") || strings.Count(text, "wait\n") != 1 {
		t.Fatalf("expected a single trailing wait:\n%s", text)
	}
	if !strings.Contains(text, "${arguments[$((TASK_ID * 4 + 3))]} &") {
		t.Fatalf("expected last launch to index TASK_ID*4+3:\n%s", text)
	}
	if strings.Contains(text, "RANDOM") {
		t.Fatalf("packed slots must not jitter:\n%s", text)
	}
}

func TestRenderSingleJobHasNoArrayDirective(t *testing.T) {
	plan := testPlan(t, []grid.ResolvedConfig{"--a 1 ", "--a 2 "}, 2)
	text := Compose(baseResources(), plan, LaunchSpec{Program: "train.py"}, "r").String()
	if strings.Contains(text, "--array") {
		t.Fatalf("single job must not request an array:\n%s", text)
	}
	if !strings.Contains(text, `--output="slurm_logs/sweep_%A.out"`) {
		t.Fatalf("expected single-job output pattern:\n%s", text)
	}
	if strings.Contains(text, "%a") {
		t.Fatalf("single job must not reference the array index:\n%s", text)
	}
}

func TestRenderOmitsUnsetDirectives(t *testing.T) {
	res := ResourceSpec{JobName: "bare", ExcludeNodes: []string{}}
	plan := testPlan(t, []grid.ResolvedConfig{" "}, 1)
	text := Compose(res, plan, LaunchSpec{Program: "run.py"}, "r").String()
	for _, opt := range []string{"-p ", "--account", "--time", "--mem", "--gres", "--cpus-per-task", "--exclude"} {
		if strings.Contains(text, "#SBATCH "+opt) {
			t.Fatalf("expected %s to be omitted:\n%s", opt, text)
		}
	}
	if strings.Contains(text, "activate") || strings.Contains(text, "PYTHONPATH") {
		t.Fatalf("expected no activation or workdir lines:\n%s", text)
	}
}

func TestRenderExcludeNodes(t *testing.T) {
	res := baseResources()
	res.ExcludeNodes = []string{"node01", " ", "node07"}
	plan := testPlan(t, []grid.ResolvedConfig{" "}, 1)
	text := Compose(res, plan, LaunchSpec{Program: "train.py"}, "r").String()
	if !strings.Contains(text, "#SBATCH --exclude=node01,node07\n") {
		t.Fatalf("expected exclude directive:\n%s", text)
	}
}

func TestRenderKeepsEnvOrder(t *testing.T) {
	res := baseResources()
	res.Env = []EnvVar{{Name: "Z", Value: "1"}, {Name: "A", Value: "two words"}, {Name: "M", Value: ""}}
	plan := testPlan(t, []grid.ResolvedConfig{" "}, 1)
	text := Compose(res, plan, LaunchSpec{Program: "train.py"}, "r").String()
	want := "export Z=1\nexport A='two words'\nexport M=''\n"
	if !strings.Contains(text, want) {
		t.Fatalf("expected ordered exports %q in:\n%s", want, text)
	}
}

func TestRenderGenericActivation(t *testing.T) {
	res := baseResources()
	conda := false
	res.Environment = Environment{Name: "venv", Conda: &conda}
	plan := testPlan(t, []grid.ResolvedConfig{" "}, 1)
	text := Compose(res, plan, LaunchSpec{Program: "train.py"}, "r").String()
	if !strings.Contains(text, "\nsource activate venv\n") || strings.Contains(text, "conda") {
		t.Fatalf("expected generic activation:\n%s", text)
	}
}

func TestRenderEscapesSingleQuotes(t *testing.T) {
	plan := testPlan(t, []grid.ResolvedConfig{"--name it's "}, 1)
	text := Compose(baseResources(), plan, LaunchSpec{Program: "train.py"}, "r").String()
	if !strings.Contains(text, `'srun python -u train.py --name it'\''s '`) {
		t.Fatalf("expected escaped quote:\n%s", text)
	}
}

func TestComposeStaticParamsAndLauncherOverrides(t *testing.T) {
	plan := testPlan(t, []grid.ResolvedConfig{"--lr 1 "}, 1)
	launch := LaunchSpec{
		Interpreter:  "python3",
		Program:      "main.py",
		StaticParams: "--epochs 10",
		Launcher:     "srun --exclusive",
		JitterBound:  Jitter(-1),
	}
	doc := Compose(baseResources(), plan, launch, "r")
	if diff := cmp.Diff([]string{"srun --exclusive python3 main.py --epochs 10 --lr 1 "}, doc.Commands); diff != "" {
		t.Fatalf("unexpected commands (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"${arguments[$TASK_ID]}"}, doc.Body); diff != "" {
		t.Fatalf("expected no jitter when bound is negative (-want +got):\n%s", diff)
	}
}

func TestComposeCustomStagger(t *testing.T) {
	plan := testPlan(t, []grid.ResolvedConfig{"a ", "b "}, 2)
	doc := Compose(baseResources(), plan, LaunchSpec{Program: "x.py", Stagger: Stagger(5 * time.Second)}, "r")
	want := []string{
		"${arguments[$((TASK_ID * 2 + 0))]} &",
		"sleep 5s",
		"${arguments[$((TASK_ID * 2 + 1))]} &",
		"wait",
	}
	if diff := cmp.Diff(want, doc.Body); diff != "" {
		t.Fatalf("unexpected body (-want +got):\n%s", diff)
	}
}

func TestSummaryRoundTripsThroughScript(t *testing.T) {
	plan := testPlan(t, make([]grid.ResolvedConfig, 10), 3)
	doc := Compose(baseResources(), plan, LaunchSpec{Program: "train.py"}, "feedbeef")
	got, err := ParseSummary(doc.String())
	if err != nil {
		t.Fatalf("parse summary: %v", err)
	}
	if diff := cmp.Diff(doc.Summary, got); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}
	if want := "n_gpus=1, mem=32G, time=24:00:00, num_jobs=4"; got.Recap() != want {
		t.Fatalf("recap = %q, want %q", got.Recap(), want)
	}
}

func TestParseSummaryMissing(t *testing.T) {
	if _, err := ParseSummary("#!/bin/bash\necho hi\n"); !errors.Is(err, ErrNoSummary) {
		t.Fatalf("expected ErrNoSummary, got %v", err)
	}
}

func TestWriteFileCreatesExecutableScript(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "__sbatch__.sh")
	plan := testPlan(t, []grid.ResolvedConfig{" "}, 1)
	if err := WriteFile(Compose(baseResources(), plan, LaunchSpec{Program: "t.py"}, "r"), path); err != nil {
		t.Fatalf("write file: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat script: %v", err)
	}
	if info.Mode().Perm()&0o100 == 0 {
		t.Fatalf("expected executable script, mode %v", info.Mode())
	}
}

func TestComposeZeroJitterAndStagger(t *testing.T) {
	single := testPlan(t, []grid.ResolvedConfig{"a "}, 1)
	doc := Compose(baseResources(), single, LaunchSpec{Program: "x.py", JitterBound: Jitter(0)}, "r")
	if diff := cmp.Diff([]string{"${arguments[$TASK_ID]}"}, doc.Body); diff != "" {
		t.Fatalf("expected no random sleep for a zero bound (-want +got):\n%s", diff)
	}

	packed := testPlan(t, []grid.ResolvedConfig{"a ", "b "}, 2)
	doc = Compose(baseResources(), packed, LaunchSpec{Program: "x.py", Stagger: Stagger(0)}, "r")
	want := []string{
		"${arguments[$((TASK_ID * 2 + 0))]} &",
		"${arguments[$((TASK_ID * 2 + 1))]} &",
		"wait",
	}
	if diff := cmp.Diff(want, doc.Body); diff != "" {
		t.Fatalf("expected no sleep between launches (-want +got):\n%s", diff)
	}

	doc = Compose(baseResources(), single, LaunchSpec{Program: "x.py"}, "r")
	if diff := cmp.Diff([]string{"sleep $((RANDOM % 20)); ${arguments[$TASK_ID]}"}, doc.Body); diff != "" {
		t.Fatalf("unset jitter should take the default (-want +got):\n%s", diff)
	}
}

func TestValidateTimeLimit(t *testing.T) {
	for _, ok := range []string{"", "30", "10:00", "24:00:00", "2-00", "1-12:30", "3-00:00:00", "infinite"} {
		if err := ValidateTimeLimit(ok); err != nil {
			t.Fatalf("%q: unexpected error %v", ok, err)
		}
	}
	for _, bad := range []string{"1h", "a-10", "1:2:3:4", "-10", "10:"} {
		if err := ValidateTimeLimit(bad); !errors.Is(err, ErrInvalidTimeLimit) {
			t.Fatalf("%q: expected ErrInvalidTimeLimit, got %v", bad, err)
		}
	}
}

func TestResourceOverrideAndMergeEnv(t *testing.T) {
	res := baseResources()
	res.Override(ResourceSpec{
		GPUs: 4,
		Env:  []EnvVar{{Name: "WANDB__SERVICE_WAIT", Value: "600"}, {Name: "OMP_NUM_THREADS", Value: "1"}},
	})
	if res.GPUs != 4 || res.MemoryGB != 32 {
		t.Fatalf("unexpected override result: %+v", res)
	}
	want := []EnvVar{{Name: "WANDB__SERVICE_WAIT", Value: "600"}, {Name: "OMP_NUM_THREADS", Value: "1"}}
	if diff := cmp.Diff(want, res.Env); diff != "" {
		t.Fatalf("unexpected env (-want +got):\n%s", diff)
	}
}

func TestResourceOverrideCondaAndTimeLimit(t *testing.T) {
	res := baseResources()
	off := false
	res.Override(ResourceSpec{TimeLimit: " 10:00 ", Environment: Environment{Conda: &off}})
	if res.Environment.Name != "ml" || res.Environment.UsesConda() {
		t.Fatalf("conda override without a name was dropped: %+v", res.Environment)
	}
	if res.TimeLimit != "10:00" {
		t.Fatalf("expected trimmed time limit, got %q", res.TimeLimit)
	}
	if err := res.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	res.TimeLimit = " 10:00"
	if err := res.Validate(); !errors.Is(err, ErrInvalidTimeLimit) {
		t.Fatalf("expected padded time limit to be rejected, got %v", err)
	}
}
