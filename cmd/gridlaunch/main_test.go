package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testSweep = `
name: cli-sweep
program: train.py
per_job: 2
grid:
  --lr: [0.1, 0.01, 0.001]
`

func setupProject(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"init", "--project", dir}, nil, &stdout, &stderr); code != 0 {
		t.Fatalf("init exited %d: %s", code, stderr.String())
	}
	sweep := filepath.Join(dir, "sweep.yaml")
	if err := os.WriteFile(sweep, []byte(testSweep), 0o644); err != nil {
		t.Fatalf("write sweep: %v", err)
	}
	return dir, sweep
}

// fakeSbatch points the project config at a shell script standing in for sbatch.
func fakeSbatch(t *testing.T, dir, body string) {
	t.Helper()
	bin := filepath.Join(dir, "fake-sbatch")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write fake sbatch: %v", err)
	}
	cfg := "slurm:\n  sbatch: " + bin + "\n"
	if err := os.WriteFile(filepath.Join(dir, ".gridlaunch", "config.yaml"), []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestRunWithoutArgsPrintsUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), nil, nil, &stdout, &stderr); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if !strings.Contains(stderr.String(), "Usage: gridlaunch") {
		t.Fatalf("expected usage, got %q", stderr.String())
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"explode"}, nil, &stdout, &stderr); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
}

func TestGenerateAndPlan(t *testing.T) {
	dir, sweep := setupProject(t)
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"generate", "--project", dir, "--set", "partition=debug", sweep}, nil, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("generate exited %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "3 configs, 2 per job, 2 jobs") {
		t.Fatalf("unexpected generate output %q", stdout.String())
	}
	data, err := os.ReadFile(filepath.Join(dir, "__sbatch__.sh"))
	if err != nil {
		t.Fatalf("read script: %v", err)
	}
	if !strings.Contains(string(data), "#SBATCH -p debug") {
		t.Fatalf("override not applied:\n%s", data)
	}

	stdout.Reset()
	if code := run(context.Background(), []string{"plan", "--project", dir, sweep}, nil, &stdout, &stderr); code != 0 {
		t.Fatalf("plan exited %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "--lr 0.001") || !strings.Contains(stdout.String(), "cli-sweep") {
		t.Fatalf("unexpected plan output:\n%s", stdout.String())
	}
}

func TestGenerateRequiresSweepArgument(t *testing.T) {
	dir, _ := setupProject(t)
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"generate", "--project", dir}, nil, &stdout, &stderr); code != 2 {
		t.Fatalf("expected usage exit, got %d", code)
	}
}

func TestSubmitWithoutScriptFails(t *testing.T) {
	dir, _ := setupProject(t)
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"submit", "--project", dir, "--yes"}, nil, &stdout, &stderr)
	if code != 1 || !strings.Contains(stderr.String(), "script not found") {
		t.Fatalf("expected missing script error, got %d: %q", code, stderr.String())
	}
}

func TestLaunchPlainPromptDeclined(t *testing.T) {
	dir, sweep := setupProject(t)
	fakeSbatch(t, dir, "echo should-not-run")
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"launch", "--project", dir, "--plain", sweep}, strings.NewReader("n\n"), &stdout, &stderr)
	if code != 1 || !strings.Contains(stderr.String(), "Aborted.") {
		t.Fatalf("expected abort, got %d: %q", code, stderr.String())
	}
	if strings.Contains(stdout.String(), "should-not-run") {
		t.Fatalf("sbatch ran after refusal")
	}
	if !strings.Contains(stdout.String(), "Proceed? (Y/n)") {
		t.Fatalf("expected prompt in output %q", stdout.String())
	}
}

func TestLaunchSubmitsAndHistoryLists(t *testing.T) {
	dir, sweep := setupProject(t)
	fakeSbatch(t, dir, `echo "Submitted batch job 4242"`)
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"launch", "--project", dir, "--plain", sweep}, strings.NewReader("\n"), &stdout, &stderr)
	if code != 0 {
		t.Fatalf("launch exited %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "Submitted batch job 4242") {
		t.Fatalf("sbatch output not surfaced: %q", stdout.String())
	}

	stdout.Reset()
	if code := run(context.Background(), []string{"history", "--project", dir}, nil, &stdout, &stderr); code != 0 {
		t.Fatalf("history exited %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "job_id=4242") || !strings.Contains(stdout.String(), "SUBMITTED") {
		t.Fatalf("unexpected history output %q", stdout.String())
	}

	stdout.Reset()
	if code := run(context.Background(), []string{"log", "--project", dir, "-n", "1"}, nil, &stdout, &stderr); code != 0 {
		t.Fatalf("log exited %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "job_id=4242") {
		t.Fatalf("expected submit entry in journal tail, got %q", stdout.String())
	}
}

func TestLaunchReportsSbatchFailure(t *testing.T) {
	dir, sweep := setupProject(t)
	fakeSbatch(t, dir, "echo 'sbatch: error: invalid account' >&2; exit 1")
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"launch", "--project", dir, "--yes", sweep}, nil, &stdout, &stderr)
	if code != 1 || !strings.Contains(stderr.String(), "sbatch failed") {
		t.Fatalf("expected sbatch failure, got %d: %q", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "invalid account") {
		t.Fatalf("scheduler output should be surfaced verbatim: %q", stdout.String())
	}
}

func TestKeyValueFlag(t *testing.T) {
	var kv keyValueFlag
	if err := kv.Set("per_job=4"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := kv.Set("env.A=x=y"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if kv["env.A"] != "x=y" {
		t.Fatalf("value should keep everything after the first '=': %q", kv["env.A"])
	}
	if err := kv.Set("novalue"); err == nil {
		t.Fatalf("expected error for missing '='")
	}
	if err := kv.Set(" =1"); err == nil {
		t.Fatalf("expected error for empty key")
	}
	if got := kv.String(); got != "env.A=x=y, per_job=4" {
		t.Fatalf("String() = %q", got)
	}
}
