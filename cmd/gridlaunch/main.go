// cmd/gridlaunch/main.go
//
// This is the entry point for the gridlaunch CLI.
//
// Flow:
// 1. Parse the subcommand and its flags
// 2. Load .gridlaunch/config.yaml from the project directory
// 3. Generate, plan or submit the batch script for a sweep file

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
)

const usage = `Usage: gridlaunch <command> [flags] [args]

Commands:
  init               create .gridlaunch/ with a default config
  generate <sweep>   write the batch script for a sweep file
  plan <sweep>       show how configurations are packed into jobs
  submit [script]    confirm and submit a generated script
  launch <sweep>     generate, then submit
  history            list recorded submissions
  log                show the most recent journal entries

Run 'gridlaunch <command> -h' for command flags.
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run dispatches one invocation and returns the process exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	cli := &cli{stdin: stdin, stdout: stdout, stderr: stderr}
	var err error
	switch args[0] {
	case "init":
		err = cli.initCmd(args[1:])
	case "generate":
		err = cli.generateCmd(ctx, args[1:])
	case "plan":
		err = cli.planCmd(ctx, args[1:])
	case "submit":
		err = cli.submitCmd(ctx, args[1:])
	case "launch":
		err = cli.launchCmd(ctx, args[1:])
	case "history":
		err = cli.historyCmd(ctx, args[1:])
	case "log":
		err = cli.logCmd(args[1:])
	case "-h", "--help", "help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}
	return cli.exitCode(err)
}
