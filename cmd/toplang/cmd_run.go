package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"toplang/toplang"
	"toplang/vm"
)

type runCmd struct {
	trace bool
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "execute a .top source file" }
func (*runCmd) Usage() string {
	return `run <file.top>:
  Lex, parse, optimize, compile, and execute a TopLang program.
`
}

func (r *runCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&r.trace, "trace", false, "print a TRACE line per executed instruction to stderr")
}

func (r *runCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	src, status := readSourceFile(f.Args())
	if status != 0 {
		return status
	}

	opts := toplang.DefaultOptions()
	if r.trace {
		opts.VMLogger = vm.NewTextLogger(os.Stderr)
	}

	exitCode, err := toplang.Run(src, os.Stdin, os.Stdout, opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	return subcommands.ExitStatus(exitCode)
}
