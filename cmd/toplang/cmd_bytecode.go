package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"toplang/bytecode"
	"toplang/toplang"
)

type bytecodeCmd struct {
	noPeephole bool
}

func (*bytecodeCmd) Name() string { return "bytecode" }
func (*bytecodeCmd) Synopsis() string {
	return "compile a .top source file and print its disassembled bytecode"
}
func (*bytecodeCmd) Usage() string {
	return `bytecode <file.top>:
  Lex, parse, optimize, and compile a TopLang program, then print the
  disassembled instruction listing for the top-level chunk and every
  function.
`
}

func (b *bytecodeCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&b.noPeephole, "no-peephole", false, "skip the peephole optimization pass")
}

func (b *bytecodeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	src, status := readSourceFile(f.Args())
	if status != 0 {
		return status
	}

	chunk, err := toplang.Compile(src, toplang.Options{EnablePeephole: !b.noPeephole})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	fmt.Print(bytecode.Disassemble("program", chunk))
	return subcommands.ExitSuccess
}
