package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"toplang/lexer"
	"toplang/optimizer"
	"toplang/parser"
)

type astCmd struct {
	optimize bool
}

func (*astCmd) Name() string     { return "ast" }
func (*astCmd) Synopsis() string { return "print the parsed AST for a .top source file" }
func (*astCmd) Usage() string {
	return `ast <file.top>:
  Lex and parse a TopLang program and print its AST.
`
}

func (a *astCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&a.optimize, "optimize", false, "run the constant-folding/dead-code pass before printing")
}

func (a *astCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	src, status := readSourceFile(f.Args())
	if status != 0 {
		return status
	}

	tokens := lexer.New(src).Scan()
	prog, errs := parser.New(tokens).Parse()
	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintln(os.Stderr, e)
		}
		return subcommands.ExitFailure
	}

	if a.optimize {
		prog = optimizer.Optimize(prog)
	}

	fmt.Print(parser.Print(prog))
	return subcommands.ExitSuccess
}
