package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"toplang/lexer"
)

type tokensCmd struct{}

func (*tokensCmd) Name() string     { return "tokens" }
func (*tokensCmd) Synopsis() string { return "print the token stream for a .top source file" }
func (*tokensCmd) Usage() string {
	return `tokens <file.top>:
  Lex a TopLang program and print one token per line.
`
}
func (*tokensCmd) SetFlags(f *flag.FlagSet) {}

func (*tokensCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	src, status := readSourceFile(f.Args())
	if status != 0 {
		return status
	}
	for _, tok := range lexer.New(src).Scan() {
		fmt.Println(tok)
	}
	return subcommands.ExitSuccess
}
