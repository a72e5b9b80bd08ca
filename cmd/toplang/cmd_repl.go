package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/subcommands"

	"toplang/compiler"
	"toplang/lexer"
	"toplang/optimizer"
	"toplang/parser"
	"toplang/peephole"
	"toplang/token"
	"toplang/vm"
)

// replCmd implements an interactive session: each accepted block is
// lexed, parsed, optimized, compiled, peephole-optimized, and run
// against a VM that persists across inputs, so variables declared in
// one block are still visible in the next.
type replCmd struct {
	echoAST bool
}

func (*replCmd) Name() string     { return "repl" }
func (*replCmd) Synopsis() string { return "start an interactive TopLang session" }
func (*replCmd) Usage() string {
	return `repl:
  Start an interactive TopLang session. Type "exit" to quit.
`
}

func (r *replCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&r.echoAST, "echo-ast", false, "print the parsed AST for each block before running it")
}

func (r *replCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	rl, err := readline.New(">>> ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "💥 failed to start readline: %v\n", err)
		return subcommands.ExitFailure
	}
	defer rl.Close()

	fmt.Println("TopLang REPL — type \"exit\" to quit.")
	machine := vm.New(vm.Options{})
	var buffer strings.Builder

	for {
		if buffer.Len() == 0 {
			rl.SetPrompt(">>> ")
		} else {
			rl.SetPrompt("... ")
		}

		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			buffer.Reset()
			continue
		}
		if err == io.EOF {
			return subcommands.ExitSuccess
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "💥 %v\n", err)
			return subcommands.ExitFailure
		}

		if strings.TrimSpace(line) == "exit" && buffer.Len() == 0 {
			return subcommands.ExitSuccess
		}

		if buffer.Len() > 0 {
			buffer.WriteString("\n")
		}
		buffer.WriteString(line)
		source := buffer.String()

		tokens := lexer.New(source).Scan()
		if !isInputReady(tokens) {
			continue
		}

		prog, errs := parser.New(tokens).Parse()
		if len(errs) > 0 {
			if allAtEOF(errs, tokens[len(tokens)-1]) {
				continue
			}
			for _, e := range errs {
				fmt.Println(e)
			}
			buffer.Reset()
			continue
		}
		buffer.Reset()

		prog = optimizer.Optimize(prog)
		if r.echoAST {
			fmt.Print(parser.Print(prog))
		}

		chunk, cerr := compiler.Compile(prog)
		if cerr != nil {
			fmt.Println(cerr)
			continue
		}
		peephole.Optimize(chunk)

		if _, rerr := machine.Run(chunk, os.Stdin, os.Stdout); rerr != nil {
			fmt.Println(rerr)
		}
	}
}

// isInputReady reports whether source accumulated so far forms a
// complete block: every opened brace has a matching close. A program
// with unbalanced braces means the user is still typing a function or
// control-flow body across multiple lines.
func isInputReady(tokens []token.Token) bool {
	balance := 0
	for _, tok := range tokens {
		switch tok.Type {
		case token.LBRACE:
			balance++
		case token.RBRACE:
			balance--
		}
	}
	return balance <= 0
}

// allAtEOF reports whether every parse error occurred at the position
// of the final (EOF) token — meaning the parser ran out of input
// rather than rejecting what it saw, and the REPL should wait for more
// lines instead of reporting a syntax error.
func allAtEOF(errs []error, eof token.Token) bool {
	if len(errs) == 0 {
		return false
	}
	for _, e := range errs {
		pe, ok := e.(parser.ParseError)
		if !ok || pe.Line != eof.Line {
			return false
		}
	}
	return true
}
