// Package toplang wires the full pipeline — lexer, parser, optimizer,
// compiler, peephole optimizer, and VM — behind a single entry point, so
// that a CLI driver (or any other embedder) has one function to call
// instead of five.
package toplang

import (
	"io"

	"toplang/bytecode"
	"toplang/compiler"
	"toplang/lexer"
	"toplang/optimizer"
	"toplang/parser"
	"toplang/peephole"
	"toplang/vm"
)

// Options configures a Run, including whether the peephole pass runs
// and where VM trace output goes, mirroring the teacher's constructor-
// options idiom.
type Options struct {
	EnablePeephole bool
	VMLogger       vm.Logger
}

// DefaultOptions enables the peephole pass and discards VM trace
// output, the configuration a plain `toplang run file.top` uses.
func DefaultOptions() Options {
	return Options{EnablePeephole: true}
}

// Run lexes, parses, optimizes, compiles, and executes src, returning
// the process exit code (spec.md §6). A non-nil error means a parse
// failure (wrapped in MultiError), a compiler.CompileError, or a
// vm.RuntimeError; either way the exit code is non-zero.
func Run(src string, stdin io.Reader, stdout io.Writer, opts Options) (exitCode int, err error) {
	chunk, err := Compile(src, opts)
	if err != nil {
		return 1, err
	}
	machine := vm.New(vm.Options{Logger: opts.VMLogger})
	return machine.Run(chunk, stdin, stdout)
}

// Compile runs every front-end stage (lex, parse, optimize, compile,
// and — unless disabled — peephole) and returns the resulting
// top-level Chunk without executing it. Useful for `--show-bytecode`
// and test harnesses that want to inspect the compiled form.
func Compile(src string, opts Options) (*bytecode.Chunk, error) {
	tokens := lexer.New(src).Scan()

	prog, errs := parser.New(tokens).Parse()
	if len(errs) > 0 {
		return nil, MultiError(errs)
	}

	prog = optimizer.Optimize(prog)

	chunk, err := compiler.Compile(prog)
	if err != nil {
		return nil, err
	}

	if opts.EnablePeephole {
		peephole.Optimize(chunk)
	}
	return chunk, nil
}

// MultiError collects the errors a parse run may have accumulated
// before giving up.
type MultiError []error

func (m MultiError) Error() string {
	if len(m) == 0 {
		return "no errors"
	}
	msg := m[0].Error()
	for _, e := range m[1:] {
		msg += "\n" + e.Error()
	}
	return msg
}
