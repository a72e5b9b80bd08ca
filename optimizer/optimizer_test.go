package optimizer

import (
	"testing"

	"toplang/ast"
	"toplang/lexer"
	"toplang/parser"
)

func parseExpr(t *testing.T, src string) ast.Expression {
	t.Helper()
	prog := parseProgram(t, "function main() { print "+src+" return 0 }")
	return prog.Functions[0].Body[0].(ast.Print).Value
}

func parseProgram(t *testing.T, src string) ast.Program {
	t.Helper()
	tokens := lexer.New(src).Scan()
	prog, errs := parser.New(tokens).Parse()
	if len(errs) > 0 {
		t.Fatalf("parse errors: %v", errs)
	}
	return prog
}

func TestConstantFolding(t *testing.T) {
	expr := optimizeExpr(parseExpr(t, "1 plus 2 times 3"))
	num, ok := expr.(ast.Number)
	if !ok || num.Value != 7 {
		t.Fatalf("got %#v, want Number{7}", expr)
	}
}

func TestDivisionByZeroNotFolded(t *testing.T) {
	expr := optimizeExpr(parseExpr(t, "1 divided by 0"))
	if _, ok := expr.(ast.Number); ok {
		t.Fatalf("division by zero must not fold, got %#v", expr)
	}
}

func TestAlgebraicIdentities(t *testing.T) {
	cases := []string{"x plus 0", "0 plus x", "x times 1", "1 times x"}
	for _, c := range cases {
		expr := optimizeExpr(parseExpr(t, c))
		if _, ok := expr.(ast.Identifier); !ok {
			t.Errorf("%q: got %#v, want Identifier{x}", c, expr)
		}
	}
	zeroExpr := optimizeExpr(parseExpr(t, "x times 0"))
	if n, ok := zeroExpr.(ast.Number); !ok || n.Value != 0 {
		t.Errorf("x times 0: got %#v", zeroExpr)
	}
}

func TestBranchElimination(t *testing.T) {
	prog := parseProgram(t, `function main() { if true { return 1 } else { return 0 } }`)
	out := Optimize(prog)
	body := out.Functions[0].Body
	if len(body) != 1 {
		t.Fatalf("got %d statements, want 1", len(body))
	}
	ret, ok := body[0].(ast.Return)
	if !ok {
		t.Fatalf("expected Return, got %T", body[0])
	}
	if num, ok := ret.Value.(ast.Number); !ok || num.Value != 1 {
		t.Fatalf("got %#v", ret.Value)
	}
}

func TestOptimizerIdempotent(t *testing.T) {
	prog := parseProgram(t, `function main() { var xs is list 1 plus 1, 2 times 3 if true { print xs at 0 } return 0 }`)
	once := Optimize(prog)
	twice := Optimize(once)
	printOnce := once.Functions[0].Body
	printTwice := twice.Functions[0].Body
	if len(printOnce) != len(printTwice) {
		t.Fatalf("optimize not idempotent: %d vs %d statements", len(printOnce), len(printTwice))
	}
}

func TestConstantIndexCollapses(t *testing.T) {
	expr := optimizeExpr(parseExpr(t, "(list 10, 20, 30) at 1"))
	num, ok := expr.(ast.Number)
	if !ok || num.Value != 20 {
		t.Fatalf("got %#v", expr)
	}
}

func TestConstantSubstringCollapses(t *testing.T) {
	expr := optimizeExpr(parseExpr(t, `substring "hello" from 1 to 3`))
	s, ok := expr.(ast.String)
	if !ok || s.Value != "el" {
		t.Fatalf("got %#v", expr)
	}
}
