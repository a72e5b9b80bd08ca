package parser

import (
	"fmt"
	"strings"

	"toplang/ast"
)

// Printer renders a Program as an indented, human-readable tree. It is
// the --show-ast debugging aid the out-of-scope CLI driver exposes.
type Printer struct {
	out strings.Builder
	ind int
}

// Print renders prog and returns the resulting text.
func Print(prog ast.Program) string {
	p := &Printer{}
	for _, fn := range prog.Functions {
		p.line(fmt.Sprintf("function %s(%s)", fn.Name, strings.Join(fn.Params, ", ")))
		p.ind++
		p.statements(fn.Body)
		p.ind--
	}
	return p.out.String()
}

func (p *Printer) line(s string) {
	p.out.WriteString(strings.Repeat("  ", p.ind))
	p.out.WriteString(s)
	p.out.WriteByte('\n')
}

func (p *Printer) statements(stmts []ast.Statement) {
	for _, s := range stmts {
		p.statement(s)
	}
}

func (p *Printer) statement(s ast.Statement) {
	switch n := s.(type) {
	case ast.VarDecl:
		kw := "var"
		if n.IsConst {
			kw = "const"
		}
		p.line(fmt.Sprintf("%s %s is %s", kw, n.Name, p.expr(n.Value)))
	case ast.Assignment:
		p.line(fmt.Sprintf("%s is %s", n.Name, p.expr(n.Value)))
	case ast.IndexAssignment:
		p.line(fmt.Sprintf("%s at %s is %s", p.expr(n.Array), p.expr(n.Index), p.expr(n.Value)))
	case ast.Print:
		p.line("print " + p.expr(n.Value))
	case ast.Ask:
		if n.Prompt != nil {
			p.line(fmt.Sprintf("ask %s %s", n.Name, p.expr(n.Prompt)))
		} else {
			p.line("ask " + n.Name)
		}
	case ast.If:
		p.line("if " + p.expr(n.Condition))
		p.ind++
		p.statements(n.Then)
		p.ind--
		if n.Else != nil {
			p.line("else")
			p.ind++
			p.statements(n.Else)
			p.ind--
		}
	case ast.While:
		p.line("while " + p.expr(n.Condition))
		p.ind++
		p.statements(n.Body)
		p.ind--
	case ast.For:
		p.line("for (...; " + p.expr(n.Condition) + "; ...)")
		p.ind++
		p.statements(n.Body)
		p.ind--
	case ast.Return:
		if n.Value != nil {
			p.line("return " + p.expr(n.Value))
		} else {
			p.line("return")
		}
	case ast.Break:
		p.line("break")
	case ast.Continue:
		p.line("continue")
	case ast.ExpressionStmt:
		p.line(p.expr(n.Expr))
	}
}

func (p *Printer) expr(e ast.Expression) string {
	switch n := e.(type) {
	case ast.Number:
		return fmt.Sprintf("%g", n.Value)
	case ast.String:
		return fmt.Sprintf("%q", n.Value)
	case ast.Boolean:
		return fmt.Sprintf("%v", n.Value)
	case ast.Identifier:
		return n.Name
	case ast.Binary:
		return fmt.Sprintf("(%s %s %s)", p.expr(n.Left), n.Operator.Type, p.expr(n.Right))
	case ast.Unary:
		return fmt.Sprintf("(%s %s)", n.Operator.Type, p.expr(n.Operand))
	case ast.Call:
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			args[i] = p.expr(a)
		}
		return fmt.Sprintf("%s(%s)", n.Name, strings.Join(args, ", "))
	case ast.Array:
		elems := make([]string, len(n.Elements))
		for i, el := range n.Elements {
			elems[i] = p.expr(el)
		}
		return "[" + strings.Join(elems, ", ") + "]"
	case ast.Index:
		return fmt.Sprintf("%s[%s]", p.expr(n.Array), p.expr(n.Index))
	case ast.Substring:
		return fmt.Sprintf("substring(%s, %s, %s)", p.expr(n.Str), p.expr(n.From), p.expr(n.To))
	default:
		return fmt.Sprintf("<%T>", e)
	}
}
