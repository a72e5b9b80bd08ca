// Package optimizer performs a deterministic, idempotent AST-to-AST
// rewrite before compilation: constant folding, algebraic identities,
// and dead-branch elimination.
package optimizer

import (
	"math"

	"toplang/ast"
	"toplang/token"
)

// Optimize returns a rewritten copy of prog. Calling Optimize again on
// the result is a no-op (optimizer idempotence, spec.md §8).
func Optimize(prog ast.Program) ast.Program {
	out := ast.Program{Functions: make([]ast.Function, len(prog.Functions))}
	for i, fn := range prog.Functions {
		out.Functions[i] = ast.Function{
			Name:   fn.Name,
			Params: fn.Params,
			Body:   optimizeBlock(fn.Body),
		}
	}
	return out
}

// optimizeBlock rewrites a statement list, expanding `if` statements
// whose condition folds to a constant boolean into the chosen branch's
// (already optimized) statements. This expansion is why statement
// rewriting is a plain recursive type switch rather than a per-node
// dispatch method: branch elimination turns one statement into zero or
// more.
func optimizeBlock(stmts []ast.Statement) []ast.Statement {
	var out []ast.Statement
	for _, s := range stmts {
		out = append(out, optimizeStatement(s)...)
	}
	return out
}

func optimizeStatement(s ast.Statement) []ast.Statement {
	switch n := s.(type) {
	case ast.VarDecl:
		n.Value = optimizeExpr(n.Value)
		return []ast.Statement{n}
	case ast.Assignment:
		n.Value = optimizeExpr(n.Value)
		return []ast.Statement{n}
	case ast.IndexAssignment:
		n.Array = optimizeExpr(n.Array)
		n.Index = optimizeExpr(n.Index)
		n.Value = optimizeExpr(n.Value)
		return []ast.Statement{n}
	case ast.Print:
		n.Value = optimizeExpr(n.Value)
		return []ast.Statement{n}
	case ast.Ask:
		if n.Prompt != nil {
			n.Prompt = optimizeExpr(n.Prompt)
		}
		return []ast.Statement{n}
	case ast.If:
		cond := optimizeExpr(n.Condition)
		then := optimizeBlock(n.Then)
		els := optimizeBlock(n.Else)
		if b, ok := cond.(ast.Boolean); ok {
			if b.Value {
				return then
			}
			return els
		}
		return []ast.Statement{ast.If{Condition: cond, Then: then, Else: els}}
	case ast.While:
		n.Condition = optimizeExpr(n.Condition)
		n.Body = optimizeBlock(n.Body)
		return []ast.Statement{n}
	case ast.For:
		if n.Init != nil {
			stmts := optimizeStatement(n.Init)
			if len(stmts) == 1 {
				n.Init = stmts[0]
			}
		}
		n.Condition = optimizeExpr(n.Condition)
		if n.Increment != nil {
			stmts := optimizeStatement(n.Increment)
			if len(stmts) == 1 {
				n.Increment = stmts[0]
			}
		}
		n.Body = optimizeBlock(n.Body)
		return []ast.Statement{n}
	case ast.Return:
		if n.Value != nil {
			n.Value = optimizeExpr(n.Value)
		}
		return []ast.Statement{n}
	case ast.ExpressionStmt:
		n.Expr = optimizeExpr(n.Expr)
		return []ast.Statement{n}
	default:
		return []ast.Statement{s}
	}
}

func optimizeExpr(e ast.Expression) ast.Expression {
	if e == nil {
		return nil
	}
	return e.Accept(foldVisitor{}).(ast.Expression)
}

// foldVisitor implements ast.ExpressionVisitor, rewriting each node
// bottom-up and then attempting to fold it into a literal.
type foldVisitor struct{}

func (foldVisitor) VisitNumber(n ast.Number) any   { return n }
func (foldVisitor) VisitString(n ast.String) any   { return n }
func (foldVisitor) VisitBoolean(n ast.Boolean) any { return n }
func (foldVisitor) VisitIdentifier(n ast.Identifier) any { return n }

func (foldVisitor) VisitCall(n ast.Call) any {
	args := make([]ast.Expression, len(n.Args))
	for i, a := range n.Args {
		args[i] = optimizeExpr(a)
	}
	n.Args = args
	return n
}

func (foldVisitor) VisitArray(n ast.Array) any {
	elems := make([]ast.Expression, len(n.Elements))
	for i, el := range n.Elements {
		elems[i] = optimizeExpr(el)
	}
	n.Elements = elems
	return n
}

func (foldVisitor) VisitIndex(n ast.Index) any {
	arr := optimizeExpr(n.Array)
	idx := optimizeExpr(n.Index)
	if lit, ok := arr.(ast.Array); ok {
		if num, ok := idx.(ast.Number); ok && isExactInt(num.Value) {
			i := int(num.Value)
			if i >= 0 && i < len(lit.Elements) {
				if elemLit, ok := asLiteral(lit.Elements[i]); ok {
					return elemLit
				}
			}
		}
	}
	return ast.Index{Array: arr, Index: idx}
}

func (foldVisitor) VisitSubstring(n ast.Substring) any {
	str := optimizeExpr(n.Str)
	from := optimizeExpr(n.From)
	to := optimizeExpr(n.To)
	s, sOK := str.(ast.String)
	f, fOK := from.(ast.Number)
	t, tOK := to.(ast.Number)
	if sOK && fOK && tOK && isExactInt(f.Value) && isExactInt(t.Value) {
		runes := []rune(s.Value)
		fi, ti := int(f.Value), int(t.Value)
		if fi >= 0 && ti >= fi && ti <= len(runes) {
			return ast.String{Value: string(runes[fi:ti])}
		}
	}
	return ast.Substring{Str: str, From: from, To: to}
}

func (foldVisitor) VisitUnary(n ast.Unary) any {
	operand := optimizeExpr(n.Operand)
	switch n.Operator.Type {
	case token.NOT:
		if b, ok := operand.(ast.Boolean); ok {
			return ast.Boolean{Value: !b.Value}
		}
	case token.MINUS:
		if num, ok := operand.(ast.Number); ok {
			return ast.Number{Value: -num.Value}
		}
	case token.LENGTH:
		if s, ok := operand.(ast.String); ok {
			return ast.Number{Value: float64(len([]rune(s.Value)))}
		}
		if arr, ok := operand.(ast.Array); ok {
			return ast.Number{Value: float64(len(arr.Elements))}
		}
	case token.UPPERCASE:
		if s, ok := operand.(ast.String); ok {
			return ast.String{Value: toUpper(s.Value)}
		}
	}
	return ast.Unary{Operator: n.Operator, Operand: operand}
}

func (foldVisitor) VisitBinary(n ast.Binary) any {
	left := optimizeExpr(n.Left)
	right := optimizeExpr(n.Right)

	if folded, ok := foldIdentity(left, n.Operator.Type, right); ok {
		return folded
	}
	if folded, ok := foldConstant(left, n.Operator.Type, right); ok {
		return folded
	}
	return ast.Binary{Left: left, Operator: n.Operator, Right: right}
}

// foldIdentity applies x+0, 0+x, x*1, 1*x, x*0, 0*x regardless of
// whether the non-literal side is itself a constant (those are instead
// caught by foldConstant).
func foldIdentity(left ast.Expression, op token.Type, right ast.Expression) (ast.Expression, bool) {
	leftNum, leftIsNum := left.(ast.Number)
	rightNum, rightIsNum := right.(ast.Number)

	switch op {
	case token.PLUS:
		if rightIsNum && rightNum.Value == 0 {
			return left, true
		}
		if leftIsNum && leftNum.Value == 0 {
			return right, true
		}
	case token.TIMES:
		if rightIsNum && rightNum.Value == 1 {
			return left, true
		}
		if leftIsNum && leftNum.Value == 1 {
			return right, true
		}
		if rightIsNum && rightNum.Value == 0 {
			return ast.Number{Value: 0}, true
		}
		if leftIsNum && leftNum.Value == 0 {
			return ast.Number{Value: 0}, true
		}
	}
	return nil, false
}

// foldConstant folds binary ops over two literal operands. Division and
// modulo by a literal zero are deliberately NOT folded here: the
// runtime DivByZero/ModByZero error must still be observable.
func foldConstant(left ast.Expression, op token.Type, right ast.Expression) (ast.Expression, bool) {
	if ln, lok := left.(ast.Number); lok {
		if rn, rok := right.(ast.Number); rok {
			switch op {
			case token.PLUS:
				return ast.Number{Value: ln.Value + rn.Value}, true
			case token.MINUS:
				return ast.Number{Value: ln.Value - rn.Value}, true
			case token.TIMES:
				return ast.Number{Value: ln.Value * rn.Value}, true
			case token.DIVIDED:
				if rn.Value == 0 {
					return nil, false
				}
				return ast.Number{Value: ln.Value / rn.Value}, true
			case token.MODULO:
				if rn.Value == 0 {
					return nil, false
				}
				return ast.Number{Value: math.Mod(ln.Value, rn.Value)}, true
			case token.EQUALS:
				return ast.Boolean{Value: ln.Value == rn.Value}, true
			case token.NOT_EQUALS:
				return ast.Boolean{Value: ln.Value != rn.Value}, true
			case token.GREATER:
				return ast.Boolean{Value: ln.Value > rn.Value}, true
			case token.GREATER_EQUAL:
				return ast.Boolean{Value: ln.Value >= rn.Value}, true
			case token.LESS:
				return ast.Boolean{Value: ln.Value < rn.Value}, true
			case token.LESS_EQUAL:
				return ast.Boolean{Value: ln.Value <= rn.Value}, true
			}
		}
	}
	if ls, lok := left.(ast.String); lok {
		if rs, rok := right.(ast.String); rok {
			switch op {
			case token.PLUS:
				return ast.String{Value: ls.Value + rs.Value}, true
			case token.EQUALS:
				return ast.Boolean{Value: ls.Value == rs.Value}, true
			case token.NOT_EQUALS:
				return ast.Boolean{Value: ls.Value != rs.Value}, true
			}
		}
	}
	if lb, lok := left.(ast.Boolean); lok {
		if rb, rok := right.(ast.Boolean); rok {
			switch op {
			case token.AND:
				return ast.Boolean{Value: lb.Value && rb.Value}, true
			case token.OR:
				return ast.Boolean{Value: lb.Value || rb.Value}, true
			case token.EQUALS:
				return ast.Boolean{Value: lb.Value == rb.Value}, true
			case token.NOT_EQUALS:
				return ast.Boolean{Value: lb.Value != rb.Value}, true
			}
		}
	}
	return nil, false
}

func asLiteral(e ast.Expression) (ast.Expression, bool) {
	switch e.(type) {
	case ast.Number, ast.String, ast.Boolean:
		return e, true
	}
	return nil, false
}

func isExactInt(f float64) bool { return f == math.Trunc(f) }

func toUpper(s string) string {
	out := []rune(s)
	for i, r := range out {
		if r >= 'a' && r <= 'z' {
			out[i] = r - ('a' - 'A')
		}
	}
	return string(out)
}
