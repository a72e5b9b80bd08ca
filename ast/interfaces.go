// Package ast defines the TopLang abstract syntax tree: the node types
// produced by the parser, rewritten by the optimizer, and lowered by the
// compiler. Expression nodes follow the visitor pattern: they implement
// Accept, dispatching to the matching method of whichever
// ExpressionVisitor is walking the tree. Statement nodes are a closed
// sum type instead — the optimizer and compiler both recognize them
// with a type switch, since statement handling is driven by control
// flow (loop contexts, jump backpatching) that doesn't fit a single
// per-node dispatch method.
package ast

// Expression is any AST node that evaluates to a value.
type Expression interface {
	Accept(v ExpressionVisitor) any
}

// Statement is any AST node executed for effect. statementNode is
// unexported so Statement can only be implemented by the node types in
// this package.
type Statement interface {
	statementNode()
}

// ExpressionVisitor operates on every Expression variant. The optimizer
// implements it; the compiler and AST printer use type switches instead.
type ExpressionVisitor interface {
	VisitNumber(Number) any
	VisitString(String) any
	VisitBoolean(Boolean) any
	VisitIdentifier(Identifier) any
	VisitBinary(Binary) any
	VisitUnary(Unary) any
	VisitCall(Call) any
	VisitArray(Array) any
	VisitIndex(Index) any
	VisitSubstring(Substring) any
}
