// Package compiler turns an optimized ast.Program into bytecode.Chunks:
// one chunk per user function plus the top-level trampoline chunk.
package compiler

import (
	"fmt"

	"toplang/ast"
	"toplang/bytecode"
	"toplang/token"
)

// CompileError is a fatal compile-time error (spec.md §7:
// CompileDuplicateLocal and friends).
type CompileError struct {
	Message string
}

func (e CompileError) Error() string { return "🤖 CompileError: " + e.Message }

// Local tracks one declared-local's name and the scope depth it was
// declared at, mirroring the teacher's ASTCompiler.Local.
type Local struct {
	name  string
	depth int
}

// loopContext tracks the state needed to backpatch `break`/`continue`
// inside the loop currently being compiled.
type loopContext struct {
	start     int
	breaks    []int
	continues []int
	outer     *loopContext
}

// fnCompiler compiles a single function body into its own Chunk. Each
// function gets a fresh locals list and scope depth, starting at depth
// 0 for top-level declarations inside that function.
type fnCompiler struct {
	chunk      *bytecode.Chunk
	locals     []Local
	scopeDepth int
	loop       *loopContext
}

// Compile compiles prog into a top-level trampoline Chunk whose
// Functions map holds one Chunk per user function (spec.md §4.4).
func Compile(prog ast.Program) (*bytecode.Chunk, error) {
	functions := make(map[string]*bytecode.Chunk, len(prog.Functions))
	for _, fn := range prog.Functions {
		fc := &fnCompiler{chunk: bytecode.NewChunk()}
		if err := fc.compileFunction(fn); err != nil {
			return nil, err
		}
		functions[fn.Name] = fc.chunk
	}
	// Flat namespace: every chunk, including each function's own, sees
	// the full function table, since a Call instruction resolves names
	// against "the current frame's chunk's functions table" (spec.md
	// §4.6) and user functions call each other and themselves.
	for _, fn := range functions {
		fn.Functions = functions
	}
	top := bytecode.NewMainChunk(functions)
	return top, nil
}

func (fc *fnCompiler) compileFunction(fn ast.Function) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if ce, ok := r.(CompileError); ok {
				err = ce
				return
			}
			panic(r)
		}
	}()

	for _, p := range fn.Params {
		fc.declareLocal(p)
	}
	fc.compileBlock(fn.Body)

	if len(fc.chunk.Code) == 0 || fc.chunk.Code[len(fc.chunk.Code)-1].Op != bytecode.OpReturn &&
		fc.chunk.Code[len(fc.chunk.Code)-1].Op != bytecode.OpReturnNull {
		fc.emit(bytecode.Inst(bytecode.OpReturnNull), 0)
	}
	return nil
}

func (fc *fnCompiler) emit(inst bytecode.Instruction, line int) int {
	return fc.chunk.Emit(inst, line)
}

func (fc *fnCompiler) here() int { return len(fc.chunk.Code) }

func (fc *fnCompiler) patchJump(pos int, target int) {
	fc.chunk.Code[pos].A = target
}

// --- scope & local management, grounded on compiler/ast_compiler.go ---

func (fc *fnCompiler) beginScope() { fc.scopeDepth++ }

// endScope pops locals declared in the scope being exited and emits one
// Pop per local leaving scope (spec.md §4.4).
func (fc *fnCompiler) endScope(line int) {
	fc.scopeDepth--
	for len(fc.locals) > 0 && fc.locals[len(fc.locals)-1].depth > fc.scopeDepth {
		fc.locals = fc.locals[:len(fc.locals)-1]
		fc.emit(bytecode.Inst(bytecode.OpPop), line)
	}
}

func (fc *fnCompiler) declareLocal(name string) int {
	for i := len(fc.locals) - 1; i >= 0; i-- {
		if fc.locals[i].depth < fc.scopeDepth {
			break
		}
		if fc.locals[i].name == name {
			panic(CompileError{Message: fmt.Sprintf("duplicate local variable %q in the same scope", name)})
		}
	}
	fc.locals = append(fc.locals, Local{name: name, depth: fc.scopeDepth})
	return len(fc.locals) - 1
}

func (fc *fnCompiler) resolveLocal(name string) int {
	for i := len(fc.locals) - 1; i >= 0; i-- {
		if fc.locals[i].name == name {
			return i
		}
	}
	return -1
}

func (fc *fnCompiler) nameConstant(name string) int {
	return fc.chunk.AddConstant(bytecode.StringConst(name))
}

// --- statements ---

func (fc *fnCompiler) compileBlock(stmts []ast.Statement) {
	for _, s := range stmts {
		fc.compileStatement(s)
	}
}

func (fc *fnCompiler) compileStatement(s ast.Statement) {
	switch n := s.(type) {
	case ast.VarDecl:
		fc.compileExpr(n.Value, 0)
		if fc.scopeDepth == 0 {
			fc.emit(bytecode.InstA(bytecode.OpStoreGlobal, fc.nameConstant(n.Name)), 0)
			fc.emit(bytecode.Inst(bytecode.OpPop), 0)
		} else {
			fc.declareLocal(n.Name)
			// The initializer's value is already sitting at the new
			// local's stack slot; no explicit Store is needed.
		}
	case ast.Assignment:
		fc.compileExpr(n.Value, 0)
		fc.storeIdentifierStatement(n.Name)
	case ast.IndexAssignment:
		fc.compileExpr(n.Array, 0)
		fc.compileExpr(n.Index, 0)
		fc.compileExpr(n.Value, 0)
		fc.emit(bytecode.Inst(bytecode.OpSetIndex), 0)
		fc.emit(bytecode.Inst(bytecode.OpPop), 0)
	case ast.Print:
		fc.compileExpr(n.Value, 0)
		fc.emit(bytecode.Inst(bytecode.OpPrint), 0)
	case ast.Ask:
		promptIdx := -1
		if n.Prompt != nil {
			if str, ok := n.Prompt.(ast.String); ok {
				promptIdx = fc.chunk.AddConstant(bytecode.StringConst(str.Value))
			}
		}
		fc.emit(bytecode.InstA(bytecode.OpInput, promptIdx), 0)
		fc.storeIdentifierStatement(n.Name)
	case ast.If:
		fc.compileIf(n)
	case ast.While:
		fc.compileWhile(n)
	case ast.For:
		fc.compileFor(n)
	case ast.Return:
		if n.Value != nil {
			fc.compileExpr(n.Value, 0)
			fc.emit(bytecode.Inst(bytecode.OpReturn), 0)
		} else {
			fc.emit(bytecode.Inst(bytecode.OpReturnNull), 0)
		}
	case ast.Break:
		if fc.loop == nil {
			panic(CompileError{Message: "'break' outside of a loop"})
		}
		pos := fc.emit(bytecode.InstA(bytecode.OpJump, 0), 0)
		fc.loop.breaks = append(fc.loop.breaks, pos)
	case ast.Continue:
		if fc.loop == nil {
			panic(CompileError{Message: "'continue' outside of a loop"})
		}
		pos := fc.emit(bytecode.InstA(bytecode.OpJump, fc.loop.start), 0)
		fc.loop.continues = append(fc.loop.continues, pos)
	case ast.ExpressionStmt:
		fc.compileExpr(n.Expr, 0)
		fc.emit(bytecode.Inst(bytecode.OpPop), 0)
	default:
		panic(CompileError{Message: fmt.Sprintf("unhandled statement type %T", s)})
	}
}

// storeIdentifierStatement resolves name as local-first, global-
// otherwise and emits the corresponding Store instruction, leaving the
// stack exactly as it was before the value being assigned was pushed.
// StoreVar already pops (spec.md §4.6), but StoreGlobal only peeks so
// that chained assignment expressions can observe the stored value; a
// statement-level assignment has no such consumer, so the global path
// needs an explicit trailing Pop that the local path does not.
func (fc *fnCompiler) storeIdentifierStatement(name string) {
	if slot := fc.resolveLocal(name); slot != -1 {
		fc.emit(bytecode.InstA(bytecode.OpStoreVar, slot), 0)
		return
	}
	fc.emit(bytecode.InstA(bytecode.OpStoreGlobal, fc.nameConstant(name)), 0)
	fc.emit(bytecode.Inst(bytecode.OpPop), 0)
}

func (fc *fnCompiler) compileIf(n ast.If) {
	fc.compileExpr(n.Condition, 0)
	jumpIfFalse := fc.emit(bytecode.InstA(bytecode.OpJumpIfFalse, 0), 0)

	fc.beginScope()
	fc.compileBlock(n.Then)
	fc.endScope(0)

	if n.Else != nil {
		jumpEnd := fc.emit(bytecode.InstA(bytecode.OpJump, 0), 0)
		fc.patchJump(jumpIfFalse, fc.here())

		fc.beginScope()
		fc.compileBlock(n.Else)
		fc.endScope(0)

		fc.patchJump(jumpEnd, fc.here())
	} else {
		fc.patchJump(jumpIfFalse, fc.here())
	}
}

func (fc *fnCompiler) compileWhile(n ast.While) {
	loopStart := fc.here()
	fc.loop = &loopContext{start: loopStart, outer: fc.loop}

	fc.compileExpr(n.Condition, 0)
	jumpIfFalse := fc.emit(bytecode.InstA(bytecode.OpJumpIfFalse, 0), 0)

	fc.beginScope()
	fc.compileBlock(n.Body)
	fc.endScope(0)

	fc.emit(bytecode.InstA(bytecode.OpJump, loopStart), 0)

	end := fc.here()
	fc.patchJump(jumpIfFalse, end)
	for _, b := range fc.loop.breaks {
		fc.patchJump(b, end)
	}
	fc.loop = fc.loop.outer
}

func (fc *fnCompiler) compileFor(n ast.For) {
	fc.beginScope()
	if n.Init != nil {
		fc.compileStatement(n.Init)
	}

	loopStart := fc.here()
	fc.loop = &loopContext{start: loopStart, outer: fc.loop}

	fc.compileExpr(n.Condition, 0)
	jumpIfFalse := fc.emit(bytecode.InstA(bytecode.OpJumpIfFalse, 0), 0)

	fc.beginScope()
	fc.compileBlock(n.Body)
	fc.endScope(0)

	// continue jumps here, to the increment clause, not to loopStart.
	incrementPos := fc.here()
	if n.Increment != nil {
		fc.compileStatement(n.Increment)
	}
	fc.emit(bytecode.InstA(bytecode.OpJump, loopStart), 0)

	end := fc.here()
	fc.patchJump(jumpIfFalse, end)
	for _, b := range fc.loop.breaks {
		fc.patchJump(b, end)
	}
	// `continue` inside a for-loop must still run the increment clause
	// before looping back, so its jump target is the increment's start,
	// not loopStart.
	for _, c := range fc.loop.continues {
		fc.patchJump(c, incrementPos)
	}
	fc.loop = fc.loop.outer
	fc.endScope(0)
}

// --- expressions ---

func (fc *fnCompiler) compileExpr(e ast.Expression, line int) {
	switch n := e.(type) {
	case ast.Number:
		fc.emit(bytecode.InstA(bytecode.OpLoadConst, fc.chunk.AddConstant(bytecode.NumberConst(n.Value))), line)
	case ast.String:
		fc.emit(bytecode.InstA(bytecode.OpLoadConst, fc.chunk.AddConstant(bytecode.StringConst(n.Value))), line)
	case ast.Boolean:
		fc.emit(bytecode.InstA(bytecode.OpLoadConst, fc.chunk.AddConstant(bytecode.BooleanConst(n.Value))), line)
	case ast.Identifier:
		if slot := fc.resolveLocal(n.Name); slot != -1 {
			fc.emit(bytecode.InstA(bytecode.OpLoadVar, slot), line)
			return
		}
		fc.emit(bytecode.InstA(bytecode.OpLoadGlobal, fc.nameConstant(n.Name)), line)
	case ast.Binary:
		fc.compileBinary(n, line)
	case ast.Unary:
		fc.compileUnary(n, line)
	case ast.Call:
		for _, a := range n.Args {
			fc.compileExpr(a, line)
		}
		fc.emit(bytecode.InstAB(bytecode.OpCall, fc.nameConstant(n.Name), len(n.Args)), line)
	case ast.Array:
		for _, el := range n.Elements {
			fc.compileExpr(el, line)
		}
		fc.emit(bytecode.InstA(bytecode.OpMakeArray, len(n.Elements)), line)
	case ast.Index:
		fc.compileExpr(n.Array, line)
		fc.compileExpr(n.Index, line)
		fc.emit(bytecode.Inst(bytecode.OpGetIndex), line)
	case ast.Substring:
		fc.compileExpr(n.Str, line)
		fc.compileExpr(n.From, line)
		fc.compileExpr(n.To, line)
		fc.emit(bytecode.Inst(bytecode.OpSubstring), line)
	default:
		panic(CompileError{Message: fmt.Sprintf("unhandled expression type %T", e)})
	}
}

func (fc *fnCompiler) compileUnary(n ast.Unary, line int) {
	switch n.Operator.Type {
	case token.LENGTH:
		fc.compileExpr(n.Operand, line)
		fc.emit(bytecode.Inst(bytecode.OpLength), line)
	case token.UPPERCASE:
		fc.compileExpr(n.Operand, line)
		fc.emit(bytecode.Inst(bytecode.OpUppercase), line)
	case token.MINUS:
		fc.compileExpr(n.Operand, line)
		fc.emit(bytecode.Inst(bytecode.OpNegate), line)
	case token.NOT:
		fc.compileExpr(n.Operand, line)
		fc.emit(bytecode.Inst(bytecode.OpNot), line)
	default:
		panic(CompileError{Message: fmt.Sprintf("unhandled unary operator %s", n.Operator.Type)})
	}
}

// compileBinary handles and/or with short-circuit jumps, grounded on
// ast_compiler.go's VisitLogicalExpression; every other binary operator
// compiles both sides eagerly and emits one instruction.
func (fc *fnCompiler) compileBinary(n ast.Binary, line int) {
	switch n.Operator.Type {
	case token.AND:
		fc.compileExpr(n.Left, line)
		// JumpIfFalse pops its operand, so test a copy and keep the
		// left value as the result when it short-circuits.
		fc.emit(bytecode.Inst(bytecode.OpDup), line)
		jumpIfFalse := fc.emit(bytecode.InstA(bytecode.OpJumpIfFalse, 0), line)
		fc.emit(bytecode.Inst(bytecode.OpPop), line)
		fc.compileExpr(n.Right, line)
		fc.patchJump(jumpIfFalse, fc.here())
		return
	case token.OR:
		fc.compileExpr(n.Left, line)
		fc.emit(bytecode.Inst(bytecode.OpDup), line)
		jumpIfFalse := fc.emit(bytecode.InstA(bytecode.OpJumpIfFalse, 0), line)
		jumpEnd := fc.emit(bytecode.InstA(bytecode.OpJump, 0), line)
		fc.patchJump(jumpIfFalse, fc.here())
		fc.emit(bytecode.Inst(bytecode.OpPop), line)
		fc.compileExpr(n.Right, line)
		fc.patchJump(jumpEnd, fc.here())
		return
	}

	fc.compileExpr(n.Left, line)
	fc.compileExpr(n.Right, line)
	switch n.Operator.Type {
	case token.PLUS:
		fc.emit(bytecode.Inst(bytecode.OpAdd), line)
	case token.MINUS:
		fc.emit(bytecode.Inst(bytecode.OpSubtract), line)
	case token.TIMES:
		fc.emit(bytecode.Inst(bytecode.OpMultiply), line)
	case token.DIVIDED:
		fc.emit(bytecode.Inst(bytecode.OpDivide), line)
	case token.MODULO:
		fc.emit(bytecode.Inst(bytecode.OpModulo), line)
	case token.EQUALS:
		fc.emit(bytecode.Inst(bytecode.OpEqual), line)
	case token.NOT_EQUALS:
		fc.emit(bytecode.Inst(bytecode.OpNotEqual), line)
	case token.GREATER:
		fc.emit(bytecode.Inst(bytecode.OpGreater), line)
	case token.GREATER_EQUAL:
		fc.emit(bytecode.Inst(bytecode.OpGreaterEqual), line)
	case token.LESS:
		fc.emit(bytecode.Inst(bytecode.OpLess), line)
	case token.LESS_EQUAL:
		fc.emit(bytecode.Inst(bytecode.OpLessEqual), line)
	default:
		panic(CompileError{Message: fmt.Sprintf("unhandled binary operator %s", n.Operator.Type)})
	}
}
