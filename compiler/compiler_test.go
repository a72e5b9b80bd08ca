package compiler

import (
	"testing"

	"toplang/bytecode"
	"toplang/lexer"
	"toplang/optimizer"
	"toplang/parser"
)

func compile(t *testing.T, src string) *bytecode.Chunk {
	t.Helper()
	tokens := lexer.New(src).Scan()
	prog, errs := parser.New(tokens).Parse()
	if len(errs) > 0 {
		t.Fatalf("parse errors: %v", errs)
	}
	prog = optimizer.Optimize(prog)
	top, err := Compile(prog)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	return top
}

func TestTopLevelTrampoline(t *testing.T) {
	top := compile(t, `function main() { return 0 }`)
	if len(top.Code) != 2 || top.Code[0].Op != bytecode.OpCall || top.Code[1].Op != bytecode.OpHalt {
		t.Fatalf("got %+v", top.Code)
	}
}

func TestReturnEmitted(t *testing.T) {
	top := compile(t, `function main() { return 42 }`)
	main := top.Functions["main"]
	last := main.Code[len(main.Code)-1]
	if last.Op != bytecode.OpReturn {
		t.Fatalf("got %+v, want Return", last)
	}
}

func TestImplicitReturnNull(t *testing.T) {
	top := compile(t, `function main() { print 1 }`)
	main := top.Functions["main"]
	last := main.Code[len(main.Code)-1]
	if last.Op != bytecode.OpReturnNull {
		t.Fatalf("got %+v, want implicit ReturnNull", last)
	}
}

func TestLocalVariableUsesLoadVarStoreVar(t *testing.T) {
	top := compile(t, `function main() { var x is 1 x is x plus 1 return x }`)
	main := top.Functions["main"]
	sawStoreVar := false
	for _, inst := range main.Code {
		if inst.Op == bytecode.OpStoreVar {
			sawStoreVar = true
		}
		if inst.Op == bytecode.OpStoreGlobal {
			t.Fatalf("function-local var must not compile to StoreGlobal: %+v", main.Code)
		}
	}
	if !sawStoreVar {
		t.Fatalf("expected a StoreVar instruction, got %+v", main.Code)
	}
}

func TestDuplicateLocalInSameScopeIsCompileError(t *testing.T) {
	tokens := lexer.New(`function main() { var x is 1 var x is 2 return 0 }`).Scan()
	prog, errs := parser.New(tokens).Parse()
	if len(errs) > 0 {
		t.Fatalf("parse errors: %v", errs)
	}
	if _, err := Compile(prog); err == nil {
		t.Fatal("expected a duplicate-local compile error")
	}
}

func TestIfElseBackpatchesJumps(t *testing.T) {
	top := compile(t, `function main() { var x is 1 if x less than 2 { return 1 } else { return 0 } }`)
	main := top.Functions["main"]
	for i, inst := range main.Code {
		if inst.Op == bytecode.OpJumpIfFalse || inst.Op == bytecode.OpJump {
			if inst.A <= i {
				t.Fatalf("jump at %d targets %d, expected a forward target", i, inst.A)
			}
			if inst.A > len(main.Code) {
				t.Fatalf("jump target %d out of range (len=%d)", inst.A, len(main.Code))
			}
		}
	}
}

func TestWhileLoopBackJump(t *testing.T) {
	top := compile(t, `function main() { var i is 0 while i less than 3 { i is i plus 1 } return i }`)
	main := top.Functions["main"]
	sawBackJump := false
	for i, inst := range main.Code {
		if inst.Op == bytecode.OpJump && inst.A < i {
			sawBackJump = true
		}
	}
	if !sawBackJump {
		t.Fatalf("expected a backward Jump closing the while loop, got %+v", main.Code)
	}
}

func TestBreakJumpsPastLoop(t *testing.T) {
	top := compile(t, `function main() { while true { break } return 0 }`)
	main := top.Functions["main"]
	foundBreakJump := false
	for _, inst := range main.Code {
		if inst.Op == bytecode.OpJump && inst.A >= len(main.Code)-2 {
			foundBreakJump = true
		}
	}
	if !foundBreakJump {
		t.Fatalf("expected break's Jump to target past the loop body, got %+v", main.Code)
	}
}

func TestCallEmitsNameAndArity(t *testing.T) {
	top := compile(t, `function add(a, b) { return a plus b } function main() { return add(1, 2) }`)
	main := top.Functions["main"]
	var call *bytecode.Instruction
	for i := range main.Code {
		if main.Code[i].Op == bytecode.OpCall {
			call = &main.Code[i]
		}
	}
	if call == nil {
		t.Fatal("expected a Call instruction")
	}
	if call.B != 2 {
		t.Fatalf("got arity %d, want 2", call.B)
	}
	if main.Constants[call.A].Str != "add" {
		t.Fatalf("got call name %q, want %q", main.Constants[call.A].Str, "add")
	}
}

func TestParamsAreLocals(t *testing.T) {
	top := compile(t, `function identity(x) { return x } function main() { return identity(5) }`)
	fn := top.Functions["identity"]
	if fn.Code[0].Op != bytecode.OpLoadVar {
		t.Fatalf("expected parameter reference to compile to LoadVar, got %+v", fn.Code[0])
	}
}

func TestScopeExitEmitsPopPerLocal(t *testing.T) {
	top := compile(t, `function f(x) { if x { var a is 1 var b is 2 } return 0 } function main() { return f(true) }`)
	fn := top.Functions["f"]
	pops := 0
	for _, inst := range fn.Code {
		if inst.Op == bytecode.OpPop {
			pops++
		}
	}
	if pops < 2 {
		t.Fatalf("expected at least 2 Pops for the two locals leaving scope, got %d", pops)
	}
}
