// Package bytecode defines the stack-based instruction set and chunk
// container that the compiler emits and the VM executes. This is the
// stable wire contract between the two (spec.md §6): any alternative
// back-end consuming a Chunk must honor the same instruction semantics.
package bytecode

import "fmt"

// Op is the bytecode operation tag. A single wide switch on Op is the
// VM's hot dispatch loop.
type Op byte

const (
	OpLoadConst Op = iota
	OpLoadVar
	OpStoreVar
	OpLoadGlobal
	OpStoreGlobal

	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpModulo
	OpNegate

	OpEqual
	OpNotEqual
	OpGreater
	OpGreaterEqual
	OpLess
	OpLessEqual

	OpAnd
	OpOr
	OpNot

	// Peephole-specialized numeric fast paths (spec.md §4.5/§4.6). If
	// either operand is not a number at runtime, the VM silently
	// leaves the stack unchanged: these are only ever emitted
	// following Load* instructions the peephole pass has reason to
	// believe are numeric.
	OpAddInt
	OpSubInt
	OpMulInt
	OpLessInt
	OpIncrementInt

	OpJump
	OpJumpIfFalse
	OpJumpIfTrue

	OpCall
	OpReturn
	OpReturnNull

	OpPop
	OpDup

	OpMakeArray
	OpGetIndex
	OpSetIndex

	OpLength
	OpUppercase
	OpSubstring

	OpPrint
	OpInput

	OpHalt
	OpNop
)

var names = map[Op]string{
	OpLoadConst: "LoadConst", OpLoadVar: "LoadVar", OpStoreVar: "StoreVar",
	OpLoadGlobal: "LoadGlobal", OpStoreGlobal: "StoreGlobal",
	OpAdd: "Add", OpSubtract: "Subtract", OpMultiply: "Multiply", OpDivide: "Divide",
	OpModulo: "Modulo", OpNegate: "Negate",
	OpEqual: "Equal", OpNotEqual: "NotEqual", OpGreater: "Greater",
	OpGreaterEqual: "GreaterEqual", OpLess: "Less", OpLessEqual: "LessEqual",
	OpAnd: "And", OpOr: "Or", OpNot: "Not",
	OpAddInt: "AddInt", OpSubInt: "SubInt", OpMulInt: "MulInt",
	OpLessInt: "LessInt", OpIncrementInt: "IncrementInt",
	OpJump: "Jump", OpJumpIfFalse: "JumpIfFalse", OpJumpIfTrue: "JumpIfTrue",
	OpCall: "Call", OpReturn: "Return", OpReturnNull: "ReturnNull",
	OpPop: "Pop", OpDup: "Dup",
	OpMakeArray: "MakeArray", OpGetIndex: "GetIndex", OpSetIndex: "SetIndex",
	OpLength: "Length", OpUppercase: "Uppercase", OpSubstring: "Substring",
	OpPrint: "Print", OpInput: "Input",
	OpHalt: "Halt", OpNop: "Nop",
}

func (op Op) String() string {
	if n, ok := names[op]; ok {
		return n
	}
	return fmt.Sprintf("Op(%d)", byte(op))
}

// Instruction is one bytecode operation. Which of A/B are meaningful
// depends on Op:
//
//	LoadConst(A=constant index)       LoadVar(A=slot)   StoreVar(A=slot)
//	LoadGlobal(A=name constant index) StoreGlobal(A=name constant index)
//	Jump/JumpIfFalse/JumpIfTrue(A=target instruction index)
//	Call(A=name constant index, B=arity)
//	MakeArray(A=element count)
//	Input(A=prompt constant index, or -1 for no prompt)
type Instruction struct {
	Op Op
	A  int
	B  int
}

func Inst(op Op) Instruction          { return Instruction{Op: op} }
func InstA(op Op, a int) Instruction  { return Instruction{Op: op, A: a} }
func InstAB(op Op, a, b int) Instruction { return Instruction{Op: op, A: a, B: b} }

// ConstKind tags the variant held by a Constant.
type ConstKind byte

const (
	ConstNumber ConstKind = iota
	ConstString
	ConstBoolean
	ConstNull
)

// Constant is one entry of a chunk's constant pool.
type Constant struct {
	Kind    ConstKind
	Number  float64
	Str     string
	Boolean bool
}

func NumberConst(v float64) Constant  { return Constant{Kind: ConstNumber, Number: v} }
func StringConst(v string) Constant   { return Constant{Kind: ConstString, Str: v} }
func BooleanConst(v bool) Constant    { return Constant{Kind: ConstBoolean, Boolean: v} }
func NullConst() Constant             { return Constant{Kind: ConstNull} }

func (c Constant) Equal(o Constant) bool {
	if c.Kind != o.Kind {
		return false
	}
	switch c.Kind {
	case ConstNumber:
		return c.Number == o.Number
	case ConstString:
		return c.Str == o.Str
	case ConstBoolean:
		return c.Boolean == o.Boolean
	default:
		return true
	}
}

// Chunk is a self-contained bundle of bytecode, constant pool,
// per-instruction source lines, and nested function chunks. The
// top-level chunk's Code is always the two-instruction trampoline
// Call("main", 0); Halt (spec.md §3).
type Chunk struct {
	Code      []Instruction
	Constants []Constant
	Functions map[string]*Chunk
	Lines     []int
}

func NewChunk() *Chunk {
	return &Chunk{Functions: make(map[string]*Chunk)}
}

// AddConstant appends value to the pool, deduplicating against existing
// entries, and returns its index (spec.md §8: constant-pool dedup).
func (c *Chunk) AddConstant(value Constant) int {
	for i, existing := range c.Constants {
		if existing.Equal(value) {
			return i
		}
	}
	c.Constants = append(c.Constants, value)
	return len(c.Constants) - 1
}

// Emit appends an instruction, recording its source line, and returns
// its index (used for jump backpatching).
func (c *Chunk) Emit(inst Instruction, line int) int {
	c.Code = append(c.Code, inst)
	c.Lines = append(c.Lines, line)
	return len(c.Code) - 1
}

// NewMainChunk builds the top-level trampoline chunk that invokes
// "main" with zero arguments and then halts.
func NewMainChunk(functions map[string]*Chunk) *Chunk {
	c := &Chunk{Functions: functions}
	nameIdx := c.AddConstant(StringConst("main"))
	c.Emit(InstAB(OpCall, nameIdx, 0), 0)
	c.Emit(Inst(OpHalt), 0)
	return c
}
