// Package vm implements the stack-based bytecode interpreter: a
// fetch-decode-execute loop over bytecode.Chunk, one value stack, one
// frame stack, and one global variable map with an inline cache
// (spec.md §4.6).
package vm

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"toplang/bytecode"
	"toplang/value"
)

// Frame is one call's activation record: the chunk it is executing,
// its instruction pointer, and where its locals begin on the shared
// value stack.
type Frame struct {
	chunk     *bytecode.Chunk
	ip        int
	stackBase int
}

type cacheEntry struct {
	value      value.Value
	generation int
}

// Options configures a VM, mirroring the teacher's constructor-options
// idiom (toplang.Options follows the same pattern) rather than a global
// config object.
type Options struct {
	Logger         Logger
	StackInitialCap int
}

// VM is a single-threaded, single-instance interpreter: no instruction
// suspends and there is no concurrent reader of its state (spec.md §5).
type VM struct {
	stack      Stack
	frames     []Frame
	globals    map[string]value.Value
	cache      map[string]cacheEntry
	generation int

	stdin  *bufio.Reader
	stdout io.Writer
	logger Logger
}

func New(opts Options) *VM {
	logger := opts.Logger
	if logger == nil {
		logger = NoopLogger
	}
	cap := opts.StackInitialCap
	if cap <= 0 {
		cap = 256
	}
	return &VM{
		stack:   make(Stack, 0, cap),
		globals: make(map[string]value.Value),
		cache:   make(map[string]cacheEntry),
		logger:  logger,
	}
}

// Run executes top (the Call("main",0);Halt trampoline chunk) to
// completion and returns the process exit code (spec.md §6): if main's
// return value is a number, its integer truncation is the exit code;
// any other return value (or falling off Halt with nothing returned)
// exits 0. A RuntimeError aborts with a non-zero exit.
func (vm *VM) Run(top *bytecode.Chunk, stdin io.Reader, stdout io.Writer) (exitCode int, err error) {
	vm.stdin = bufio.NewReader(stdin)
	vm.stdout = stdout
	vm.stack.Truncate(0)
	vm.frames = []Frame{{chunk: top, ip: 0, stackBase: 0}}

	defer func() {
		if r := recover(); r != nil {
			if re, ok := r.(RuntimeError); ok {
				err = re
				exitCode = 1
				return
			}
			panic(r)
		}
	}()

	returnValue := vm.execute()
	if returnValue.Kind == value.NumberKind {
		return int(math.Trunc(returnValue.Number)), nil
	}
	return 0, nil
}

// execute runs the fetch-decode-execute loop until the frame stack is
// exhausted (main has returned) or Halt is reached, returning the final
// value left on the stack, if any.
func (vm *VM) execute() value.Value {
	for len(vm.frames) > 0 {
		frame := &vm.frames[len(vm.frames)-1]
		if frame.ip >= len(frame.chunk.Code) {
			// Fell off the end of a chunk without an explicit
			// Return/ReturnNull/Halt; treat as ReturnNull.
			vm.doReturn(value.NullValue())
			continue
		}
		inst := frame.chunk.Code[frame.ip]
		frame.ip++
		vm.logger.Tracef("ip=%d %s A=%d B=%d stack=%d", frame.ip-1, inst.Op, inst.A, inst.B, vm.stack.Len())

		if halted, result := vm.step(frame, inst); halted {
			return result
		}
	}
	if vm.stack.Len() > 0 {
		return vm.stack.Peek(0)
	}
	return value.NullValue()
}

// step executes one instruction against frame (the current top frame).
// It returns (true, result) when Halt is reached, ending execution.
func (vm *VM) step(frame *Frame, inst bytecode.Instruction) (halted bool, result value.Value) {
	switch inst.Op {
	case bytecode.OpLoadConst:
		vm.stack.Push(constantToValue(frame.chunk.Constants[inst.A]))

	case bytecode.OpLoadVar:
		vm.stack.Push(vm.stack.At(frame.stackBase + inst.A))

	case bytecode.OpStoreVar:
		v := vm.stack.Pop()
		vm.stack.Set(frame.stackBase+inst.A, v)

	case bytecode.OpLoadGlobal:
		name := frame.chunk.Constants[inst.A].Str
		vm.stack.Push(vm.loadGlobal(name, vm.lineOf(frame)))

	case bytecode.OpStoreGlobal:
		name := frame.chunk.Constants[inst.A].Str
		vm.globals[name] = vm.stack.Peek(0)
		vm.generation++

	case bytecode.OpAdd:
		vm.binaryAdd(vm.lineOf(frame))
	case bytecode.OpSubtract:
		vm.binaryNumeric(bytecode.OpSubtract, vm.lineOf(frame))
	case bytecode.OpMultiply:
		vm.binaryNumeric(bytecode.OpMultiply, vm.lineOf(frame))
	case bytecode.OpDivide:
		vm.binaryNumeric(bytecode.OpDivide, vm.lineOf(frame))
	case bytecode.OpModulo:
		vm.binaryNumeric(bytecode.OpModulo, vm.lineOf(frame))
	case bytecode.OpNegate:
		v := vm.popNumber(vm.lineOf(frame))
		vm.stack.Push(value.NumberValue(-v))

	case bytecode.OpEqual:
		b := vm.stack.Pop()
		a := vm.stack.Pop()
		vm.stack.Push(value.BooleanValue(value.Equal(a, b)))
	case bytecode.OpNotEqual:
		b := vm.stack.Pop()
		a := vm.stack.Pop()
		vm.stack.Push(value.BooleanValue(!value.Equal(a, b)))
	case bytecode.OpGreater, bytecode.OpGreaterEqual, bytecode.OpLess, bytecode.OpLessEqual:
		vm.compare(inst.Op, vm.lineOf(frame))

	case bytecode.OpAnd:
		b := vm.stack.Pop()
		a := vm.stack.Pop()
		vm.stack.Push(value.BooleanValue(a.Truthy() && b.Truthy()))
	case bytecode.OpOr:
		b := vm.stack.Pop()
		a := vm.stack.Pop()
		vm.stack.Push(value.BooleanValue(a.Truthy() || b.Truthy()))
	case bytecode.OpNot:
		v := vm.stack.Pop()
		vm.stack.Push(value.BooleanValue(!v.Truthy()))

	case bytecode.OpAddInt:
		vm.fastNumeric(func(a, b float64) float64 { return a + b })
	case bytecode.OpSubInt:
		vm.fastNumeric(func(a, b float64) float64 { return a - b })
	case bytecode.OpMulInt:
		vm.fastNumeric(func(a, b float64) float64 { return a * b })
	case bytecode.OpLessInt:
		vm.fastCompare()
	case bytecode.OpIncrementInt:
		v := vm.stack.Pop()
		if v.Kind == value.NumberKind {
			vm.stack.Push(value.NumberValue(v.Number + 1))
		} else {
			vm.stack.Push(v)
		}

	case bytecode.OpJump:
		frame.ip = inst.A
	case bytecode.OpJumpIfFalse:
		if !vm.stack.Pop().Truthy() {
			frame.ip = inst.A
		}
	case bytecode.OpJumpIfTrue:
		if vm.stack.Pop().Truthy() {
			frame.ip = inst.A
		}

	case bytecode.OpCall:
		vm.call(frame, inst)

	case bytecode.OpReturn:
		v := vm.stack.Pop()
		vm.doReturn(v)
	case bytecode.OpReturnNull:
		vm.doReturn(value.NullValue())

	case bytecode.OpPop:
		vm.stack.Pop()
	case bytecode.OpDup:
		vm.stack.Push(vm.stack.Peek(0))

	case bytecode.OpMakeArray:
		n := inst.A
		elems := make([]value.Value, n)
		for i := n - 1; i >= 0; i-- {
			elems[i] = vm.stack.Pop()
		}
		vm.stack.Push(value.ArrayValue(value.NewArray(elems)))

	case bytecode.OpGetIndex:
		idx := vm.stack.Pop()
		arr := vm.stack.Pop()
		vm.stack.Push(vm.getIndex(arr, idx, vm.lineOf(frame)))

	case bytecode.OpSetIndex:
		v := vm.stack.Pop()
		idx := vm.stack.Pop()
		arr := vm.stack.Pop()
		vm.stack.Push(vm.setIndex(arr, idx, v, vm.lineOf(frame)))

	case bytecode.OpLength:
		vm.stack.Push(vm.length(vm.stack.Pop(), vm.lineOf(frame)))
	case bytecode.OpUppercase:
		v := vm.stack.Pop()
		if v.Kind != value.StringKind {
			panic(RuntimeError{Kind: TypeMismatch, Message: fmt.Sprintf("uppercase requires a string, got %s", v.TypeName()), Line: vm.lineOf(frame)})
		}
		vm.stack.Push(value.StringValue(strings.ToUpper(v.Str)))
	case bytecode.OpSubstring:
		vm.substring(vm.lineOf(frame))

	case bytecode.OpPrint:
		v := vm.stack.Pop()
		fmt.Fprintln(vm.stdout, v.Display())

	case bytecode.OpInput:
		vm.input(frame, inst)

	case bytecode.OpHalt:
		if vm.stack.Len() > 0 {
			return true, vm.stack.Peek(0)
		}
		return true, value.NullValue()

	case bytecode.OpNop:
		// no effect

	default:
		panic(RuntimeError{Kind: TypeMismatch, Message: fmt.Sprintf("unknown opcode %s", inst.Op), Line: vm.lineOf(frame)})
	}
	return false, value.Value{}
}

func (vm *VM) lineOf(frame *Frame) int {
	ip := frame.ip - 1
	if ip >= 0 && ip < len(frame.chunk.Lines) {
		return frame.chunk.Lines[ip]
	}
	return 0
}

func constantToValue(c bytecode.Constant) value.Value {
	switch c.Kind {
	case bytecode.ConstNumber:
		return value.NumberValue(c.Number)
	case bytecode.ConstString:
		return value.StringValue(c.Str)
	case bytecode.ConstBoolean:
		return value.BooleanValue(c.Boolean)
	default:
		return value.NullValue()
	}
}

// loadGlobal consults the generation-counted inline cache before
// falling back to the global map (spec.md §4.6).
func (vm *VM) loadGlobal(name string, line int) value.Value {
	if entry, ok := vm.cache[name]; ok && entry.generation == vm.generation {
		return entry.value
	}
	v, ok := vm.globals[name]
	if !ok {
		panic(RuntimeError{Kind: UndefinedVariable, Message: fmt.Sprintf("name %q is not defined", name), Line: line})
	}
	vm.cache[name] = cacheEntry{value: v, generation: vm.generation}
	return v
}

func (vm *VM) doReturn(ret value.Value) {
	frame := vm.frames[len(vm.frames)-1]
	vm.frames = vm.frames[:len(vm.frames)-1]
	vm.stack.Truncate(frame.stackBase)
	vm.stack.Push(ret)
}

func (vm *VM) call(frame *Frame, inst bytecode.Instruction) {
	name := frame.chunk.Constants[inst.A].Str
	arity := inst.B
	fn, ok := frame.chunk.Functions[name]
	if !ok {
		panic(RuntimeError{Kind: UndefinedFunction, Message: fmt.Sprintf("function %q is not defined", name), Line: vm.lineOf(frame)})
	}
	vm.frames = append(vm.frames, Frame{
		chunk:     fn,
		ip:        0,
		stackBase: vm.stack.Len() - arity,
	})
}

func (vm *VM) popNumber(line int) float64 {
	v := vm.stack.Pop()
	if v.Kind != value.NumberKind {
		panic(RuntimeError{Kind: TypeMismatch, Message: fmt.Sprintf("expected a number, got %s", v.TypeName()), Line: line})
	}
	return v.Number
}

func (vm *VM) binaryAdd(line int) {
	b := vm.stack.Pop()
	a := vm.stack.Pop()
	switch {
	case a.Kind == value.NumberKind && b.Kind == value.NumberKind:
		vm.stack.Push(value.NumberValue(a.Number + b.Number))
	case a.Kind == value.StringKind && b.Kind == value.StringKind:
		vm.stack.Push(value.StringValue(a.Str + b.Str))
	default:
		panic(RuntimeError{Kind: TypeMismatch, Message: fmt.Sprintf("cannot add %s and %s", a.TypeName(), b.TypeName()), Line: line})
	}
}

func (vm *VM) binaryNumeric(op bytecode.Op, line int) {
	b := vm.stack.Pop()
	a := vm.stack.Pop()
	if a.Kind != value.NumberKind || b.Kind != value.NumberKind {
		panic(RuntimeError{Kind: TypeMismatch, Message: fmt.Sprintf("%s requires two numbers, got %s and %s", op, a.TypeName(), b.TypeName()), Line: line})
	}
	switch op {
	case bytecode.OpSubtract:
		vm.stack.Push(value.NumberValue(a.Number - b.Number))
	case bytecode.OpMultiply:
		vm.stack.Push(value.NumberValue(a.Number * b.Number))
	case bytecode.OpDivide:
		if b.Number == 0 {
			panic(RuntimeError{Kind: DivByZero, Message: "division by zero", Line: line})
		}
		vm.stack.Push(value.NumberValue(a.Number / b.Number))
	case bytecode.OpModulo:
		if b.Number == 0 {
			panic(RuntimeError{Kind: ModByZero, Message: "modulo by zero", Line: line})
		}
		vm.stack.Push(value.NumberValue(math.Mod(a.Number, b.Number)))
	}
}

func (vm *VM) compare(op bytecode.Op, line int) {
	b := vm.stack.Pop()
	a := vm.stack.Pop()
	if a.Kind != value.NumberKind || b.Kind != value.NumberKind {
		panic(RuntimeError{Kind: TypeMismatch, Message: fmt.Sprintf("%s requires two numbers, got %s and %s", op, a.TypeName(), b.TypeName()), Line: line})
	}
	var result bool
	switch op {
	case bytecode.OpGreater:
		result = a.Number > b.Number
	case bytecode.OpGreaterEqual:
		result = a.Number >= b.Number
	case bytecode.OpLess:
		result = a.Number < b.Number
	case bytecode.OpLessEqual:
		result = a.Number <= b.Number
	}
	vm.stack.Push(value.BooleanValue(result))
}

// fastNumeric and fastCompare implement AddInt/SubInt/MulInt/LessInt:
// if either operand is not a number, the operation is silently skipped
// and both operands are left on the stack as they were. The peephole
// pass only ever emits these following Load* of presumed numerics.
func (vm *VM) fastNumeric(f func(a, b float64) float64) {
	b := vm.stack.Pop()
	a := vm.stack.Pop()
	if a.Kind != value.NumberKind || b.Kind != value.NumberKind {
		vm.stack.Push(a)
		vm.stack.Push(b)
		return
	}
	vm.stack.Push(value.NumberValue(f(a.Number, b.Number)))
}

func (vm *VM) fastCompare() {
	b := vm.stack.Pop()
	a := vm.stack.Pop()
	if a.Kind != value.NumberKind || b.Kind != value.NumberKind {
		vm.stack.Push(a)
		vm.stack.Push(b)
		return
	}
	vm.stack.Push(value.BooleanValue(a.Number < b.Number))
}

func (vm *VM) getIndex(arr, idx value.Value, line int) value.Value {
	if arr.Kind != value.ArrayKind {
		panic(RuntimeError{Kind: TypeMismatch, Message: fmt.Sprintf("cannot index into %s", arr.TypeName()), Line: line})
	}
	if idx.Kind != value.NumberKind {
		panic(RuntimeError{Kind: TypeMismatch, Message: fmt.Sprintf("index must be a number, got %s", idx.TypeName()), Line: line})
	}
	i := int(idx.Number)
	if i < 0 || i >= len(arr.Arr.Elements) {
		panic(RuntimeError{Kind: IndexOutOfBounds, Message: fmt.Sprintf("index %d out of bounds for array of length %d", i, len(arr.Arr.Elements)), Line: line})
	}
	return arr.Arr.Elements[i]
}

// setIndex mutates arr in place and pushes the same array back: arrays
// are reference-typed at runtime (DESIGN.md Open Question decision),
// so writes are immediately visible through every alias.
func (vm *VM) setIndex(arr, idx, v value.Value, line int) value.Value {
	if arr.Kind != value.ArrayKind {
		panic(RuntimeError{Kind: TypeMismatch, Message: fmt.Sprintf("cannot index into %s", arr.TypeName()), Line: line})
	}
	if idx.Kind != value.NumberKind {
		panic(RuntimeError{Kind: TypeMismatch, Message: fmt.Sprintf("index must be a number, got %s", idx.TypeName()), Line: line})
	}
	i := int(idx.Number)
	if i < 0 || i >= len(arr.Arr.Elements) {
		panic(RuntimeError{Kind: IndexOutOfBounds, Message: fmt.Sprintf("index %d out of bounds for array of length %d", i, len(arr.Arr.Elements)), Line: line})
	}
	arr.Arr.Elements[i] = v
	return arr
}

func (vm *VM) length(v value.Value, line int) value.Value {
	switch v.Kind {
	case value.StringKind:
		return value.NumberValue(float64(len([]rune(v.Str))))
	case value.ArrayKind:
		return value.NumberValue(float64(len(v.Arr.Elements)))
	default:
		panic(RuntimeError{Kind: TypeMismatch, Message: fmt.Sprintf("length requires a string or array, got %s", v.TypeName()), Line: line})
	}
}

func (vm *VM) substring(line int) {
	to := vm.stack.Pop()
	from := vm.stack.Pop()
	s := vm.stack.Pop()
	if s.Kind != value.StringKind || from.Kind != value.NumberKind || to.Kind != value.NumberKind {
		panic(RuntimeError{Kind: TypeMismatch, Message: "substring requires (string, number, number)", Line: line})
	}
	runes := []rune(s.Str)
	f, t := int(from.Number), int(to.Number)
	if f < 0 || t < f || t > len(runes) {
		panic(RuntimeError{Kind: SubstringOutOfBounds, Message: fmt.Sprintf("substring [%d, %d) out of bounds for length %d", f, t, len(runes)), Line: line})
	}
	vm.stack.Push(value.StringValue(string(runes[f:t])))
}

// input writes the optional prompt, reads one line, strips trailing
// CR/LF, and pushes a Number if the line parses as one, else a String
// (spec.md §4.6).
func (vm *VM) input(frame *Frame, inst bytecode.Instruction) {
	if inst.A >= 0 {
		fmt.Fprint(vm.stdout, frame.chunk.Constants[inst.A].Str)
	}
	line, _ := vm.stdin.ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if n, err := strconv.ParseFloat(line, 64); err == nil {
		vm.stack.Push(value.NumberValue(n))
		return
	}
	vm.stack.Push(value.StringValue(line))
}
