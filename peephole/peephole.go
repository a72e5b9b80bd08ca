// Package peephole rewrites a compiled bytecode.Chunk in place with
// small local optimizations, then removes the Nops the rewrites leave
// behind — recomputing every jump target to account for the shift.
package peephole

import "toplang/bytecode"

// Optimize rewrites chunk and every chunk in its Functions map,
// recursively, and returns chunk for convenience.
func Optimize(chunk *bytecode.Chunk) *bytecode.Chunk {
	seen := map[*bytecode.Chunk]bool{}
	optimizeChunk(chunk, seen)
	return chunk
}

func optimizeChunk(c *bytecode.Chunk, seen map[*bytecode.Chunk]bool) {
	if c == nil || seen[c] {
		return
	}
	seen[c] = true
	specializeNumericTriples(c)
	rewriteRedundant(c)
	compactNops(c)
	for _, fn := range c.Functions {
		optimizeChunk(fn, seen)
	}
}

var loadOps = map[bytecode.Op]bool{
	bytecode.OpLoadConst:  true,
	bytecode.OpLoadVar:    true,
	bytecode.OpLoadGlobal: true,
}

var specialized = map[bytecode.Op]bytecode.Op{
	bytecode.OpAdd:      bytecode.OpAddInt,
	bytecode.OpSubtract: bytecode.OpSubInt,
	bytecode.OpMultiply: bytecode.OpMulInt,
	bytecode.OpLess:     bytecode.OpLessInt,
}

// specializeNumericTriples rewrites every [Load*, Load*, Op] triple,
// where Op is one of Add/Subtract/Multiply/Less, into the load pair
// followed by the specialized fast-path op (spec.md §4.5).
func specializeNumericTriples(c *bytecode.Chunk) {
	for i := 0; i+2 < len(c.Code); i++ {
		if !loadOps[c.Code[i].Op] || !loadOps[c.Code[i+1].Op] {
			continue
		}
		if fast, ok := specialized[c.Code[i+2].Op]; ok {
			c.Code[i+2].Op = fast
		}
	}
}

// rewriteRedundant applies the three Nop-producing rewrites: a jump to
// the very next instruction, LoadConst immediately popped, and a
// double logical negation.
func rewriteRedundant(c *bytecode.Chunk) {
	for i := 0; i < len(c.Code); i++ {
		switch c.Code[i].Op {
		case bytecode.OpJump, bytecode.OpJumpIfFalse, bytecode.OpJumpIfTrue:
			if c.Code[i].Op == bytecode.OpJump && c.Code[i].A == i+1 {
				c.Code[i] = bytecode.Inst(bytecode.OpNop)
			}
		}
		if c.Code[i].Op == bytecode.OpLoadConst && i+1 < len(c.Code) && c.Code[i+1].Op == bytecode.OpPop {
			c.Code[i] = bytecode.Inst(bytecode.OpNop)
			c.Code[i+1] = bytecode.Inst(bytecode.OpNop)
			i++
		}
		if c.Code[i].Op == bytecode.OpNot && i+1 < len(c.Code) && c.Code[i+1].Op == bytecode.OpNot {
			c.Code[i] = bytecode.Inst(bytecode.OpNop)
			c.Code[i+1] = bytecode.Inst(bytecode.OpNop)
			i++
		}
	}
}

// compactNops removes every Nop and rewrites all jump targets to
// account for the shift. This is the step spec.md §4.5 calls out as
// easiest to get wrong: jump targets are absolute instruction indices,
// so deleting an instruction before a jump target invalidates it unless
// every target is remapped through an old→new index table.
func compactNops(c *bytecode.Chunk) {
	oldToNew := make([]int, len(c.Code))
	newCode := make([]bytecode.Instruction, 0, len(c.Code))
	newLines := make([]int, 0, len(c.Code))

	for i, inst := range c.Code {
		if inst.Op == bytecode.OpNop {
			oldToNew[i] = -1
			continue
		}
		oldToNew[i] = len(newCode)
		newCode = append(newCode, inst)
		newLines = append(newLines, c.Lines[i])
	}

	for i := range newCode {
		switch newCode[i].Op {
		case bytecode.OpJump, bytecode.OpJumpIfFalse, bytecode.OpJumpIfTrue:
			newCode[i].A = remapTarget(oldToNew, newCode[i].A)
		}
	}

	c.Code = newCode
	c.Lines = newLines
}

// remapTarget maps an old instruction index to its new index. If the
// exact old index was a removed Nop, it maps to the new index of the
// nearest following surviving instruction (a jump never legitimately
// targets a Nop it itself introduced mid-pass, but this keeps the
// mapping total and safe).
func remapTarget(oldToNew []int, old int) int {
	if old >= len(oldToNew) {
		// Target is the instruction stream's end (e.g. "jump past the
		// last statement"); count how many survived before it.
		count := 0
		for _, v := range oldToNew {
			if v != -1 {
				count++
			}
		}
		return count
	}
	for old < len(oldToNew) && oldToNew[old] == -1 {
		old++
	}
	if old >= len(oldToNew) {
		count := 0
		for _, v := range oldToNew {
			if v != -1 {
				count++
			}
		}
		return count
	}
	return oldToNew[old]
}
