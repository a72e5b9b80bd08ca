package bytecode

import "testing"

func TestAddConstantDedups(t *testing.T) {
	c := NewChunk()
	i1 := c.AddConstant(NumberConst(3))
	i2 := c.AddConstant(StringConst("x"))
	i3 := c.AddConstant(NumberConst(3))
	if i1 != i3 {
		t.Fatalf("expected dedup: i1=%d i3=%d", i1, i3)
	}
	if i2 == i1 {
		t.Fatalf("distinct constants must get distinct indices")
	}
	if len(c.Constants) != 2 {
		t.Fatalf("got %d constants, want 2", len(c.Constants))
	}
}

func TestAddConstantDistinguishesKind(t *testing.T) {
	c := NewChunk()
	i1 := c.AddConstant(NumberConst(1))
	i2 := c.AddConstant(BooleanConst(true))
	if i1 == i2 {
		t.Fatalf("Number(1) and Boolean(true) must not dedup together")
	}
}

func TestEmitTracksLines(t *testing.T) {
	c := NewChunk()
	idx := c.AddConstant(NumberConst(42))
	pos := c.Emit(InstA(OpLoadConst, idx), 7)
	if pos != 0 {
		t.Fatalf("got pos %d, want 0", pos)
	}
	if len(c.Code) != 1 || len(c.Lines) != 1 {
		t.Fatalf("code/lines out of sync: %d/%d", len(c.Code), len(c.Lines))
	}
	if c.Lines[0] != 7 {
		t.Fatalf("got line %d, want 7", c.Lines[0])
	}
}

func TestNewMainChunkTrampoline(t *testing.T) {
	c := NewMainChunk(map[string]*Chunk{})
	if len(c.Code) != 2 {
		t.Fatalf("got %d instructions, want 2", len(c.Code))
	}
	if c.Code[0].Op != OpCall || c.Code[0].B != 0 {
		t.Fatalf("got %+v, want Call(main, 0)", c.Code[0])
	}
	if c.Constants[c.Code[0].A].Str != "main" {
		t.Fatalf("call name constant is %q, want %q", c.Constants[c.Code[0].A].Str, "main")
	}
	if c.Code[1].Op != OpHalt {
		t.Fatalf("got %+v, want Halt", c.Code[1])
	}
}

func TestOpString(t *testing.T) {
	if OpAdd.String() != "Add" {
		t.Fatalf("got %q", OpAdd.String())
	}
	if Op(200).String() == "" {
		t.Fatal("unknown op must still stringify")
	}
}
