package toplang

import (
	"bytes"
	"strings"
	"testing"
)

func TestRunEndToEnd(t *testing.T) {
	var out bytes.Buffer
	code, err := Run(`function main() { print 40 plus 2 return 0 }`, strings.NewReader(""), &out, DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.String() != "42\n" {
		t.Fatalf("got %q", out.String())
	}
	if code != 0 {
		t.Fatalf("got exit code %d", code)
	}
}

func TestRunSurfacesParseErrors(t *testing.T) {
	var out bytes.Buffer
	_, err := Run(`function main( { return 0 }`, strings.NewReader(""), &out, DefaultOptions())
	if err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestRunSurfacesRuntimeErrors(t *testing.T) {
	var out bytes.Buffer
	code, err := Run(`function main() { print 1 divided by 0 return 0 }`, strings.NewReader(""), &out, DefaultOptions())
	if err == nil {
		t.Fatal("expected a runtime error")
	}
	if code == 0 {
		t.Fatal("expected a non-zero exit code")
	}
}

func TestCompileWithPeepholeDisabled(t *testing.T) {
	chunk, err := Compile(`function main() { var a is 1 var b is 2 print a plus b return 0 }`, Options{EnablePeephole: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chunk.Functions["main"] == nil {
		t.Fatal("expected a main function chunk")
	}
}

func TestMainReturnIsExitCode(t *testing.T) {
	var out bytes.Buffer
	code, err := Run(`function main() { return 7 }`, strings.NewReader(""), &out, DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != 7 {
		t.Fatalf("got %d, want 7", code)
	}
}
