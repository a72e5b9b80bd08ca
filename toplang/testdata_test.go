package toplang

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

// readTestdata loads a fixture from ../testdata, the example programs
// a reader would reach for to see TopLang in action (and that exercise
// the pipeline the way a real script does, rather than the narrow
// single-feature snippets in the package-level unit tests).
func readTestdata(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile("../testdata/" + name)
	if err != nil {
		t.Fatalf("reading testdata/%s: %v", name, err)
	}
	return string(data)
}

func TestFibonacciFixture(t *testing.T) {
	var out bytes.Buffer
	code, err := Run(readTestdata(t, "fibonacci.top"), strings.NewReader(""), &out, DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != 0 {
		t.Fatalf("got exit code %d", code)
	}
	if out.String() != "6765\n" {
		t.Fatalf("got %q, want %q", out.String(), "6765\n")
	}
}

func TestArraySumFixture(t *testing.T) {
	var out bytes.Buffer
	_, err := Run(readTestdata(t, "array_sum.top"), strings.NewReader(""), &out, DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.String() != "55\n" {
		t.Fatalf("got %q, want %q", out.String(), "55\n")
	}
}

func TestPrimesFixture(t *testing.T) {
	var out bytes.Buffer
	_, err := Run(readTestdata(t, "primes.top"), strings.NewReader(""), &out, DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.String() != "168\n" {
		t.Fatalf("got %q, want %q (number of primes below 1000)", out.String(), "168\n")
	}
}

func TestGreetingFixture(t *testing.T) {
	var out bytes.Buffer
	_, err := Run(readTestdata(t, "greeting.top"), strings.NewReader("Ada\n"), &out, DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "What is your name? Hello, ADA!\nfirst three letters: Ada\n3\n"
	if out.String() != want {
		t.Fatalf("got %q, want %q", out.String(), want)
	}
}
