package logger

import (
	"strings"
	"testing"
)

func TestCentralLogfAndTail(t *testing.T) {
	c := &central{}
	c.Logf("kernel", "spawned pid %d", 3)
	c.Logf("cpu", "unknown opcode %#04x", 0x9999)

	var b strings.Builder
	c.Tail(&b, 10)
	want := "kernel: spawned pid 3\ncpu: unknown opcode 0x9999\n"
	if b.String() != want {
		t.Fatalf("got %q, want %q", b.String(), want)
	}
}

func TestCentralTailTruncates(t *testing.T) {
	c := &central{}
	c.Logf("a", "1")
	c.Logf("b", "2")
	c.Logf("c", "3")

	var b strings.Builder
	c.Tail(&b, 1)
	if b.String() != "c: 3\n" {
		t.Fatalf("got %q, want %q", b.String(), "c: 3\n")
	}
}

func TestCentralClear(t *testing.T) {
	c := &central{}
	c.Logf("a", "1")
	c.Clear()

	var b strings.Builder
	c.Tail(&b, 10)
	if b.String() != "" {
		t.Fatalf("got %q, want empty", b.String())
	}
}
