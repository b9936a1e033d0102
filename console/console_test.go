package console

import (
	"bytes"
	"testing"
)

func TestSimpleWritesThrough(t *testing.T) {
	var buf bytes.Buffer
	c := NewSimple(&buf)
	if err := c.WriteConsole("hello\n"); err != nil {
		t.Fatalf("WriteConsole: %v", err)
	}
	if buf.String() != "hello\n" {
		t.Fatalf("got %q, want %q", buf.String(), "hello\n")
	}
}

func TestHeadlessAccumulates(t *testing.T) {
	c := NewHeadless()
	c.WriteConsole("a")
	c.WriteConsole("b")
	if c.String() != "ab" {
		t.Fatalf("got %q, want %q", c.String(), "ab")
	}
}

var _ Console = (*Simple)(nil)
var _ Console = (*Headless)(nil)
var _ Console = (*TextOverlay)(nil)
