package console

import "io"

// Simple is a Console that writes directly to an io.Writer, used for
// console_mode == Host. Unlike the original channel-plus-goroutine
// design, output only ever happens on the scheduler goroutine, so
// there is no cross-goroutine handoff to buffer.
type Simple struct {
	w io.Writer
}

// NewSimple returns a Simple console writing to w.
func NewSimple(w io.Writer) *Simple {
	return &Simple{w: w}
}

// WriteConsole implements Console.
func (c *Simple) WriteConsole(msg string) error {
	_, err := io.WriteString(c.w, msg)
	return err
}
