package console

import "bytes"

// Headless is a Console that captures output in memory, used by tests
// that need to assert on what a process wrote without a real terminal
// or gocui window.
type Headless struct {
	buf bytes.Buffer
}

// NewHeadless returns an empty Headless console.
func NewHeadless() *Headless {
	return &Headless{}
}

// WriteConsole implements Console.
func (c *Headless) WriteConsole(msg string) error {
	_, err := c.buf.WriteString(msg)
	return err
}

// String returns everything written so far.
func (c *Headless) String() string {
	return c.buf.String()
}
