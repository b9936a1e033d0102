package logger

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// maxCentralEntries bounds the scrollback the interactive console
// binary keeps, the same ceiling Gopher2600's central logger applies.
const maxCentralEntries = 256

// entry is one line of the central log.
type entry struct {
	tag    string
	detail string
}

func (e entry) String() string {
	return fmt.Sprintf("%s: %s\n", e.tag, e.detail)
}

// central is a small tagged, size-bounded log, used only by the
// interactive gocui front-end's scrollback view -- component code
// should take a *log.Logger from New instead.
type central struct {
	mu      sync.Mutex
	entries []entry
}

// Central is the package-wide central logger instance.
var Central = &central{}

// Logf appends a formatted entry under tag to the central log.
func (c *central) Logf(tag, format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry{tag: tag, detail: fmt.Sprintf(format, args...)})
	if len(c.entries) > maxCentralEntries {
		c.entries = c.entries[len(c.entries)-maxCentralEntries:]
	}
}

// Clear removes every entry from the central log.
func (c *central) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = c.entries[:0]
}

// Tail writes the last n entries to w.
func (c *central) Tail(w io.Writer, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n > len(c.entries) {
		n = len(c.entries)
	}
	var b strings.Builder
	for _, e := range c.entries[len(c.entries)-n:] {
		b.WriteString(e.String())
	}
	io.WriteString(w, b.String())
}
