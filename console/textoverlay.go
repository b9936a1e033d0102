package console

import (
	"strings"

	"github.com/jroimartin/gocui"
	"github.com/mattn/go-runewidth"
)

// TextOverlay dimensions: the abstract 80x40 character grid a process
// in console_mode == Display renders write() output onto.
const (
	OverlayCols = 80
	OverlayRows = 40
)

// TextOverlay is a Console backed by an 80x40 character grid rendered
// inside a gocui view, used when a process's console_mode is Display
// rather than Host. It maintains its own grid so scrollback survives
// gocui view redraws, and advances the write cursor rune-by-rune with
// go-runewidth so a wide rune never straddles the last column.
type TextOverlay struct {
	g    *gocui.Gui
	v    *gocui.View
	grid [OverlayRows][OverlayCols]rune
	col  int
	row  int
}

// NewTextOverlay attaches a TextOverlay to the named gocui view.
func NewTextOverlay(g *gocui.Gui, viewName string) (*TextOverlay, error) {
	v, err := g.View(viewName)
	if err != nil {
		return nil, err
	}
	t := &TextOverlay{g: g, v: v}
	t.clearGrid()
	return t, nil
}

func (t *TextOverlay) clearGrid() {
	for r := range t.grid {
		for c := range t.grid[r] {
			t.grid[r][c] = ' '
		}
	}
}

// WriteConsole implements Console: each rune of msg advances the
// cursor by its display width, wrapping at OverlayCols and scrolling
// the grid up a line when it runs past OverlayRows.
func (t *TextOverlay) WriteConsole(msg string) error {
	for _, r := range msg {
		if r == '\n' {
			t.newline()
			continue
		}
		w := runewidth.RuneWidth(r)
		if t.col+w > OverlayCols {
			t.newline()
		}
		t.grid[t.row][t.col] = r
		t.col += w
	}
	t.render()
	return nil
}

func (t *TextOverlay) newline() {
	t.col = 0
	t.row++
	if t.row >= OverlayRows {
		copy(t.grid[:], t.grid[1:])
		for c := range t.grid[OverlayRows-1] {
			t.grid[OverlayRows-1][c] = ' '
		}
		t.row = OverlayRows - 1
	}
}

func (t *TextOverlay) render() {
	t.g.Update(func(g *gocui.Gui) error {
		t.v.Clear()
		var b strings.Builder
		for r := 0; r <= t.row; r++ {
			b.WriteString(strings.TrimRight(string(t.grid[r][:]), " "))
			b.WriteByte('\n')
		}
		_, err := t.v.Write([]byte(b.String()))
		return err
	})
}
