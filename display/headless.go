package display

// Headless is a Display with no window: draws are applied to an
// in-memory grid and key state is driven programmatically via SetKey.
// It satisfies the same contract an interactive front end would, which
// is what lets the kernel and process packages be tested with no
// terminal or windowing system present, and is selected automatically
// when CHIP8_HEADLESS is set.
type Headless struct {
	grid         [Height][Width]bool
	keys         [16]bool
	lastReleased *uint8
}

// NewHeadless returns a blank headless display.
func NewHeadless() *Headless {
	return &Headless{}
}

// DrawSprite implements Display.
func (h *Headless) DrawSprite(x, y int, sprite []byte) bool {
	return drawSprite(&h.grid, x, y, sprite)
}

// Clear implements Display.
func (h *Headless) Clear() {
	h.grid = [Height][Width]bool{}
}

// KeyDown implements Display.
func (h *Headless) KeyDown(k uint8) bool {
	if k > 0xF {
		return false
	}
	return h.keys[k]
}

// SetKey sets the down/up state of key k, recording a release for
// TakeLastReleasedKey when a down->up transition occurs. Test and
// front-end code drives key state through this method.
func (h *Headless) SetKey(k uint8, down bool) {
	if k > 0xF {
		return
	}
	wasDown := h.keys[k]
	h.keys[k] = down
	if wasDown && !down {
		key := k
		h.lastReleased = &key
	}
}

// TakeLastReleasedKey implements Display.
func (h *Headless) TakeLastReleasedKey() (uint8, bool) {
	if h.lastReleased == nil {
		return 0, false
	}
	k := *h.lastReleased
	h.lastReleased = nil
	return k, true
}

// PollInput implements Display. Headless has no host to poll from; key
// state changes only through SetKey.
func (h *Headless) PollInput() {}

// Pixel reports the current state of the pixel at (x, y), for tests and
// digest/inspection tooling.
func (h *Headless) Pixel(x, y int) bool {
	return h.grid[wrap(y, Height)][wrap(x, Width)]
}
