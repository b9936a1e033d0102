package display

// DrawCall records the arguments and outcome of one DrawSprite call.
type DrawCall struct {
	X, Y      int
	Sprite    []byte
	Collision bool
}

// Recorder wraps a Headless display and records every draw call, so
// tests can assert on drawing behavior without decoding the raw grid.
type Recorder struct {
	*Headless
	Calls []DrawCall
}

// NewRecorder returns a Recorder wrapping a fresh Headless display.
func NewRecorder() *Recorder {
	return &Recorder{Headless: NewHeadless()}
}

// DrawSprite implements Display, delegating to Headless and recording
// the call.
func (r *Recorder) DrawSprite(x, y int, sprite []byte) bool {
	collision := r.Headless.DrawSprite(x, y, sprite)
	cp := make([]byte, len(sprite))
	copy(cp, sprite)
	r.Calls = append(r.Calls, DrawCall{X: x, Y: y, Sprite: cp, Collision: collision})
	return collision
}
