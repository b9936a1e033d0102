package display

import "testing"

func TestDrawSpriteXORIdempotence(t *testing.T) {
	h := NewHeadless()
	sprite := []byte{0xF0, 0x90, 0x90, 0x90, 0xF0}

	if collide := h.DrawSprite(0, 0, sprite); collide {
		t.Fatalf("first draw on blank grid should not collide")
	}
	for row := range sprite {
		for bit := 0; bit < 8; bit++ {
			want := sprite[row]&(0x80>>uint(bit)) != 0
			if got := h.Pixel(bit, row); got != want {
				t.Fatalf("pixel (%d,%d) = %v, want %v", bit, row, got, want)
			}
		}
	}

	if collide := h.DrawSprite(0, 0, sprite); !collide {
		t.Fatalf("second draw of the same sprite should collide")
	}
	for row := 0; row < Height; row++ {
		for col := 0; col < Width; col++ {
			if h.Pixel(col, row) {
				t.Fatalf("grid should be blank again after re-XOR, pixel (%d,%d) still set", col, row)
			}
		}
	}
}

func TestDrawSpriteWraps(t *testing.T) {
	h := NewHeadless()
	sprite := []byte{0xFF}

	h.DrawSprite(60, 31, sprite)
	// bits land at columns 60,61,62,63,0,1,2,3 on row 31.
	for _, x := range []int{60, 61, 62, 63, 0, 1, 2, 3} {
		if !h.Pixel(x, 31) {
			t.Fatalf("expected pixel (%d,31) to be set after wrap-around draw", x)
		}
	}
}

func TestTakeLastReleasedKey(t *testing.T) {
	h := NewHeadless()

	if _, ok := h.TakeLastReleasedKey(); ok {
		t.Fatalf("expected no released key on a fresh display")
	}

	h.SetKey(0xB, true)
	if _, ok := h.TakeLastReleasedKey(); ok {
		t.Fatalf("pressing a key must not count as a release")
	}

	h.SetKey(0xB, false)
	k, ok := h.TakeLastReleasedKey()
	if !ok || k != 0xB {
		t.Fatalf("got (%d, %v), want (0xB, true)", k, ok)
	}

	if _, ok := h.TakeLastReleasedKey(); ok {
		t.Fatalf("TakeLastReleasedKey should clear the latch")
	}
}

func TestKeyDown(t *testing.T) {
	h := NewHeadless()
	if h.KeyDown(3) {
		t.Fatalf("key 3 should start up")
	}
	h.SetKey(3, true)
	if !h.KeyDown(3) {
		t.Fatalf("key 3 should be down after SetKey(3, true)")
	}
}
