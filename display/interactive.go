package display

import (
	"os"
	"time"

	"github.com/pkg/term/termios"
	"golang.org/x/sys/unix"
)

// keymap translates the standard CHIP-8 keypad layout onto a QWERTY
// keyboard, the same 4x4-block-to-hex-nibble convention every CHIP-8
// front end uses:
//
//	1 2 3 C        1 2 3 4
//	4 5 6 D   <-   q w e r
//	7 8 9 E        a s d f
//	A 0 B F        z x c v
var keymap = map[byte]uint8{
	'1': 0x1, '2': 0x2, '3': 0x3, '4': 0xC,
	'q': 0x4, 'w': 0x5, 'e': 0x6, 'r': 0xD,
	'a': 0x7, 's': 0x8, 'd': 0x9, 'f': 0xE,
	'z': 0xA, 'x': 0x0, 'c': 0xB, 'v': 0xF,
}

// keyHoldDuration is how long a key is reported as held after a
// keystroke is read from the terminal. Terminals report key presses,
// not key up/down transitions, so a held-then-released press is
// synthesized on a timer, the same tradeoff every terminal-driven
// CHIP-8 emulator makes.
const keyHoldDuration = 150 * time.Millisecond

// Interactive is a Display backed by the host terminal in raw mode: it
// polls stdin for keystrokes mapped onto the CHIP-8 keypad. It has no
// pixel output of its own; a windowed pixel renderer is an external
// collaborator that reads the same grid via Headless's Pixel method
// (Interactive embeds one).
type Interactive struct {
	*Headless

	origTermios unix.Termios
	keyEvents   chan byte
	stop        chan struct{}
}

// NewInteractive puts stdin into raw mode and starts polling it for
// keystrokes. Callers must call Close when done to restore the
// terminal.
func NewInteractive() (*Interactive, error) {
	in := &Interactive{
		Headless:  NewHeadless(),
		keyEvents: make(chan byte, 16),
		stop:      make(chan struct{}),
	}

	if err := termios.Tcgetattr(os.Stdin.Fd(), &in.origTermios); err != nil {
		return nil, err
	}
	raw := in.origTermios
	raw.Lflag &^= unix.ICANON | unix.ECHO
	if err := termios.Tcsetattr(os.Stdin.Fd(), termios.TCSANOW, &raw); err != nil {
		return nil, err
	}

	go in.pollKeyboard()
	return in, nil
}

// Close restores the terminal to its original mode and stops polling.
func (in *Interactive) Close() error {
	close(in.stop)
	return termios.Tcsetattr(os.Stdin.Fd(), termios.TCSANOW, &in.origTermios)
}

func (in *Interactive) pollKeyboard() {
	buf := make([]byte, 1)
	for {
		select {
		case <-in.stop:
			return
		default:
		}
		n, err := os.Stdin.Read(buf)
		if err != nil || n == 0 {
			continue
		}
		select {
		case in.keyEvents <- buf[0]:
		default:
		}
	}
}

// PollInput implements Display: it drains any keystrokes read since the
// last call and applies the synthesized down/up transitions to the
// embedded Headless grid.
func (in *Interactive) PollInput() {
	for {
		select {
		case b := <-in.keyEvents:
			key, ok := keymap[b]
			if !ok {
				continue
			}
			in.Headless.SetKey(key, true)
			k := key
			time.AfterFunc(keyHoldDuration, func() {
				in.Headless.SetKey(k, false)
			})
		default:
			return
		}
	}
}
