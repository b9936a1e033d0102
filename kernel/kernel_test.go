package kernel

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"chip8os/console"
	"chip8os/display"
	"chip8os/fs"
	"chip8os/physmem"
	"chip8os/process"
)

// ROM byte slices in these tests are the raw file content that gets
// installed starting at virtual address 0x200 (see process.LoadProgram),
// so rom[i] lives at virtual address 0x200+i. A "LD I, 0x300" places I
// at rom index 0x100, "LD I, 0x400" at rom index 0x200, and so on.

func writeFile(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func newTestKernelWithRoot(t *testing.T, stdin string) (*Kernel, *console.Headless, string) {
	t.Helper()
	dir := t.TempDir()
	root, err := fs.Attach(dir, nil)
	if err != nil {
		t.Fatalf("fs.Attach: %v", err)
	}
	mem := physmem.New(nil)
	hostConsole := console.NewHeadless()
	displayConsole := console.NewHeadless()

	var k *Kernel
	if stdin != "" {
		k = New(root, mem, strings.NewReader(stdin), func() display.Display { return display.NewHeadless() }, hostConsole, displayConsole, nil)
	} else {
		k = New(root, mem, nil, func() display.Display { return display.NewHeadless() }, hostConsole, displayConsole, nil)
	}
	return k, hostConsole, dir
}

// TestWriteHelloScenario runs LD I, 0x300 then a syscall frame pointing
// at "hello" via write(). Two steps deliver the bytes to the host
// console and report V0=5, VF=0, PC=0x204.
func TestWriteHelloScenario(t *testing.T) {
	k, hc, _ := newTestKernelWithRoot(t, "")

	rom := make([]byte, 0x200)
	// A300: LD I, 0x300
	rom[0] = 0xA3
	rom[1] = 0x00
	// 0110: SYS write (0x100 + 0x10)
	rom[2] = 0x01
	rom[3] = 0x10

	// frame at virtual 0x300 (rom index 0x100): write(buf_ptr=0x320, len=5)
	copy(rom[0x100:], []byte{0x05, 0x03, 0x20, 0x00, 0x05})
	// "hello" at virtual 0x320 (rom index 0x120)
	copy(rom[0x120:], []byte("hello"))

	p, err := k.Spawn(rom, 1)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	k.RunOnce(0)
	k.RunOnce(0)

	if hc.String() != "hello" {
		t.Fatalf("host console = %q, want %q", hc.String(), "hello")
	}
	if p.Regs().V[0] != 5 || p.Regs().VF() != 0 {
		t.Fatalf("V0=%d VF=%d, want V0=5 VF=0", p.Regs().V[0], p.Regs().VF())
	}
	if p.Regs().PC != 0x204 {
		t.Fatalf("PC = %#04x, want 0x204", p.Regs().PC)
	}
}

// TestSpawnAndWaitScenario spawns "b.ch8" (which immediately exits with
// 0x2A), then waits on it and resumes with V0=0x2A, VF=0.
func TestSpawnAndWaitScenario(t *testing.T) {
	k, _, dir := newTestKernelWithRoot(t, "")

	childROM := make([]byte, 0x200)
	// A300: LD I, 0x300
	childROM[0] = 0xA3
	childROM[1] = 0x00
	// 0102: SYS exit
	childROM[2] = 0x01
	childROM[3] = 0x02
	// frame at virtual 0x300 (rom index 0x100): exit(0x002A)
	copy(childROM[0x100:], []byte{0x03, 0x00, 0x2A})
	writeFile(t, dir, "b.ch8", childROM)

	parentROM := make([]byte, 0x300)
	// A300: LD I, 0x300  (spawn frame)
	parentROM[0] = 0xA3
	parentROM[1] = 0x00
	// 0101: SYS spawn
	parentROM[2] = 0x01
	parentROM[3] = 0x01
	// A400: LD I, 0x400 (wait frame)
	parentROM[4] = 0xA4
	parentROM[5] = 0x00
	// 0103: SYS wait
	parentROM[6] = 0x01
	parentROM[7] = 0x03

	// spawn frame at virtual 0x300 (rom index 0x100): spawn(rom_name_ptr=0x320, rom_name_len=5)
	copy(parentROM[0x100:], []byte{0x05, 0x03, 0x20, 0x00, 0x05})
	// "b.ch8" at virtual 0x320 (rom index 0x120)
	copy(parentROM[0x120:], []byte("b.ch8"))
	// wait frame at virtual 0x400 (rom index 0x200): wait(pid=2) -- the
	// parent is spawned directly below as pid 1, so its own spawn
	// syscall deterministically assigns the child pid 2.
	copy(parentROM[0x200:], []byte{0x03, 0x00, 0x02})

	parent, err := k.Spawn(parentROM, 1)
	if err != nil {
		t.Fatalf("Spawn parent: %v", err)
	}
	if parent.PID != 1 {
		t.Fatalf("expected parent pid 1, got %d", parent.PID)
	}

	for i := 0; i < 10 && len(k.procs) > 0; i++ {
		k.RunOnce(0)
	}

	if parent.Regs().V[0] != 0x2A || parent.Regs().VF() != 0 {
		t.Fatalf("parent V0=%#02x VF=%d, want V0=0x2A VF=0", parent.Regs().V[0], parent.Regs().VF())
	}
}

// TestFsListEmptyPathScenario lists the sandbox root with an empty path.
func TestFsListEmptyPathScenario(t *testing.T) {
	k, _, dir := newTestKernelWithRoot(t, "")
	writeFile(t, dir, "a", []byte{1, 2, 3})
	writeFile(t, dir, "b", make([]byte, 10))

	rom := make([]byte, 0x300)
	// A300: LD I, 0x300
	rom[0] = 0xA3
	rom[1] = 0x00
	// 0120: SYS fs_list
	rom[2] = 0x01
	rom[3] = 0x20

	// frame at virtual 0x300 (rom index 0x100):
	// fs_list(path_ptr=0, path_len=0, out_ptr=0x500, max_entries=4)
	frame := []byte{
		0x09,
		0x00, 0x00, // path_ptr (unused since path_len=0)
		0x00, 0x00, // path_len=0
		0x05, 0x00, // out_ptr=0x500
		0x00, 0x04, // max_entries=4
	}
	copy(rom[0x100:], frame)

	p, err := k.Spawn(rom, 1)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	k.RunOnce(0)
	k.RunOnce(0)

	if p.Regs().VF() != 0 {
		t.Fatalf("VF=%d, want 0 (V0=%d)", p.Regs().VF(), p.Regs().V[0])
	}
	if p.Regs().V[0] != 2 {
		t.Fatalf("V0=%d, want 2", p.Regs().V[0])
	}
}

// TestReadLineScenario reads a newline-terminated line from stdin.
func TestReadLineScenario(t *testing.T) {
	k, _, _ := newTestKernelWithRoot(t, "hi\n")

	rom := make([]byte, 0x300)
	// A300: LD I, 0x300
	rom[0] = 0xA3
	rom[1] = 0x00
	// 0111: SYS read
	rom[2] = 0x01
	rom[3] = 0x11

	// frame at virtual 0x300 (rom index 0x100): read(buf_ptr=0x500, len=16)
	frame := []byte{0x05, 0x05, 0x00, 0x00, 0x10}
	copy(rom[0x100:], frame)

	p, err := k.Spawn(rom, 1)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	k.RunOnce(0) // LD I
	k.RunOnce(0) // SYS read: resolves immediately or blocks
	for i := 0; i < 20 && p.State.Kind == process.Blocked; i++ {
		k.RunOnce(0)
	}

	if p.Regs().V[0] != 3 || p.Regs().VF() != 0 {
		t.Fatalf("V0=%d VF=%d, want V0=3 VF=0", p.Regs().V[0], p.Regs().VF())
	}
	got, err := p.ReadBytes(0x500, 3)
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	want := []byte{0x68, 0x69, 0x0A}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("buf = %v, want %v", got, want)
		}
	}
}

// TestKeyWaitWakesOnRelease exercises the kernel's per-pass poll of
// blocked-KeyWait processes: a process executing Fx0A blocks, then a
// simulated key press+release on its own Display must resume it with
// the key value in the destination register and PC advanced, without
// ever calling process.ResumeKeyWait directly.
func TestKeyWaitWakesOnRelease(t *testing.T) {
	k, _, _ := newTestKernelWithRoot(t, "")

	rom := make([]byte, 0x200)
	// F00A: LD V0, K (blocks waiting for a key release)
	rom[0] = 0xF0
	rom[1] = 0x0A

	p, err := k.Spawn(rom, 1)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	k.RunOnce(0)
	if p.State.Kind != process.Blocked {
		t.Fatalf("expected process blocked on key wait, got %v", p.State.Kind)
	}

	hd, ok := p.Display().(*display.Headless)
	if !ok {
		t.Fatalf("expected *display.Headless")
	}
	hd.SetKey(0xB, true)
	hd.SetKey(0xB, false)

	for i := 0; i < 5 && p.State.Kind == process.Blocked; i++ {
		k.RunOnce(0)
	}

	if p.State.Kind != process.Running {
		t.Fatalf("expected process running after key release, got %v", p.State.Kind)
	}
	if p.Regs().V[0] != 0xB {
		t.Fatalf("V0 = %#x, want 0xB", p.Regs().V[0])
	}
	if p.Regs().PC != 0x202 {
		t.Fatalf("PC = %#04x, want 0x202", p.Regs().PC)
	}
}

// TestReadBlockedThenEOFResolves blocks a process in read() with no
// data available, then closes stdin with nothing ever delivered; the
// process must wake with V0=0 rather than block forever.
func TestReadBlockedThenEOFResolves(t *testing.T) {
	dir := t.TempDir()
	root, err := fs.Attach(dir, nil)
	if err != nil {
		t.Fatalf("fs.Attach: %v", err)
	}
	mem := physmem.New(nil)
	pr, pw := io.Pipe()
	k := New(root, mem, pr, func() display.Display { return display.NewHeadless() }, console.NewHeadless(), console.NewHeadless(), nil)

	rom := make([]byte, 0x300)
	rom[0] = 0xA3
	rom[1] = 0x00
	rom[2] = 0x01
	rom[3] = 0x11
	copy(rom[0x100:], []byte{0x05, 0x05, 0x00, 0x00, 0x10})

	p, err := k.Spawn(rom, 1)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	k.RunOnce(0)
	k.RunOnce(0)
	if p.State.Kind != process.Blocked {
		t.Fatalf("expected process blocked on read, got %v", p.State.Kind)
	}

	pw.Close()

	for i := 0; i < 20 && p.State.Kind == process.Blocked; i++ {
		k.RunOnce(0)
	}

	if p.State.Kind != process.Running {
		t.Fatalf("expected process running after EOF, got %v", p.State.Kind)
	}
	if p.Regs().V[0] != 0 || p.Regs().VF() != 0 {
		t.Fatalf("V0=%d VF=%d, want V0=0 VF=0", p.Regs().V[0], p.Regs().VF())
	}
}

func TestFsOpenAllocatesFD(t *testing.T) {
	k, _, dir := newTestKernelWithRoot(t, "")
	writeFile(t, dir, "hello.txt", []byte("hey"))

	rom := make([]byte, 0x200)
	// A300: LD I, 0x300
	rom[0] = 0xA3
	rom[1] = 0x00
	// 0121: SYS fs_open
	rom[2] = 0x01
	rom[3] = 0x21

	// frame at virtual 0x300 (rom index 0x100): fs_open(path_ptr=0x320, path_len=9)
	frame := []byte{0x05, 0x03, 0x20, 0x00, 0x09}
	copy(rom[0x100:], frame)
	copy(rom[0x120:], []byte("hello.txt"))

	p, err := k.Spawn(rom, 1)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	k.RunOnce(0)
	k.RunOnce(0)

	if p.Regs().VF() != 0 {
		t.Fatalf("fs_open failed with code %d", p.Regs().V[0])
	}
	if len(p.FDs) != 1 {
		t.Fatalf("expected one open FD, got %d", len(p.FDs))
	}
}
