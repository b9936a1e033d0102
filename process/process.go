// Package process implements the per-process CHIP-8 virtual machine:
// registers, a paged virtual address space backed by shared physical
// memory, and the step loop that drives the instruction engine once
// per scheduler turn.
package process

import (
	"fmt"
	"log"

	"chip8os/cpu"
	"chip8os/display"
	"chip8os/physmem"
	"chip8os/registers"
)

// font is the built-in hex digit sprite table, installed at virtual
// 0x000 for every process; Fx29 points I at the glyph for V[x]&0xF.
var font = [80]byte{
	0xF0, 0x90, 0x90, 0x90, 0xF0, // 0
	0x20, 0x60, 0x20, 0x20, 0x70, // 1
	0xF0, 0x10, 0xF0, 0x80, 0xF0, // 2
	0xF0, 0x10, 0xF0, 0x10, 0xF0, // 3
	0x90, 0x90, 0xF0, 0x10, 0x10, // 4
	0xF0, 0x80, 0xF0, 0x10, 0xF0, // 5
	0xF0, 0x80, 0xF0, 0x90, 0xF0, // 6
	0xF0, 0x10, 0x20, 0x40, 0x40, // 7
	0xF0, 0x90, 0xF0, 0x90, 0xF0, // 8
	0xF0, 0x90, 0xF0, 0x10, 0xF0, // 9
	0xF0, 0x90, 0xF0, 0x90, 0x90, // A
	0xE0, 0x90, 0xE0, 0x90, 0xE0, // B
	0xF0, 0x80, 0x80, 0x80, 0xF0, // C
	0xE0, 0x90, 0x90, 0x90, 0xE0, // D
	0xF0, 0x80, 0xF0, 0x80, 0xF0, // E
	0xF0, 0x80, 0xF0, 0x80, 0x80, // F
}

// InputMode is the process's stdin delivery discipline.
type InputMode int

const (
	// Line delivers stdin one newline-terminated chunk at a time.
	Line InputMode = iota
	// Byte delivers stdin as soon as any byte is available.
	Byte
)

// ConsoleMode selects where the write syscall's bytes are rendered.
type ConsoleMode int

const (
	// Host renders write() output to the host console.
	Host ConsoleMode = iota
	// Display renders write() output through the display's text overlay.
	Display
)

// StateKind classifies a process's scheduling state.
type StateKind int

const (
	// Running means the process is eligible to be stepped.
	Running StateKind = iota
	// Blocked means the process is waiting on cpu.BlockReason.
	Blocked
	// Exited means the process has terminated with an exit code.
	Exited
)

// State is a process's current scheduling state.
type State struct {
	Kind     StateKind
	Block    cpu.BlockReason
	ExitCode uint8
}

// OpenFile is a single entry in a process's file descriptor table.
// The concrete type lives in package fs; process only stores a handle
// through this narrow interface to avoid an import cycle.
type OpenFile interface {
	ReadAt(buf []byte) (int, error)
	Close() error
}

// MaxOpenFiles bounds a process's file descriptor table.
const MaxOpenFiles = 32

// Process is one CHIP-8 virtual machine: registers, a page table into
// shared physical memory, a display, and the kernel-facing I/O state
// (input mode, console mode, stdin buffer, FD table).
type Process struct {
	PID uint32

	regs      registers.File
	PageTable []uint32
	VMSize32  uint32
	Disp      display.Display
	Mem       *physmem.Memory

	InputMode   InputMode
	ConsoleMode ConsoleMode
	StdinBuffer []byte

	FDs map[uint8]OpenFile

	State State

	Log *log.Logger

	engine cpu.Engine
}

// New constructs a process with page_count pages already mmap'd from
// mem, registers at their CHIP-8 reset state (PC=0x200, SP=vm_size),
// and the font table plus rom installed.
func New(pid uint32, mem *physmem.Memory, disp display.Display, pageCount int, rom []byte, logger *log.Logger) (*Process, error) {
	pages, err := mem.Mmap(pageCount)
	if err != nil {
		return nil, err
	}
	vmSize := uint32(pageCount) * physmem.PageSize

	p := &Process{
		PID:       pid,
		PageTable: pages,
		VMSize32:  vmSize,
		Disp:      disp,
		Mem:       mem,
		FDs:       make(map[uint8]OpenFile),
		Log:       logger,
		engine:    cpu.Engine{Log: logger},
	}
	p.regs.PC = 0x200
	if vmSize > 0xFFFF {
		p.regs.SP = 0xFFFF
	} else {
		p.regs.SP = uint16(vmSize)
	}

	if err := p.LoadProgram(rom); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadProgram installs the font table at virtual 0x000 and copies rom
// starting at virtual 0x200.
func (p *Process) LoadProgram(rom []byte) error {
	maxSize := int(p.VMSize32) - 0x200
	if len(rom) > maxSize {
		return fmt.Errorf("process: rom is %d bytes, exceeds %d bytes available past 0x200", len(rom), maxSize)
	}
	if err := p.WriteBytes(0x000, font[:]); err != nil {
		return err
	}
	return p.WriteBytes(0x200, rom)
}

// translate maps a virtual address to a physical offset in shared
// memory, per the paged address-translation contract.
func (p *Process) translate(vaddr uint32) (uint32, error) {
	if vaddr >= p.VMSize32 {
		return 0, fmt.Errorf("process: virtual address %#x out of range [0, %#x)", vaddr, p.VMSize32)
	}
	page := int(vaddr / physmem.PageSize)
	offset := vaddr % physmem.PageSize
	if page >= len(p.PageTable) {
		return 0, fmt.Errorf("process: page %d out of range (page table has %d entries)", page, len(p.PageTable))
	}
	return p.PageTable[page] + offset, nil
}

// Regs implements cpu.Machine.
func (p *Process) Regs() *registers.File { return &p.regs }

// Display implements cpu.Machine.
func (p *Process) Display() display.Display { return p.Disp }

// VMSize implements cpu.Machine.
func (p *Process) VMSize() uint32 { return p.VMSize32 }

// ReadU8 implements cpu.Machine and syscallabi.Memory.
func (p *Process) ReadU8(vaddr uint32) (uint8, error) {
	phys, err := p.translate(vaddr)
	if err != nil {
		return 0, err
	}
	data, err := p.Mem.Read(phys, 1)
	if err != nil {
		return 0, err
	}
	return data[0], nil
}

// WriteU8 implements cpu.Machine.
func (p *Process) WriteU8(vaddr uint32, v uint8) error {
	phys, err := p.translate(vaddr)
	if err != nil {
		return err
	}
	return p.Mem.Write(phys, []byte{v})
}

// ReadBytes reads a virtually-addressed span one byte at a time, so a
// span crossing a page boundary performs independent translations per
// byte rather than assuming pages are contiguous in physical memory.
func (p *Process) ReadBytes(vaddr uint32, n int) ([]byte, error) {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		v, err := p.ReadU8(vaddr + uint32(i))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// WriteBytes is the write-side mirror of ReadBytes.
func (p *Process) WriteBytes(vaddr uint32, data []byte) error {
	for i, b := range data {
		if err := p.WriteU8(vaddr+uint32(i), b); err != nil {
			return err
		}
	}
	return nil
}

// Exit implements cpu.Machine: an opcode-internal fatal error (unknown
// opcode, unreachable translation) terminates the process the same way
// an explicit exit() syscall would, with a distinguished code.
func (p *Process) Exit(code uint8) {
	p.State = State{Kind: Exited, ExitCode: code}
}

// StepOutcome mirrors cpu.Outcome with the extra state transition
// context the kernel's scheduler needs.
type StepOutcome struct {
	Kind  cpu.OutcomeKind
	Block cpu.BlockReason
}

// Step polls input, ticks the timers, and executes exactly one
// instruction, forwarding any 0nnn syscall in [0x100,0x200) to
// dispatch. If Exit was called during this step (either by the
// instruction engine on a fatal error, or by a syscall handler
// reached through dispatch), the process's State already reflects
// Exited and the returned StepOutcome is Completed regardless of what
// the engine returned, since the process is no longer schedulable.
func (p *Process) Step(ticks uint32, dispatch cpu.Dispatch) StepOutcome {
	p.Disp.PollInput()
	p.regs.TickTimers(ticks)

	outcome := p.engine.Execute(p, dispatch)

	if p.State.Kind == Exited {
		return StepOutcome{Kind: cpu.Completed}
	}
	if outcome.Kind == cpu.Blocked {
		p.State = State{Kind: Blocked, Block: outcome.Block}
	}
	return StepOutcome{Kind: outcome.Kind, Block: outcome.Block}
}

// Wake transitions a Blocked process back to Running. Callers
// (typically the kernel) are responsible for placing any result the
// blocked operation was waiting on into registers before calling Wake.
func (p *Process) Wake() {
	p.State = State{Kind: Running}
}

// ResumeKeyWait implements Fx0A's wake path: a released key was
// observed for a process blocked in KeyWait. Per the address-
// translation and PC-advance contract, resuming an Fx0A wait writes
// the key into the destination register and advances PC by 2 directly
// rather than re-entering the instruction engine, since re-executing
// Fx0A would immediately re-block on TakeLastReleasedKey's single-shot
// latch.
func (p *Process) ResumeKeyWait(key uint8) {
	p.regs.V[p.State.Block.DestReg] = key
	p.regs.PC += 2
	p.Wake()
}
