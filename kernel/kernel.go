// Package kernel implements the process table, cooperative scheduler,
// syscall dispatcher, filesystem gatekeeper, and stdin ingress that
// turn a bag of Process VMs into a small multi-process operating
// system. The scheduler shape is a tight step loop wrapped in a single
// panic/recover boundary that converts an unexpected panic into a
// process-fatal trap.
package kernel

import (
	"bufio"
	"io"
	"log"
	"runtime"

	"chip8os/console"
	"chip8os/cpu"
	"chip8os/display"
	"chip8os/fs"
	"chip8os/physmem"
	"chip8os/process"
	"chip8os/syscallabi"
)

// Handler implements one syscall. It reads its arguments out of the
// process's memory (via a syscallabi.Frame pointed at I), does its
// work, and sets VF/V0 through syscallabi.Ok/Fail before returning.
type Handler func(k *Kernel, pid uint32, p *process.Process) cpu.Outcome

// entry is the process-table record the scheduler owns.
type entry struct {
	proc      *process.Process
	waiter    uint32
	hasWaiter bool
}

// Kernel owns every piece of state shared across processes: the
// process table, the syscall table, the physical memory arena, the
// filesystem sandbox, and stdin ingress.
type Kernel struct {
	procs     map[uint32]*entry
	exitCodes map[uint32]uint8
	nextPID   uint32
	ready     []uint32

	syscalls map[uint16]Handler

	Mem  *physmem.Memory
	Root *fs.Root

	HostConsole    console.Console
	DisplayConsole console.Console

	NewDisplay func() display.Display

	stdinCh     chan byte
	stdinQueue  []byte
	stdinEOF    bool
	readWaiters []uint32

	Log *log.Logger
}

// New constructs a kernel. root is the sandbox root for spawn/fs_*
// syscalls; stdin feeds the shared input stream ingested once per
// scheduler pass; newDisplay constructs a fresh Display for each
// spawned process (display.NewHeadless in tests).
func New(root *fs.Root, mem *physmem.Memory, stdin io.Reader, newDisplay func() display.Display, hostConsole, displayConsole console.Console, logger *log.Logger) *Kernel {
	k := &Kernel{
		procs:          make(map[uint32]*entry),
		exitCodes:      make(map[uint32]uint8),
		nextPID:        1,
		Mem:            mem,
		Root:           root,
		HostConsole:    hostConsole,
		DisplayConsole: displayConsole,
		NewDisplay:     newDisplay,
		Log:            logger,
	}
	k.syscalls = baseSyscallTable()
	k.startStdinIngress(stdin)
	return k
}

func (k *Kernel) startStdinIngress(stdin io.Reader) {
	k.stdinCh = make(chan byte, 256)
	if stdin == nil {
		close(k.stdinCh)
		k.stdinEOF = true
		return
	}
	go func() {
		r := bufio.NewReader(stdin)
		for {
			b, err := r.ReadByte()
			if err != nil {
				close(k.stdinCh)
				return
			}
			k.stdinCh <- b
		}
	}()
}

func (k *Kernel) logf(format string, args ...interface{}) {
	if k.Log != nil {
		k.Log.Printf(format, args...)
	}
}

// Spawn creates a root process running rom with pageCount pages,
// installs it Running in the process table, and enqueues it. It is
// also the implementation the spawn() syscall calls into.
func (k *Kernel) Spawn(rom []byte, pageCount int) (*process.Process, error) {
	pid := k.nextPID
	k.nextPID++

	disp := k.NewDisplay()
	p, err := process.New(pid, k.Mem, disp, pageCount, rom, k.Log)
	if err != nil {
		return nil, err
	}

	k.procs[pid] = &entry{proc: p}
	k.ready = append(k.ready, pid)
	return p, nil
}

// dispatchSyscall validates id against the registered syscall range and
// runs the matching Handler, or fails the call with InvalidSyscall.
func (k *Kernel) dispatchSyscall(pid uint32, p *process.Process, id uint16) cpu.Outcome {
	if id < cpu.SyscallRangeLow || id >= cpu.SyscallRangeHigh {
		syscallabi.Fail(p.Regs(), syscallabi.InvalidSyscall)
		return cpu.Outcome{Kind: cpu.Completed}
	}
	handler, ok := k.syscalls[id]
	if !ok {
		syscallabi.Fail(p.Regs(), syscallabi.InvalidSyscall)
		return cpu.Outcome{Kind: cpu.Completed}
	}
	return handler(k, pid, p)
}

// Run drains the ready queue until the process table is empty,
// stepping exactly one process at a time (single-threaded cooperative
// scheduling). ticksPerStep is the number of 60Hz timer ticks charged
// to each step; callers driving real time pass the elapsed tick count
// since the previous call instead of a constant.
func (k *Kernel) Run(ticksPerStep uint32) {
	for len(k.procs) > 0 {
		k.RunOnce(ticksPerStep)
	}
}

// RunOnce advances the scheduler by exactly one process step, followed
// by a stdin ingest/delivery pass. Exposed separately from Run so
// tests and an interactive front-end can single-step the kernel.
func (k *Kernel) RunOnce(ticks uint32) {
	if len(k.ready) == 0 {
		// Nothing runnable: yield so the stdin ingress goroutine can
		// make progress before this idle pass ingests.
		runtime.Gosched()
		k.ingestStdin()
		k.deliverStdin()
		k.wakeKeyWaiters()
		return
	}

	pid := k.ready[0]
	k.ready = k.ready[1:]

	e, ok := k.procs[pid]
	if !ok {
		// stale ready-queue entry for an already-removed process; drop it.
		return
	}
	p := e.proc

	outcome := k.stepGuarded(pid, p, ticks)

	switch {
	case p.State.Kind == process.Exited:
		k.onExit(pid, e)
	case outcome.Kind == cpu.Blocked:
		// process.Process.Step already recorded the block reason in
		// p.State; nothing left to do but leave it out of the ready
		// queue. A read block also registers the pid as a stdin waiter.
		if outcome.Block.Kind == cpu.BlockRead {
			k.readWaiters = append(k.readWaiters, pid)
		}
	default:
		// Completed or Yielded, still Running: goes to the back of the
		// queue for fair round-robin rotation.
		k.ready = append(k.ready, pid)
	}

	k.ingestStdin()
	k.deliverStdin()
	k.wakeKeyWaiters()
}

// wakeKeyWaiters polls every process blocked inside Fx0A for a released
// key, the display-side analog of ingestStdin/deliverStdin: instead of
// a shared channel, each blocked process's own Display holds a
// single-shot latch (TakeLastReleasedKey) that a per-pass poll drains.
func (k *Kernel) wakeKeyWaiters() {
	for pid, e := range k.procs {
		p := e.proc
		if p.State.Kind != process.Blocked || p.State.Block.Kind != cpu.BlockKeyWait {
			continue
		}
		key, ok := p.Display().TakeLastReleasedKey()
		if !ok {
			continue
		}
		p.ResumeKeyWait(key)
		k.ready = append(k.ready, pid)
	}
}

// stepGuarded runs one process step inside a panic/recover boundary: an
// unexpected panic inside a step (a kernel bug, not a ROM bug) is
// converted into a process-fatal exit for the offending process instead
// of taking the whole scheduler down.
func (k *Kernel) stepGuarded(pid uint32, p *process.Process, ticks uint32) (outcome process.StepOutcome) {
	defer func() {
		if r := recover(); r != nil {
			k.logf("kernel: pid %d panicked during step, exiting fatally: %v", pid, r)
			p.Exit(0xFF)
			outcome = process.StepOutcome{Kind: cpu.Completed}
		}
	}()
	return p.Step(ticks, func(id uint16, m cpu.Machine) cpu.Outcome {
		return k.dispatchSyscall(pid, p, id)
	})
}

// onExit implements the scheduler's Exited transition: close FDs, wake
// any waiter, and retire the entry. The exit code is retained in
// exitCodes so a wait() arriving after retirement still resolves.
func (k *Kernel) onExit(pid uint32, e *entry) {
	for fd, f := range e.proc.FDs {
		f.Close()
		delete(e.proc.FDs, fd)
	}

	k.exitCodes[pid] = e.proc.State.ExitCode
	delete(k.procs, pid)

	if e.hasWaiter {
		if we, ok := k.procs[e.waiter]; ok {
			syscallabi.Ok(we.proc.Regs(), e.proc.State.ExitCode)
			we.proc.Wake()
			k.ready = append(k.ready, e.waiter)
		}
	}
}

func (k *Kernel) ingestStdin() {
	for {
		select {
		case b, ok := <-k.stdinCh:
			if !ok {
				k.stdinEOF = true
				return
			}
			k.stdinQueue = append(k.stdinQueue, b)
		default:
			return
		}
	}
}

// deliverStdin hands freshly ingested bytes to the process at the
// front of the read-waiter queue, and wakes it if that satisfies its
// pending read. Per the FIFO-per-target policy, only the earliest
// blocked reader receives new bytes on a given pass; a reader still
// unsatisfied after this keeps whatever was appended to its own
// stdin_buffer for the next pass.
func (k *Kernel) deliverStdin() {
	if len(k.readWaiters) == 0 {
		return
	}
	if len(k.stdinQueue) == 0 && !k.stdinEOF {
		return
	}

	pid := k.readWaiters[0]
	e, ok := k.procs[pid]
	if !ok {
		k.readWaiters = k.readWaiters[1:]
		return
	}
	p := e.proc
	p.StdinBuffer = append(p.StdinBuffer, k.stdinQueue...)
	k.stdinQueue = nil

	if resolveRead(p, k.stdinEOF) {
		k.readWaiters = k.readWaiters[1:]
		p.Wake()
		k.ready = append(k.ready, pid)
	}
}

// resolveRead attempts to satisfy p's pending Read block from its own
// stdin_buffer, writing V0/VF and consuming the delivered prefix on
// success. Returns false if the process must keep waiting. Once eof is
// true the stream will never produce another byte, so a read that
// can't be satisfied in full is instead satisfied with whatever prefix
// is already buffered (V0=0 if none) rather than blocking forever.
func resolveRead(p *process.Process, eof bool) bool {
	block := p.State.Block
	regs := p.Regs()

	switch p.InputMode {
	case process.Line:
		nl := indexByte(p.StdinBuffer, '\n')
		if nl < 0 {
			if !eof {
				return false
			}
			n := len(p.StdinBuffer)
			if n > block.Length {
				n = block.Length
			}
			if err := p.WriteBytes(block.BufVAddr, p.StdinBuffer[:n]); err != nil {
				syscallabi.Fail(regs, syscallabi.InvalidArgument)
				p.StdinBuffer = p.StdinBuffer[n:]
				return true
			}
			p.StdinBuffer = p.StdinBuffer[n:]
			syscallabi.Ok(regs, uint8(min(n, 255)))
			return true
		}
		n := nl + 1
		if n > block.Length {
			n = block.Length
		}
		if err := p.WriteBytes(block.BufVAddr, p.StdinBuffer[:n]); err != nil {
			syscallabi.Fail(regs, syscallabi.InvalidArgument)
			p.StdinBuffer = p.StdinBuffer[n:]
			return true
		}
		p.StdinBuffer = p.StdinBuffer[n:]
		syscallabi.Ok(regs, uint8(min(n, 255)))
		return true

	default: // process.Byte
		if len(p.StdinBuffer) == 0 {
			if !eof {
				return false
			}
			syscallabi.Ok(regs, 0)
			return true
		}
		n := len(p.StdinBuffer)
		if n > block.Length {
			n = block.Length
		}
		if n > 255 {
			n = 255
		}
		if err := p.WriteBytes(block.BufVAddr, p.StdinBuffer[:n]); err != nil {
			syscallabi.Fail(regs, syscallabi.InvalidArgument)
			p.StdinBuffer = p.StdinBuffer[n:]
			return true
		}
		p.StdinBuffer = p.StdinBuffer[n:]
		syscallabi.Ok(regs, uint8(n))
		return true
	}
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
