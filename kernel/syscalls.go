package kernel

import (
	"chip8os/cpu"
	"chip8os/fs"
	"chip8os/process"
	"chip8os/syscallabi"
)

// baseSyscallTable builds the id -> Handler mapping for the base
// syscall surface described in the ABI: process control, console I/O,
// and the read-only filesystem view.
func baseSyscallTable() map[uint16]Handler {
	return map[uint16]Handler{
		0x0101: sysSpawn,
		0x0102: sysExit,
		0x0103: sysWait,
		0x0104: sysYield,
		0x0110: sysWrite,
		0x0111: sysRead,
		0x0112: sysInputMode,
		0x0113: sysConsoleMode,
		0x0120: sysFsList,
		0x0121: sysFsOpen,
		0x0122: sysFsRead,
		0x0123: sysFsClose,
	}
}

func frame(p *process.Process) *syscallabi.Frame {
	return syscallabi.NewFrame(p, uint32(p.Regs().I))
}

// sysSpawn implements 0x0101 spawn(rom_name_ptr, rom_name_len, page_count=1).
func sysSpawn(k *Kernel, pid uint32, p *process.Process) cpu.Outcome {
	f := frame(p)
	namePtr, code, ok := f.Arg(0)
	if !ok {
		syscallabi.Fail(p.Regs(), code)
		return cpu.Outcome{Kind: cpu.Completed}
	}
	nameLen, code, ok := f.Arg(1)
	if !ok {
		syscallabi.Fail(p.Regs(), code)
		return cpu.Outcome{Kind: cpu.Completed}
	}
	pageCount := 1
	if pc, _, ok := f.Arg(2); ok {
		pageCount = int(pc)
	}
	if nameLen == 0 || nameLen > 255 || pageCount <= 0 {
		syscallabi.Fail(p.Regs(), syscallabi.InvalidArgument)
		return cpu.Outcome{Kind: cpu.Completed}
	}

	nameBytes, err := p.ReadBytes(uint32(namePtr), int(nameLen))
	if err != nil {
		syscallabi.Fail(p.Regs(), syscallabi.InvalidArgument)
		return cpu.Outcome{Kind: cpu.Completed}
	}

	rom, err := k.Root.ReadFile(string(nameBytes))
	if err != nil {
		syscallabi.Fail(p.Regs(), fsErrToCode(err))
		return cpu.Outcome{Kind: cpu.Completed}
	}

	child, err := k.Spawn(rom, pageCount)
	if err != nil {
		syscallabi.Fail(p.Regs(), syscallabi.IOFailure)
		return cpu.Outcome{Kind: cpu.Completed}
	}

	syscallabi.Ok(p.Regs(), uint8(child.PID&0xFF))
	return cpu.Outcome{Kind: cpu.Completed}
}

// sysExit implements 0x0102 exit(code).
func sysExit(k *Kernel, pid uint32, p *process.Process) cpu.Outcome {
	f := frame(p)
	code, _, ok := f.Arg(0)
	if !ok {
		code = 0
	}
	p.Exit(uint8(code & 0xFF))
	return cpu.Outcome{Kind: cpu.Completed}
}

// sysWait implements 0x0103 wait(pid): immediate if the target has
// already exited (consulting the exit-code cache for a target that
// has already been retired from the process table), otherwise blocks
// as WaitPid(target). The waker side of this contract lives in
// Kernel.onExit.
func sysWait(k *Kernel, pid uint32, p *process.Process) cpu.Outcome {
	f := frame(p)
	target, code, ok := f.Arg(0)
	if !ok {
		syscallabi.Fail(p.Regs(), code)
		return cpu.Outcome{Kind: cpu.Completed}
	}
	targetPID := uint32(target)

	if exitCode, ok := k.exitCodes[targetPID]; ok {
		syscallabi.Ok(p.Regs(), exitCode)
		return cpu.Outcome{Kind: cpu.Completed}
	}

	te, ok := k.procs[targetPID]
	if !ok {
		syscallabi.Fail(p.Regs(), syscallabi.NotFound)
		return cpu.Outcome{Kind: cpu.Completed}
	}
	if te.proc.State.Kind == process.Exited {
		syscallabi.Ok(p.Regs(), te.proc.State.ExitCode)
		return cpu.Outcome{Kind: cpu.Completed}
	}

	te.waiter = pid
	te.hasWaiter = true
	return cpu.Outcome{Kind: cpu.Blocked, Block: cpu.BlockReason{Kind: cpu.BlockWaitPid, TargetPID: targetPID}}
}

// sysYield implements 0x0104 yield().
func sysYield(k *Kernel, pid uint32, p *process.Process) cpu.Outcome {
	return cpu.Outcome{Kind: cpu.Yielded}
}

// sysWrite implements 0x0110 write(buf_ptr, len).
func sysWrite(k *Kernel, pid uint32, p *process.Process) cpu.Outcome {
	f := frame(p)
	bufPtr, code, ok := f.Arg(0)
	if !ok {
		syscallabi.Fail(p.Regs(), code)
		return cpu.Outcome{Kind: cpu.Completed}
	}
	length, code, ok := f.Arg(1)
	if !ok {
		syscallabi.Fail(p.Regs(), code)
		return cpu.Outcome{Kind: cpu.Completed}
	}

	data, err := p.ReadBytes(uint32(bufPtr), int(length))
	if err != nil {
		syscallabi.Fail(p.Regs(), syscallabi.InvalidArgument)
		return cpu.Outcome{Kind: cpu.Completed}
	}

	target := k.HostConsole
	if p.ConsoleMode == process.Display {
		target = k.DisplayConsole
	}
	if target != nil {
		if err := target.WriteConsole(string(data)); err != nil {
			syscallabi.Fail(p.Regs(), syscallabi.IOFailure)
			return cpu.Outcome{Kind: cpu.Completed}
		}
	}

	n := len(data)
	if n > 255 {
		n = 255
	}
	syscallabi.Ok(p.Regs(), uint8(n))
	return cpu.Outcome{Kind: cpu.Completed}
}

// sysRead implements 0x0111 read(buf_ptr, len): when no earlier reader
// is waiting, first moves bytes the kernel has already ingested into
// the process's own stdin_buffer; satisfies immediately from that
// buffer when possible, otherwise blocks
// as Read{buf_ptr, len} for the kernel's stdin-delivery pass to
// resolve (see resolveRead).
func sysRead(k *Kernel, pid uint32, p *process.Process) cpu.Outcome {
	f := frame(p)
	bufPtr, code, ok := f.Arg(0)
	if !ok {
		syscallabi.Fail(p.Regs(), code)
		return cpu.Outcome{Kind: cpu.Completed}
	}
	length, code, ok := f.Arg(1)
	if !ok {
		syscallabi.Fail(p.Regs(), code)
		return cpu.Outcome{Kind: cpu.Completed}
	}
	if length == 0 || length > 255 {
		syscallabi.Fail(p.Regs(), syscallabi.InvalidArgument)
		return cpu.Outcome{Kind: cpu.Completed}
	}

	block := cpu.BlockReason{Kind: cpu.BlockRead, BufVAddr: uint32(bufPtr), Length: int(length)}
	p.State = process.State{Kind: process.Blocked, Block: block}

	if len(k.readWaiters) == 0 {
		p.StdinBuffer = append(p.StdinBuffer, k.stdinQueue...)
		k.stdinQueue = nil
	}

	if resolveRead(p, k.stdinEOF) {
		p.State = process.State{Kind: process.Running}
		return cpu.Outcome{Kind: cpu.Completed}
	}

	return cpu.Outcome{Kind: cpu.Blocked, Block: block}
}

// sysInputMode implements 0x0112 input_mode(m).
func sysInputMode(k *Kernel, pid uint32, p *process.Process) cpu.Outcome {
	f := frame(p)
	m, code, ok := f.Arg(0)
	if !ok || (m != 0 && m != 1) {
		if ok {
			code = syscallabi.InvalidArgument
		}
		syscallabi.Fail(p.Regs(), code)
		return cpu.Outcome{Kind: cpu.Completed}
	}
	if m == 0 {
		p.InputMode = process.Line
	} else {
		p.InputMode = process.Byte
	}
	syscallabi.Ok(p.Regs(), 0)
	return cpu.Outcome{Kind: cpu.Completed}
}

// sysConsoleMode implements 0x0113 console_mode(m).
func sysConsoleMode(k *Kernel, pid uint32, p *process.Process) cpu.Outcome {
	f := frame(p)
	m, code, ok := f.Arg(0)
	if !ok || (m != 0 && m != 1) {
		if ok {
			code = syscallabi.InvalidArgument
		}
		syscallabi.Fail(p.Regs(), code)
		return cpu.Outcome{Kind: cpu.Completed}
	}
	if m == 0 {
		p.ConsoleMode = process.Host
	} else {
		p.ConsoleMode = process.Display
	}
	syscallabi.Ok(p.Regs(), 0)
	return cpu.Outcome{Kind: cpu.Completed}
}

// sysFsList implements 0x0120 fs_list(path_ptr, path_len, out_ptr, max_entries).
func sysFsList(k *Kernel, pid uint32, p *process.Process) cpu.Outcome {
	f := frame(p)
	pathPtr, code, ok := f.Arg(0)
	if !ok {
		syscallabi.Fail(p.Regs(), code)
		return cpu.Outcome{Kind: cpu.Completed}
	}
	pathLen, code, ok := f.Arg(1)
	if !ok {
		syscallabi.Fail(p.Regs(), code)
		return cpu.Outcome{Kind: cpu.Completed}
	}
	outPtr, code, ok := f.Arg(2)
	if !ok {
		syscallabi.Fail(p.Regs(), code)
		return cpu.Outcome{Kind: cpu.Completed}
	}
	maxEntries, code, ok := f.Arg(3)
	if !ok {
		syscallabi.Fail(p.Regs(), code)
		return cpu.Outcome{Kind: cpu.Completed}
	}

	path, err := readPath(p, pathPtr, pathLen)
	if err != nil {
		syscallabi.Fail(p.Regs(), syscallabi.InvalidArgument)
		return cpu.Outcome{Kind: cpu.Completed}
	}

	entries, err := k.Root.List(path, int(maxEntries))
	if err != nil {
		syscallabi.Fail(p.Regs(), fsErrToCode(err))
		return cpu.Outcome{Kind: cpu.Completed}
	}

	for i, e := range entries {
		rec := fs.EncodeEntry(e)
		if err := p.WriteBytes(uint32(outPtr)+uint32(i*fs.RecordSize), rec[:]); err != nil {
			syscallabi.Fail(p.Regs(), syscallabi.InvalidArgument)
			return cpu.Outcome{Kind: cpu.Completed}
		}
	}

	syscallabi.Ok(p.Regs(), uint8(len(entries)&0xFF))
	return cpu.Outcome{Kind: cpu.Completed}
}

// sysFsOpen implements 0x0121 fs_open(path_ptr, path_len, flags=0).
func sysFsOpen(k *Kernel, pid uint32, p *process.Process) cpu.Outcome {
	f := frame(p)
	pathPtr, code, ok := f.Arg(0)
	if !ok {
		syscallabi.Fail(p.Regs(), code)
		return cpu.Outcome{Kind: cpu.Completed}
	}
	pathLen, code, ok := f.Arg(1)
	if !ok {
		syscallabi.Fail(p.Regs(), code)
		return cpu.Outcome{Kind: cpu.Completed}
	}

	if len(p.FDs) >= process.MaxOpenFiles {
		syscallabi.Fail(p.Regs(), syscallabi.TooManyOpen)
		return cpu.Outcome{Kind: cpu.Completed}
	}

	path, err := readPath(p, pathPtr, pathLen)
	if err != nil {
		syscallabi.Fail(p.Regs(), syscallabi.InvalidArgument)
		return cpu.Outcome{Kind: cpu.Completed}
	}

	file, err := k.Root.Open(path)
	if err != nil {
		syscallabi.Fail(p.Regs(), fsErrToCode(err))
		return cpu.Outcome{Kind: cpu.Completed}
	}

	fd := allocFD(p)
	if fd < 0 {
		file.Close()
		syscallabi.Fail(p.Regs(), syscallabi.TooManyOpen)
		return cpu.Outcome{Kind: cpu.Completed}
	}
	p.FDs[uint8(fd)] = file

	syscallabi.Ok(p.Regs(), uint8(fd))
	return cpu.Outcome{Kind: cpu.Completed}
}

// sysFsRead implements 0x0122 fs_read(fd, buf_ptr, len).
func sysFsRead(k *Kernel, pid uint32, p *process.Process) cpu.Outcome {
	f := frame(p)
	fdArg, code, ok := f.Arg(0)
	if !ok {
		syscallabi.Fail(p.Regs(), code)
		return cpu.Outcome{Kind: cpu.Completed}
	}
	bufPtr, code, ok := f.Arg(1)
	if !ok {
		syscallabi.Fail(p.Regs(), code)
		return cpu.Outcome{Kind: cpu.Completed}
	}
	length, code, ok := f.Arg(2)
	if !ok {
		syscallabi.Fail(p.Regs(), code)
		return cpu.Outcome{Kind: cpu.Completed}
	}
	if length > 255 {
		syscallabi.Fail(p.Regs(), syscallabi.InvalidArgument)
		return cpu.Outcome{Kind: cpu.Completed}
	}

	file, ok := p.FDs[uint8(fdArg)]
	if !ok {
		syscallabi.Fail(p.Regs(), syscallabi.InvalidArgument)
		return cpu.Outcome{Kind: cpu.Completed}
	}

	buf := make([]byte, length)
	n, err := file.ReadAt(buf)
	if err != nil {
		syscallabi.Fail(p.Regs(), syscallabi.IOFailure)
		return cpu.Outcome{Kind: cpu.Completed}
	}

	if err := p.WriteBytes(uint32(bufPtr), buf[:n]); err != nil {
		syscallabi.Fail(p.Regs(), syscallabi.InvalidArgument)
		return cpu.Outcome{Kind: cpu.Completed}
	}

	syscallabi.Ok(p.Regs(), uint8(n))
	return cpu.Outcome{Kind: cpu.Completed}
}

// sysFsClose implements 0x0123 fs_close(fd).
func sysFsClose(k *Kernel, pid uint32, p *process.Process) cpu.Outcome {
	f := frame(p)
	fdArg, code, ok := f.Arg(0)
	if !ok {
		syscallabi.Fail(p.Regs(), code)
		return cpu.Outcome{Kind: cpu.Completed}
	}

	file, ok := p.FDs[uint8(fdArg)]
	if !ok {
		syscallabi.Fail(p.Regs(), syscallabi.InvalidArgument)
		return cpu.Outcome{Kind: cpu.Completed}
	}
	file.Close()
	delete(p.FDs, uint8(fdArg))

	syscallabi.Ok(p.Regs(), 0)
	return cpu.Outcome{Kind: cpu.Completed}
}

func readPath(p *process.Process, ptr, length uint16) (string, error) {
	b, err := p.ReadBytes(uint32(ptr), int(length))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func allocFD(p *process.Process) int {
	for fd := 0; fd < process.MaxOpenFiles; fd++ {
		if _, taken := p.FDs[uint8(fd)]; !taken {
			return fd
		}
	}
	return -1
}

func fsErrToCode(err error) uint8 {
	switch err {
	case fs.ErrInvalidPath:
		return syscallabi.InvalidPath
	case fs.ErrNameTooLong:
		return syscallabi.NameTooLong
	case fs.ErrNotFound:
		return syscallabi.NotFound
	case fs.ErrNotADir:
		return syscallabi.NotADir
	case fs.ErrIsADir:
		return syscallabi.IsADir
	default:
		return syscallabi.IOFailure
	}
}
