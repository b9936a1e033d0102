// Command chip8os-console is the interactive front-end: a gocui window
// with a console view, a per-process register dump, and a status/log
// view, hosting the kernel inside a three-view gocui layout.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jroimartin/gocui"

	"chip8os/console"
	"chip8os/display"
	"chip8os/fs"
	"chip8os/kernel"
	"chip8os/logger"
	"chip8os/physmem"
	"chip8os/process"
)

func main() {
	root := flag.String("root", ".", "sandbox root directory for spawn()/fs_* syscalls")
	pages := flag.Int("pages", 1, "number of 4 KiB pages to allocate for the initial process")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: chip8os-console [--root dir] [--pages n] <rom_path>")
		os.Exit(1)
	}
	romPath := flag.Arg(0)

	g, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chip8os-console: %v\n", err)
		os.Exit(1)
	}
	defer g.Close()

	g.SetManagerFunc(layout)
	if err := g.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone, quit); err != nil {
		fmt.Fprintf(os.Stderr, "chip8os-console: %v\n", err)
		os.Exit(1)
	}

	g.Update(func(g *gocui.Gui) error {
		return start(g, romPath, *root, *pages)
	})

	if err := g.MainLoop(); err != nil && err != gocui.ErrQuit {
		fmt.Fprintf(os.Stderr, "chip8os-console: %v\n", err)
		os.Exit(1)
	}
}

func quit(g *gocui.Gui, v *gocui.View) error {
	return gocui.ErrQuit
}

// start builds the kernel and its first process, wires the console
// overlay and status/register views, and hands the scheduler loop to a
// background goroutine, keeping setup on the UI goroutine and the
// actual work off it.
func start(g *gocui.Gui, romPath, rootDir string, pageCount int) error {
	statusView, err := g.View("status")
	if err != nil {
		return err
	}
	statusView.Clear()

	consoleView, err := g.View("console")
	if err != nil {
		return err
	}
	consoleView.Clear()

	regView, err := g.View("registers")
	if err != nil {
		return err
	}
	regView.Clear()

	logger.Central.Logf("boot", "starting chip8os console for %s", romPath)

	overlay, err := console.NewTextOverlay(g, "console")
	if err != nil {
		return err
	}

	rom, err := os.ReadFile(romPath)
	if err != nil {
		fmt.Fprintf(statusView, "reading rom: %v\n", err)
		return nil
	}

	log := logger.New("kernel", os.Getenv("CHIP8_LOG"))

	sandbox, err := fs.Attach(rootDir, log)
	if err != nil {
		fmt.Fprintf(statusView, "attaching root %q: %v\n", rootDir, err)
		return nil
	}

	mem := physmem.New(log)
	newDisplay := func() display.Display { return display.NewHeadless() }

	k := kernel.New(sandbox, mem, os.Stdin, newDisplay, overlay, overlay, log)

	proc, err := k.Spawn(rom, pageCount)
	if err != nil {
		fmt.Fprintf(statusView, "spawning %q: %v\n", romPath, err)
		return nil
	}

	go runKernel(g, k, proc, statusView, regView)
	return nil
}

// runKernel drives the scheduler to completion off the UI goroutine,
// periodically publishing register state and the tail of the central
// log through g.Update.
func runKernel(g *gocui.Gui, k *kernel.Kernel, proc *process.Process, statusView, regView *gocui.View) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	done := make(chan struct{})
	go func() {
		k.Run(1)
		close(done)
	}()

	for {
		select {
		case <-done:
			g.Update(func(g *gocui.Gui) error {
				fmt.Fprintf(statusView, "process %d exited with code %#02x\n", proc.PID, proc.State.ExitCode)
				return nil
			})
			return
		case <-ticker.C:
			g.Update(func(g *gocui.Gui) error {
				regView.Clear()
				dumpRegisters(regView, proc)
				statusView.Clear()
				logger.Central.Tail(statusView, 20)
				return nil
			})
		}
	}
}

// dumpRegisters writes a compact register table for one process.
func dumpRegisters(w *gocui.View, p *process.Process) {
	regs := p.Regs()
	fmt.Fprintf(w, "pid=%d  PC=%#04x  I=%#04x  SP=%#04x  DT=%d  ST=%d\n", p.PID, regs.PC, regs.I, regs.SP, regs.DT, regs.ST)
	for i := 0; i < 16; i += 4 {
		fmt.Fprintf(w, "V%X=%02x V%X=%02x V%X=%02x V%X=%02x\n",
			i, regs.V[i], i+1, regs.V[i+1], i+2, regs.V[i+2], i+3, regs.V[i+3])
	}
}

// layout lays out the console/registers/status views.
func layout(g *gocui.Gui) error {
	maxX, maxY := g.Size()
	if v, err := g.SetView("console", 0, 0, maxX-1, maxY-18); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Console"
	}
	if v, err := g.SetView("registers", 0, maxY-17, maxX-1, maxY-9); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Registers"
	}
	if v, err := g.SetView("status", 0, maxY-8, maxX-1, maxY-1); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Status"
	}
	return nil
}
