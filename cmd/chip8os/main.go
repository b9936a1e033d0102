// Command chip8os is the headless launcher: it boots a kernel rooted
// at a host directory, spawns one ROM as the initial process, runs the
// cooperative scheduler to completion, and propagates that process's
// exit code.
package main

import (
	"flag"
	"fmt"
	"os"

	"golang.org/x/term"

	"chip8os/console"
	"chip8os/display"
	"chip8os/fs"
	"chip8os/kernel"
	"chip8os/logger"
	"chip8os/physmem"
)

func main() {
	if len(os.Args) < 2 || os.Args[1] != "run" {
		fmt.Fprintln(os.Stderr, "usage: chip8os run <rom_path> [--root dir] [--pages n]")
		os.Exit(1)
	}

	flags := flag.NewFlagSet("run", flag.ExitOnError)
	root := flags.String("root", ".", "sandbox root directory for spawn()/fs_* syscalls")
	pages := flags.Int("pages", 1, "number of 4 KiB pages to allocate for the initial process")
	flags.Parse(os.Args[2:])

	if flags.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: chip8os run <rom_path> [--root dir] [--pages n]")
		os.Exit(1)
	}
	romPath := flags.Arg(0)

	code, err := run(romPath, *root, *pages)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chip8os: %v\n", err)
		os.Exit(1)
	}
	os.Exit(int(code))
}

func run(romPath, rootDir string, pageCount int) (uint8, error) {
	log := logger.New("kernel", os.Getenv("CHIP8_LOG"))

	rom, err := os.ReadFile(romPath)
	if err != nil {
		return 0, fmt.Errorf("reading rom: %w", err)
	}

	sandbox, err := fs.Attach(rootDir, log)
	if err != nil {
		return 0, fmt.Errorf("attaching root %q: %w", rootDir, err)
	}

	mem := physmem.New(log)
	hostConsole := console.NewSimple(os.Stdout)

	newDisplay := displayConstructor()

	k := kernel.New(sandbox, mem, os.Stdin, newDisplay, hostConsole, hostConsole, log)

	proc, err := k.Spawn(rom, pageCount)
	if err != nil {
		return 0, fmt.Errorf("spawning %q: %w", romPath, err)
	}

	k.Run(0)

	return proc.State.ExitCode, nil
}

// displayConstructor picks Headless when CHIP8_HEADLESS is set (any
// value) or stdout isn't a terminal; otherwise it drives the host
// keyboard.
func displayConstructor() func() display.Display {
	_, forced := os.LookupEnv("CHIP8_HEADLESS")
	if forced || !term.IsTerminal(int(os.Stdout.Fd())) {
		return func() display.Display { return display.NewHeadless() }
	}
	return func() display.Display {
		in, err := display.NewInteractive()
		if err != nil {
			return display.NewHeadless()
		}
		return in
	}
}
