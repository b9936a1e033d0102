// Package logger provides the two logging idioms chip8os uses: a
// constructor-injected *log.Logger per component (kernel, cpu), and a
// small tagged central log used only by the interactive console
// binary's scrollback view.
package logger

import (
	"log"
	"os"
)

// New returns a component logger writing to path, or to stdout if
// path is empty. Every process/kernel component that wants to trace
// its own activity is handed one of these at construction time,
// rather than reaching for a package-level logger.
func New(tag, path string) *log.Logger {
	if len(path) == 0 {
		return log.New(os.Stdout, tag+" ", log.Ldate|log.Ltime|log.Lshortfile)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0666)
	if err != nil {
		log.Fatal(err)
	}
	l := log.New(f, tag+" ", log.Ldate|log.Ltime|log.Lshortfile)
	l.Printf("logger: opened %s", path)
	return l
}
