//go:build windows

package logging

import (
	"os"

	"golang.org/x/sys/windows"
)

// EnableVT turns on virtual terminal processing for f so ANSI sequences are
// interpreted instead of printed.
func EnableVT(f *os.File) {
	h := windows.Handle(f.Fd())
	var mode uint32
	if windows.GetConsoleMode(h, &mode) == nil {
		windows.SetConsoleMode(h, mode|windows.ENABLE_VIRTUAL_TERMINAL_PROCESSING)
	}
}

// EnableVTInput turns on virtual terminal input for f so arrow keys arrive
// as ANSI escape sequences.
func EnableVTInput(f *os.File) {
	h := windows.Handle(f.Fd())
	var mode uint32
	if windows.GetConsoleMode(h, &mode) == nil {
		windows.SetConsoleMode(h, mode|windows.ENABLE_VIRTUAL_TERMINAL_INPUT)
	}
}
