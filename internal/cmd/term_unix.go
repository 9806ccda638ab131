//go:build !windows

package cmd

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// termWidth returns the width of the terminal behind f, or 0 if f is not a
// terminal.
func termWidth(f *os.File) int {
	ws, err := unix.IoctlGetWinsize(int(f.Fd()), unix.TIOCGWINSZ)
	if err != nil || ws.Col == 0 {
		return 0
	}
	return int(ws.Col)
}

// openTTY opens the controlling terminal for the interactive picker and
// verifies it is usable.
func openTTY() (*os.File, error) {
	if os.Getenv("TERM") == "dumb" {
		return nil, fmt.Errorf("TERM=dumb is not supported")
	}
	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("no TTY available: %w", err)
	}
	if w := termWidth(tty); w < minPickerWidth {
		tty.Close()
		return nil, fmt.Errorf("terminal too narrow (%d columns, need at least %d)", w, minPickerWidth)
	}
	return tty, nil
}
