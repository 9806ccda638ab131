//go:build windows

package cmd

import (
	"errors"
	"os"
)

// termWidth returns 0 on Windows; colors fall back to environment checks.
func termWidth(*os.File) int {
	return 0
}

func openTTY() (*os.File, error) {
	return nil, errors.New("the interactive picker is not supported on Windows")
}
