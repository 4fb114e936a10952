package magetasks

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/magefile/mage/sh"
)

// IsCommandNotFound reports whether err means the tool is not installed.
func IsCommandNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, exec.ErrNotFound) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "executable file not found") ||
		strings.Contains(msg, "no such file or directory")
}

// runStep runs a command with its output attached to the terminal.
func runStep(label, cmd string, args ...string) error {
	fmt.Fprintf(out, "→ %s\n", label)
	return sh.RunV(cmd, args...)
}

// optional turns a missing tool into a warning.
func optional(label, install string, err error) error {
	if err != nil && IsCommandNotFound(err) {
		PrintWarning(label + " not found (install: " + install + ")")
		return nil
	}
	return err
}
