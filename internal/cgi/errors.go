package cgi

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/loykin/cgirun/internal/errs"
)

const maxStderrInError = 512

// ProcessError reports a failed interpreter invocation. It matches
// errs.ErrProcess and the detail sentinel carried in Err.
type ProcessError struct {
	Op       string // tempfile, spawn, wait, read
	ExitCode int    // -1 unless the interpreter exited on its own
	Stderr   []byte
	// TempPath is the body file used by the call; it is already removed.
	TempPath string
	Err      error
}

func (e *ProcessError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "process error: %s: %v", e.Op, e.Err)
	if e.ExitCode > 0 {
		fmt.Fprintf(&b, " (exit %d)", e.ExitCode)
	}
	if msg := strings.TrimSpace(string(e.Stderr)); msg != "" {
		if len(msg) > maxStderrInError {
			cut := maxStderrInError
			for cut > 0 && !utf8.RuneStart(msg[cut]) {
				cut--
			}
			msg = msg[:cut] + "..."
		}
		fmt.Fprintf(&b, ": %s", msg)
	}
	return b.String()
}

func (e *ProcessError) Unwrap() []error {
	return []error{errs.ErrProcess, e.Err}
}
