// Package cgi runs a CGI interpreter once per simulated request.
package cgi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"time"

	"github.com/loykin/cgirun/internal/common"
	"github.com/loykin/cgirun/internal/constants"
	"github.com/loykin/cgirun/internal/errs"
)

// Invoker spawns the interpreter. The zero value runs php-cgi from PATH with
// the default timeout.
type Invoker struct {
	Binary  string
	TempDir string
	// Timeout bounds one run; zero uses the default and a negative value
	// relies on the caller context only.
	Timeout   time.Duration
	WaitDelay time.Duration
	// CleanEnv starts the child with only Invocation.Env instead of the
	// parent environment plus Invocation.Env.
	CleanEnv bool
	Logger   *common.Logger
}

// Invocation is everything one run needs.
type Invocation struct {
	Body []byte
	Env  []string
	Args []string
}

// Result is the captured output of a successful run.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
	TempPath string
}

// OptionArgs renders the interpreter command line: include_path first, then
// one -d flag per option sorted by name.
func OptionArgs(includePath string, options map[string]string) []string {
	args := make([]string, 0, 2+2*len(options))
	if includePath != "" {
		args = append(args, "-d", constants.IncludePathParam+"="+includePath)
	}
	names := make([]string, 0, len(options))
	for k := range options {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		args = append(args, "-d", k+"="+options[k])
	}
	return args
}

func (i *Invoker) binary() string {
	if i.Binary == "" {
		return constants.DefaultInterpreter
	}
	return i.Binary
}

func (i *Invoker) logger() *common.Logger {
	if i.Logger != nil {
		return i.Logger.WithComponent("cgi")
	}
	return common.GetLogger().WithComponent("cgi")
}

// Invoke writes inv.Body to a fresh temp file, runs the interpreter with that
// file as stdin and returns its output. The temp file is removed before
// Invoke returns, whatever the outcome.
func (i *Invoker) Invoke(ctx context.Context, inv Invocation) (*Result, error) {
	logger := i.logger()

	f, err := os.CreateTemp(i.TempDir, constants.TempFilePattern)
	if err != nil {
		perr := &ProcessError{Op: "tempfile", ExitCode: -1, Err: fmt.Errorf("%w: %w", errs.ErrTempFile, err)}
		logger.Error("failed to create body file", "error", perr)
		return nil, perr
	}
	tempPath := f.Name()
	defer func() {
		_ = f.Close()
		if rerr := os.Remove(tempPath); rerr != nil && !os.IsNotExist(rerr) {
			logger.Warn("failed to remove body file", "path", tempPath, "error", rerr)
		}
	}()

	if _, err := f.Write(inv.Body); err != nil {
		return nil, i.fail(logger, &ProcessError{Op: "tempfile", ExitCode: -1, TempPath: tempPath, Err: fmt.Errorf("%w: %w", errs.ErrTempFile, err)})
	}
	if _, err := f.Seek(0, 0); err != nil {
		return nil, i.fail(logger, &ProcessError{Op: "tempfile", ExitCode: -1, TempPath: tempPath, Err: fmt.Errorf("%w: %w", errs.ErrTempFile, err)})
	}

	timeout := i.Timeout
	if timeout == 0 {
		timeout = constants.DefaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, i.binary(), inv.Args...)
	cmd.Stdin = f
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if i.CleanEnv {
		cmd.Env = append([]string{}, inv.Env...)
	} else {
		cmd.Env = append(os.Environ(), inv.Env...)
	}
	cmd.WaitDelay = i.WaitDelay
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = constants.DefaultWaitDelay
	}

	logger.Debug("spawning interpreter", "binary", i.binary(), "args", inv.Args, "body_size", len(inv.Body), "body_file", tempPath)
	start := time.Now()
	if err := cmd.Start(); err != nil {
		perr := &ProcessError{Op: "spawn", ExitCode: -1, TempPath: tempPath}
		if cerr := contextError(ctx, time.Since(start)); cerr != nil {
			perr.Err = cerr
		} else {
			perr.Err = fmt.Errorf("%w: %w", errs.ErrSpawn, err)
		}
		return nil, i.fail(logger, perr)
	}
	werr := cmd.Wait()
	elapsed := time.Since(start)

	if werr != nil {
		perr := &ProcessError{Op: "wait", ExitCode: -1, Stderr: stderr.Bytes(), TempPath: tempPath}
		var exitErr *exec.ExitError
		switch cerr := contextError(ctx, elapsed); {
		case cerr != nil:
			perr.Err = cerr
		case errors.As(werr, &exitErr):
			perr.ExitCode = exitErr.ExitCode()
			perr.Err = fmt.Errorf("%w: %w", errs.ErrExitStatus, werr)
		default:
			perr.Op = "read"
			perr.Err = fmt.Errorf("%w: %w", errs.ErrOutput, werr)
		}
		return nil, i.fail(logger, perr)
	}

	logger.Debug("interpreter finished", "elapsed", elapsed, "stdout_size", stdout.Len(), "stderr_size", stderr.Len())
	return &Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), Duration: elapsed, TempPath: tempPath}, nil
}

// contextError reports a deadline as ErrTimeout and a cancellation as is;
// nil when ctx is still live.
func contextError(ctx context.Context, elapsed time.Duration) error {
	switch err := ctx.Err(); {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w after %s: %w", errs.ErrTimeout, elapsed.Round(time.Millisecond), err)
	default:
		return err
	}
}

func (i *Invoker) fail(logger *common.Logger, perr *ProcessError) error {
	logger.Error("interpreter invocation failed", "op", perr.Op, "exit_code", perr.ExitCode, "error", perr.Err)
	return perr
}
