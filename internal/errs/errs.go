// Package errs holds the error kinds shared by every stage of a simulated request.
// Stages wrap one of these with fmt.Errorf("...: %w") so callers can classify
// failures with errors.Is regardless of which package produced them.
package errs

import "errors"

var (
	// ErrConfiguration reports a missing or invalid script path, document root or method.
	ErrConfiguration = errors.New("configuration error")
	// ErrEncoding reports a request body that cannot be encoded, e.g. a file part without a field name.
	ErrEncoding = errors.New("encoding error")
	// ErrProcess is the parent kind of every interpreter invocation failure.
	ErrProcess = errors.New("process error")
	// ErrResponseFormat reports interpreter output that is not a parsable HTTP message.
	ErrResponseFormat = errors.New("malformed response")
	// ErrKeyNotFound reports a requested environment variable that is not set.
	ErrKeyNotFound = errors.New("key not found")
)

// Process failure detail. Each of these is reported together with ErrProcess.
var (
	ErrTempFile   = errors.New("temp file")
	ErrSpawn      = errors.New("spawn")
	ErrExitStatus = errors.New("non-zero exit status")
	ErrOutput     = errors.New("read output")
	ErrTimeout    = errors.New("timeout")
)
