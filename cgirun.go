// Package cgirun simulates HTTP requests against server-side scripts by
// running a CGI interpreter (php-cgi by default) locally, without a web
// server. A Tester composes the CGI environment, encodes the request body,
// runs the interpreter once and parses its output into a Response.
package cgirun

import (
	"github.com/loykin/cgirun/internal/cgi"
	"github.com/loykin/cgirun/internal/common"
	"github.com/loykin/cgirun/internal/errs"
	"github.com/loykin/cgirun/internal/session"
	"github.com/loykin/cgirun/pkg/env"
	"github.com/loykin/cgirun/pkg/request"
	"github.com/loykin/cgirun/pkg/response"
)

// Re-export commonly used types for the public API

// Response is the parsed (status, headers, body) of one request.
type Response = response.Response

// Params is an ordered list of form fields.
type Params = request.Params

// Param is one form field.
type Param = request.Param

// FilePart is one uploaded file.
type FilePart = request.FilePart

// RequestSpec describes one request for Tester.Do.
type RequestSpec = request.Spec

// Session is a session file created by SetSession or NewSession.
type Session = session.Session

// Env is the layered variable state.
type Env = env.Env

// ProcessError reports a failed interpreter run.
type ProcessError = cgi.ProcessError

// Error kinds, usable with errors.Is.
var (
	ErrConfiguration  = errs.ErrConfiguration
	ErrEncoding       = errs.ErrEncoding
	ErrProcess        = errs.ErrProcess
	ErrTempFile       = errs.ErrTempFile
	ErrSpawn          = errs.ErrSpawn
	ErrExitStatus     = errs.ErrExitStatus
	ErrOutput         = errs.ErrOutput
	ErrTimeout        = errs.ErrTimeout
	ErrResponseFormat = errs.ErrResponseFormat
	ErrKeyNotFound    = errs.ErrKeyNotFound
)

// P builds Params from alternating name/value arguments.
func P(pairs ...string) Params {
	var out Params
	for i := 0; i < len(pairs); i += 2 {
		v := ""
		if i+1 < len(pairs) {
			v = pairs[i+1]
		}
		out = append(out, Param{Name: pairs[i], Value: v})
	}
	return out
}

// Logging re-exports

type Logger = common.Logger

type LogLevel = common.LogLevel

const (
	LogLevelError = common.LogLevelError
	LogLevelWarn  = common.LogLevelWarn
	LogLevelInfo  = common.LogLevelInfo
	LogLevelDebug = common.LogLevelDebug
)

// NewLogger creates a text logger writing to stderr.
func NewLogger(level LogLevel) *Logger { return common.NewLogger(level) }

// NewJSONLogger creates a JSON logger writing to stderr.
func NewJSONLogger(level LogLevel) *Logger { return common.NewJSONLogger(level) }

// NewColorLogger creates a colorized text logger writing to stderr.
func NewColorLogger(level LogLevel) *Logger { return common.NewColorLogger(level) }

// SetDefaultLogger sets the logger used when Config.Logger is nil.
func SetDefaultLogger(l *Logger) { common.SetDefaultLogger(l) }

// EnableMasking toggles masking of credentials in the default logger and
// the package level masker.
func EnableMasking(enabled bool) {
	common.GetLogger().EnableMasking(enabled)
	common.EnableMasking(enabled)
}
