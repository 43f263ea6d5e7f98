package cgirun

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/loykin/cgirun/internal/cgi"
	"github.com/loykin/cgirun/internal/common"
	"github.com/loykin/cgirun/internal/constants"
	"github.com/loykin/cgirun/internal/session"
	"github.com/loykin/cgirun/pkg/env"
	"github.com/loykin/cgirun/pkg/request"
	"github.com/loykin/cgirun/pkg/response"
)

// Config configures a Tester. Zero values fall back to the php-cgi defaults.
type Config struct {
	Interpreter  string
	DocumentRoot string
	IncludePath  string
	PHPOptions   map[string]string
	TempDir      string
	// Timeout bounds one interpreter run (default 30s, negative disables).
	Timeout time.Duration
	// SessionSavePath receives session files written by SetSession. Empty
	// uses a private temp dir removed by Close.
	SessionSavePath string
	// CleanEnv hides the parent process environment from the interpreter.
	CleanEnv bool
	Logger   *common.Logger
}

// Tester simulates HTTP requests against scripts by running a CGI
// interpreter once per request. Variables set through SetEnv, request
// defaults and caller options accumulate across calls; every run works on
// its own snapshot so a Tester can be shared between goroutines.
type Tester struct {
	mu           sync.RWMutex
	documentRoot string
	includePath  string
	phpOptions   map[string]string
	state        *env.Env

	sessionDir    string
	ownSessionDir bool
	sessions      *session.Store
	invoker       cgi.Invoker
	logger        *common.Logger
}

// New returns a Tester for cfg.
func New(cfg Config) *Tester {
	if cfg.DocumentRoot == "" {
		cfg.DocumentRoot = constants.DefaultDocumentRoot
	}
	if cfg.IncludePath == "" {
		cfg.IncludePath = constants.DefaultIncludePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = common.GetLogger()
	}
	t := &Tester{
		documentRoot: cfg.DocumentRoot,
		includePath:  cfg.IncludePath,
		phpOptions:   copyMap(cfg.PHPOptions),
		state:        env.New(),
		sessionDir:   cfg.SessionSavePath,
		logger:       logger,
		invoker: cgi.Invoker{
			Binary:   cfg.Interpreter,
			TempDir:  cfg.TempDir,
			Timeout:  cfg.Timeout,
			CleanEnv: cfg.CleanEnv,
			Logger:   logger,
		},
	}
	return t
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Get runs a GET request; params are sent in QUERY_STRING.
func (t *Tester) Get(ctx context.Context, script string, params request.Params, options map[string]string) (*response.Response, error) {
	return t.Request(ctx, http.MethodGet, script, params, options, nil)
}

// Post runs a POST request; files switch the body to multipart/form-data.
func (t *Tester) Post(ctx context.Context, script string, params request.Params, options map[string]string, files []request.FilePart) (*response.Response, error) {
	return t.Request(ctx, http.MethodPost, script, params, options, files)
}

// Request runs a request with an arbitrary method.
func (t *Tester) Request(ctx context.Context, method, script string, params request.Params, options map[string]string, files []request.FilePart) (*response.Response, error) {
	return t.Do(ctx, &request.Spec{Method: method, Script: script, Params: params, Options: options, Files: files})
}

// Do runs one simulated request: encode the body, assemble the environment,
// invoke the interpreter and parse its output. The first failing stage
// aborts the call.
func (t *Tester) Do(ctx context.Context, spec *request.Spec) (*response.Response, error) {
	if err := spec.Validate(); err != nil {
		t.logger.Error("invalid request", "error", err)
		return nil, err
	}
	call := *spec
	call.Method = strings.ToUpper(call.Method)
	spec = &call
	logger := t.logger.WithRequest(spec.Method, spec.Script)

	body, err := spec.Encode()
	if err != nil {
		logger.Error("failed to encode request body", "error", err)
		return nil, err
	}

	callEnv, args, err := t.assemble(spec, body)
	if err != nil {
		logger.Error("failed to assemble environment", "error", err)
		return nil, err
	}
	logger.Debug("assembled environment", "env", callEnv.String(), "args", args)

	inv := t.invoker
	if spec.Timeout != 0 {
		inv.Timeout = spec.Timeout
	}
	res, err := inv.Invoke(ctx, cgi.Invocation{Body: body.Data, Env: callEnv.Environ(), Args: args})
	if err != nil {
		return nil, err
	}

	resp, err := response.FromCGI(res.Stdout)
	if err != nil {
		logger.Error("failed to parse interpreter output", "error", err, "stdout_size", len(res.Stdout))
		return nil, err
	}
	logger.Info("request completed", "status", resp.StatusCode, "elapsed", res.Duration, "body_size", len(resp.Body))
	return resp, nil
}

// assemble overlays the request defaults and caller options on the
// accumulated state, stores the result back and returns a sealed copy for
// the call together with the interpreter arguments.
func (t *Tester) assemble(spec *request.Spec, body request.Body) (*env.Env, []string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if strings.TrimSpace(t.documentRoot) == "" {
		return nil, nil, fmt.Errorf("%w: empty document root", ErrConfiguration)
	}

	next := t.state.Clone()
	defaults := env.NewVars(
		constants.EnvScriptFilename, filepath.Join(t.documentRoot, spec.Script),
		constants.EnvContentType, body.ContentType,
		constants.EnvRequestMethod, spec.Method,
		constants.EnvRedirectStatus, constants.DefaultRedirectStatus,
		constants.EnvContentLength, strconv.Itoa(len(body.Data)),
	)
	if err := next.Set(defaults); err != nil {
		return nil, nil, err
	}
	if spec.IsGet() {
		_ = next.SetString("global", constants.EnvQueryString, body.QueryString)
	} else {
		_ = next.Delete(constants.EnvQueryString)
	}
	if err := next.Set(env.FromStringMap(spec.Options)); err != nil {
		return nil, nil, err
	}
	t.state = next

	callEnv := next.Clone()
	if spec.Session != nil {
		cookie, _ := callEnv.Lookup(constants.EnvHTTPCookie)
		_ = callEnv.SetString("global", constants.EnvHTTPCookie, session.AppendCookie(cookie, spec.Session))
	}
	callEnv.Seal()

	opts := copyMap(t.phpOptions)
	if t.sessions != nil {
		if _, ok := opts[constants.SessionSavePathParam]; !ok {
			opts[constants.SessionSavePathParam] = t.sessions.Dir
		}
	}
	return callEnv, cgi.OptionArgs(t.includePath, opts), nil
}

// SetEnv adds variables to the accumulated state, overwriting existing keys.
// Keys are applied in sorted order.
func (t *Tester) SetEnv(vars map[string]string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.SetMap(vars)
}

// GetEnv returns the whole state or only the named variables. Unknown names
// fail with ErrKeyNotFound.
func (t *Tester) GetEnv(names ...string) (map[string]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.Get(names...)
}

// EnvString renders the state as key='value' tokens for diagnostics.
func (t *Tester) EnvString() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.String()
}

// Environment returns a copy of the accumulated state.
func (t *Tester) Environment() *env.Env {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.Clone()
}

// SetSession writes a session file holding values and adds its cookie to
// HTTP_COOKIE for all following requests. An empty name means PHPSESSID.
func (t *Tester) SetSession(values map[string]string, name string) (*session.Session, error) {
	if strings.TrimSpace(name) == "" {
		name = constants.DefaultSessionName
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	store, err := t.sessionStoreLocked()
	if err != nil {
		return nil, err
	}
	sess, err := store.Create(name, values)
	if err != nil {
		t.logger.Error("failed to write session", "error", err, "name", name)
		return nil, err
	}
	cookie, _ := t.state.Lookup(constants.EnvHTTPCookie)
	if err := t.state.SetString("global", constants.EnvHTTPCookie, session.AppendCookie(cookie, sess)); err != nil {
		return nil, err
	}
	t.logger.Debug("session created", "name", name, "path", sess.Path)
	return sess, nil
}

// NewSession writes a session file without touching HTTP_COOKIE. Pass the
// result in request.Spec.Session to send it with a single request.
func (t *Tester) NewSession(values map[string]string, name string) (*session.Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	store, err := t.sessionStoreLocked()
	if err != nil {
		return nil, err
	}
	return store.Create(name, values)
}

// InitializeSession destroys the sessions created under name and drops
// their cookies.
func (t *Tester) InitializeSession(name string) error {
	if strings.TrimSpace(name) == "" {
		name = constants.DefaultSessionName
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sessions != nil {
		if _, err := t.sessions.Destroy(name); err != nil {
			t.logger.Error("failed to destroy sessions", "error", err, "name", name)
			return err
		}
	}
	cookie, ok := t.state.Lookup(constants.EnvHTTPCookie)
	if !ok {
		return nil
	}
	if rest := session.RemoveCookie(cookie, name); rest != "" {
		return t.state.SetString("global", constants.EnvHTTPCookie, rest)
	}
	return t.state.Delete(constants.EnvHTTPCookie)
}

func (t *Tester) sessionStoreLocked() (*session.Store, error) {
	if t.sessions != nil {
		return t.sessions, nil
	}
	dir := t.sessionDir
	if dir == "" {
		d, err := os.MkdirTemp(t.invoker.TempDir, "cgirun-sessions-")
		if err != nil {
			return nil, fmt.Errorf("session dir: %w", err)
		}
		dir = d
		t.ownSessionDir = true
	}
	t.sessions = session.NewStore(dir)
	return t.sessions, nil
}

// Close removes the private session directory, if one was created.
func (t *Tester) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sessions == nil || !t.ownSessionDir {
		return nil
	}
	err := os.RemoveAll(t.sessions.Dir)
	t.sessions = nil
	t.ownSessionDir = false
	return err
}

// DocumentRoot returns the directory scripts are resolved against.
func (t *Tester) DocumentRoot() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.documentRoot
}

// SetDocumentRoot sets the directory scripts are resolved against.
func (t *Tester) SetDocumentRoot(root string) {
	t.mu.Lock()
	t.documentRoot = root
	t.mu.Unlock()
}

// IncludePath returns the include_path passed to the interpreter.
func (t *Tester) IncludePath() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.includePath
}

// SetIncludePath replaces the include_path.
func (t *Tester) SetIncludePath(path string) {
	t.mu.Lock()
	t.includePath = path
	t.mu.Unlock()
}

// AddIncludePath appends path to the include_path, adding the ':' separator
// when path does not start with one.
func (t *Tester) AddIncludePath(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case path == "":
	case t.includePath == "", strings.HasPrefix(path, ":"):
		t.includePath += path
	default:
		t.includePath += ":" + path
	}
}

// PHPOptions returns a copy of the interpreter -d options.
func (t *Tester) PHPOptions() map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return copyMap(t.phpOptions)
}

// SetPHPOptions replaces the interpreter -d options.
func (t *Tester) SetPHPOptions(options map[string]string) {
	t.mu.Lock()
	t.phpOptions = copyMap(options)
	t.mu.Unlock()
}
