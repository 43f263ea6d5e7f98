package env

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"github.com/loykin/cgirun/internal/errs"
)

// ErrKeyNotFound is returned by Get for names that are not set.
var ErrKeyNotFound = errs.ErrKeyNotFound

// ErrSealed is returned when mutating a sealed Env.
var ErrSealed = errors.New("env: sealed (immutable)")

// Val is a variable value; lazily computed values implement it too.
type Val interface {
	String() string
}

// Str is a plain string Val.
type Str string

func (s Str) String() string { return string(s) }

// Env supports layered variables:
// - Auth: lazily acquired credentials (apply to the whole run)
// - Global: variables kept for the lifetime of the owner (additive)
// - Local: variables of one request or scenario step
// Lookup and rendering give precedence to Local over Global.
// Note: zero values (nil layers) are handled gracefully.
type Env struct {
	mu     sync.RWMutex
	Auth   map[string]Val
	Global *Vars
	Local  *Vars
	sealed bool
}

// New returns a pointer to Env with all layers initialized.
func New() *Env {
	return &Env{Auth: map[string]Val{}, Global: &Vars{}, Local: &Vars{}}
}

// Seal marks the Env as immutable for Set operations.
func (e *Env) Seal() {
	e.mu.Lock()
	e.sealed = true
	e.mu.Unlock()
}

// Unseal re-allows Set operations.
func (e *Env) Unseal() {
	e.mu.Lock()
	e.sealed = false
	e.mu.Unlock()
}

// Clone performs a deep copy of the layers. Lazy values are copied by
// reference so an acquired token is shared with the clone. The clone is unsealed.
func (e *Env) Clone() *Env {
	if e == nil {
		return New()
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := &Env{Auth: make(map[string]Val, len(e.Auth)), Global: e.Global.Clone(), Local: e.Local.Clone()}
	for k, v := range e.Auth {
		out.Auth[k] = v
	}
	return out
}

// Set writes vars into the Global layer, overwriting keys that already exist.
func (e *Env) Set(vars *Vars) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sealed {
		return ErrSealed
	}
	if e.Global == nil {
		e.Global = &Vars{}
	}
	e.Global.Merge(vars)
	return nil
}

// SetMap is Set for a plain map; keys are applied in sorted order.
func (e *Env) SetMap(m map[string]string) error {
	return e.Set(FromStringMap(m))
}

// SetString sets a string into the chosen layer ("auth", "global", "local").
func (e *Env) SetString(layer, key, val string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sealed {
		return ErrSealed
	}
	switch normalizeLayer(layer) {
	case "auth":
		if e.Auth == nil {
			e.Auth = map[string]Val{}
		}
		e.Auth[key] = Str(val)
	case "local":
		if e.Local == nil {
			e.Local = &Vars{}
		}
		e.Local.Set(key, val)
	default:
		if e.Global == nil {
			e.Global = &Vars{}
		}
		e.Global.Set(key, val)
	}
	return nil
}

// SetAuth installs a (possibly lazy) credential value.
func (e *Env) SetAuth(name string, v Val) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sealed {
		return ErrSealed
	}
	if e.Auth == nil {
		e.Auth = map[string]Val{}
	}
	e.Auth[name] = v
	return nil
}

// AuthValue resolves a credential. Lazy values are acquired on first use and
// their acquisition error is reported.
func (e *Env) AuthValue(name string) (string, error) {
	e.mu.RLock()
	v, ok := e.Auth[name]
	e.mu.RUnlock()
	if !ok || v == nil {
		return "", fmt.Errorf("auth %q: %w", name, ErrKeyNotFound)
	}
	if l, ok := v.(*VarLazy); ok {
		return l.Value()
	}
	return v.String(), nil
}

// Delete removes key from the Global and Local layers.
func (e *Env) Delete(key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sealed {
		return ErrSealed
	}
	e.Global.Delete(key)
	e.Local.Delete(key)
	return nil
}

// ResetLocal drops the Local layer.
func (e *Env) ResetLocal() {
	e.mu.Lock()
	e.Local = &Vars{}
	e.mu.Unlock()
}

func normalizeLayer(n string) string {
	switch strings.ToLower(strings.TrimSpace(n)) {
	case "auth":
		return "auth"
	case "local":
		return "local"
	default:
		return "global"
	}
}

// Lookup searches Local first, then Global.
func (e *Env) Lookup(key string) (string, bool) {
	if e == nil {
		return "", false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if v, ok := e.Local.Get(key); ok {
		return v, true
	}
	return e.Global.Get(key)
}

// Get returns the whole merged state when called without names, otherwise
// only the named variables. A name that is not set fails with ErrKeyNotFound.
func (e *Env) Get(names ...string) (map[string]string, error) {
	merged := e.Merged()
	if len(names) == 0 {
		return merged.Map(), nil
	}
	out := make(map[string]string, len(names))
	for _, name := range names {
		v, ok := merged.Get(name)
		if !ok {
			return nil, fmt.Errorf("env: %q: %w", name, ErrKeyNotFound)
		}
		out[name] = v
	}
	return out, nil
}

// Merged returns Global overridden by Local. Keys keep the position of their
// first appearance: Global keys first, then keys only present in Local.
func (e *Env) Merged() *Vars {
	out := &Vars{}
	if e == nil {
		return out
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	out.Merge(e.Global)
	out.Merge(e.Local)
	return out
}

// String renders the merged state as key='value' tokens joined by single
// spaces. Values are not escaped; the result is meant for logs and
// diagnostics, the interpreter receives Environ instead.
func (e *Env) String() string {
	var b strings.Builder
	e.Merged().Each(func(key, value string) {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(key)
		b.WriteString("='")
		b.WriteString(value)
		b.WriteByte('\'')
	})
	return b.String()
}

// Environ renders the merged state as KEY=VALUE entries for exec.Cmd.Env.
func (e *Env) Environ() []string {
	merged := e.Merged()
	out := make([]string, 0, merged.Len())
	merged.Each(func(key, value string) {
		out = append(out, key+"="+value)
	})
	return out
}

// dataForTemplate builds the dot object for template execution:
// {{.env.name}} for merged variables and {{.auth.name}} for credentials.
func (e *Env) dataForTemplate() map[string]interface{} {
	data := map[string]interface{}{"env": e.Merged().Map()}
	am := map[string]interface{}{}
	if e != nil {
		e.mu.RLock()
		for k, v := range e.Auth {
			am[k] = v
		}
		e.mu.RUnlock()
	}
	data["auth"] = am
	return data
}

// RenderGoTemplate renders strings like {{.env.username}} with text/template.
// Text is not HTML-escaped: rendered values end up in CGI variables and form
// fields verbatim. Unparsable templates or missing keys keep the input unchanged.
func (e *Env) RenderGoTemplate(s string) string {
	out, err := e.RenderGoTemplateErr(s)
	if err != nil {
		return s
	}
	return out
}

// RenderGoTemplateErr behaves like RenderGoTemplate but reports parse and
// execution errors (including missing keys).
func (e *Env) RenderGoTemplateErr(s string) (string, error) {
	if !strings.Contains(s, "{{") {
		return s, nil
	}
	t, err := template.New("gotmpl").Option("missingkey=error").Parse(s)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, e.dataForTemplate()); err != nil {
		return "", err
	}
	return buf.String(), nil
}
