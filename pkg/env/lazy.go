package env

import (
	"fmt"
	"sync"
)

// VarLazy is a concurrency-safe lazily resolved value bound to an Env. It is
// used for credentials so a token endpoint is only called when a request
// actually needs it, and at most once.
type VarLazy struct {
	once     sync.Once
	res      string
	err      error
	env      *Env
	resolver func(*Env) (string, error)
}

// Value forces acquisition (once) and returns the resolved value and any acquisition error.
func (l *VarLazy) Value() (string, error) {
	_ = l.String()
	return l.res, l.err
}

func (l *VarLazy) String() string {
	l.once.Do(func() {
		if l.resolver == nil {
			return
		}
		l.res, l.err = l.resolver(l.env)
		if l.err != nil {
			l.res = ""
		}
	})
	return l.res
}

var _ fmt.Stringer = (*VarLazy)(nil)

// MakeLazy constructs a VarLazy bound to this Env using the provided resolver.
func (e *Env) MakeLazy(resolver func(*Env) (string, error)) *VarLazy {
	return &VarLazy{env: e, resolver: resolver}
}
