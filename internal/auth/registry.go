// Package auth acquires credentials for simulated requests. Every provider
// returns the value of the Authorization header, which the harness hands to
// the script as HTTP_AUTHORIZATION.
package auth

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/go-viper/mapstructure/v2"

	"github.com/loykin/cgirun/internal/util"
)

// Method acquires one credential value, e.g. "Basic ..." or "Bearer ...".
type Method interface {
	Acquire(ctx context.Context) (string, error)
}

// Factory builds a Method from a loosely typed spec.
type Factory func(spec map[string]interface{}) (Method, error)

// Built-in provider types.
const (
	TypeBasic  = "basic"
	TypeOAuth2 = "oauth2"
	TypeJWT    = "jwt"
	TypeToken  = "token"
)

var (
	mu        sync.RWMutex
	providers = map[string]Factory{}
)

// Register adds or replaces a provider factory. Keys are case-insensitive.
func Register(typ string, f Factory) {
	key := util.TrimAndLower(typ)
	if key == "" || f == nil {
		return
	}
	mu.Lock()
	providers[key] = f
	mu.Unlock()
}

// Types lists the registered provider types.
func Types() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(providers))
	for k := range providers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Build returns the Method for typ configured with spec.
func Build(typ string, spec map[string]interface{}) (Method, error) {
	mu.RLock()
	f, ok := providers[util.TrimAndLower(typ)]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("auth: unsupported provider type: %q", typ)
	}
	return f(spec)
}

// decode is the mapstructure decoding shared by the built-in factories.
// Durations accept strings like "30s".
func decode(spec map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	return dec.Decode(spec)
}

func init() {
	Register(TypeBasic, func(spec map[string]interface{}) (Method, error) {
		var c BasicConfig
		if err := decode(spec, &c); err != nil {
			return nil, err
		}
		return c, nil
	})
	Register(TypeOAuth2, func(spec map[string]interface{}) (Method, error) {
		var c OAuth2Config
		if err := decode(spec, &c); err != nil {
			return nil, err
		}
		return c, nil
	})
	Register(TypeJWT, func(spec map[string]interface{}) (Method, error) {
		var c JWTConfig
		if err := decode(spec, &c); err != nil {
			return nil, err
		}
		return c, nil
	})
	Register(TypeToken, func(spec map[string]interface{}) (Method, error) {
		var c TokenConfig
		if err := decode(spec, &c); err != nil {
			return nil, err
		}
		return c, nil
	})
}
