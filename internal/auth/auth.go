package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/loykin/cgirun/internal/common"
	"github.com/loykin/cgirun/internal/util"
	"github.com/loykin/cgirun/pkg/env"
)

// Auth is one configured credential, referenced by Name from scenario steps.
type Auth struct {
	Type   string                 `mapstructure:"type" yaml:"type"`
	Name   string                 `mapstructure:"name" yaml:"name"`
	Config map[string]interface{} `mapstructure:"config" yaml:"config"`
}

// Acquire renders templates in Config against e and asks the provider for
// the credential value.
func (a *Auth) Acquire(ctx context.Context, e *env.Env) (string, error) {
	if a == nil {
		return "", nil
	}
	typ := strings.TrimSpace(a.Type)
	if typ == "" {
		return "", fmt.Errorf("auth %q: missing type", a.Name)
	}
	rendered, err := util.RenderAnyTemplateErr(a.Config, e)
	if err != nil {
		return "", fmt.Errorf("auth %q: render config: %w", a.Name, err)
	}
	spec, _ := rendered.(map[string]interface{})
	m, err := Build(typ, spec)
	if err != nil {
		return "", fmt.Errorf("auth %q: %w", a.Name, err)
	}
	return m.Acquire(ctx)
}

// Install registers every auth in e as a lazy value: a provider is only
// contacted when a request references its name, and at most once.
func Install(ctx context.Context, e *env.Env, auths []Auth) error {
	for i := range auths {
		a := auths[i]
		name := strings.TrimSpace(a.Name)
		if name == "" {
			return fmt.Errorf("auth: entry %d (%s) has no name", i, a.Type)
		}
		logger := common.GetLogger().WithAuth(name)
		lazy := e.MakeLazy(func(e *env.Env) (string, error) {
			logger.Debug("acquiring credential", "type", a.Type)
			v, err := a.Acquire(ctx, e)
			if err != nil {
				logger.Error("credential acquisition failed", "type", a.Type, "error", err)
				return "", err
			}
			logger.Info("credential acquired", "type", a.Type)
			return v, nil
		})
		if err := e.SetAuth(name, lazy); err != nil {
			return err
		}
	}
	return nil
}
