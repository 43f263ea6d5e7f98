package task

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/loykin/cgirun/internal/constants"
	"github.com/loykin/cgirun/internal/util"
	"github.com/loykin/cgirun/pkg/env"
	"github.com/loykin/cgirun/pkg/request"
)

// RequestSpec is the request half of a scenario step. Every string may use
// {{.env.name}} and {{.auth.name}} templates.
type RequestSpec struct {
	Method   string            `yaml:"method" json:"method"`
	Script   string            `yaml:"script" json:"script"`
	AuthName string            `yaml:"auth_name" json:"auth_name"`
	Params   []request.Param   `yaml:"params" json:"params"`
	Options  map[string]string `yaml:"options" json:"options"`
	Files    []FileSpec        `yaml:"files" json:"files"`
	Session  *SessionSpec      `yaml:"session" json:"session"`
	Timeout  time.Duration     `yaml:"timeout" json:"timeout"`
}

// Build renders the step into a request.Spec. Relative file paths resolve
// against baseDir. The credential named by AuthName becomes
// HTTP_AUTHORIZATION unless the options already set it.
func (r RequestSpec) Build(ctx context.Context, d Doer, e *env.Env, baseDir string) (*request.Spec, error) {
	render := func(s string) (string, error) {
		out, err := e.RenderGoTemplateErr(s)
		if err != nil {
			return "", fmt.Errorf("template %q: %w", s, err)
		}
		return out, nil
	}

	spec := &request.Spec{Method: strings.ToUpper(util.TrimWithDefault(r.Method, http.MethodGet)), Timeout: r.Timeout}
	var err error
	if spec.Script, err = render(r.Script); err != nil {
		return nil, err
	}
	for _, p := range r.Params {
		if p.Name == "" {
			continue
		}
		v, err := render(p.Value)
		if err != nil {
			return nil, err
		}
		spec.Params = append(spec.Params, request.Param{Name: p.Name, Value: v})
	}
	if spec.Options, err = util.RenderStringMap(r.Options, e, true); err != nil {
		return nil, err
	}

	if name := strings.TrimSpace(r.AuthName); name != "" {
		if _, set := spec.Options[constants.EnvAuthorization]; !set {
			v, err := e.AuthValue(name)
			if err != nil {
				return nil, err
			}
			if spec.Options == nil {
				spec.Options = map[string]string{}
			}
			spec.Options[constants.EnvAuthorization] = v
		}
	}

	for _, f := range r.Files {
		part, err := r.buildFile(f, render, baseDir)
		if err != nil {
			return nil, err
		}
		spec.Files = append(spec.Files, part)
	}

	if r.Session != nil {
		values, err := util.RenderStringMap(r.Session.Values, e, true)
		if err != nil {
			return nil, err
		}
		if spec.Session, err = d.NewSession(values, r.Session.Name); err != nil {
			return nil, err
		}
	}
	return spec, nil
}

func (r RequestSpec) buildFile(f FileSpec, render func(string) (string, error), baseDir string) (request.FilePart, error) {
	if f.Path == "" {
		content, err := render(f.Content)
		if err != nil {
			return request.FilePart{}, err
		}
		return request.FilePart{Field: f.Field, Filename: f.Filename, ContentType: f.Type, Content: []byte(content)}, nil
	}
	path, err := render(f.Path)
	if err != nil {
		return request.FilePart{}, err
	}
	if !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}
	return request.FileFromPath(f.Field, path, f.Filename, f.Type)
}
