package util

import (
	"github.com/loykin/cgirun/pkg/env"
)

// RenderAnyTemplate walks maps, slices and strings and renders every string
// with e ({{.env.x}}, {{.auth.x}}). Unresolvable templates are kept as they
// are. Non-string scalars are returned unchanged.
func RenderAnyTemplate(in interface{}, e *env.Env) interface{} {
	out, _ := renderAny(in, e, false)
	return out
}

// RenderAnyTemplateErr is RenderAnyTemplate failing on the first template
// that cannot be rendered.
func RenderAnyTemplateErr(in interface{}, e *env.Env) (interface{}, error) {
	return renderAny(in, e, true)
}

func renderAny(in interface{}, e *env.Env, strict bool) (interface{}, error) {
	switch t := in.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, v := range t {
			r, err := renderAny(v, e, strict)
			if err != nil {
				return nil, err
			}
			m[k] = r
		}
		return m, nil
	case []interface{}:
		arr := make([]interface{}, len(t))
		for i := range t {
			r, err := renderAny(t[i], e, strict)
			if err != nil {
				return nil, err
			}
			arr[i] = r
		}
		return arr, nil
	case map[string]string:
		return RenderStringMap(t, e, strict)
	case string:
		return renderString(t, e, strict)
	default:
		return in, nil
	}
}

// RenderStringMap renders every value of m into a new map.
func RenderStringMap(m map[string]string, e *env.Env, strict bool) (map[string]string, error) {
	if m == nil {
		return nil, nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		r, err := renderString(v, e, strict)
		if err != nil {
			return nil, err
		}
		out[k] = r
	}
	return out, nil
}

func renderString(s string, e *env.Env, strict bool) (string, error) {
	if e == nil {
		return s, nil
	}
	if strict {
		return e.RenderGoTemplateErr(s)
	}
	return e.RenderGoTemplate(s), nil
}
