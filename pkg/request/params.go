package request

import (
	"net/url"
	"sort"
	"strings"
)

// Param is one form field.
type Param struct {
	Name  string `yaml:"name" json:"name"`
	Value string `yaml:"value" json:"value"`
}

// Params is an ordered list of form fields. Encoding follows list order so
// bodies are reproducible.
type Params []Param

// ParamsFromMap converts a map, sorting names for a stable order.
func ParamsFromMap(m map[string]string) Params {
	if len(m) == 0 {
		return nil
	}
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	out := make(Params, 0, len(names))
	for _, n := range names {
		out = append(out, Param{Name: n, Value: m[n]})
	}
	return out
}

// Set replaces the value of name in place or appends a new field.
func (p Params) Set(name, value string) Params {
	for i := range p {
		if p[i].Name == name {
			p[i].Value = value
			return p
		}
	}
	return append(p, Param{Name: name, Value: value})
}

// Get returns the first value stored under name.
func (p Params) Get(name string) (string, bool) {
	for _, kv := range p {
		if kv.Name == name {
			return kv.Value, true
		}
	}
	return "", false
}

// EncodeURLEncoded serializes params as application/x-www-form-urlencoded in
// list order. Empty params encode to "".
func EncodeURLEncoded(params Params) string {
	if len(params) == 0 {
		return ""
	}
	var b strings.Builder
	for i, kv := range params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(kv.Name))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(kv.Value))
	}
	return b.String()
}
