package env

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Vars is an insertion-ordered string map. Keys are unique; setting an
// existing key replaces its value and keeps its original position, so
// rendering a Vars is deterministic.
// The zero value is ready to use; a nil *Vars reads as empty.
type Vars struct {
	keys []string
	vals map[string]string
}

// NewVars builds a Vars from alternating key/value arguments.
// A trailing key without value is stored with an empty value.
func NewVars(pairs ...string) *Vars {
	v := &Vars{}
	for i := 0; i < len(pairs); i += 2 {
		val := ""
		if i+1 < len(pairs) {
			val = pairs[i+1]
		}
		v.Set(pairs[i], val)
	}
	return v
}

// FromStringMap converts a plain map. Go maps carry no order, so keys are
// inserted sorted to keep the result reproducible.
func FromStringMap(m map[string]string) *Vars {
	v := &Vars{}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v.Set(k, m[k])
	}
	return v
}

// Set stores value under key.
func (v *Vars) Set(key, value string) {
	if v.vals == nil {
		v.vals = map[string]string{}
	}
	if _, ok := v.vals[key]; !ok {
		v.keys = append(v.keys, key)
	}
	v.vals[key] = value
}

// Get returns the value stored under key.
func (v *Vars) Get(key string) (string, bool) {
	if v == nil || v.vals == nil {
		return "", false
	}
	val, ok := v.vals[key]
	return val, ok
}

// Delete removes key, keeping the order of the remaining keys.
func (v *Vars) Delete(key string) {
	if v == nil || v.vals == nil {
		return
	}
	if _, ok := v.vals[key]; !ok {
		return
	}
	delete(v.vals, key)
	for i, k := range v.keys {
		if k == key {
			v.keys = append(v.keys[:i], v.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of keys.
func (v *Vars) Len() int {
	if v == nil {
		return 0
	}
	return len(v.keys)
}

// Keys returns the keys in insertion order.
func (v *Vars) Keys() []string {
	if v == nil {
		return nil
	}
	return append([]string(nil), v.keys...)
}

// Each calls fn for every entry in insertion order.
func (v *Vars) Each(fn func(key, value string)) {
	if v == nil {
		return
	}
	for _, k := range v.keys {
		fn(k, v.vals[k])
	}
}

// Merge copies every entry of o into v, overwriting existing keys.
func (v *Vars) Merge(o *Vars) {
	o.Each(func(key, value string) { v.Set(key, value) })
}

// Clone returns an independent copy.
func (v *Vars) Clone() *Vars {
	out := &Vars{}
	out.Merge(v)
	return out
}

// Map returns a plain map copy.
func (v *Vars) Map() map[string]string {
	out := make(map[string]string, v.Len())
	v.Each(func(key, value string) { out[key] = value })
	return out
}

// UnmarshalYAML decodes a mapping node keeping document order.
func (v *Vars) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("env: expected a mapping, got %s", kindName(node.Kind))
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		var key, val string
		if err := node.Content[i].Decode(&key); err != nil {
			return err
		}
		if err := node.Content[i+1].Decode(&val); err != nil {
			return fmt.Errorf("env: value of %q: %w", key, err)
		}
		v.Set(key, val)
	}
	return nil
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	case yaml.DocumentNode:
		return "document"
	default:
		return "unknown node"
	}
}
