package util

import (
	"reflect"
	"testing"

	"github.com/loykin/cgirun/pkg/env"
)

func TestRenderAnyTemplate(t *testing.T) {
	e := env.New()
	_ = e.SetMap(map[string]string{"name": "Alice", "nested": "World"})

	in := map[string]interface{}{
		"plain":   "no templating here",
		"tmpl":    "Hello, {{.env.name}}!",
		"missing": "{{.env.nope}}",
		"number":  3,
		"slice":   []interface{}{"Item: {{.env.nested}}", true},
		"strmap":  map[string]string{"a": "{{.env.name}}"},
	}
	out, ok := RenderAnyTemplate(in, e).(map[string]interface{})
	if !ok {
		t.Fatalf("expected map output")
	}
	if out["plain"] != "no templating here" || out["tmpl"] != "Hello, Alice!" {
		t.Fatalf("unexpected render: %#v", out)
	}
	if out["missing"] != "{{.env.nope}}" {
		t.Fatalf("missing keys should be kept, got %v", out["missing"])
	}
	if out["number"] != 3 {
		t.Fatalf("scalars should pass through, got %v", out["number"])
	}
	if !reflect.DeepEqual(out["slice"], []interface{}{"Item: World", true}) {
		t.Fatalf("slice mismatch: %#v", out["slice"])
	}
	if !reflect.DeepEqual(out["strmap"], map[string]string{"a": "Alice"}) {
		t.Fatalf("string map mismatch: %#v", out["strmap"])
	}

	if _, err := RenderAnyTemplateErr(in, e); err == nil {
		t.Fatalf("expected strict render to fail on missing key")
	}
	if got := RenderAnyTemplate("{{.env.name}}", nil); got != "{{.env.name}}" {
		t.Fatalf("nil env should keep input, got %v", got)
	}
}

func TestSplitKeyValue(t *testing.T) {
	tests := []struct {
		in      string
		k, v    string
		wantErr bool
	}{
		{"a=1", "a", "1", false},
		{"q=x=y", "q", "x=y", false},
		{"empty=", "empty", "", false},
		{"novalue", "", "", true},
		{"=v", "", "", true},
	}
	for _, tt := range tests {
		k, v, err := SplitKeyValue(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("%q: unexpected err %v", tt.in, err)
		}
		if k != tt.k || v != tt.v {
			t.Fatalf("%q: got %q=%q", tt.in, k, v)
		}
	}
}

func TestStringHelpers(t *testing.T) {
	if TrimAndLower("  SQLite ") != "sqlite" {
		t.Fatalf("TrimAndLower failed")
	}
	if v, ok := TrimEmptyCheck("   "); ok || v != "" {
		t.Fatalf("TrimEmptyCheck failed")
	}
	if TrimWithDefault(" ", "def") != "def" || TrimWithDefault(" x ", "def") != "x" {
		t.Fatalf("TrimWithDefault failed")
	}
	if got := SortedKeys(map[string]int{"b": 1, "a": 2}); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("SortedKeys got %v", got)
	}
}
