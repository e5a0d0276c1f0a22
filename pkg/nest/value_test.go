package nest

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFromAny(t *testing.T) {
	got, err := FromAny(map[string]any{
		"TEMPLATE": "wrap",
		"inner": []any{
			map[string]any{"TEMPLATE": "page", "v": "a"},
			"raw",
			Text("already a value"),
		},
	})
	if err != nil {
		t.Fatalf("FromAny failed: %v", err)
	}
	want := Keyed{
		"TEMPLATE": Text("wrap"),
		"inner": List{
			Keyed{"TEMPLATE": Text("page"), "v": Text("a")},
			Text("raw"),
			Text("already a value"),
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("value mismatch (-want +got):\n%s", diff)
	}
}

func TestFromAny_RejectsScalars(t *testing.T) {
	for _, raw := range []any{
		nil,
		42,
		3.5,
		true,
		map[string]any{"TEMPLATE": "page", "v": 1},
		[]any{"ok", false},
		map[int]any{1: "x"},
	} {
		if _, err := FromAny(raw); !errors.Is(err, ErrUnsupportedValue) {
			t.Errorf("FromAny(%#v): expected ErrUnsupportedValue, got %v", raw, err)
		}
	}
}

func TestParse_Formats(t *testing.T) {
	want := Keyed{
		"TEMPLATE": Text("wrap"),
		"inner": List{
			Keyed{"TEMPLATE": Text("page"), "v": Text("a")},
			Keyed{"TEMPLATE": Text("page"), "v": Text("b")},
		},
	}

	tests := []struct {
		name  string
		parse func([]byte) (Value, error)
		doc   string
	}{
		{
			name:  "json",
			parse: ParseJSON,
			doc:   `{"TEMPLATE":"wrap","inner":[{"TEMPLATE":"page","v":"a"},{"TEMPLATE":"page","v":"b"}]}`,
		},
		{
			name:  "yaml",
			parse: ParseYAML,
			doc: `TEMPLATE: wrap
inner:
  - TEMPLATE: page
    v: a
  - TEMPLATE: page
    v: b
`,
		},
		{
			name:  "toml",
			parse: ParseTOML,
			doc: `TEMPLATE = "wrap"

[[inner]]
TEMPLATE = "page"
v = "a"

[[inner]]
TEMPLATE = "page"
v = "b"
`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.parse([]byte(tt.doc))
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("value mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := ParseJSON([]byte(`{"TEMPLATE":`)); err == nil {
		t.Error("expected JSON syntax error")
	}
	if _, err := ParseJSON([]byte(`{"TEMPLATE":"page","count":3}`)); !errors.Is(err, ErrUnsupportedValue) {
		t.Errorf("expected ErrUnsupportedValue for JSON number, got %v", err)
	}
	if _, err := ParseYAML([]byte("TEMPLATE: page\nenabled: true\n")); !errors.Is(err, ErrUnsupportedValue) {
		t.Errorf("expected ErrUnsupportedValue for YAML bool, got %v", err)
	}
	if _, err := ParseTOML([]byte("TEMPLATE = [")); err == nil {
		t.Error("expected TOML syntax error")
	}
}

func TestParseFile(t *testing.T) {
	n := setupTestNest(t, nil)
	dir := t.TempDir()
	files := map[string]string{
		"page.json": `{"TEMPLATE":"page","v":"json"}`,
		"page.yml":  "TEMPLATE: page\nv: yaml\n",
		"page.toml": "TEMPLATE = \"page\"\nv = \"toml\"\n",
	}
	want := map[string]string{
		"page.json": "<p>json</p>",
		"page.yml":  "<p>yaml</p>",
		"page.toml": "<p>toml</p>",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		v, err := ParseFile(path)
		if err != nil {
			t.Fatalf("ParseFile(%s) failed: %v", name, err)
		}
		if got := mustRender(t, n, v); got != want[name] {
			t.Errorf("%s rendered %q, want %q", name, got, want[name])
		}
	}

	if _, err := ParseFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing input file")
	}
}

func TestValue_JSONRoundTrip(t *testing.T) {
	page := NewKeyed("wrap").With("inner", NewList(NewKeyed("page").WithText("v", "a"), Text("b")))
	data, err := json.Marshal(page)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	got, err := ParseJSON(data)
	if err != nil {
		t.Fatalf("ParseJSON failed: %v", err)
	}
	if diff := cmp.Diff(Value(page), got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDefaults_Unmarshal(t *testing.T) {
	var cfg Config
	data := `{"label":"TEMPLATE","defaults":{"title":"Untitled","footer":{"TEMPLATE":"page","v":"f"}}}`
	if err := json.Unmarshal([]byte(data), &cfg); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	want := Defaults{
		"title":  Text("Untitled"),
		"footer": Keyed{"TEMPLATE": Text("page"), "v": Text("f")},
	}
	if diff := cmp.Diff(want, cfg.Defaults); diff != "" {
		t.Errorf("defaults mismatch (-want +got):\n%s", diff)
	}

	if err := json.Unmarshal([]byte(`{"defaults":{"n":1}}`), &cfg); !errors.Is(err, ErrUnsupportedValue) {
		t.Errorf("expected ErrUnsupportedValue, got %v", err)
	}
}

func TestKeyed_Template(t *testing.T) {
	if name, err := NewKeyed("page").Template(DefaultLabel); err != nil || name != "page" {
		t.Errorf("Template() = %q, %v", name, err)
	}
	if _, err := (Keyed{}).Template(DefaultLabel); !errors.Is(err, ErrNoNameLabel) {
		t.Errorf("expected ErrNoNameLabel, got %v", err)
	}
	if _, err := (Keyed{DefaultLabel: List{}}).Template(DefaultLabel); !errors.Is(err, ErrInvalidNameLabel) {
		t.Errorf("expected ErrInvalidNameLabel, got %v", err)
	}
}
