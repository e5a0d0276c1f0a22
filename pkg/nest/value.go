package nest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// DefaultLabel is the label key of DefaultConfig.
const DefaultLabel = "TEMPLATE"

// Value is a node of the input tree handed to Render. It is one of Text,
// List or Keyed.
type Value interface {
	isValue()
}

// Text is an atomic substitution value.
type Text string

// List renders each item in order and concatenates the results.
type List []Value

// Keyed names a template under the label key and supplies values for its
// tokens under the remaining keys.
type Keyed map[string]Value

func (Text) isValue()  {}
func (List) isValue()  {}
func (Keyed) isValue() {}

// NewText returns s as a Text value.
func NewText(s string) Text { return Text(s) }

// NewList returns a List of items.
func NewList(items ...Value) List { return List(items) }

// NewKeyed returns a Keyed value naming template under DefaultLabel.
func NewKeyed(template string) Keyed {
	return Keyed{DefaultLabel: Text(template)}
}

// NewKeyedLabel returns a Keyed value naming template under label, for
// engines configured with a custom Config.Label.
func NewKeyedLabel(label, template string) Keyed {
	return Keyed{label: Text(template)}
}

// With sets key to v and returns k for chaining.
func (k Keyed) With(key string, v Value) Keyed {
	k[key] = v
	return k
}

// WithText sets key to Text(s) and returns k for chaining.
func (k Keyed) WithText(key, s string) Keyed {
	k[key] = Text(s)
	return k
}

// Template returns the template name stored under label.
func (k Keyed) Template(label string) (string, error) {
	v, ok := k[label]
	if !ok {
		return "", fmt.Errorf("%w (name label: %q)", ErrNoNameLabel, label)
	}
	t, ok := v.(Text)
	if !ok {
		return "", fmt.Errorf("%w (name label: %q)", ErrInvalidNameLabel, label)
	}
	return string(t), nil
}

// keys returns the map keys in sorted order.
func (k Keyed) keys() []string {
	keys := make([]string, 0, len(k))
	for key := range k {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// FromAny converts decoded JSON, YAML or TOML data into a Value. Strings
// become Text, slices become List and string-keyed maps become Keyed.
// Numbers, booleans and null are rejected with ErrUnsupportedValue.
func FromAny(data any) (Value, error) {
	return fromAny(data, "$")
}

func fromAny(data any, at string) (Value, error) {
	switch v := data.(type) {
	case Value:
		return v, nil
	case string:
		return Text(v), nil
	case []any:
		list := make(List, 0, len(v))
		for i, item := range v {
			child, err := fromAny(item, fmt.Sprintf("%s[%d]", at, i))
			if err != nil {
				return nil, err
			}
			list = append(list, child)
		}
		return list, nil
	case []map[string]any:
		// TOML arrays of tables decode to this shape.
		list := make(List, 0, len(v))
		for i, item := range v {
			child, err := fromAny(item, fmt.Sprintf("%s[%d]", at, i))
			if err != nil {
				return nil, err
			}
			list = append(list, child)
		}
		return list, nil
	case map[string]any:
		keyed := make(Keyed, len(v))
		for key, item := range v {
			child, err := fromAny(item, at+"."+key)
			if err != nil {
				return nil, err
			}
			keyed[key] = child
		}
		return keyed, nil
	}
	return nil, fmt.Errorf("%w: %T at %s", ErrUnsupportedValue, data, at)
}

// ParseJSON decodes a JSON document into a Value.
func ParseJSON(data []byte) (Value, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse JSON input: %w", err)
	}
	return FromAny(raw)
}

// ParseYAML decodes a YAML document into a Value.
func ParseYAML(data []byte) (Value, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML input: %w", err)
	}
	return FromAny(raw)
}

// ParseTOML decodes a TOML document into a Value. The top level of a TOML
// document is always a table, so the result is Keyed.
func ParseTOML(data []byte) (Value, error) {
	var raw map[string]any
	if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse TOML input: %w", err)
	}
	return FromAny(raw)
}

// ParseFile reads an input tree from path, choosing the decoder by
// extension: .yaml/.yml, .toml, anything else as JSON.
func ParseFile(path string) (Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	case ".toml":
		return ParseTOML(data)
	default:
		return ParseJSON(data)
	}
}

// Defaults maps token names to fallback values.
type Defaults map[string]Value

// UnmarshalJSON decodes an object of token names to input trees.
func (d *Defaults) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return d.fill(raw)
}

// UnmarshalTOML decodes a table of token names to input trees.
func (d *Defaults) UnmarshalTOML(data any) error {
	raw, ok := data.(map[string]any)
	if !ok {
		return fmt.Errorf("defaults must be a table, got %T", data)
	}
	return d.fill(raw)
}

func (d *Defaults) fill(raw map[string]any) error {
	out := make(Defaults, len(raw))
	for name, item := range raw {
		v, err := fromAny(item, "defaults."+name)
		if err != nil {
			return err
		}
		out[name] = v
	}
	*d = out
	return nil
}
