package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type ValueType string

const (
	ValueString ValueType = "string"
	ValueNumber ValueType = "number"
	ValueBool   ValueType = "bool"
	ValueDate   ValueType = "date"
)

// Value is a tagged comparison value. Scalars live in Raw, BETWEEN and IN
// operands in List; Type applies to every element.
type Value struct {
	Type ValueType `json:"type,omitempty" yaml:"type,omitempty"`
	Raw  string    `json:"value,omitempty" yaml:"value,omitempty"`
	List []string  `json:"list,omitempty" yaml:"list,omitempty"`
}

func StringValue(s string) Value { return Value{Type: ValueString, Raw: s} }

func NumberValue(d decimal.Decimal) Value { return Value{Type: ValueNumber, Raw: d.String()} }

func NumberValueOf(s string) Value { return Value{Type: ValueNumber, Raw: s} }

func BoolValue(b bool) Value { return Value{Type: ValueBool, Raw: strconv.FormatBool(b)} }

func DateValue(t time.Time) Value { return Value{Type: ValueDate, Raw: t.UTC().Format(time.RFC3339)} }

func ListValue(t ValueType, items ...string) Value { return Value{Type: t, List: items} }

func (v Value) IsZero() bool { return v.Raw == "" && len(v.List) == 0 }

func (v Value) Decimal() (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(v.Raw))
}

func (v Value) Bool() (bool, error) {
	return strconv.ParseBool(strings.TrimSpace(v.Raw))
}

func (v Value) Time() (time.Time, error) {
	return parseTimeValue(v.Raw)
}

func parseTimeValue(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t.UTC(), nil
}

// UnmarshalJSON accepts JSON numbers and booleans as well as strings for the
// value and list fields, so rule packs can be written naturally. A bare
// scalar or array is shorthand for {"value": ...} or {"list": [...]}.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] != '{' {
		return v.unmarshalJSONShorthand(data)
	}
	var raw struct {
		Type ValueType         `json:"type"`
		Raw  json.RawMessage   `json:"value"`
		List []json.RawMessage `json:"list"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v.Type = raw.Type
	v.Raw = ""
	v.List = nil
	if len(raw.Raw) > 0 {
		s, err := rawScalar(raw.Raw)
		if err != nil {
			return err
		}
		v.Raw = s
	}
	for _, item := range raw.List {
		s, err := rawScalar(item)
		if err != nil {
			return err
		}
		v.List = append(v.List, s)
	}
	return nil
}

func (v *Value) unmarshalJSONShorthand(data []byte) error {
	*v = Value{}
	if data[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		for _, item := range items {
			s, err := rawScalar(item)
			if err != nil {
				return err
			}
			v.List = append(v.List, s)
			v.Type = scalarType(item)
		}
		return nil
	}
	s, err := rawScalar(data)
	if err != nil {
		return err
	}
	v.Raw = s
	v.Type = scalarType(data)
	return nil
}

func scalarType(msg json.RawMessage) ValueType {
	msg = bytes.TrimSpace(msg)
	switch {
	case len(msg) == 0:
		return ""
	case msg[0] == '"':
		return ValueString
	case string(msg) == "true" || string(msg) == "false":
		return ValueBool
	case string(msg) == "null":
		return ""
	}
	return ValueNumber
}

// UnmarshalYAML accepts the same shorthand as UnmarshalJSON: a scalar, a
// sequence, or the explicit type/value/list mapping.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	*v = Value{}
	switch node.Kind {
	case yaml.ScalarNode:
		v.Raw = node.Value
		v.Type = yamlScalarType(node)
		return nil
	case yaml.SequenceNode:
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: list items must be scalars", item.Line)
			}
			v.List = append(v.List, item.Value)
			v.Type = yamlScalarType(item)
		}
		return nil
	case yaml.MappingNode:
		var raw struct {
			Type ValueType `yaml:"type"`
			Raw  string    `yaml:"value"`
			List []string  `yaml:"list"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		v.Type, v.Raw, v.List = raw.Type, raw.Raw, raw.List
		return nil
	}
	return fmt.Errorf("line %d: unsupported value", node.Line)
}

func yamlScalarType(n *yaml.Node) ValueType {
	switch n.ShortTag() {
	case "!!int", "!!float":
		return ValueNumber
	case "!!bool":
		return ValueBool
	case "!!timestamp":
		return ValueDate
	case "!!null":
		return ""
	}
	return ValueString
}

func rawScalar(msg json.RawMessage) (string, error) {
	msg = bytes.TrimSpace(msg)
	if len(msg) == 0 || string(msg) == "null" {
		return "", nil
	}
	if msg[0] == '"' {
		var s string
		if err := json.Unmarshal(msg, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	// numbers, booleans and JSON_LOGIC objects are kept verbatim
	return string(msg), nil
}

// Parameters is the typed key/value bag of an action.
type Parameters map[string]Value

func (p Parameters) Has(key string) bool {
	_, ok := p[key]
	return ok
}

func (p Parameters) String(key, def string) string {
	v, ok := p[key]
	if !ok || strings.TrimSpace(v.Raw) == "" {
		return def
	}
	return strings.TrimSpace(v.Raw)
}

// Decimal returns the parameter as a decimal. ok is false when the key is
// absent; err is set when it is present but not a number.
func (p Parameters) Decimal(key string) (d decimal.Decimal, ok bool, err error) {
	v, found := p[key]
	if !found || strings.TrimSpace(v.Raw) == "" {
		return decimal.Zero, false, nil
	}
	d, err = v.Decimal()
	if err != nil {
		return decimal.Zero, true, fmt.Errorf("%w: parameter %s: %q is not a number", ErrInvalidParameter, key, v.Raw)
	}
	return d, true, nil
}

func (p Parameters) Bool(key string, def bool) (bool, error) {
	v, found := p[key]
	if !found || strings.TrimSpace(v.Raw) == "" {
		return def, nil
	}
	b, err := v.Bool()
	if err != nil {
		return def, fmt.Errorf("%w: parameter %s: %q is not a boolean", ErrInvalidParameter, key, v.Raw)
	}
	return b, nil
}
