package profile

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// Value is a loosely typed request field. Clients send fps as "30" or 30 and
// flags as true or "true"; Value keeps the textual form and lets the
// resolver interpret it.
type Value struct {
	raw string
	set bool
}

// Text builds a Value from its textual form.
func Text(s string) Value {
	return Value{raw: s, set: true}
}

// Bool builds a Value from a boolean.
func Bool(b bool) Value {
	if b {
		return Text("true")
	}
	return Text("false")
}

func (v Value) String() string { return v.raw }

// IsSet reports whether the field was present and not null.
func (v Value) IsSet() bool { return v.set }

// Truthy reports whether the value spells an affirmative flag.
func (v Value) Truthy() bool {
	switch strings.ToLower(strings.TrimSpace(v.raw)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*v = Value{}
		return nil
	case bytes.Equal(b, []byte("true")), bytes.Equal(b, []byte("false")):
		*v = Text(string(b))
		return nil
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = Text(s)
		return nil
	case b[0] == '-' || (b[0] >= '0' && b[0] <= '9'):
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*v = Text(n.String())
		return nil
	default:
		return errors.New("expected string, number or boolean")
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.set {
		return []byte("null"), nil
	}
	return json.Marshal(v.raw)
}
