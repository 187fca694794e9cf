// Package num holds the optional numeric type used for every value parsed
// from OpenRouter payloads. A missing or unparsable value is "unknown",
// never zero, so it can't leak into cost math or ranking.
package num

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

// Float is a float64 that may be unknown. The zero value is unknown.
type Float struct {
	Value float64
	Valid bool
}

// Of returns a known value.
func Of(v float64) Float {
	return Float{Value: v, Valid: true}
}

// Parse converts a gjson result permissively. Numbers and numeric strings
// are accepted; absent, null, empty or blank strings, booleans, objects,
// arrays and non-finite values are unknown.
func Parse(r gjson.Result) Float {
	switch r.Type {
	case gjson.Number:
		return finite(r.Num)
	case gjson.String:
		return ParseString(r.Str)
	default:
		return Float{}
	}
}

// ParseString parses a numeric string with surrounding space trimmed.
func ParseString(s string) Float {
	s = strings.TrimSpace(s)
	if s == "" {
		return Float{}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Float{}
	}
	return finite(v)
}

func finite(v float64) Float {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Float{}
	}
	return Of(v)
}

// Scale multiplies a known value by k. Unknown stays unknown.
func (f Float) Scale(k float64) Float {
	if !f.Valid {
		return Float{}
	}
	return Of(f.Value * k)
}

// Add sums two values; the result is unknown if either side is.
func (f Float) Add(o Float) Float {
	if !f.Valid || !o.Valid {
		return Float{}
	}
	return Of(f.Value + o.Value)
}

// Or returns the value, or def when unknown.
func (f Float) Or(def float64) float64 {
	if !f.Valid {
		return def
	}
	return f.Value
}

// Is reports whether f is known and equal to v.
func (f Float) Is(v float64) bool {
	return f.Valid && f.Value == v
}

func (f Float) String() string {
	if !f.Valid {
		return "unknown"
	}
	return strconv.FormatFloat(f.Value, 'g', -1, 64)
}

func (f Float) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

func (f *Float) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*f = Float{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decoding number: %w", err)
	}
	*f = Of(v)
	return nil
}

func (f Float) MarshalYAML() (any, error) {
	if !f.Valid {
		return nil, nil
	}
	return f.Value, nil
}

func (f *Float) UnmarshalYAML(node *yaml.Node) error {
	if node.Tag == "!!null" {
		*f = Float{}
		return nil
	}
	var v float64
	if err := node.Decode(&v); err != nil {
		return fmt.Errorf("decoding number: %w", err)
	}
	*f = Of(v)
	return nil
}
