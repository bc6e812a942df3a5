package mcpservice

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// arguments is a decoded tool-call argument object. Agents are loose with
// types, so accessors coerce rather than assert.
type arguments map[string]any

func decodeArguments(raw json.RawMessage) (arguments, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return arguments{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: arguments must be an object", ErrInvalidArguments)
	}
	return arguments(m), nil
}

// Int returns key as an integer. Numbers and numeric strings are accepted;
// fractional values are truncated. Anything that does not parse to a finite
// integer is reported as absent.
func (a arguments) Int(key string) (int64, bool) {
	switch v := a[key].(type) {
	case json.Number:
		return parseInteger(v.String())
	case string:
		return parseInteger(v)
	case float64:
		return finiteInteger(v)
	case int:
		return int64(v), true
	case int64:
		return v, true
	}
	return 0, false
}

func parseInteger(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return finiteInteger(f)
}

func finiteInteger(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt64/2 {
		return 0, false
	}
	return int64(f), true
}

// String returns key as a trimmed, non-empty string. Numbers are accepted
// and rendered in their JSON form.
func (a arguments) String(key string) (string, bool) {
	var s string
	switch v := a[key].(type) {
	case string:
		s = v
	case json.Number:
		s = v.String()
	default:
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// Object returns key as a nested argument object.
func (a arguments) Object(key string) (arguments, bool) {
	m, ok := a[key].(map[string]any)
	if !ok {
		return nil, false
	}
	return arguments(m), true
}

func (a arguments) requireInt(key string) (int64, error) {
	n, ok := a.Int(key)
	if !ok {
		return 0, missing(key)
	}
	return n, nil
}

func (a arguments) requireString(key string) (string, error) {
	s, ok := a.String(key)
	if !ok {
		return "", missing(key)
	}
	return s, nil
}

func missing(key string) error {
	return fmt.Errorf("%w: %s is required", ErrInvalidArguments, key)
}
