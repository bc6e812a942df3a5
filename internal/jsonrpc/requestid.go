package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// RequestID represents a JSON-RPC ID that can be either a string or a number.
// The original encoding is retained so that responses echo the id exactly as
// the client sent it (including number formatting).
type RequestID struct {
	raw json.RawMessage
}

// NewRequestID creates a RequestID from a string or integer value. Any other
// type yields nil.
func NewRequestID(value any) *RequestID {
	var raw []byte
	switch v := value.(type) {
	case string:
		raw, _ = json.Marshal(v)
	case int:
		raw = strconv.AppendInt(nil, int64(v), 10)
	case int64:
		raw = strconv.AppendInt(nil, v, 10)
	case float64:
		raw, _ = json.Marshal(v)
	default:
		return nil
	}
	return &RequestID{raw: raw}
}

// String returns a human readable rendering of the id, used for logging.
func (id *RequestID) String() string {
	if id == nil || len(id.raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(id.raw, &s); err == nil {
		return s
	}
	return string(id.raw)
}

// IsNil returns true if the ID is nil/empty.
func (id *RequestID) IsNil() bool {
	return id == nil || len(id.raw) == 0
}

// MarshalJSON implements json.Marshaler.
func (id *RequestID) MarshalJSON() ([]byte, error) {
	if id.IsNil() {
		return []byte("null"), nil
	}
	return id.raw, nil
}

// UnmarshalJSON implements json.Unmarshaler. Only strings and numbers are
// accepted; a JSON null is handled by the decoder before reaching here and
// leaves the pointer nil.
func (id *RequestID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("JSON-RPC ID must be a string or number")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("JSON-RPC ID: %w", err)
		}
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("JSON-RPC ID: %w", err)
		}
	default:
		return fmt.Errorf("JSON-RPC ID must be a string or number, got: %s", string(data))
	}
	id.raw = append(json.RawMessage(nil), data...)
	return nil
}
