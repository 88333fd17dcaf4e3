package storage

import "encoding/json"

// ParseFields splits a persisted JSON object into raw fields so each one
// can be validated independently. A single corrupt field must not discard
// valid sibling fields; a fully unparseable blob returns ok=false and is
// treated as "nothing stored".
func ParseFields(raw string) (map[string]json.RawMessage, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, false
	}
	return fields, true
}

// DecodeField decodes fields[key] into T, falling back to def when the
// field is missing or malformed.
func DecodeField[T any](fields map[string]json.RawMessage, key string, def T) T {
	raw, ok := fields[key]
	if !ok {
		return def
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return def
	}
	return v
}
