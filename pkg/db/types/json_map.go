package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap stores an arbitrary JSON object in a jsonb (Postgres) or text (SQLite) column.
type JSONMap map[string]any

func (m *JSONMap) Scan(src any) error {
	if src == nil {
		*m = JSONMap{}
		return nil
	}

	var raw []byte
	switch v := src.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("JSONMap: unsupported Scan type %T", src)
	}
	if len(raw) == 0 {
		*m = JSONMap{}
		return nil
	}

	out := JSONMap{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("JSONMap: decode: %w", err)
	}
	*m = out
	return nil
}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(map[string]any(m))
	if err != nil {
		return nil, fmt.Errorf("JSONMap: encode: %w", err)
	}
	return string(raw), nil
}

// String returns the value at key when it is a string.
func (m JSONMap) String(key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// Merge returns a copy of m overlaid with patch. Nil values in patch delete keys.
func (m JSONMap) Merge(patch map[string]any) JSONMap {
	out := make(JSONMap, len(m)+len(patch))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}
