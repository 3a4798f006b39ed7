package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSON is a free-form object stored in a json/jsonb column: audit
// snapshots and event payloads.
type JSON map[string]interface{}

// NewJSON copies m so later writes to m do not leak into a stored snapshot.
func NewJSON(m map[string]interface{}) JSON {
	if m == nil {
		return nil
	}
	out := make(JSON, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(map[string]interface{}(j))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (j *JSON) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*j = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan JSON: unsupported column type %T", value)
	}
	m := map[string]interface{}{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("scan JSON: %w", err)
	}
	*j = m
	return nil
}
