package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/siherrmann/securerag/helper"
)

// Metadata is free-form document metadata stored as JSONB. It is stored as supplied and
// never passes through redaction.
type Metadata map[string]interface{}

// Value stores a nil map as an empty object, the column is NOT NULL.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(map[string]interface{}(m))
	if err != nil {
		return nil, helper.NewError("marshal metadata", err)
	}
	return b, nil
}

// Scan accepts the []byte or string the driver returns for JSONB.
func (m *Metadata) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return helper.NewError("scan metadata", fmt.Errorf("unsupported type %T", value))
	}

	decoded := Metadata{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return helper.NewError("scan metadata", err)
	}
	*m = decoded
	return nil
}

// String returns the value of key if it is a string.
func (m Metadata) String(key string) (string, bool) {
	s, ok := m[key].(string)
	return s, ok
}
