package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// FlexibleID is an identifier the CRM sends either as a JSON string or as a
// JSON number. It always marshals back as a string.
type FlexibleID string

// UnmarshalJSON implements json.Unmarshaler for string and numeric ids.
func (id *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = FlexibleID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or a number: %w", err)
	}
	if i, err := n.Int64(); err == nil {
		*id = FlexibleID(strconv.FormatInt(i, 10))
		return nil
	}
	*id = FlexibleID(n.String())
	return nil
}

// String returns the id as text.
func (id FlexibleID) String() string {
	return string(id)
}
