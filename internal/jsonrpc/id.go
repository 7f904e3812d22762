package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ID is a correlation id. Ids issued by this engine are integers; ids
// received from a peer may also be strings and are echoed back unchanged.
// The zero value is not a valid id.
type ID struct {
	num   int64
	str   string
	isStr bool
	valid bool
}

// Int64ID returns a numeric id.
func Int64ID(n int64) ID {
	return ID{num: n, valid: true}
}

// StringID returns a string id.
func StringID(s string) ID {
	return ID{str: s, isStr: true, valid: true}
}

// IsValid reports whether the id was set.
func (id ID) IsValid() bool {
	return id.valid
}

// Int64 returns the numeric value and whether the id is numeric.
func (id ID) Int64() (int64, bool) {
	return id.num, id.valid && !id.isStr
}

// Key returns a map key that keeps numeric and string ids distinct.
func (id ID) Key() string {
	if !id.valid {
		return ""
	}

	if id.isStr {
		return strconv.Quote(id.str)
	}

	return strconv.FormatInt(id.num, 10)
}

// String returns the id as it reads in logs.
func (id ID) String() string {
	if id.isStr {
		return id.str
	}

	return id.Key()
}

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	switch {
	case !id.valid:
		return []byte("null"), nil
	case id.isStr:
		return json.Marshal(id.str)
	default:
		return []byte(strconv.FormatInt(id.num, 10)), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler. JSON null leaves the id unset.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	if bytes.Equal(data, []byte("null")) {
		*id = ID{}

		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode string id: %w", err)
		}

		*id = StringID(s)

		return nil
	}

	if n, err := strconv.ParseInt(string(data), 10, 64); err == nil {
		*id = Int64ID(n)

		return nil
	}

	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil || f != math.Trunc(f) || f >= 1<<63 || f < -1<<63 {
		return fmt.Errorf("id must be an integer or a string, got %s", data)
	}

	*id = Int64ID(int64(f))

	return nil
}
