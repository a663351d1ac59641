package types

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Bytes64 is a 64-bit unsigned byte count. It marshals to a JSON string so
// counters above 2^53 survive JavaScript consumers, and unmarshals from
// either a string or a plain number.
type Bytes64 uint64

// MarshalJSON encodes the count as a decimal string
func (b Bytes64) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatUint(uint64(b), 10))
}

// UnmarshalJSON accepts both "123" and 123
func (b *Bytes64) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty byte count")
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid byte count %q: %w", s, err)
		}
		*b = Bytes64(v)
		return nil
	}
	var v uint64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid byte count: %w", err)
	}
	*b = Bytes64(v)
	return nil
}
