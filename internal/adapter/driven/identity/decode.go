package identity

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// looseBool decodes a JSON value that should be a boolean but may arrive as a
// string, a number or garbage. Anything that does not clearly parse as true
// becomes false instead of aborting the decode: an unparseable success flag
// means "request unsuccessful", never a decode failure.
type looseBool bool

func (b *looseBool) UnmarshalJSON(data []byte) error {
	var v bool
	if err := json.Unmarshal(data, &v); err == nil {
		*b = looseBool(v)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if parsed, err := strconv.ParseBool(s); err == nil {
			*b = looseBool(parsed)
			return nil
		}
	}

	*b = false
	return nil
}

// looseInt64 decodes a JSON value that may arrive as a native number or a
// numeric string; the service is known to emit user_id in both shapes.
type looseInt64 int64

func (n *looseInt64) UnmarshalJSON(data []byte) error {
	raw := string(data)
	if raw == "null" {
		*n = 0
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		raw = s
	}

	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// Tolerate fractional renderings like 42.0.
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil {
			return fmt.Errorf("numeric field %q: %w", raw, err)
		}
		parsed = int64(f)
	}

	*n = looseInt64(parsed)
	return nil
}
