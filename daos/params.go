package daos

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
	"unicode/utf8"
)

// BindValue converts one JSON-shaped external value into a value the driver
// can bind to a `?` placeholder. Parameters must be scalar: null, boolean,
// number, string, or raw bytes. Objects and arrays are rejected, not coerced.
// Integral numbers bind as INTEGER, everything else numeric as REAL.
func BindValue(position int, v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case bool:
		return val, nil
	case string:
		return val, nil
	case []byte:
		return val, nil
	case int:
		return int64(val), nil
	case int64:
		return val, nil
	case float64:
		if isIntegral(val) {
			return int64(val), nil
		}
		return val, nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, UnsupportedParameterErr(position, v)
		}
		return f, nil
	default:
		return nil, UnsupportedParameterErr(position, v)
	}
}

// BindAll converts a positional parameter list via BindValue.
func BindAll(params []any) ([]any, error) {
	if len(params) == 0 {
		return nil, nil
	}
	bound := make([]any, len(params))
	for i, p := range params {
		v, err := BindValue(i, p)
		if err != nil {
			return nil, err
		}
		bound[i] = v
	}
	return bound, nil
}

// isIntegral reports whether f can bind as an int64 without overflow.
// float64(math.MaxInt64) rounds up to 2^63, one past the largest int64, so
// the upper bound must be strict; 2^63 and above bind as REAL instead.
func isIntegral(f float64) bool {
	return f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64
}

// ResultValue converts one scanned column value into its external JSON
// shape. Blobs leave the system as lowercase hexadecimal text, two digits
// per byte, no prefix. This is a one-way, display-oriented encoding: binary
// goes in as raw bytes but never comes back out as raw bytes.
//
// decltype is the column's declared type; the sqlite3 driver hands both TEXT
// and BLOB columns over as []byte, so the declared type decides which rule
// applies. Byte values from undeclared (expression) columns are treated as
// text when they are valid UTF-8 and hex otherwise.
func ResultValue(decltype string, v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case int64, float64, bool, string:
		return val
	case time.Time:
		return val.Format(time.RFC3339)
	case []byte:
		if decltype == ColTypeBlob {
			return hex.EncodeToString(val)
		}
		if utf8.Valid(val) {
			return string(val)
		}
		return hex.EncodeToString(val)
	default:
		return val
	}
}

// csvCell renders one scanned column value as a CSV field using the same
// outbound rules as ResultValue, flattened to strings. NULL renders as the
// empty string.
func csvCell(decltype string, v any) string {
	switch val := ResultValue(decltype, v).(type) {
	case nil:
		return ""
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		if val {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprintf("%v", val)
	}
}
