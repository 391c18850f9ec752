package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Layouts used when formatting temporal values.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

var (
	dateTimeLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05",
		// time.Time.String, which sqlite drivers write for time values
		"2006-01-02 15:04:05.999999999 -0700 MST",
	}
	dateLayouts = append([]string{DateLayout}, dateTimeLayouts...)
	timeLayouts = []string{TimeLayout, "15:04:05.999999999", "15:04", "15:04:05Z07:00"}

	trueValues  = map[string]bool{"true": true, "t": true, "yes": true, "y": true, "1": true}
	falseValues = map[string]bool{"false": true, "f": true, "no": true, "n": true, "0": true}

	errNotNumeric = errors.New("not a number")
)

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []byte:
		return len(x) == 0
	}
	return false
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	default:
		return fmt.Sprint(x)
	}
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int8:
		return float64(x), nil
	case int16:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint:
		return float64(x), nil
	case uint8:
		return float64(x), nil
	case uint16:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(x)), 64)
	case fmt.Stringer:
		return strconv.ParseFloat(strings.TrimSpace(x.String()), 64)
	}
	return 0, fmt.Errorf("%w: %T", errNotNumeric, v)
}

func toInt(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint:
		if uint64(x) > math.MaxInt64 {
			return 0, strconv.ErrRange
		}
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, strconv.ErrRange
		}
		return int64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64); err == nil {
			return n, nil
		}
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, nil
		}
	}

	// "2020.0" and floats without a fractional part are accepted
	f, err := toFloat(v)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("%v is not an integer", v)
	}
	return int64(f), nil
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string, []byte:
		s := strings.ToLower(strings.TrimSpace(toString(x)))
		if trueValues[s] {
			return true, nil
		}
		if falseValues[s] {
			return false, nil
		}
		return false, fmt.Errorf("%q is not a boolean", s)
	}

	n, err := toInt(v)
	if err != nil {
		return false, err
	}
	switch n {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, fmt.Errorf("%d is not a boolean", n)
}

func toTime(v any, layouts []string) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case string, []byte:
		s := strings.TrimSpace(toString(x))
		for _, layout := range layouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("cannot parse %q", s)
	}
	return time.Time{}, fmt.Errorf("unsupported temporal value %T", v)
}
