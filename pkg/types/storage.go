package types

import (
	"fmt"
	"time"
)

// StorageType is the concrete column type a field is persisted as. Each backend renders it to
// its own DDL.
type StorageType int

const (
	Unmapped StorageType = iota
	String
	Number
	Integer
	Boolean
	Null
	DateTime
	Date
	Time
)

func (s StorageType) String() string {
	switch s {
	case String:
		return "String"
	case Number:
		return "Number"
	case Integer:
		return "Integer"
	case Boolean:
		return "Boolean"
	case Null:
		return "Null"
	case DateTime:
		return "DateTime"
	case Date:
		return "Date"
	case Time:
		return "Time"
	default:
		return "Unmapped"
	}
}

// Coerce converts a source value (a CSV cell, a decoded JSON/YAML value, a URL parameter) into
// the canonical Go value for s: string, int64, float64, bool, time.Time or a "15:04:05" string
// for Time. DateTime values are normalized to UTC. Nil and empty strings become nil.
func (s StorageType) Coerce(v any) (any, error) {
	if isEmpty(v) {
		return nil, nil
	}

	var (
		out any
		err error
	)
	switch s {
	case String:
		out = toString(v)
	case Number:
		out, err = toFloat(v)
	case Integer:
		out, err = toInt(v)
	case Boolean:
		out, err = toBool(v)
	case Null:
		return nil, nil
	case DateTime:
		var t time.Time
		t, err = toTime(v, dateTimeLayouts)
		if err == nil {
			out = t.UTC()
		}
	case Date:
		out, err = toTime(v, dateLayouts)
	case Time:
		var t time.Time
		t, err = toTime(v, timeLayouts)
		if err == nil {
			out = t.Format(TimeLayout)
		}
	default:
		return nil, fmt.Errorf("%w: storage type %s", ErrUnmappedType, s)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %v: %w", s, v, err)
	}
	return out, nil
}
