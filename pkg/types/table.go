// Package types maps the abstract field types of a data package schema to the concrete types
// used for storage and for API serialization.
//
// Both tables are keyed by the same (type, format) taxonomy:
//
//	type      | formats                   | storage  | serialization
//	----------|---------------------------|----------|--------------
//	string    | default, email, uri, uuid | String   | String
//	string    | binary                    | -        | -
//	number    | default                   | Number   | Float
//	integer   | default                   | Integer  | Integer
//	boolean   | default                   | Boolean  | Boolean
//	null      | default                   | Null     | Null
//	datetime  | default, any              | DateTime | DateTime
//	date      | default, any              | Date     | Date
//	time      | default, any              | Time     | Time
//	object, array, geopoint, geojson, any | -        | -
//
// A "-" entry is unmapped: resolving it returns an error wrapping ErrUnmappedType.
package types

import (
	"errors"
	"fmt"
	"sort"
)

// Abstract field type tags.
const (
	TypeString   = "string"
	TypeNumber   = "number"
	TypeInteger  = "integer"
	TypeBoolean  = "boolean"
	TypeNull     = "null"
	TypeObject   = "object"
	TypeArray    = "array"
	TypeDateTime = "datetime"
	TypeDate     = "date"
	TypeTime     = "time"
	TypeGeoPoint = "geopoint"
	TypeGeoJSON  = "geojson"
	TypeAny      = "any"
)

// DefaultFormat is used when a field declares no format or an unknown one.
const DefaultFormat = "default"

var ErrUnmappedType = errors.New("unmapped field type")

// UnmappedTypeError reports a (type, format) pair a table cannot resolve.
type UnmappedTypeError struct {
	Table  string
	Type   string
	Format string
}

func (e *UnmappedTypeError) Error() string {
	return fmt.Sprintf("%s: no %s type for %q (format %q)", ErrUnmappedType, e.Table, e.Type, e.Format)
}

func (e *UnmappedTypeError) Is(target error) bool {
	return target == ErrUnmappedType
}

// Pair is a (type, format) key of a Table.
type Pair struct {
	Type   string
	Format string
}

// Table resolves abstract field types to concrete values of T. The zero value of T marks an
// unimplemented entry.
type Table[T comparable] struct {
	name    string
	entries map[string]map[string]T
}

// NewTable builds a table from type -> format -> T entries. Every type should carry a
// DefaultFormat entry; a zero value marks it unmapped.
func NewTable[T comparable](name string, entries map[string]map[string]T) *Table[T] {
	return &Table[T]{name: name, entries: entries}
}

// Resolve looks up typ, then format, falling back to DefaultFormat when the format is absent.
// An empty type means string and an empty format means DefaultFormat.
func (t *Table[T]) Resolve(typ, format string) (T, error) {
	var zero T
	if typ == "" {
		typ = TypeString
	}
	if format == "" {
		format = DefaultFormat
	}

	formats, ok := t.entries[typ]
	if !ok {
		return zero, &UnmappedTypeError{Table: t.name, Type: typ, Format: format}
	}

	v, ok := formats[format]
	if !ok {
		v = formats[DefaultFormat]
	}
	if v == zero {
		return zero, &UnmappedTypeError{Table: t.name, Type: typ, Format: format}
	}
	return v, nil
}

// Pairs returns the supported (type, format) pairs, sorted.
func (t *Table[T]) Pairs() []Pair {
	var zero T
	var pairs []Pair
	for typ, formats := range t.entries {
		for format, v := range formats {
			if v != zero {
				pairs = append(pairs, Pair{Type: typ, Format: format})
			}
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Type != pairs[j].Type {
			return pairs[i].Type < pairs[j].Type
		}
		return pairs[i].Format < pairs[j].Format
	})
	return pairs
}

func unmapped[T comparable]() map[string]T {
	var zero T
	return map[string]T{DefaultFormat: zero}
}

// Storage maps field types to storage types.
var Storage = NewTable("storage", map[string]map[string]StorageType{
	TypeString: {
		DefaultFormat: String,
		"email":       String,
		"uri":         String,
		"uuid":        String,
		"binary":      Unmapped,
	},
	TypeNumber:   {DefaultFormat: Number},
	TypeInteger:  {DefaultFormat: Integer},
	TypeBoolean:  {DefaultFormat: Boolean},
	TypeNull:     {DefaultFormat: Null},
	TypeDateTime: {DefaultFormat: DateTime, "any": DateTime},
	TypeDate:     {DefaultFormat: Date, "any": Date},
	TypeTime:     {DefaultFormat: Time, "any": Time},
	TypeObject:   unmapped[StorageType](),
	TypeArray:    unmapped[StorageType](),
	TypeGeoPoint: unmapped[StorageType](),
	TypeGeoJSON:  unmapped[StorageType](),
	TypeAny:      unmapped[StorageType](),
})

// Serialization maps field types to API serializers.
var Serialization = NewTable("serialization", map[string]map[string]Serializer{
	TypeString: {
		DefaultFormat: StringSerializer,
		"email":       StringSerializer,
		"uri":         StringSerializer,
		"uuid":        StringSerializer,
		"binary":      nil,
	},
	TypeNumber:   {DefaultFormat: FloatSerializer},
	TypeInteger:  {DefaultFormat: IntegerSerializer},
	TypeBoolean:  {DefaultFormat: BooleanSerializer},
	TypeNull:     {DefaultFormat: NullSerializer},
	TypeDateTime: {DefaultFormat: DateTimeSerializer, "any": DateTimeSerializer},
	TypeDate:     {DefaultFormat: DateSerializer, "any": DateSerializer},
	TypeTime:     {DefaultFormat: TimeSerializer, "any": TimeSerializer},
	TypeObject:   unmapped[Serializer](),
	TypeArray:    unmapped[Serializer](),
	TypeGeoPoint: unmapped[Serializer](),
	TypeGeoJSON:  unmapped[Serializer](),
	TypeAny:      unmapped[Serializer](),
})
