package types

import "time"

// Serializer renders a stored value as its API representation.
type Serializer interface {
	Name() string
	Format(v any) (any, error)
}

type funcSerializer struct {
	name   string
	format func(any) (any, error)
}

func (s *funcSerializer) Name() string { return s.name }

// Format returns nil for nil input so missing values serialize as JSON null.
func (s *funcSerializer) Format(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return s.format(v)
}

var (
	StringSerializer Serializer = &funcSerializer{name: "String", format: func(v any) (any, error) {
		return toString(v), nil
	}}

	IntegerSerializer Serializer = &funcSerializer{name: "Integer", format: func(v any) (any, error) {
		return toInt(v)
	}}

	FloatSerializer Serializer = &funcSerializer{name: "Float", format: func(v any) (any, error) {
		return toFloat(v)
	}}

	BooleanSerializer Serializer = &funcSerializer{name: "Boolean", format: func(v any) (any, error) {
		return toBool(v)
	}}

	NullSerializer Serializer = &funcSerializer{name: "Null", format: func(any) (any, error) {
		return nil, nil
	}}

	DateTimeSerializer Serializer = &funcSerializer{name: "DateTime", format: temporal(dateTimeLayouts, time.RFC3339, true)}
	DateSerializer     Serializer = &funcSerializer{name: "Date", format: temporal(dateLayouts, DateLayout, false)}
	TimeSerializer     Serializer = &funcSerializer{name: "Time", format: temporal(timeLayouts, TimeLayout, false)}
)

// temporal parses strings with the given layouts and formats the result with out, in UTC when
// utc is set. Strings that do not parse are returned unchanged.
func temporal(layouts []string, out string, utc bool) func(any) (any, error) {
	return func(v any) (any, error) {
		t, err := toTime(v, layouts)
		if err != nil {
			if s, ok := v.(string); ok {
				return s, nil
			}
			return nil, err
		}
		if utc {
			t = t.UTC()
		}
		return t.Format(out), nil
	}
}
