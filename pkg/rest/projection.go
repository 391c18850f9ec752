package rest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/edgeflare/magicapi/pkg/dal"
	"github.com/edgeflare/magicapi/pkg/names"
	"github.com/edgeflare/magicapi/pkg/types"
)

// Property maps an API property to the column it is read from.
type Property struct {
	Name       string
	Column     string
	Serializer types.Serializer
	// Field is the schema field name. Empty for `_uid`.
	Field string
}

// Projection is the ordered list of properties a resource renders.
type Projection []Property

// NewProjection builds the projection of m: `_uid` as an integer, then one camelCase property
// per schema field.
func NewProjection(m *dal.Model) (Projection, error) {
	p := Projection{{Name: dal.PrimaryKey, Column: dal.PrimaryKey, Serializer: types.IntegerSerializer}}
	seen := map[string]string{dal.PrimaryKey: dal.PrimaryKey}

	for _, a := range m.Fields() {
		s, err := types.Serialization.Resolve(a.Field.Type, a.Field.Format)
		if err != nil {
			return nil, fmt.Errorf("resource %q field %q: %w", m.Name, a.Field.Name, err)
		}
		name := names.PropertyName(a.Field.Name)
		if other, dup := seen[name]; dup {
			return nil, fmt.Errorf("resource %q: fields %q and %q both map to property %q", m.Name, other, a.Field.Name, name)
		}
		seen[name] = a.Field.Name
		p = append(p, Property{Name: name, Column: a.Name, Serializer: s, Field: a.Field.Name})
	}
	return p, nil
}

// Property returns the property called name.
func (p Projection) Property(name string) (Property, bool) {
	for _, prop := range p {
		if prop.Name == name {
			return prop, true
		}
	}
	return Property{}, false
}

// Names returns the property names in order.
func (p Projection) Names() []string {
	out := make([]string, len(p))
	for i, prop := range p {
		out[i] = prop.Name
	}
	return out
}

// Select narrows the projection. Entries prefixed with "-" are excluded; other known entries
// form an allow-list, and an empty allow-list keeps every property. If nothing is left the full
// projection is returned.
func (p Projection) Select(entries []string) Projection {
	include := make(map[string]bool)
	exclude := make(map[string]bool)
	for _, e := range entries {
		e = strings.TrimSpace(e)
		switch {
		case e == "" || e == "-":
		case strings.HasPrefix(e, "-"):
			exclude[e[1:]] = true
		default:
			if _, ok := p.Property(e); ok {
				include[e] = true
			}
		}
	}

	selected := make(Projection, 0, len(p))
	for _, prop := range p {
		if len(include) > 0 && !include[prop.Name] {
			continue
		}
		if exclude[prop.Name] {
			continue
		}
		selected = append(selected, prop)
	}
	if len(selected) == 0 {
		return p
	}
	return selected
}

// ParseSelect splits a `select` parameter value.
func ParseSelect(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

// Render serializes an instance. Missing columns render as null.
func (p Projection) Render(inst dal.Instance) (Object, error) {
	obj := Object{keys: make([]string, len(p)), values: make([]any, len(p))}
	for i, prop := range p {
		v, err := prop.Serializer.Format(inst[prop.Column])
		if err != nil {
			return Object{}, fmt.Errorf("property %s: %w", prop.Name, err)
		}
		obj.keys[i], obj.values[i] = prop.Name, v
	}
	return obj, nil
}

// Object is a JSON object that keeps the order of its keys.
type Object struct {
	keys   []string
	values []any
}

// Get returns the value of key.
func (o Object) Get(key string) (any, bool) {
	for i, k := range o.keys {
		if k == key {
			return o.values[i], true
		}
	}
	return nil, false
}

// Keys returns the keys in order.
func (o Object) Keys() []string { return o.keys }

func (o Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(o.values[i])
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", k, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
