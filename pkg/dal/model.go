// Package dal synthesizes persistence models from a data package and exposes a uniform,
// backend-agnostic query contract over them.
//
// A Backend turns each resource of a package into a bound Model and supplies the QuerySet
// implementation used to read it. Backends are selected by name through a Registry.
package dal

import (
	"github.com/edgeflare/magicapi/pkg/datapackage"
	"github.com/edgeflare/magicapi/pkg/types"
)

// PrimaryKey is the surrogate key column every model carries.
const PrimaryKey = "_uid"

// Well-known model attributes.
const (
	AttrPrefix = "prefix"
	AttrTable  = "table"
)

// Attribute is one stored column of a model.
type Attribute struct {
	// Name is the storage identifier of the column.
	Name string
	// Field is the schema field the column comes from. Zero for the primary key.
	Field         datapackage.Field
	Type          types.StorageType
	PrimaryKey    bool
	AutoIncrement bool
}

// Model is the entity synthesized for one resource of a package.
type Model struct {
	// Name is the resource name as declared in the package.
	Name string
	// TypeName is the PascalCase entity name.
	TypeName string
	Prefix   string
	// Table is the storage location, set by the backend when the model is bound.
	Table      string
	Attributes []Attribute
	Attrs      map[string]any

	Package  *datapackage.Package
	Resource *datapackage.Resource
	Backend  Backend

	queryset QuerySet
}

// Query returns the QuerySet bound to the model.
func (m *Model) Query() QuerySet {
	return m.queryset
}

// Attribute returns the column with the given storage identifier.
func (m *Model) Attribute(name string) (Attribute, bool) {
	for _, a := range m.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// Fields returns the attributes that come from the schema, without the primary key.
func (m *Model) Fields() []Attribute {
	fields := make([]Attribute, 0, len(m.Attributes))
	for _, a := range m.Attributes {
		if !a.PrimaryKey {
			fields = append(fields, a)
		}
	}
	return fields
}

// AttrString returns a string attribute, or "" when unset.
func (m *Model) AttrString(key string) string {
	s, _ := m.Attrs[key].(string)
	return s
}

// Instance is one stored record keyed by column names.
type Instance map[string]any
