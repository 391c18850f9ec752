// Package datapackage loads tabular data package descriptors (datapackage.json or
// datapackage.yaml) and reads the rows of their resources.
//
// A descriptor can be a local file, a directory holding one, or an http(s) URL. Resource paths
// are resolved against the descriptor's location:
//
//	{
//	  "name": "econ",
//	  "resources": [{
//	    "name": "cpi",
//	    "path": "data/cpi.csv",
//	    "schema": {"fields": [
//	      {"name": "country_code", "type": "string"},
//	      {"name": "year", "type": "integer"},
//	      {"name": "cpi", "type": "number"}
//	    ]}
//	  }]
//	}
package datapackage

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidDescriptor = errors.New("invalid data package descriptor")
	ErrUnknownResource   = errors.New("unknown resource")
)

// Package is a loaded, validated data package descriptor.
type Package struct {
	Name        string      `json:"name" yaml:"name"`
	Title       string      `json:"title,omitempty" yaml:"title,omitempty"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Resources   []*Resource `json:"resources" yaml:"resources"`

	// base is the directory or URL that relative resource paths are resolved against
	base    string
	fetcher fetcher
}

// Resource describes one table of the package.
type Resource struct {
	Name     string `json:"name" yaml:"name"`
	Title    string `json:"title,omitempty" yaml:"title,omitempty"`
	Path     Paths  `json:"path,omitempty" yaml:"path,omitempty"`
	Data     []any  `json:"data,omitempty" yaml:"data,omitempty"`
	Format   string `json:"format,omitempty" yaml:"format,omitempty"`
	Encoding string `json:"encoding,omitempty" yaml:"encoding,omitempty"`
	Schema   Schema `json:"schema" yaml:"schema"`
}

// Schema is the table schema of a resource.
type Schema struct {
	Fields        []Field  `json:"fields" yaml:"fields"`
	MissingValues []string `json:"missingValues,omitempty" yaml:"missingValues,omitempty"`
	PrimaryKey    any      `json:"primaryKey,omitempty" yaml:"primaryKey,omitempty"`
}

// Field is a named, typed column. An empty Type means "string" and an empty Format "default".
type Field struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type,omitempty" yaml:"type,omitempty"`
	Format      string `json:"format,omitempty" yaml:"format,omitempty"`
	Title       string `json:"title,omitempty" yaml:"title,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Row is one record of a resource keyed by the original field names.
type Row map[string]any

// Resource returns the resource with the given name.
func (p *Package) Resource(name string) (*Resource, error) {
	for _, r := range p.Resources {
		if r.Name == name {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %q in package %q", ErrUnknownResource, name, p.Name)
}

// Base returns the location relative resource paths are resolved against.
func (p *Package) Base() string {
	return p.base
}

// Field returns the field with the given name.
func (r *Resource) Field(name string) (Field, bool) {
	for _, f := range r.Schema.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Validate checks that the package and resource names are set and unique.
func (p *Package) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: package name is required", ErrInvalidDescriptor)
	}

	seen := make(map[string]bool, len(p.Resources))
	for i, r := range p.Resources {
		if r == nil || r.Name == "" {
			return fmt.Errorf("%w: resource %d has no name", ErrInvalidDescriptor, i)
		}
		if seen[r.Name] {
			return fmt.Errorf("%w: duplicate resource %q", ErrInvalidDescriptor, r.Name)
		}
		seen[r.Name] = true

		fields := make(map[string]bool, len(r.Schema.Fields))
		for j, f := range r.Schema.Fields {
			if f.Name == "" {
				return fmt.Errorf("%w: field %d of resource %q has no name", ErrInvalidDescriptor, j, r.Name)
			}
			if fields[f.Name] {
				return fmt.Errorf("%w: duplicate field %q in resource %q", ErrInvalidDescriptor, f.Name, r.Name)
			}
			fields[f.Name] = true
		}
	}
	return nil
}
