package dal

import (
	"context"
	"fmt"
	"sort"
)

// QuerySet is an immutable query over one model. Filter, In, Limit and Offset return a new
// QuerySet and never modify the receiver; only Get and All touch the store.
type QuerySet interface {
	// Get returns the instance with the given primary key, or an error matching ErrNotFound.
	Get(ctx context.Context, key any) (Instance, error)
	// Filter keeps instances whose attributes equal every given value.
	Filter(eq map[string]any) QuerySet
	// In keeps instances whose attribute is one of the given values, for every attribute.
	// Attributes with no values are ignored.
	In(in map[string][]any) QuerySet
	Limit(n int) QuerySet
	Offset(n int) QuerySet
	All(ctx context.Context) ([]Instance, error)
	// Err returns the first error recorded while building the query.
	Err() error
}

// SortedKeys returns the keys of m in a stable order so generated queries are deterministic.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CheckAttribute returns an ErrUnknownAttribute error if m has no column name.
func CheckAttribute(m *Model, name string) error {
	if _, ok := m.Attribute(name); !ok {
		return fmt.Errorf("%w: %q on model %s", ErrUnknownAttribute, name, m.TypeName)
	}
	return nil
}

// unsupportedQuerySet fails every operation with a NotImplementedError.
type unsupportedQuerySet struct {
	err error
}

// NotImplementedQuerySet returns a QuerySet for backends whose query capability is not
// available: Err reports it right away and Get and All return it.
func NotImplementedQuerySet(backend string) QuerySet {
	return unsupportedQuerySet{err: &NotImplementedError{Backend: backend, Operation: "query"}}
}

func (q unsupportedQuerySet) Get(context.Context, any) (Instance, error) { return nil, q.err }
func (q unsupportedQuerySet) Filter(map[string]any) QuerySet             { return q }
func (q unsupportedQuerySet) In(map[string][]any) QuerySet               { return q }
func (q unsupportedQuerySet) Limit(int) QuerySet                         { return q }
func (q unsupportedQuerySet) Offset(int) QuerySet                        { return q }
func (q unsupportedQuerySet) All(context.Context) ([]Instance, error)    { return nil, q.err }
func (q unsupportedQuerySet) Err() error                                 { return q.err }
