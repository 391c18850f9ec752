package query

import (
	"context"
	"fmt"

	"github.com/edgeflare/magicapi/pkg/dal"
)

// RunFunc executes a built statement and returns one instance per row.
type RunFunc func(ctx context.Context, stmt string, args []any) ([]dal.Instance, error)

// Set is a dal.QuerySet over a Select, shared by the SQL-speaking backends. Backends only
// provide the dialect and the function that runs statements. Like Select it is a value: every
// builder call returns a copy.
type Set struct {
	model   *dal.Model
	dialect Dialect
	run     RunFunc
	columns []string
	sel     Select
	err     error
}

// NewSet selects every attribute of m, ordered by primary key. A model without a table yields a
// Set whose Err matches dal.ErrNoTable.
func NewSet(m *dal.Model, d Dialect, run RunFunc) Set {
	qs := Set{
		model:   m,
		dialect: d,
		run:     run,
		columns: Columns(m),
	}
	if m.Table == "" {
		qs.err = fmt.Errorf("%w: %s", dal.ErrNoTable, m.TypeName)
		return qs
	}
	qs.sel = From(m.Table, qs.columns...).OrderBy(dal.PrimaryKey)
	return qs
}

// Columns returns the attribute names of m in model order.
func Columns(m *dal.Model) []string {
	columns := make([]string, len(m.Attributes))
	for i, a := range m.Attributes {
		columns[i] = a.Name
	}
	return columns
}

// Get looks an instance up by primary key. Filters and pagination of the receiver do not apply.
func (q Set) Get(ctx context.Context, key any) (dal.Instance, error) {
	if q.err != nil {
		return nil, q.err
	}
	pk, err := coerce(q.model, dal.PrimaryKey, key)
	if err != nil || pk == nil {
		return nil, &dal.NotFoundError{Kind: "instance", Name: q.model.TypeName, Key: key}
	}

	rows, err := q.exec(ctx, From(q.model.Table, q.columns...).Where(dal.PrimaryKey, pk).Limit(1))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &dal.NotFoundError{Kind: "instance", Name: q.model.TypeName, Key: key}
	}
	return rows[0], nil
}

func (q Set) Filter(eq map[string]any) dal.QuerySet {
	if q.err != nil {
		return q
	}
	for _, name := range dal.SortedKeys(eq) {
		v, err := coerce(q.model, name, eq[name])
		if err != nil {
			q.err = err
			return q
		}
		q.sel = q.sel.Where(name, v)
	}
	return q
}

func (q Set) In(in map[string][]any) dal.QuerySet {
	if q.err != nil {
		return q
	}
	for _, name := range dal.SortedKeys(in) {
		if err := dal.CheckAttribute(q.model, name); err != nil {
			q.err = err
			return q
		}
		values := make([]any, 0, len(in[name]))
		for _, raw := range in[name] {
			v, err := coerce(q.model, name, raw)
			if err != nil {
				q.err = err
				return q
			}
			values = append(values, v)
		}
		q.sel = q.sel.WhereIn(name, values)
	}
	return q
}

func (q Set) Limit(n int) dal.QuerySet {
	if q.err == nil && n < 0 {
		q.err = fmt.Errorf("negative limit %d", n)
	}
	q.sel = q.sel.Limit(n)
	return q
}

func (q Set) Offset(n int) dal.QuerySet {
	if q.err == nil && n < 0 {
		q.err = fmt.Errorf("negative offset %d", n)
	}
	q.sel = q.sel.Offset(n)
	return q
}

func (q Set) All(ctx context.Context) ([]dal.Instance, error) {
	if q.err != nil {
		return nil, q.err
	}
	return q.exec(ctx, q.sel)
}

func (q Set) Err() error { return q.err }

// String returns the SQL the query would run.
func (q Set) String() string {
	stmt, _ := q.sel.Build(q.dialect)
	return stmt
}

func (q Set) exec(ctx context.Context, sel Select) ([]dal.Instance, error) {
	stmt, args := sel.Build(q.dialect)
	return q.run(ctx, stmt, args)
}

// coerce converts a filter value to the column's storage type.
func coerce(m *dal.Model, name string, v any) (any, error) {
	a, ok := m.Attribute(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q on model %s", dal.ErrUnknownAttribute, name, m.TypeName)
	}
	return a.Type.Coerce(v)
}
