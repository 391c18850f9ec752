// Package query builds SELECT statements for the SQL-speaking backends. A Select is a value:
// every method returns a modified copy and leaves the receiver untouched.
package query

import (
	"fmt"
	"slices"
	"strings"
)

// Dialect renders identifiers, placeholders and the "no limit" clause of one SQL flavor.
type Dialect interface {
	// Quote returns ident quoted as an identifier.
	Quote(ident string) string
	// Placeholder returns the bind parameter for the n-th argument, starting at 1.
	Placeholder(n int) string
	// LimitAll returns the LIMIT value meaning "no limit", used when only an offset is set.
	LimitAll() string
}

type predicate struct {
	column string
	values []any
	in     bool
}

// Select is an immutable SELECT statement over one table.
type Select struct {
	table   string
	columns []string
	where   []predicate
	orderBy []string
	limit   int // negative means no limit
	offset  int
}

// From starts a SELECT of columns from table. No columns means "*".
func From(table string, columns ...string) Select {
	return Select{
		table:   table,
		columns: slices.Clone(columns),
		limit:   -1,
	}
}

// Where adds an equality predicate. A nil value matches NULL.
func (s Select) Where(column string, value any) Select {
	s.where = append(slices.Clip(s.where), predicate{column: column, values: []any{value}})
	return s
}

// WhereIn adds a membership predicate. An empty value list adds nothing.
func (s Select) WhereIn(column string, values []any) Select {
	if len(values) == 0 {
		return s
	}
	s.where = append(slices.Clip(s.where), predicate{column: column, values: slices.Clone(values), in: true})
	return s
}

// OrderBy appends ascending sort columns.
func (s Select) OrderBy(columns ...string) Select {
	s.orderBy = append(slices.Clip(s.orderBy), columns...)
	return s
}

// Limit replaces the row limit. A negative n removes it.
func (s Select) Limit(n int) Select {
	s.limit = n
	return s
}

// Offset replaces the number of rows skipped.
func (s Select) Offset(n int) Select {
	s.offset = n
	return s
}

// Table returns the table the statement reads from.
func (s Select) Table() string { return s.table }

// Build renders the statement and its arguments for d.
func (s Select) Build(d Dialect) (string, []any) {
	var (
		b    strings.Builder
		args []any
	)

	b.WriteString("SELECT ")
	if len(s.columns) == 0 {
		b.WriteString("*")
	} else {
		quoted := make([]string, len(s.columns))
		for i, c := range s.columns {
			quoted[i] = d.Quote(c)
		}
		b.WriteString(strings.Join(quoted, ", "))
	}
	b.WriteString(" FROM ")
	b.WriteString(d.Quote(s.table))

	if len(s.where) > 0 {
		conditions := make([]string, 0, len(s.where))
		for _, p := range s.where {
			column := d.Quote(p.column)
			switch {
			case !p.in && p.values[0] == nil:
				conditions = append(conditions, column+" IS NULL")
			case !p.in:
				args = append(args, p.values[0])
				conditions = append(conditions, fmt.Sprintf("%s = %s", column, d.Placeholder(len(args))))
			default:
				placeholders := make([]string, len(p.values))
				for i, v := range p.values {
					args = append(args, v)
					placeholders[i] = d.Placeholder(len(args))
				}
				conditions = append(conditions, fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", ")))
			}
		}
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conditions, " AND "))
	}

	if len(s.orderBy) > 0 {
		quoted := make([]string, len(s.orderBy))
		for i, c := range s.orderBy {
			quoted[i] = d.Quote(c)
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(quoted, ", "))
	}

	switch {
	case s.limit >= 0:
		args = append(args, s.limit)
		fmt.Fprintf(&b, " LIMIT %s", d.Placeholder(len(args)))
	case s.offset > 0:
		fmt.Fprintf(&b, " LIMIT %s", d.LimitAll())
	}
	if s.offset > 0 {
		args = append(args, s.offset)
		fmt.Fprintf(&b, " OFFSET %s", d.Placeholder(len(args)))
	}

	return b.String(), args
}
