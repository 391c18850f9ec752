package clickhouse

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/edgeflare/magicapi/pkg/dal"
	"github.com/edgeflare/magicapi/pkg/dal/query"
)

// Dialect renders SELECT statements for ClickHouse.
type Dialect struct{}

func (Dialect) Quote(ident string) string { return quote(ident) }
func (Dialect) Placeholder(int) string    { return "?" }

// LimitAll is the largest UInt64, ClickHouse has no LIMIT ALL.
func (Dialect) LimitAll() string { return "18446744073709551615" }

func quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

// newQuerySet scans rows into values of the driver's scan types, which the native protocol
// requires.
func newQuerySet(b *Backend, m *dal.Model) query.Set {
	return query.NewSet(m, Dialect{}, func(ctx context.Context, stmt string, args []any) ([]dal.Instance, error) {
		rows, err := b.conn.Query(ctx, stmt, args...)
		if err != nil {
			return nil, fmt.Errorf("query %s failed: %w", m.Table, err)
		}
		defer rows.Close()

		columnTypes := rows.ColumnTypes()
		var instances []dal.Instance
		for rows.Next() {
			dest := make([]any, len(columnTypes))
			for i, ct := range columnTypes {
				dest[i] = reflect.New(ct.ScanType()).Interface()
			}
			if err := rows.Scan(dest...); err != nil {
				return nil, fmt.Errorf("failed to scan %s row: %w", m.Table, err)
			}

			inst := make(dal.Instance, len(columnTypes))
			for i, ct := range columnTypes {
				inst[ct.Name()] = deref(dest[i])
			}
			instances = append(instances, inst)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read %s rows: %w", m.Table, err)
		}
		return instances, nil
	})
}

// deref unwraps scan destinations, mapping NULLs of nullable columns to nil.
func deref(v any) any {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	return rv.Interface()
}
