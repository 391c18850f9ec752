package relational

import (
	"context"
	"fmt"

	"github.com/edgeflare/magicapi/pkg/dal"
	"github.com/edgeflare/magicapi/pkg/dal/query"
)

func newQuerySet(b *Backend, m *dal.Model) query.Set {
	columns := query.Columns(m)

	return query.NewSet(m, b.dialect, func(ctx context.Context, stmt string, args []any) ([]dal.Instance, error) {
		rows, err := b.db.QueryContext(ctx, stmt, args...)
		if err != nil {
			return nil, fmt.Errorf("query %s failed: %w", m.Table, err)
		}
		defer rows.Close()

		var instances []dal.Instance
		for rows.Next() {
			values := make([]any, len(columns))
			ptrs := make([]any, len(columns))
			for i := range values {
				ptrs[i] = &values[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return nil, fmt.Errorf("failed to scan %s row: %w", m.Table, err)
			}

			inst := make(dal.Instance, len(columns))
			for i, c := range columns {
				inst[c] = values[i]
			}
			instances = append(instances, inst)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read %s rows: %w", m.Table, err)
		}
		return instances, nil
	})
}
