package dal

import (
	"context"
	"fmt"

	"github.com/edgeflare/magicapi/pkg/names"
)

// Records fetches the resource data of m and returns it as rows of column values ordered like
// m.Fields(). Source keys are matched by storage identifier, keys without a column are dropped
// and values are coerced to the column's storage type.
func Records(ctx context.Context, m *Model) ([]Attribute, [][]any, error) {
	if m.Package == nil || m.Resource == nil {
		return nil, nil, fmt.Errorf("model %s has no data package attached", m.TypeName)
	}

	rows, err := m.Package.Rows(ctx, m.Resource)
	if err != nil {
		return nil, nil, err
	}

	fields := m.Fields()
	index := make(map[string]int, len(fields))
	for i, a := range fields {
		index[a.Name] = i
	}

	records := make([][]any, 0, len(rows))
	for n, row := range rows {
		record := make([]any, len(fields))
		for key, raw := range row {
			i, ok := index[names.StorageID(key)]
			if !ok {
				continue
			}
			v, err := fields[i].Type.Coerce(raw)
			if err != nil {
				return nil, nil, fmt.Errorf("row %d column %s: %w", n+1, fields[i].Name, err)
			}
			record[i] = v
		}
		records = append(records, record)
	}
	return fields, records, nil
}
