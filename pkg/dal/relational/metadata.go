package relational

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/edgeflare/magicapi/pkg/types"
)

var ErrTableConflict = errors.New("table already defined with different columns")

// Column is one column of a synthesized table.
type Column struct {
	Name          string
	Type          types.StorageType
	PrimaryKey    bool
	AutoIncrement bool
}

// Table is the relational definition of a model.
type Table struct {
	Name    string
	Columns []Column
}

// ColumnNames returns the column names in declaration order.
func (t *Table) ColumnNames() []string {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = c.Name
	}
	return cols
}

// Metadata holds the tables defined through one backend. Pass the same Metadata to several
// backends to share definitions.
type Metadata struct {
	mu     sync.RWMutex
	tables map[string]*Table
}

func NewMetadata() *Metadata {
	return &Metadata{tables: make(map[string]*Table)}
}

// Add registers t. Defining the same table twice is allowed only with identical columns.
func (md *Metadata) Add(t *Table) error {
	md.mu.Lock()
	defer md.mu.Unlock()

	if existing, ok := md.tables[t.Name]; ok && !slices.Equal(existing.Columns, t.Columns) {
		return fmt.Errorf("%w: %s", ErrTableConflict, t.Name)
	}
	md.tables[t.Name] = t
	return nil
}

// Table returns the table called name.
func (md *Metadata) Table(name string) (*Table, bool) {
	md.mu.RLock()
	defer md.mu.RUnlock()
	t, ok := md.tables[name]
	return t, ok
}

// Tables returns every table sorted by name.
func (md *Metadata) Tables() []*Table {
	md.mu.RLock()
	defer md.mu.RUnlock()

	tables := make([]*Table, 0, len(md.tables))
	for _, t := range md.tables {
		tables = append(tables, t)
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })
	return tables
}
