package relational

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/edgeflare/magicapi/pkg/dal/query"
	"github.com/edgeflare/magicapi/pkg/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect adapts the backend to one SQL database.
type Dialect interface {
	query.Dialect

	Name() string
	// DriverName is the database/sql driver the dialect opens connections with.
	DriverName() string
	// ColumnType returns the DDL type of a storage type.
	ColumnType(t types.StorageType) (string, error)
	// PrimaryKey returns the DDL of the auto-incrementing surrogate key column.
	PrimaryKey(column string) string
	// BulkInsert writes rows into table and returns the number of rows written.
	BulkInsert(ctx context.Context, db *sql.DB, table *Table, columns []string, rows [][]any, batchSize int) (int64, error)
}

// Dialect names accepted by DialectFor.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// DialectFor returns the dialect for a driver name.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case DialectPostgres, "postgresql", "pgx":
		return Postgres{}, nil
	case DialectSQLite, "sqlite3":
		return SQLite{}, nil
	}
	return nil, fmt.Errorf("unsupported sql driver %q", driver)
}

// Postgres talks to PostgreSQL through the pgx database/sql driver and loads data with COPY.
type Postgres struct{}

func (Postgres) Name() string              { return DialectPostgres }
func (Postgres) DriverName() string        { return "pgx" }
func (Postgres) Quote(ident string) string { return pgx.Identifier{ident}.Sanitize() }
func (Postgres) Placeholder(n int) string  { return fmt.Sprintf("$%d", n) }
func (Postgres) LimitAll() string          { return "ALL" }

func (Postgres) PrimaryKey(column string) string {
	return pgx.Identifier{column}.Sanitize() + " BIGSERIAL PRIMARY KEY"
}

func (Postgres) ColumnType(t types.StorageType) (string, error) {
	switch t {
	case types.String, types.Null:
		return "TEXT", nil
	case types.Number:
		return "DOUBLE PRECISION", nil
	case types.Integer:
		return "BIGINT", nil
	case types.Boolean:
		return "BOOLEAN", nil
	case types.DateTime:
		return "TIMESTAMPTZ", nil
	case types.Date:
		return "DATE", nil
	case types.Time:
		return "TIME", nil
	}
	return "", fmt.Errorf("%w: %s", types.ErrUnmappedType, t)
}

// BulkInsert uses the COPY protocol when the connection is a pgx one, and batched INSERTs
// otherwise.
func (d Postgres) BulkInsert(ctx context.Context, db *sql.DB, table *Table, columns []string, rows [][]any, batchSize int) (int64, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	copied := int64(-1)
	err = conn.Raw(func(driverConn any) error {
		sc, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return nil
		}
		converted, err := d.copyValues(table, columns, rows)
		if err != nil {
			return err
		}
		copied, err = sc.Conn().CopyFrom(ctx, pgx.Identifier{table.Name}, columns, pgx.CopyFromRows(converted))
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("copy into %s failed: %w", table.Name, err)
	}
	if copied >= 0 {
		return copied, nil
	}
	return insertBatches(ctx, db, d, table, columns, rows, batchSize)
}

// copyValues converts time-of-day strings, which the binary COPY format cannot take as text.
func (Postgres) copyValues(table *Table, columns []string, rows [][]any) ([][]any, error) {
	timeCols := make([]bool, len(columns))
	hasTime := false
	for i, name := range columns {
		for _, c := range table.Columns {
			if c.Name == name && c.Type == types.Time {
				timeCols[i], hasTime = true, true
			}
		}
	}
	if !hasTime {
		return rows, nil
	}

	out := make([][]any, len(rows))
	for r, row := range rows {
		converted := append([]any(nil), row...)
		for i, isTime := range timeCols {
			s, ok := row[i].(string)
			if !isTime || !ok {
				continue
			}
			t, err := time.Parse(types.TimeLayout, s)
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", r+1, columns[i], err)
			}
			micros := int64(t.Hour())*int64(time.Hour/time.Microsecond) +
				int64(t.Minute())*int64(time.Minute/time.Microsecond) +
				int64(t.Second())*int64(time.Second/time.Microsecond)
			converted[i] = pgtype.Time{Microseconds: micros, Valid: true}
		}
		out[r] = converted
	}
	return out, nil
}

// SQLite talks to an embedded SQLite database through modernc.org/sqlite.
type SQLite struct{}

func (SQLite) Name() string              { return DialectSQLite }
func (SQLite) DriverName() string        { return "sqlite" }
func (SQLite) Placeholder(int) string    { return "?" }
func (SQLite) LimitAll() string          { return "-1" }
func (SQLite) Quote(ident string) string { return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"` }

func (d SQLite) PrimaryKey(column string) string {
	return d.Quote(column) + " INTEGER PRIMARY KEY AUTOINCREMENT"
}

func (SQLite) ColumnType(t types.StorageType) (string, error) {
	switch t {
	case types.String, types.Null, types.Time:
		return "TEXT", nil
	case types.Number:
		return "REAL", nil
	case types.Integer:
		return "INTEGER", nil
	case types.Boolean:
		return "BOOLEAN", nil
	case types.DateTime:
		return "DATETIME", nil
	case types.Date:
		return "DATE", nil
	}
	return "", fmt.Errorf("%w: %s", types.ErrUnmappedType, t)
}

// sqliteMaxParams is the default SQLITE_MAX_VARIABLE_NUMBER of SQLite >= 3.32.
const sqliteMaxParams = 32766

func (d SQLite) BulkInsert(ctx context.Context, db *sql.DB, table *Table, columns []string, rows [][]any, batchSize int) (int64, error) {
	if len(columns) > 0 && batchSize*len(columns) > sqliteMaxParams {
		batchSize = sqliteMaxParams / len(columns)
	}
	return insertBatches(ctx, db, d, table, columns, rows, batchSize)
}

// insertBatches writes rows with multi-row INSERT statements of at most batchSize rows, all in
// one transaction.
func insertBatches(ctx context.Context, db *sql.DB, d Dialect, table *Table, columns []string, rows [][]any, batchSize int) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.Quote(c)
	}
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", d.Quote(table.Name), strings.Join(quoted, ", "))

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var inserted int64
	for start := 0; start < len(rows); start += batchSize {
		batch := rows[start:min(start+batchSize, len(rows))]

		var b strings.Builder
		b.WriteString(prefix)
		args := make([]any, 0, len(batch)*len(columns))
		for i, row := range batch {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteByte('(')
			for j := range columns {
				if j > 0 {
					b.WriteString(", ")
				}
				args = append(args, row[j])
				b.WriteString(d.Placeholder(len(args)))
			}
			b.WriteByte(')')
		}

		res, err := tx.ExecContext(ctx, b.String(), args...)
		if err != nil {
			return 0, fmt.Errorf("insert into %s failed at row %d: %w", table.Name, start+1, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			n = int64(len(batch))
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit insert into %s: %w", table.Name, err)
	}
	return inserted, nil
}
