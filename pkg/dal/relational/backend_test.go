package relational

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/edgeflare/magicapi/internal/testutil"
	"github.com/edgeflare/magicapi/internal/testutil/pgtest"
	"github.com/edgeflare/magicapi/pkg/dal"
	"github.com/edgeflare/magicapi/pkg/datapackage"
	"github.com/edgeflare/magicapi/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func econMaker(t *testing.T, b dal.Backend) *dal.ModelsMaker {
	t.Helper()
	pkg, err := datapackage.Load(context.Background(), testutil.Path("econ"))
	require.NoError(t, err)
	return dal.NewModelsMaker(pkg, b, dal.WithLogger(zaptest.NewLogger(t)))
}

// numbered builds a package with one resource holding n rows: id 1..n, parity "even"/"odd".
func numbered(t *testing.T, n int) *datapackage.Package {
	t.Helper()
	var b strings.Builder
	b.WriteString(`{"name": "seq", "resources": [{"name": "numbers", "data": [`)
	for i := 1; i <= n; i++ {
		if i > 1 {
			b.WriteString(",")
		}
		parity := "odd"
		if i%2 == 0 {
			parity = "even"
		}
		fmt.Fprintf(&b, `{"id": %d, "parity": %q}`, i, parity)
	}
	b.WriteString(`], "schema": {"fields": [{"name": "id", "type": "integer"}, {"name": "parity"}]}}]}`)

	pkg, err := datapackage.Parse([]byte(b.String()), "")
	require.NoError(t, err)
	return pkg
}

func TestBind(t *testing.T) {
	b := New(newSQLite(t), SQLite{})
	mm := econMaker(t, b)

	m, err := mm.GetModel("cpi")
	require.NoError(t, err)
	assert.Equal(t, "econ_cpi", m.Table)
	assert.Equal(t, "Cpi", m.TypeName)
	assert.Same(t, b.Metadata(), m.Attrs[AttrMetadata])

	table, ok := b.Metadata().Table("econ_cpi")
	require.True(t, ok)
	assert.Equal(t, []string{"_uid", "country_code", "year", "cpi"}, table.ColumnNames())

	ddl, err := b.CreateTableSQL(table)
	require.NoError(t, err)
	assert.Equal(t, `CREATE TABLE IF NOT EXISTS "econ_cpi" ("_uid" INTEGER PRIMARY KEY AUTOINCREMENT, "country_code" TEXT, "year" INTEGER, "cpi" REAL)`, ddl)

	countries, err := mm.GetModel("countries")
	require.NoError(t, err)
	_, ok = countries.Attribute("country_name")
	assert.True(t, ok, "field names are converted to storage ids")
}

func TestBindTableNameFromAttrs(t *testing.T) {
	b := New(newSQLite(t), SQLite{})
	pkg, err := datapackage.Load(context.Background(), testutil.Path("econ"))
	require.NoError(t, err)

	mm := dal.NewModelsMaker(pkg, b, dal.WithPrefix("Open Data"))
	m, err := mm.GetModel("cpi")
	require.NoError(t, err)
	assert.Equal(t, "open_data_cpi", m.Table)

	t.Run("per resource table", func(t *testing.T) {
		mm := dal.NewModelsMaker(pkg, New(newSQLite(t), SQLite{}), dal.WithTables(map[string]string{"cpi": "custom"}))
		models, err := mm.CreateModels()
		require.NoError(t, err)
		assert.Equal(t, "custom", models["cpi"].Table)
		assert.Equal(t, "econ_countries", models["countries"].Table)
	})

	t.Run("base attrs do not name tables", func(t *testing.T) {
		mm := dal.NewModelsMaker(pkg, New(newSQLite(t), SQLite{}), dal.WithBaseAttrs(map[string]any{dal.AttrTable: "custom"}))
		models, err := mm.CreateModels()
		require.NoError(t, err)
		assert.Equal(t, "econ_cpi", models["cpi"].Table)
		assert.Equal(t, "econ_countries", models["countries"].Table)
	})
}

func TestPopulateAndQuery(t *testing.T) {
	ctx := context.Background()
	b := New(newSQLite(t), SQLite{})
	mm := econMaker(t, b)

	require.NoError(t, mm.Populate(ctx))

	cpi, err := mm.GetModel("cpi")
	require.NoError(t, err)

	all, err := cpi.Query().All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, dal.Instance{"_uid": int64(1), "country_code": "BRA", "year": int64(2020), "cpi": 45.2}, all[0])

	inst, err := cpi.Query().Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "BRA", inst["country_code"])

	_, err = cpi.Query().Get(ctx, 2)
	assert.ErrorIs(t, err, dal.ErrNotFound)
	_, err = cpi.Query().Get(ctx, "abc")
	assert.ErrorIs(t, err, dal.ErrNotFound)

	found, err := cpi.Query().Filter(map[string]any{"country_code": "BRA", "year": "2020"}).All(ctx)
	require.NoError(t, err)
	assert.Len(t, found, 1)

	none, err := cpi.Query().In(map[string][]any{"country_code": {"USA"}}).All(ctx)
	require.NoError(t, err)
	assert.Empty(t, none)

	countries, err := mm.GetModel("countries")
	require.NoError(t, err)
	rows, err := countries.Query().Filter(map[string]any{"member": true}).All(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	joined, err := types.DateSerializer.Format(rows[0]["joined"])
	require.NoError(t, err)
	assert.Equal(t, "1995-01-01", joined)
	assert.Nil(t, rows[1]["joined"])
}

func TestPopulateKeepsExistingRows(t *testing.T) {
	ctx := context.Background()
	b := New(newSQLite(t), SQLite{})
	mm := econMaker(t, b)
	cpi, err := mm.GetModel("cpi")
	require.NoError(t, err)

	require.NoError(t, mm.Populate(ctx, cpi))
	require.NoError(t, mm.Populate(ctx, cpi))

	all, err := cpi.Query().All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, int64(2), all[1]["_uid"])
}

func TestQuerySetLaws(t *testing.T) {
	ctx := context.Background()
	b := New(newSQLite(t), SQLite{}, WithBatchSize(7))
	mm := dal.NewModelsMaker(numbered(t, 35), b)
	require.NoError(t, mm.Populate(ctx))

	m, err := mm.GetModel("numbers")
	require.NoError(t, err)

	ids := func(instances []dal.Instance) []int64 {
		out := make([]int64, len(instances))
		for i, inst := range instances {
			out[i] = inst["id"].(int64)
		}
		return out
	}

	t.Run("pagination returns the [20:30) slice", func(t *testing.T) {
		full, err := m.Query().All(ctx)
		require.NoError(t, err)
		require.Len(t, full, 35)

		page, err := m.Query().Offset(2 * 10).Limit(10).All(ctx)
		require.NoError(t, err)
		assert.Equal(t, ids(full[20:30]), ids(page))
	})

	t.Run("limit larger than count returns everything", func(t *testing.T) {
		all, err := m.Query().Offset(0).Limit(100).All(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 35)
	})

	t.Run("offset without limit", func(t *testing.T) {
		rest, err := m.Query().Offset(30).All(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int64{31, 32, 33, 34, 35}, ids(rest))
	})

	t.Run("membership is a union", func(t *testing.T) {
		got, err := m.Query().In(map[string][]any{"id": {"3", 4, 30}}).All(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int64{3, 4, 30}, ids(got))
	})

	t.Run("filters on different attributes intersect", func(t *testing.T) {
		got, err := m.Query().
			In(map[string][]any{"id": {1, 2, 3, 4}}).
			In(map[string][]any{"parity": {"even"}}).
			All(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int64{2, 4}, ids(got))

		got, err = m.Query().In(map[string][]any{"id": {1, 2, 3, 4}, "parity": {"odd"}}).All(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 3}, ids(got))
	})

	t.Run("empty membership is no filter", func(t *testing.T) {
		got, err := m.Query().In(map[string][]any{"parity": {}}).All(ctx)
		require.NoError(t, err)
		assert.Len(t, got, 35)
	})

	t.Run("builder calls do not modify the receiver", func(t *testing.T) {
		base := m.Query().In(map[string][]any{"parity": {"odd"}})
		_ = base.Limit(1)
		_ = base.Filter(map[string]any{"id": 1})

		got, err := base.All(ctx)
		require.NoError(t, err)
		assert.Len(t, got, 18)
	})

	t.Run("unknown attribute", func(t *testing.T) {
		qs := m.Query().Filter(map[string]any{"nope": 1})
		require.ErrorIs(t, qs.Err(), dal.ErrUnknownAttribute)
		_, err := qs.All(ctx)
		assert.ErrorIs(t, err, dal.ErrUnknownAttribute)
	})

	t.Run("bad filter value", func(t *testing.T) {
		_, err := m.Query().In(map[string][]any{"id": {"x"}}).All(ctx)
		assert.Error(t, err)
	})
}

func TestPopulateWithoutTable(t *testing.T) {
	b := New(newSQLite(t), SQLite{})
	err := b.Populate(context.Background(), &dal.Model{TypeName: "Ghost"})
	assert.ErrorIs(t, err, dal.ErrNoTable)

	err = b.Populate(context.Background(), &dal.Model{TypeName: "Ghost", Table: "ghost"})
	assert.ErrorIs(t, err, dal.ErrNoTable)

	_, err = b.NewQuerySet(&dal.Model{TypeName: "Ghost"}).All(context.Background())
	assert.ErrorIs(t, err, dal.ErrNoTable)
}

func TestCreateAndDropTables(t *testing.T) {
	ctx := context.Background()
	db := newSQLite(t)
	b := New(db, SQLite{})
	models, err := econMaker(t, b).Models()
	require.NoError(t, err)

	require.NoError(t, b.CreateTables(ctx, models...))
	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name LIKE 'econ_%'`).Scan(&count))
	assert.Equal(t, 2, count)

	require.NoError(t, b.DropTables(ctx, models...))
	require.NoError(t, db.QueryRowContext(ctx, `SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name LIKE 'econ_%'`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestMetadataConflict(t *testing.T) {
	md := NewMetadata()
	require.NoError(t, md.Add(&Table{Name: "t", Columns: []Column{{Name: "a", Type: types.String}}}))
	require.NoError(t, md.Add(&Table{Name: "t", Columns: []Column{{Name: "a", Type: types.String}}}))
	err := md.Add(&Table{Name: "t", Columns: []Column{{Name: "a", Type: types.Integer}}})
	assert.ErrorIs(t, err, ErrTableConflict)
}

func TestPopulateErrorPropagates(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	b := New(db, SQLite{})
	cpi, err := econMaker(t, b).GetModel("cpi")
	require.NoError(t, err)

	insertErr := errors.New("disk full")
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "econ_cpi"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "econ_cpi" \("country_code", "year", "cpi"\) VALUES \(\?, \?, \?\)`).
		WithArgs("BRA", int64(2020), 45.2).
		WillReturnError(insertErr)
	mock.ExpectRollback()

	err = b.Populate(context.Background(), cpi)
	assert.ErrorIs(t, err, insertErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQueriesWithoutCopy(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	b := New(db, Postgres{})
	mm := econMaker(t, b)
	cpi, err := mm.GetModel("cpi")
	require.NoError(t, err)

	// sqlmock connections are not pgx ones, so populate falls back to batched inserts
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "econ_cpi" \("_uid" BIGSERIAL PRIMARY KEY, "country_code" TEXT, "year" BIGINT, "cpi" DOUBLE PRECISION\)`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "econ_cpi" \("country_code", "year", "cpi"\) VALUES \(\$1, \$2, \$3\)`).
		WithArgs("BRA", int64(2020), 45.2).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	require.NoError(t, mm.Populate(context.Background(), cpi))

	mock.ExpectQuery(`SELECT "_uid", "country_code", "year", "cpi" FROM "econ_cpi" WHERE "country_code" IN \(\$1, \$2\) ORDER BY "_uid" LIMIT \$3 OFFSET \$4`).
		WithArgs("BRA", "USA", 10, 20).
		WillReturnRows(sqlmock.NewRows([]string{"_uid", "country_code", "year", "cpi"}).AddRow(int64(21), "BRA", int64(2020), 45.2))

	got, err := cpi.Query().
		In(map[string][]any{"country_code": {"BRA", "USA"}}).
		Offset(20).
		Limit(10).
		All(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(21), got[0]["_uid"])

	mock.ExpectQuery(`SELECT .* FROM "econ_cpi" WHERE "_uid" = \$1 LIMIT \$2`).
		WithArgs(int64(5), 1).
		WillReturnRows(sqlmock.NewRows([]string{"_uid", "country_code", "year", "cpi"}))
	_, err = cpi.Query().Get(context.Background(), 5)
	assert.True(t, dal.IsNotFound(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpen(t *testing.T) {
	logger := zaptest.NewLogger(t)

	_, err := Open(context.Background(), map[string]any{"driver": "sqlite"}, logger)
	assert.Error(t, err, "dsn is required")

	_, err = Open(context.Background(), map[string]any{"driver": "oracle", "dsn": "x"}, logger)
	assert.Error(t, err)

	b, err := Open(context.Background(), map[string]any{
		"driver":          "sqlite",
		"dsn":             ":memory:",
		"batchsize":       "50",
		"connMaxLifetime": "1m",
	}, logger)
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, Name, b.Name())
	assert.Equal(t, 50, b.(*Backend).batchSize)
	assert.Equal(t, DialectSQLite, b.(*Backend).Dialect().Name())
}

func TestPostgresCopy(t *testing.T) {
	ctx := context.Background()
	b := New(pgtest.OpenDB(t), Postgres{})

	pkg, err := datapackage.Load(ctx, testutil.Path("econ"))
	require.NoError(t, err)
	prefix := "t" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	mm := dal.NewModelsMaker(pkg, b, dal.WithPrefix(prefix))

	models, err := mm.Models()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, b.DropTables(context.Background(), models...))
	})

	require.NoError(t, mm.Populate(ctx))

	cpi, err := mm.GetModel("cpi")
	require.NoError(t, err)
	inst, err := cpi.Query().Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "BRA", inst["country_code"])
	assert.Equal(t, int64(2020), inst["year"])
	assert.Equal(t, 45.2, inst["cpi"])

	countries, err := mm.GetModel("countries")
	require.NoError(t, err)
	members, err := countries.Query().Filter(map[string]any{"member": "yes"}).All(ctx)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}
