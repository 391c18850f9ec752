// Package pgtest connects tests to the PostgreSQL database named by TEST_DATABASE. Tests using
// it are skipped when the variable is unset.
package pgtest

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
)

// EnvVar holds the connection string of the test database.
const EnvVar = "TEST_DATABASE"

// ParseConfig returns the test connection config with notices logged to t.
func ParseConfig(t testing.TB) *pgx.ConnConfig {
	t.Helper()
	dsn := os.Getenv(EnvVar)
	if dsn == "" {
		t.Skipf("%s is not set", EnvVar)
	}

	config, err := pgx.ParseConfig(dsn)
	require.NoError(t, err)

	config.OnNotice = func(_ *pgconn.PgConn, n *pgconn.Notice) {
		t.Logf("PostgreSQL %s: %s", n.Severity, n.Message)
	}
	return config
}

// OpenDB returns a database/sql handle backed by the pgx driver, closed when the test ends.
func OpenDB(t testing.TB) *sql.DB {
	t.Helper()
	db := stdlib.OpenDB(*ParseConfig(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, db.PingContext(ctx))

	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})
	return db
}
