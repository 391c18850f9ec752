// Package relational is the SQL backend of magicapi. It synthesizes one table per resource,
// bulk loads resource data and serves queries through database/sql.
package relational

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/edgeflare/magicapi/pkg/dal"
	"github.com/edgeflare/magicapi/pkg/metrics"
	"github.com/edgeflare/magicapi/pkg/names"
	"github.com/edgeflare/magicapi/pkg/types"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
)

// Name is the registry name of the backend.
const Name = "sql"

// AttrMetadata is the model attribute holding the backend's *Metadata.
const AttrMetadata = "metadata"

const defaultBatchSize = 500

// Options configure a backend opened from configuration.
type Options struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	BatchSize       int           `mapstructure:"batchSize"`
	MaxOpenConns    int           `mapstructure:"maxOpenConns"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`
}

// Backend stores models as SQL tables.
type Backend struct {
	db        *sql.DB
	dialect   Dialect
	metadata  *Metadata
	batchSize int
	logger    *zap.Logger
}

type Option func(*Backend)

// WithMetadata shares a table container between backends.
func WithMetadata(md *Metadata) Option {
	return func(b *Backend) {
		b.metadata = md
	}
}

func WithBatchSize(n int) Option {
	return func(b *Backend) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// New returns a backend over an open database.
func New(db *sql.DB, dialect Dialect, opts ...Option) *Backend {
	b := &Backend{
		db:        db,
		dialect:   dialect,
		batchSize: defaultBatchSize,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.metadata == nil {
		b.metadata = NewMetadata()
	}
	return b
}

// Open is the registry factory: it decodes options, opens and pings the database.
func Open(ctx context.Context, options map[string]any, logger *zap.Logger) (dal.Backend, error) {
	var opts Options
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           &opts,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(options); err != nil {
		return nil, fmt.Errorf("invalid sql backend options: %w", err)
	}
	if opts.DSN == "" {
		return nil, fmt.Errorf("sql backend: dsn is required")
	}

	dialect, err := DialectFor(opts.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.DriverName(), opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect.Name(), err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	// every connection to an in-memory sqlite database sees its own database
	if dialect.Name() == DialectSQLite && strings.Contains(opts.DSN, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", dialect.Name(), err)
	}

	return New(db, dialect, WithBatchSize(opts.BatchSize), WithLogger(logger)), nil
}

func (b *Backend) Name() string { return Name }

func (b *Backend) DB() *sql.DB { return b.db }

func (b *Backend) Dialect() Dialect { return b.dialect }

func (b *Backend) Metadata() *Metadata { return b.metadata }

func (b *Backend) DefaultAttrs() map[string]any {
	return map[string]any{AttrMetadata: b.metadata}
}

// Bind defines the model's table: `{prefix}_{resource}` in storage-id form unless the model's
// attrs already name one, a leading `_uid` key and one column per attribute.
func (b *Backend) Bind(m *dal.Model) error {
	name := m.AttrString(dal.AttrTable)
	if name == "" {
		name = names.StorageID(m.Prefix + "_" + m.Name)
	}

	table := &Table{Name: name}
	for _, a := range m.Attributes {
		if _, err := b.columnDDL(a.Name, a.Type, a.PrimaryKey); err != nil {
			return fmt.Errorf("column %s: %w", a.Name, err)
		}
		table.Columns = append(table.Columns, Column{
			Name:          a.Name,
			Type:          a.Type,
			PrimaryKey:    a.PrimaryKey,
			AutoIncrement: a.AutoIncrement,
		})
	}

	if err := b.metadata.Add(table); err != nil {
		return err
	}
	m.Table = name
	return nil
}

func (b *Backend) NewQuerySet(m *dal.Model) dal.QuerySet {
	return newQuerySet(b, m)
}

// Populate creates the model's table when missing and bulk loads the resource data into it.
// Existing rows are kept.
func (b *Backend) Populate(ctx context.Context, m *dal.Model) error {
	table, err := b.tableOf(m)
	if err != nil {
		return err
	}
	if err := b.createTable(ctx, table); err != nil {
		return err
	}

	fields, records, err := dal.Records(ctx, m)
	if err != nil {
		return err
	}
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	n, err := b.dialect.BulkInsert(ctx, b.db, table, columns, records, b.batchSize)
	if err != nil {
		return err
	}
	metrics.PopulatedRows.WithLabelValues(m.Name, Name).Add(float64(n))
	b.logger.Info("loaded rows", zap.String("table", table.Name), zap.Int64("rows", n))
	return nil
}

// CreateTables creates the tables of models that do not exist yet.
func (b *Backend) CreateTables(ctx context.Context, models ...*dal.Model) error {
	for _, m := range models {
		table, err := b.tableOf(m)
		if err != nil {
			return err
		}
		if err := b.createTable(ctx, table); err != nil {
			return err
		}
	}
	return nil
}

// DropTables drops the tables of models, with their data.
func (b *Backend) DropTables(ctx context.Context, models ...*dal.Model) error {
	for _, m := range models {
		table, err := b.tableOf(m)
		if err != nil {
			return err
		}
		stmt := "DROP TABLE IF EXISTS " + b.dialect.Quote(table.Name)
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table.Name, err)
		}
		b.logger.Info("dropped table", zap.String("table", table.Name))
	}
	return nil
}

func (b *Backend) Close() error {
	return b.db.Close()
}

func (b *Backend) tableOf(m *dal.Model) (*Table, error) {
	if m.Table == "" {
		return nil, fmt.Errorf("%w: %s", dal.ErrNoTable, m.TypeName)
	}
	table, ok := b.metadata.Table(m.Table)
	if !ok {
		return nil, fmt.Errorf("%w: %s (table %s not defined)", dal.ErrNoTable, m.TypeName, m.Table)
	}
	return table, nil
}

// CreateTableSQL returns the idempotent DDL of table.
func (b *Backend) CreateTableSQL(table *Table) (string, error) {
	defs := make([]string, 0, len(table.Columns))
	for _, c := range table.Columns {
		def, err := b.columnDDL(c.Name, c.Type, c.PrimaryKey)
		if err != nil {
			return "", err
		}
		defs = append(defs, def)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", b.dialect.Quote(table.Name), strings.Join(defs, ", ")), nil
}

func (b *Backend) createTable(ctx context.Context, table *Table) error {
	stmt, err := b.CreateTableSQL(table)
	if err != nil {
		return err
	}
	if _, err := b.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table.Name, err)
	}
	return nil
}

func (b *Backend) columnDDL(name string, t types.StorageType, primaryKey bool) (string, error) {
	if primaryKey {
		return b.dialect.PrimaryKey(name), nil
	}
	typ, err := b.dialect.ColumnType(t)
	if err != nil {
		return "", err
	}
	return b.dialect.Quote(name) + " " + typ, nil
}
