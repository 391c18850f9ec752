// Package clickhouse stores models as MergeTree tables in ClickHouse, written and read through
// the native protocol.
package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/edgeflare/magicapi/pkg/dal"
	"github.com/edgeflare/magicapi/pkg/dal/relational"
	"github.com/edgeflare/magicapi/pkg/metrics"
	"github.com/edgeflare/magicapi/pkg/names"
	"github.com/edgeflare/magicapi/pkg/types"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
)

// Name is the registry name of the backend.
const Name = "clickhouse"

const defaultBatchSize = 10000

// Options configure a backend opened from configuration.
type Options struct {
	Addr        []string      `mapstructure:"addr"`
	Database    string        `mapstructure:"database"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	DialTimeout time.Duration `mapstructure:"dialTimeout"`
	BatchSize   int           `mapstructure:"batchSize"`
}

func (o *Options) setDefaults() {
	if len(o.Addr) == 0 {
		o.Addr = []string{"localhost:9000"}
	}
	if o.Database == "" {
		o.Database = "default"
	}
	if o.Username == "" {
		o.Username = "default"
	}
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
}

// Backend keeps one MergeTree table per model, ordered by the surrogate key.
type Backend struct {
	conn      driver.Conn
	metadata  *relational.Metadata
	batchSize int
	logger    *zap.Logger
}

// New returns a backend over an open connection.
func New(conn driver.Conn, logger *zap.Logger) *Backend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backend{
		conn:      conn,
		metadata:  relational.NewMetadata(),
		batchSize: defaultBatchSize,
		logger:    logger,
	}
}

// Open is the registry factory.
func Open(ctx context.Context, options map[string]any, logger *zap.Logger) (dal.Backend, error) {
	var opts Options
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           &opts,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(options); err != nil {
		return nil, fmt.Errorf("invalid clickhouse backend options: %w", err)
	}
	opts.setDefaults()

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: opts.Addr,
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		DialTimeout: opts.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	b := New(conn, logger)
	b.batchSize = opts.BatchSize
	return b, nil
}

func (b *Backend) Name() string { return Name }

func (b *Backend) DefaultAttrs() map[string]any {
	return map[string]any{relational.AttrMetadata: b.metadata}
}

// Bind names the model's table like the SQL backend does.
func (b *Backend) Bind(m *dal.Model) error {
	name := m.AttrString(dal.AttrTable)
	if name == "" {
		name = names.StorageID(m.Prefix + "_" + m.Name)
	}

	table := &relational.Table{Name: name}
	for _, a := range m.Attributes {
		if !a.PrimaryKey {
			if _, err := ColumnType(a.Type); err != nil {
				return fmt.Errorf("column %s: %w", a.Name, err)
			}
		}
		table.Columns = append(table.Columns, relational.Column{
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

// Populate appends the resource data to the model's table. ClickHouse has no auto increment, so
// surrogate keys continue from the current maximum.
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

	var last int64
	if err := b.conn.QueryRow(ctx, fmt.Sprintf("SELECT max(%s) FROM %s", quote(dal.PrimaryKey), quote(table.Name))).Scan(&last); err != nil {
		return fmt.Errorf("failed to read last key of %s: %w", table.Name, err)
	}

	stmt := InsertSQL(table.Name, fields)
	for start := 0; start < len(records); start += b.batchSize {
		batch, err := b.conn.PrepareBatch(ctx, stmt)
		if err != nil {
			return fmt.Errorf("failed to prepare batch for %s: %w", table.Name, err)
		}
		for _, record := range records[start:min(start+b.batchSize, len(records))] {
			last++
			if err := batch.Append(append([]any{last}, record...)...); err != nil {
				batch.Abort()
				return fmt.Errorf("failed to append row %d to %s: %w", last, table.Name, err)
			}
		}
		if err := batch.Send(); err != nil {
			return fmt.Errorf("insert into %s failed: %w", table.Name, err)
		}
	}

	metrics.PopulatedRows.WithLabelValues(m.Name, Name).Add(float64(len(records)))
	b.logger.Info("loaded rows", zap.String("table", table.Name), zap.Int("rows", len(records)))
	return nil
}

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

func (b *Backend) DropTables(ctx context.Context, models ...*dal.Model) error {
	for _, m := range models {
		table, err := b.tableOf(m)
		if err != nil {
			return err
		}
		if err := b.conn.Exec(ctx, "DROP TABLE IF EXISTS "+quote(table.Name)); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table.Name, err)
		}
	}
	return nil
}

func (b *Backend) Close() error {
	return b.conn.Close()
}

func (b *Backend) tableOf(m *dal.Model) (*relational.Table, error) {
	if m.Table == "" {
		return nil, fmt.Errorf("%w: %s", dal.ErrNoTable, m.TypeName)
	}
	table, ok := b.metadata.Table(m.Table)
	if !ok {
		return nil, fmt.Errorf("%w: %s (table %s not defined)", dal.ErrNoTable, m.TypeName, m.Table)
	}
	return table, nil
}

func (b *Backend) createTable(ctx context.Context, table *relational.Table) error {
	stmt, err := CreateTableSQL(table)
	if err != nil {
		return err
	}
	if err := b.conn.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table.Name, err)
	}
	return nil
}

// CreateTableSQL returns the idempotent DDL of table.
func CreateTableSQL(table *relational.Table) (string, error) {
	defs := make([]string, 0, len(table.Columns))
	for _, c := range table.Columns {
		if c.PrimaryKey {
			defs = append(defs, quote(c.Name)+" Int64")
			continue
		}
		typ, err := ColumnType(c.Type)
		if err != nil {
			return "", err
		}
		defs = append(defs, quote(c.Name)+" "+typ)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s) ENGINE = MergeTree ORDER BY %s",
		quote(table.Name), strings.Join(defs, ", "), quote(dal.PrimaryKey)), nil
}

// InsertSQL returns the batch insert statement for the key column followed by fields.
func InsertSQL(table string, fields []dal.Attribute) string {
	columns := make([]string, 0, len(fields)+1)
	columns = append(columns, quote(dal.PrimaryKey))
	for _, f := range fields {
		columns = append(columns, quote(f.Name))
	}
	return fmt.Sprintf("INSERT INTO %s (%s)", quote(table), strings.Join(columns, ", "))
}

// ColumnType returns the ClickHouse type of a storage type. Every data column is nullable.
func ColumnType(t types.StorageType) (string, error) {
	var typ string
	switch t {
	case types.String, types.Null, types.Time:
		typ = "String"
	case types.Number:
		typ = "Float64"
	case types.Integer:
		typ = "Int64"
	case types.Boolean:
		typ = "Bool"
	case types.DateTime:
		typ = "DateTime64(3, 'UTC')"
	case types.Date:
		typ = "Date32"
	default:
		return "", fmt.Errorf("%w: %s", types.ErrUnmappedType, t)
	}
	return "Nullable(" + typ + ")", nil
}
