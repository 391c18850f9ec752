package dal

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/edgeflare/magicapi/pkg/datapackage"
	"github.com/edgeflare/magicapi/pkg/metrics"
	"github.com/edgeflare/magicapi/pkg/names"
	"github.com/edgeflare/magicapi/pkg/types"
	"go.uber.org/zap"
)

// ModelsMaker synthesizes one Model per resource of a package for a given backend. Models are
// built once, on first use, and cached.
type ModelsMaker struct {
	pkg     *datapackage.Package
	backend Backend
	prefix  string
	base    map[string]any
	tables  map[string]string
	logger  *zap.Logger

	mu     sync.Mutex
	models map[string]*Model
	order  []*Model
}

type MakerOption func(*ModelsMaker)

// WithPrefix sets the table prefix. It defaults to the package name.
func WithPrefix(prefix string) MakerOption {
	return func(mm *ModelsMaker) {
		mm.prefix = prefix
	}
}

// WithBaseAttrs sets attributes shared by every model of the package. Backend defaults take
// precedence over them. A table name cannot be shared, so AttrTable is ignored here; use
// WithTables instead.
func WithBaseAttrs(attrs map[string]any) MakerOption {
	return func(mm *ModelsMaker) {
		mm.base = maps.Clone(attrs)
		delete(mm.base, AttrTable)
	}
}

// WithTables overrides the table names of individual resources, keyed by resource name.
// Resources without an entry keep the name their backend derives from the prefix.
func WithTables(tables map[string]string) MakerOption {
	return func(mm *ModelsMaker) {
		mm.tables = maps.Clone(tables)
	}
}

func WithLogger(logger *zap.Logger) MakerOption {
	return func(mm *ModelsMaker) {
		mm.logger = logger
	}
}

func NewModelsMaker(pkg *datapackage.Package, backend Backend, opts ...MakerOption) *ModelsMaker {
	mm := &ModelsMaker{
		pkg:     pkg,
		backend: backend,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(mm)
	}
	if mm.prefix == "" {
		mm.prefix = pkg.Name
	}
	return mm
}

func (mm *ModelsMaker) Package() *datapackage.Package { return mm.pkg }

func (mm *ModelsMaker) Backend() Backend { return mm.backend }

// CreateModels builds the models of every resource, keyed by resource name. A resource with an
// unmapped field type fails the whole call. Later calls return the cached result.
func (mm *ModelsMaker) CreateModels() (map[string]*Model, error) {
	if err := mm.ensure(); err != nil {
		return nil, err
	}
	return maps.Clone(mm.models), nil
}

// Models returns the models in package order.
func (mm *ModelsMaker) Models() ([]*Model, error) {
	if err := mm.ensure(); err != nil {
		return nil, err
	}
	return append([]*Model(nil), mm.order...), nil
}

// GetModel returns the model of the named resource.
func (mm *ModelsMaker) GetModel(name string) (*Model, error) {
	if err := mm.ensure(); err != nil {
		return nil, err
	}
	m, ok := mm.models[name]
	if !ok {
		return nil, &NotFoundError{Kind: "model", Name: name}
	}
	return m, nil
}

// Populate loads the data of the given models, or of every model when none is given. It stops
// at the first failure.
func (mm *ModelsMaker) Populate(ctx context.Context, models ...*Model) error {
	if len(models) == 0 {
		all, err := mm.Models()
		if err != nil {
			return err
		}
		models = all
	}

	for _, m := range models {
		start := time.Now()
		if err := mm.backend.Populate(ctx, m); err != nil {
			metrics.PopulateErrors.WithLabelValues(m.Name, mm.backend.Name()).Inc()
			return fmt.Errorf("failed to populate %s: %w", m.Name, err)
		}
		mm.logger.Info("populated model",
			zap.String("resource", m.Name),
			zap.String("table", m.Table),
			zap.Duration("duration", time.Since(start)),
		)
	}
	return nil
}

func (mm *ModelsMaker) ensure() error {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	if mm.models != nil {
		return nil
	}

	models := make(map[string]*Model, len(mm.pkg.Resources))
	order := make([]*Model, 0, len(mm.pkg.Resources))
	for _, res := range mm.pkg.Resources {
		m, err := mm.newModel(res)
		if err != nil {
			return err
		}
		models[res.Name] = m
		order = append(order, m)
		mm.logger.Debug("created model", zap.String("model", m.TypeName), zap.String("table", m.Table))
	}

	mm.models, mm.order = models, order
	return nil
}

func (mm *ModelsMaker) newModel(res *datapackage.Resource) (*Model, error) {
	attrs := make(map[string]any, len(mm.base)+2)
	maps.Copy(attrs, mm.base)
	maps.Copy(attrs, mm.backend.DefaultAttrs())
	attrs[AttrPrefix] = mm.prefix
	if table, ok := mm.tables[res.Name]; ok && table != "" {
		attrs[AttrTable] = table
	}

	attributes := []Attribute{{
		Name:          PrimaryKey,
		Type:          types.Integer,
		PrimaryKey:    true,
		AutoIncrement: true,
	}}
	columns := map[string]string{PrimaryKey: PrimaryKey}
	for _, f := range res.Schema.Fields {
		st, err := types.Storage.Resolve(f.Type, f.Format)
		if err != nil {
			return nil, fmt.Errorf("resource %q field %q: %w", res.Name, f.Name, err)
		}

		column := names.StorageID(f.Name)
		if column == "" {
			return nil, fmt.Errorf("resource %q field %q: name has no usable characters", res.Name, f.Name)
		}
		if other, dup := columns[column]; dup {
			return nil, fmt.Errorf("resource %q: fields %q and %q both map to column %q", res.Name, other, f.Name, column)
		}
		columns[column] = f.Name

		attributes = append(attributes, Attribute{Name: column, Field: f, Type: st})
	}

	m := &Model{
		Name:       res.Name,
		TypeName:   names.TypeName(res.Name),
		Prefix:     mm.prefix,
		Attributes: attributes,
		Attrs:      attrs,
		Package:    mm.pkg,
		Resource:   res,
		Backend:    mm.backend,
	}
	if err := mm.backend.Bind(m); err != nil {
		return nil, fmt.Errorf("failed to bind model %s: %w", m.TypeName, err)
	}
	m.queryset = mm.backend.NewQuerySet(m)
	return m, nil
}
