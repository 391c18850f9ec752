package dal

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/edgeflare/magicapi/internal/testutil"
	"github.com/edgeflare/magicapi/pkg/datapackage"
	"github.com/edgeflare/magicapi/pkg/metrics"
	"github.com/edgeflare/magicapi/pkg/types"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// fakeBackend records the calls ModelsMaker makes.
type fakeBackend struct {
	name     string
	binds    atomic.Int32
	populate func(m *Model) error
	loaded   []string
}

func (b *fakeBackend) Name() string { return b.name }

func (b *fakeBackend) DefaultAttrs() map[string]any {
	return map[string]any{"store": b.name, "shared": "backend"}
}

func (b *fakeBackend) Bind(m *Model) error {
	b.binds.Add(1)
	m.Table = m.Prefix + "." + m.Name
	return nil
}

func (b *fakeBackend) NewQuerySet(*Model) QuerySet { return NotImplementedQuerySet(b.name) }

func (b *fakeBackend) Populate(_ context.Context, m *Model) error {
	if b.populate != nil {
		if err := b.populate(m); err != nil {
			return err
		}
	}
	b.loaded = append(b.loaded, m.Name)
	return nil
}

func (b *fakeBackend) Close() error { return nil }

func loadEcon(t *testing.T) *datapackage.Package {
	t.Helper()
	pkg, err := datapackage.Load(context.Background(), testutil.Path("econ"))
	require.NoError(t, err)
	return pkg
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	var got map[string]any
	require.NoError(t, r.Register("fake", func(_ context.Context, options map[string]any, _ *zap.Logger) (Backend, error) {
		got = options
		return &fakeBackend{name: "fake"}, nil
	}))
	require.NoError(t, r.Register("another", func(context.Context, map[string]any, *zap.Logger) (Backend, error) {
		return nil, errors.New("unreachable")
	}))

	err := r.Register("fake", nil)
	assert.ErrorIs(t, err, ErrBackendExists)
	assert.Equal(t, []string{"another", "fake"}, r.Names())

	b, err := r.Open(context.Background(), "fake", map[string]any{"dsn": "x"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "fake", b.Name())
	assert.Equal(t, map[string]any{"dsn": "x"}, got)

	_, err = r.Open(context.Background(), "missing", nil, nil)
	assert.ErrorIs(t, err, ErrUnknownBackend)

	_, err = r.Open(context.Background(), "another", nil, nil)
	assert.EqualError(t, err, "unreachable")
}

func TestCreateModels(t *testing.T) {
	b := &fakeBackend{name: "fake"}
	mm := NewModelsMaker(loadEcon(t), b, WithBaseAttrs(map[string]any{"shared": "base", "owner": "ops"}))

	models, err := mm.CreateModels()
	require.NoError(t, err)
	require.Len(t, models, 2)

	cpi := models["cpi"]
	assert.Equal(t, "Cpi", cpi.TypeName)
	assert.Equal(t, "econ", cpi.Prefix)
	assert.Equal(t, "econ.cpi", cpi.Table)
	assert.Same(t, b, cpi.Backend)
	assert.Equal(t, map[string]any{"shared": "backend", "owner": "ops", "store": "fake", AttrPrefix: "econ"}, cpi.Attrs)

	require.Len(t, cpi.Attributes, 4)
	assert.Equal(t, Attribute{Name: PrimaryKey, Type: types.Integer, PrimaryKey: true, AutoIncrement: true}, cpi.Attributes[0])
	assert.Equal(t, []string{"country_code", "year", "cpi"}, attributeNames(cpi.Fields()))
	assert.Equal(t, []types.StorageType{types.String, types.Integer, types.Number}, attributeTypes(cpi.Fields()))

	countries := models["countries"]
	name, ok := countries.Attribute("country_name")
	require.True(t, ok)
	assert.Equal(t, "Country Name", name.Field.Name)

	t.Run("models are built once", func(t *testing.T) {
		again, err := mm.CreateModels()
		require.NoError(t, err)
		assert.Same(t, cpi, again["cpi"])
		assert.EqualValues(t, 2, b.binds.Load())
	})

	t.Run("the returned map is a copy", func(t *testing.T) {
		delete(models, "cpi")
		m, err := mm.GetModel("cpi")
		require.NoError(t, err)
		assert.Same(t, cpi, m)
	})

	t.Run("unknown model", func(t *testing.T) {
		_, err := mm.GetModel("gdp")
		assert.True(t, IsNotFound(err))
	})

	t.Run("package order", func(t *testing.T) {
		ordered, err := mm.Models()
		require.NoError(t, err)
		assert.Equal(t, "cpi", ordered[0].Name)
		assert.Equal(t, "countries", ordered[1].Name)
	})
}

func TestCreateModelsTables(t *testing.T) {
	mm := NewModelsMaker(loadEcon(t), &fakeBackend{name: "fake"},
		WithBaseAttrs(map[string]any{AttrTable: "shared", "owner": "ops"}),
		WithTables(map[string]string{"cpi": "cpi_v2", "missing": "x"}),
	)

	models, err := mm.CreateModels()
	require.NoError(t, err)

	assert.Equal(t, "cpi_v2", models["cpi"].AttrString(AttrTable))
	assert.Equal(t, "ops", models["cpi"].Attrs["owner"])
	_, ok := models["countries"].Attrs[AttrTable]
	assert.False(t, ok)
}

func TestCreateModelsConcurrently(t *testing.T) {
	b := &fakeBackend{name: "fake"}
	mm := NewModelsMaker(loadEcon(t), b)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := mm.GetModel("countries")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 2, b.binds.Load())
}

func TestCreateModelsFailures(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr error
		errText string
	}{
		{
			name:    "unmapped type",
			doc:     `{"name": "geo", "resources": [{"name": "places", "data": [], "schema": {"fields": [{"name": "loc", "type": "geopoint"}]}}]}`,
			wantErr: types.ErrUnmappedType,
		},
		{
			name:    "binary string",
			doc:     `{"name": "blobs", "resources": [{"name": "files", "data": [], "schema": {"fields": [{"name": "body", "type": "string", "format": "binary"}]}}]}`,
			wantErr: types.ErrUnmappedType,
		},
		{
			name:    "colliding columns",
			doc:     `{"name": "dup", "resources": [{"name": "r", "data": [], "schema": {"fields": [{"name": "Total Cost"}, {"name": "total-cost"}]}}]}`,
			errText: `both map to column "total_cost"`,
		},
		{
			name:    "field with no usable characters",
			doc:     `{"name": "odd", "resources": [{"name": "r", "data": [], "schema": {"fields": [{"name": "%%"}]}}]}`,
			errText: "no usable characters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkg, err := datapackage.Parse([]byte(tt.doc), "")
			require.NoError(t, err)

			b := &fakeBackend{name: "fake"}
			mm := NewModelsMaker(pkg, b)
			_, err = mm.CreateModels()
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.errText != "" {
				assert.Contains(t, err.Error(), tt.errText)
			}
			assert.Zero(t, b.binds.Load())

			_, err = mm.GetModel("r")
			assert.Error(t, err, "failures are reported on every call")
		})
	}
}

func TestPopulate(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	t.Run("every model in order", func(t *testing.T) {
		b := &fakeBackend{name: "fake"}
		mm := NewModelsMaker(loadEcon(t), b, WithLogger(zap.New(core)))
		require.NoError(t, mm.Populate(context.Background()))
		assert.Equal(t, []string{"cpi", "countries"}, b.loaded)
		assert.Equal(t, 2, logs.FilterMessage("populated model").Len())
	})

	t.Run("stops at the first failure", func(t *testing.T) {
		diskFull := errors.New("disk full")
		b := &fakeBackend{name: "failing", populate: func(m *Model) error {
			if m.Name == "cpi" {
				return diskFull
			}
			return nil
		}}
		mm := NewModelsMaker(loadEcon(t), b)
		before := promtest.ToFloat64(metrics.PopulateErrors.WithLabelValues("cpi", "failing"))

		err := mm.Populate(context.Background())
		assert.ErrorIs(t, err, diskFull)
		assert.Empty(t, b.loaded)
		assert.Equal(t, before+1, promtest.ToFloat64(metrics.PopulateErrors.WithLabelValues("cpi", "failing")))
	})
}

func TestRecords(t *testing.T) {
	pkg, err := datapackage.Parse([]byte(`{
		"name": "p",
		"resources": [{
			"name": "r",
			"data": [{"Total Cost": "12.5", "Units": "3", "extra": "dropped"}, {"Units": 4}],
			"schema": {"fields": [{"name": "Total Cost", "type": "number"}, {"name": "Units", "type": "integer"}]}
		}]
	}`), "")
	require.NoError(t, err)

	m, err := NewModelsMaker(pkg, &fakeBackend{name: "fake"}).GetModel("r")
	require.NoError(t, err)

	fields, records, err := Records(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, []string{"total_cost", "units"}, attributeNames(fields))
	assert.Equal(t, [][]any{{12.5, int64(3)}, {nil, int64(4)}}, records)

	_, _, err = Records(context.Background(), &Model{TypeName: "Detached"})
	assert.Error(t, err)
}

func TestNotImplementedQuerySet(t *testing.T) {
	qs := NotImplementedQuerySet("mongo").Filter(map[string]any{"a": 1}).Limit(3)
	assert.ErrorIs(t, qs.Err(), ErrNotImplemented)

	_, err := qs.All(context.Background())
	assert.ErrorIs(t, err, ErrNotImplemented)
	_, err = qs.Get(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotImplemented)
	assert.EqualError(t, err, "mongo backend: query: not implemented")
	assert.False(t, IsNotFound(err))
}

func attributeNames(attrs []Attribute) []string {
	out := make([]string, len(attrs))
	for i, a := range attrs {
		out[i] = a.Name
	}
	return out
}

func attributeTypes(attrs []Attribute) []types.StorageType {
	out := make([]types.StorageType, len(attrs))
	for i, a := range attrs {
		out[i] = a.Type
	}
	return out
}
