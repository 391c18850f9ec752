// Package tabular is the in-memory tabular backend. It synthesizes models but cannot load or
// query them yet: Populate and every QuerySet operation fail with dal.ErrNotImplemented.
package tabular

import (
	"context"

	"github.com/edgeflare/magicapi/pkg/dal"
	"github.com/edgeflare/magicapi/pkg/names"
	"go.uber.org/zap"
)

const Name = "tabular"

type Backend struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Backend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backend{logger: logger}
}

// Open is the registry factory. The backend takes no options.
func Open(_ context.Context, _ map[string]any, logger *zap.Logger) (dal.Backend, error) {
	return New(logger), nil
}

func (b *Backend) Name() string { return Name }

func (b *Backend) DefaultAttrs() map[string]any { return nil }

func (b *Backend) Bind(m *dal.Model) error {
	m.Table = names.StorageID(m.Prefix + "_" + m.Name)
	return nil
}

func (b *Backend) NewQuerySet(*dal.Model) dal.QuerySet {
	return dal.NotImplementedQuerySet(Name)
}

func (b *Backend) Populate(_ context.Context, m *dal.Model) error {
	b.logger.Debug("populate requested", zap.String("model", m.TypeName))
	return &dal.NotImplementedError{Backend: Name, Operation: "populate"}
}

func (b *Backend) Close() error { return nil }
