package main

import (
	"context"
	"fmt"

	"github.com/edgeflare/magicapi/pkg/dal"
	"github.com/edgeflare/magicapi/pkg/dal/backends"
	"github.com/edgeflare/magicapi/pkg/datapackage"
	"go.uber.org/zap"
)

// app is the package and backend every command works on.
type app struct {
	pkg     *datapackage.Package
	backend dal.Backend
	models  *dal.ModelsMaker
}

func loadPackage(ctx context.Context) (*datapackage.Package, error) {
	pkg, err := datapackage.Load(ctx, cfg.DataPackage,
		datapackage.WithLogger(logger),
		datapackage.WithTimeout(cfg.Fetch.Timeout),
		datapackage.WithMaxRetries(cfg.Fetch.MaxRetries),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load data package: %w", err)
	}
	logger.Info("loaded data package",
		zap.String("name", pkg.Name),
		zap.String("location", cfg.DataPackage),
		zap.Int("resources", len(pkg.Resources)),
	)
	return pkg, nil
}

func newApp(ctx context.Context) (*app, error) {
	pkg, err := loadPackage(ctx)
	if err != nil {
		return nil, err
	}

	backend, err := backends.NewRegistry().Open(ctx, cfg.Backend.Name, cfg.Backend.BackendOptions(), logger)
	if err != nil {
		return nil, err
	}

	mm := dal.NewModelsMaker(pkg, backend, dal.WithPrefix(cfg.Prefix), dal.WithTables(cfg.Backend.Tables), dal.WithLogger(logger))
	return &app{pkg: pkg, backend: backend, models: mm}, nil
}

func (a *app) Close() {
	if err := a.backend.Close(); err != nil {
		logger.Warn("failed to close backend", zap.Error(err))
	}
}

// selectModels returns the models of the named resources, or every model when names is empty.
func (a *app) selectModels(names []string) ([]*dal.Model, error) {
	if len(names) == 0 {
		return a.models.Models()
	}
	models := make([]*dal.Model, 0, len(names))
	for _, name := range names {
		m, err := a.models.GetModel(name)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return models, nil
}
