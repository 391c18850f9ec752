// Package backends assembles the registry of every storage backend shipped with magicapi.
package backends

import (
	"github.com/edgeflare/magicapi/pkg/dal"
	"github.com/edgeflare/magicapi/pkg/dal/clickhouse"
	"github.com/edgeflare/magicapi/pkg/dal/document"
	"github.com/edgeflare/magicapi/pkg/dal/relational"
	"github.com/edgeflare/magicapi/pkg/dal/tabular"
)

// NewRegistry returns a registry holding the sql, clickhouse, mongo and tabular backends.
func NewRegistry() *dal.Registry {
	r := dal.NewRegistry()
	mustRegister(r, relational.Name, relational.Open)
	mustRegister(r, clickhouse.Name, clickhouse.Open)
	mustRegister(r, document.Name, document.Open)
	mustRegister(r, tabular.Name, tabular.Open)
	return r
}

func mustRegister(r *dal.Registry, name string, f dal.Factory) {
	if err := r.Register(name, f); err != nil {
		panic(err)
	}
}
