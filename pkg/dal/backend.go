package dal

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// A Backend defines how models are stored and loaded.
type Backend interface {
	// Name returns the registry name of the backend.
	Name() string

	// DefaultAttrs returns attributes merged into every model the backend synthesizes.
	DefaultAttrs() map[string]any

	// Bind attaches backend-specific storage (a table, a collection) to a freshly built model.
	Bind(m *Model) error

	// NewQuerySet returns a QuerySet bound to m and to the backend.
	NewQuerySet(m *Model) QuerySet

	// Populate loads the resource data of m into its storage. It fails with ErrNoTable when the
	// model was not bound.
	Populate(ctx context.Context, m *Model) error

	Close() error
}

// Migrator is implemented by backends that can create and drop the storage of models.
type Migrator interface {
	CreateTables(ctx context.Context, models ...*Model) error
	DropTables(ctx context.Context, models ...*Model) error
}

// Factory opens a backend from its decoded configuration options.
type Factory func(ctx context.Context, options map[string]any, logger *zap.Logger) (Backend, error)

// Registry maps backend names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a backend factory under name.
func (r *Registry) Register(name string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("%w: %s", ErrBackendExists, name)
	}
	r.factories[name] = f
	return nil
}

// Open creates the backend registered under name.
func (r *Registry) Open(ctx context.Context, name string, options map[string]any, logger *zap.Logger) (Backend, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownBackend, name, r.Names())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return f(ctx, options, logger.With(zap.String("backend", name)))
}

// Names returns the registered backend names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
