// Package document is the document-store backend. Models are bound to MongoDB collections, but
// loading and querying them is not available yet: Populate and every QuerySet operation fail
// with dal.ErrNotImplemented.
package document

import (
	"context"
	"fmt"
	"time"

	"github.com/edgeflare/magicapi/pkg/dal"
	"github.com/edgeflare/magicapi/pkg/names"
	"github.com/mitchellh/mapstructure"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Name is the registry name of the backend.
const Name = "mongo"

// AttrCollection is the model attribute holding the bound *mongo.Collection.
const AttrCollection = "collection"

// Options configure a backend opened from configuration.
type Options struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	ConnectTimeout time.Duration `mapstructure:"connectTimeout"`
}

type Backend struct {
	db     *mongo.Database
	logger *zap.Logger
}

func New(db *mongo.Database, logger *zap.Logger) *Backend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backend{db: db, logger: logger}
}

// Open is the registry factory. The client connects lazily, so no server round trip happens here.
func Open(ctx context.Context, opts map[string]any, logger *zap.Logger) (dal.Backend, error) {
	var o Options
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           &o,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(opts); err != nil {
		return nil, fmt.Errorf("invalid mongo backend options: %w", err)
	}
	if o.URI == "" {
		o.URI = "mongodb://localhost:27017"
	}
	if o.Database == "" {
		o.Database = "magicapi"
	}

	clientOpts := options.Client().ApplyURI(o.URI)
	if o.ConnectTimeout > 0 {
		clientOpts.SetConnectTimeout(o.ConnectTimeout)
	}
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client: %w", err)
	}
	return New(client.Database(o.Database), logger), nil
}

func (b *Backend) Name() string { return Name }

func (b *Backend) Database() *mongo.Database { return b.db }

func (b *Backend) DefaultAttrs() map[string]any {
	return map[string]any{"database": b.db.Name()}
}

// Bind attaches the collection `{prefix}_{resource}` to the model.
func (b *Backend) Bind(m *dal.Model) error {
	name := m.AttrString(dal.AttrTable)
	if name == "" {
		name = names.StorageID(m.Prefix + "_" + m.Name)
	}
	m.Table = name
	m.Attrs[AttrCollection] = b.db.Collection(name)
	return nil
}

func (b *Backend) NewQuerySet(*dal.Model) dal.QuerySet {
	return dal.NotImplementedQuerySet(Name)
}

func (b *Backend) Populate(context.Context, *dal.Model) error {
	return &dal.NotImplementedError{Backend: Name, Operation: "populate"}
}

// Close disconnects the underlying client.
func (b *Backend) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return b.db.Client().Disconnect(ctx)
}
