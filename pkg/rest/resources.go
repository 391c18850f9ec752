package rest

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/edgeflare/magicapi/pkg/dal"
	"github.com/edgeflare/magicapi/pkg/httputil"
	"github.com/edgeflare/magicapi/pkg/httputil/middleware"
	"github.com/edgeflare/magicapi/pkg/metrics"
	"github.com/edgeflare/magicapi/pkg/names"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "/api"
	DefaultPerPage = 100
)

// Kind tells collection resources from single-item ones.
type Kind string

const (
	KindList   Kind = "list"
	KindSingle Kind = "single"
)

// Reserved query parameters of the collection route.
const (
	ParamPage    = "page"
	ParamPerPage = "per_page"
	ParamSelect  = "select"
)

// Resource is one route bound to a model and its projection.
type Resource struct {
	// Key is `{resource}List` for collections and `{resource}` for single items.
	Key        string
	Kind       Kind
	Path       string
	Model      *dal.Model
	Projection Projection

	perPage int
	logger  *zap.Logger
}

// Pattern returns the ServeMux pattern of the resource below baseURL.
func (res *Resource) Pattern(baseURL string) string {
	return http.MethodGet + " " + baseURL + res.Path
}

// ResourcesMaker builds the list and single resources of every model of a ModelsMaker.
type ResourcesMaker struct {
	models  *dal.ModelsMaker
	baseURL string
	perPage int
	logger  *zap.Logger

	mu        sync.Mutex
	resources map[string]*Resource
	order     []*Resource
}

type Option func(*ResourcesMaker)

// WithBaseURL sets the path prefix of every route. It defaults to /api.
func WithBaseURL(baseURL string) Option {
	return func(rm *ResourcesMaker) {
		rm.baseURL = "/" + strings.Trim(baseURL, "/")
		if rm.baseURL == "/" {
			rm.baseURL = ""
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(rm *ResourcesMaker) {
		rm.logger = logger
	}
}

// WithDefaultPerPage sets the page size used when per_page is absent.
func WithDefaultPerPage(n int) Option {
	return func(rm *ResourcesMaker) {
		if n > 0 {
			rm.perPage = n
		}
	}
}

func NewResourcesMaker(models *dal.ModelsMaker, opts ...Option) *ResourcesMaker {
	rm := &ResourcesMaker{
		models:  models,
		baseURL: DefaultBaseURL,
		perPage: DefaultPerPage,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(rm)
	}
	return rm
}

func (rm *ResourcesMaker) Models() *dal.ModelsMaker { return rm.models }

func (rm *ResourcesMaker) BaseURL() string { return rm.baseURL }

// CreateResources builds the resources of every model, keyed by route key. It fails before
// anything is built if a model cannot be synthesized or a field has no serializer. Later calls
// return the cached result.
func (rm *ResourcesMaker) CreateResources() (map[string]*Resource, error) {
	if err := rm.ensure(); err != nil {
		return nil, err
	}
	return maps.Clone(rm.resources), nil
}

// Resources returns the resources in package order, each list resource before its single one.
func (rm *ResourcesMaker) Resources() ([]*Resource, error) {
	if err := rm.ensure(); err != nil {
		return nil, err
	}
	return append([]*Resource(nil), rm.order...), nil
}

// GetResource returns the resource with the given route key.
func (rm *ResourcesMaker) GetResource(key string) (*Resource, error) {
	if err := rm.ensure(); err != nil {
		return nil, err
	}
	res, ok := rm.resources[key]
	if !ok {
		return nil, &dal.NotFoundError{Kind: "resource", Name: key}
	}
	return res, nil
}

// Register adds every resource and the package index to router.
func (rm *ResourcesMaker) Register(router *httputil.Router) error {
	resources, err := rm.Resources()
	if err != nil {
		return err
	}
	for _, res := range resources {
		router.Handle(res.Pattern(rm.baseURL), res)
		rm.logger.Debug("registered route", zap.String("key", res.Key), zap.String("path", rm.baseURL+res.Path))
	}
	router.Handle(http.MethodGet+" "+rm.baseURL+"/"+rm.packageID(), http.HandlerFunc(rm.serveIndex))
	return nil
}

func (rm *ResourcesMaker) packageID() string {
	return names.StorageID(rm.models.Package().Name)
}

func (rm *ResourcesMaker) ensure() error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.resources != nil {
		return nil
	}

	models, err := rm.models.Models()
	if err != nil {
		return err
	}

	resources := make(map[string]*Resource, 2*len(models))
	order := make([]*Resource, 0, 2*len(models))
	paths := make(map[string]string)
	for _, m := range models {
		projection, err := NewProjection(m)
		if err != nil {
			return err
		}

		base := "/" + rm.packageID() + "/" + names.StorageID(m.Name)
		if other, dup := paths[base]; dup {
			return fmt.Errorf("resources %q and %q both map to %s", other, m.Name, base)
		}
		paths[base] = m.Name

		list := &Resource{
			Key:        m.Name + "List",
			Kind:       KindList,
			Path:       base,
			Model:      m,
			Projection: projection,
			perPage:    rm.perPage,
			logger:     rm.logger,
		}
		single := &Resource{
			Key:        m.Name,
			Kind:       KindSingle,
			Path:       base + "/{pk}",
			Model:      m,
			Projection: projection,
			logger:     rm.logger,
		}
		for _, res := range []*Resource{list, single} {
			resources[res.Key] = res
			order = append(order, res)
		}
	}

	rm.resources, rm.order = resources, order
	return nil
}

func (res *Resource) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := middleware.NewResponseRecorder(w)

	switch res.Kind {
	case KindList:
		res.serveList(rec, r)
	default:
		res.serveSingle(rec, r)
	}

	metrics.HTTPRequests.WithLabelValues(res.Model.Name, string(res.Kind), strconv.Itoa(rec.StatusCode)).Inc()
	metrics.HTTPRequestDuration.WithLabelValues(res.Model.Name, string(res.Kind)).Observe(time.Since(start).Seconds())
}

func (res *Resource) serveList(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	page, err := intParam(params.Get(ParamPage), 0)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, fmt.Sprintf("invalid %s: %v", ParamPage, err))
		return
	}
	perPage, err := intParam(params.Get(ParamPerPage), res.perPage)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, fmt.Sprintf("invalid %s: %v", ParamPerPage, err))
		return
	}
	if perPage > 0 && page > math.MaxInt/perPage {
		httputil.Error(w, http.StatusBadRequest, fmt.Sprintf("invalid %s: %d is too large", ParamPage, page))
		return
	}

	qs := res.Model.Query()
	filters := make(map[string][]any)
	for _, prop := range res.Projection[1:] {
		var values []any
		for _, v := range params[prop.Name] {
			if v != "" {
				values = append(values, v)
			}
		}
		if len(values) > 0 {
			filters[prop.Column] = values
		}
	}
	qs = qs.In(filters).Offset(page * perPage).Limit(perPage)
	if err := qs.Err(); err != nil {
		res.fail(w, r, err, http.StatusBadRequest)
		return
	}

	instances, err := qs.All(r.Context())
	if err != nil {
		res.fail(w, r, err, http.StatusInternalServerError)
		return
	}

	projection := res.Projection.Select(ParseSelect(params.Get(ParamSelect)))
	out := make([]Object, 0, len(instances))
	for _, inst := range instances {
		obj, err := projection.Render(inst)
		if err != nil {
			res.fail(w, r, err, http.StatusInternalServerError)
			return
		}
		out = append(out, obj)
	}
	httputil.JSON(w, http.StatusOK, out)
}

func (res *Resource) serveSingle(w http.ResponseWriter, r *http.Request) {
	pk, err := strconv.ParseInt(r.PathValue("pk"), 10, 64)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, fmt.Sprintf("invalid key %q", r.PathValue("pk")))
		return
	}

	inst, err := res.Model.Query().Get(r.Context(), pk)
	if err != nil {
		res.fail(w, r, err, http.StatusInternalServerError)
		return
	}

	obj, err := res.Projection.Select(ParseSelect(r.URL.Query().Get(ParamSelect))).Render(inst)
	if err != nil {
		res.fail(w, r, err, http.StatusInternalServerError)
		return
	}
	httputil.JSON(w, http.StatusOK, obj)
}

// fail maps err to a response. Errors without a more specific status get fallback, and server
// errors are logged.
func (res *Resource) fail(w http.ResponseWriter, r *http.Request, err error, fallback int) {
	status := fallback
	switch {
	case errors.Is(err, dal.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, dal.ErrNotImplemented):
		status = http.StatusNotImplemented
	}

	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(r.Context(), res.logger).Error("request failed",
			zap.String("resource", res.Key),
			zap.Error(err),
		)
		if status == http.StatusInternalServerError {
			httputil.Error(w, status, http.StatusText(status))
			return
		}
	}
	httputil.Error(w, status, err.Error())
}

// intParam parses a non-negative integer parameter, returning def when it is absent.
func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%q is not an integer", raw)
	}
	if n < 0 {
		return 0, fmt.Errorf("%d is negative", n)
	}
	return n, nil
}
