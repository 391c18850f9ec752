package datapackage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/edgeflare/magicapi/pkg/httputil"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// descriptor file names looked up when Load is given a directory
var descriptorNames = []string{"datapackage.json", "datapackage.yaml", "datapackage.yml"}

// Option configures how a package and its data are fetched.
type Option func(*fetcher)

// WithLogger sets the logger used for remote fetches.
func WithLogger(logger *zap.Logger) Option {
	return func(f *fetcher) {
		f.logger = logger
	}
}

// WithTimeout sets the per-attempt timeout for remote fetches.
func WithTimeout(timeout time.Duration) Option {
	return func(f *fetcher) {
		f.timeout = timeout
	}
}

// WithMaxRetries sets how many times a failed remote fetch is retried. Zero disables retries.
func WithMaxRetries(n int) Option {
	return func(f *fetcher) {
		f.maxRetries = n
	}
}

type fetcher struct {
	logger     *zap.Logger
	timeout    time.Duration
	maxRetries int
}

func newFetcher(opts ...Option) fetcher {
	f := fetcher{
		logger:     zap.NewNop(),
		timeout:    30 * time.Second,
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

// open returns the contents at location, a local path or an http(s) URL.
func (f fetcher) open(ctx context.Context, location string) (io.ReadCloser, error) {
	if !isRemote(location) {
		return os.Open(location)
	}

	cfg := httputil.DefaultRequestConfig(http.MethodGet, location)
	cfg.Logger = f.logger
	cfg.Timeout = f.timeout
	cfg.MaxRetries = f.maxRetries
	cfg.RetryEnabled = f.maxRetries > 0

	resp, err := httputil.Request(ctx, cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", location, err)
	}
	return io.NopCloser(bytes.NewReader(resp.Body)), nil
}

// Load reads and validates the descriptor at location: a descriptor file, a directory holding
// one, or an http(s) URL.
func Load(ctx context.Context, location string, opts ...Option) (*Package, error) {
	f := newFetcher(opts...)

	if !isRemote(location) {
		if info, err := os.Stat(location); err == nil && info.IsDir() {
			found := ""
			for _, name := range descriptorNames {
				candidate := filepath.Join(location, name)
				if _, err := os.Stat(candidate); err == nil {
					found = candidate
					break
				}
			}
			if found == "" {
				return nil, fmt.Errorf("%w: no descriptor in %s", ErrInvalidDescriptor, location)
			}
			location = found
		}
	}

	rc, err := f.open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor %s: %w", location, err)
	}

	pkg, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", location, err)
	}
	pkg.base = baseOf(location)
	pkg.fetcher = f
	return pkg, pkg.Validate()
}

// Parse decodes a JSON or YAML descriptor held in memory. Relative resource paths are resolved
// against base, a directory or URL.
func Parse(data []byte, base string, opts ...Option) (*Package, error) {
	pkg, err := parse(data)
	if err != nil {
		return nil, err
	}
	pkg.base = base
	pkg.fetcher = newFetcher(opts...)
	return pkg, pkg.Validate()
}

func parse(data []byte) (*Package, error) {
	var pkg Package
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		if err := dec.Decode(&pkg); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDescriptor, err)
		}
		return &pkg, nil
	}

	if err := yaml.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDescriptor, err)
	}
	return &pkg, nil
}

// resolve returns the location of a resource path.
func (p *Package) resolve(loc string) string {
	if isRemote(loc) || p.base == "" {
		return loc
	}
	if isRemote(p.base) {
		u, err := url.Parse(p.base)
		if err != nil {
			return loc
		}
		u.Path = path.Join(u.Path, loc)
		return u.String()
	}
	if filepath.IsAbs(loc) {
		return loc
	}
	return filepath.Join(p.base, filepath.FromSlash(loc))
}

func baseOf(location string) string {
	if isRemote(location) {
		u, err := url.Parse(location)
		if err != nil {
			return ""
		}
		u.Path = path.Dir(u.Path)
		u.RawQuery = ""
		return u.String()
	}
	return filepath.Dir(location)
}

func isRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}
