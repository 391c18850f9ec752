package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Version is set at build time with -ldflags "-X github.com/edgeflare/magicapi/pkg/config.Version=...".
var Version = "dev"

// EnvPrefix prefixes environment overrides, e.g. MAGICAPI_REST_LISTENADDR.
const EnvPrefix = "MAGICAPI"

// Config holds application-wide configuration
type Config struct {
	// DataPackage is the path or URL of the data package descriptor, or of its directory.
	DataPackage string        `mapstructure:"datapackage"`
	Prefix      string        `mapstructure:"prefix"` // table prefix, defaults to the package name
	Backend     BackendConfig `mapstructure:"backend"`
	REST        RESTConfig    `mapstructure:"rest"`
	Log         LogConfig     `mapstructure:"log"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
	Fetch       FetchConfig   `mapstructure:"fetch"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

type BackendConfig struct {
	Name string `mapstructure:"name"`
	// Options are decoded by the backend. Keys are case-insensitive.
	Options map[string]any `mapstructure:"options"`
	// Tables overrides table names per resource name.
	Tables map[string]string `mapstructure:"tables"`
}

// DefaultSQLOptions are used by the sql backend when no options are configured.
var DefaultSQLOptions = map[string]any{"driver": "sqlite", "dsn": "file:magicapi.db"}

// BackendOptions returns the configured options, or DefaultSQLOptions for an unconfigured sql
// backend.
func (b BackendConfig) BackendOptions() map[string]any {
	if len(b.Options) == 0 && b.Name == "sql" {
		return maps.Clone(DefaultSQLOptions)
	}
	return b.Options
}

type RESTConfig struct {
	ListenAddr      string        `mapstructure:"listenAddr"`
	BaseURL         string        `mapstructure:"baseURL"`
	PerPage         int           `mapstructure:"perPage"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
	TLS             TLSConfig     `mapstructure:"tls"`
}

type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	AllowedOrigins   []string `mapstructure:"allowedOrigins"`
	AllowedMethods   []string `mapstructure:"allowedMethods"`
	AllowedHeaders   []string `mapstructure:"allowedHeaders"`
	AllowCredentials bool     `mapstructure:"allowCredentials"`
}

// TLSConfig enables HTTPS. Without a key pair a self-signed certificate is generated.
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"certFile"`
	KeyFile  string `mapstructure:"keyFile"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path"`
}

// FetchConfig applies to remote descriptors and data files.
type FetchConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"maxRetries"`
}

var defaults = map[string]any{
	"datapackage":  "datapackage.json",
	"prefix":       "",
	"backend.name": "sql",

	"rest.listenAddr":      ":8080",
	"rest.baseURL":         "/api",
	"rest.perPage":         100,
	"rest.shutdownTimeout": 10 * time.Second,

	"rest.cors.enabled":          true,
	"rest.cors.allowedOrigins":   []string{"*"},
	"rest.cors.allowedMethods":   []string{"GET", "HEAD", "OPTIONS"},
	"rest.cors.allowedHeaders":   []string{},
	"rest.cors.allowCredentials": false,

	"rest.tls.enabled":  false,
	"rest.tls.certFile": "",
	"rest.tls.keyFile":  "",

	"log.level":       "info",
	"log.development": false,

	"metrics.enabled": false,
	"metrics.addr":    ":9100",
	"metrics.path":    "/metrics",

	"fetch.timeout":    30 * time.Second,
	"fetch.maxRetries": 3,
}

// Load reads config from file, environment and flags, in increasing order of precedence.
// Flags are bound by name, so a flag called "rest.listenAddr" overrides that key when set.
func Load(cfgFile string, flags ...*pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("magicapi")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config"))
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, fs := range flags {
		if fs == nil {
			continue
		}
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values no component can default.
func (c *Config) Validate() error {
	var errs []error
	if c.DataPackage == "" {
		errs = append(errs, errors.New("datapackage is required"))
	}
	if c.Backend.Name == "" {
		errs = append(errs, errors.New("backend.name is required"))
	}
	if c.REST.PerPage < 0 {
		errs = append(errs, fmt.Errorf("rest.perPage must not be negative, got %d", c.REST.PerPage))
	}
	if c.Fetch.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("fetch.maxRetries must not be negative, got %d", c.Fetch.MaxRetries))
	}
	if (c.REST.TLS.CertFile == "") != (c.REST.TLS.KeyFile == "") {
		errs = append(errs, errors.New("rest.tls.certFile and rest.tls.keyFile must be set together"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
