// Package config loads the kernel core's boot-time configuration: which
// domain images to load at which names and kinds, the static device-space
// table, logging level, and the ambient observability/persistence
// backends. It is read once at boot and handed down by value/handle, the
// same top-down wiring discipline the rest of this repo follows.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/oriys/domaincore/internal/domain"
)

// DomainSpec names one domain image to load at boot: the peer-visible
// name, its capability kind, the path to its image bytes, and the
// registered driver its image header resolves to.
type DomainSpec struct {
	Name   string      `yaml:"name"`
	Kind   domain.Kind `yaml:"kind"`
	Image  string      `yaml:"image"`
	Driver string      `yaml:"driver"`
}

// HartConfig controls the fixed-size continuation hart pool.
type HartConfig struct {
	Count int `yaml:"count"`
}

// LoggingConfig controls the structured console/op logger.
type LoggingConfig struct {
	Level     string `yaml:"level"`      // debug, info, warn, error
	MirrorDir string `yaml:"mirror_dir"` // loaded from YAML but not read by cmd/kerneld; console mirroring is set only via klog.Console.SetMirrorFile
}

// TracingConfig holds OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	Addr      string `yaml:"addr"`
}

// ControlConfig holds the control-plane HTTP/health listener settings.
type ControlConfig struct {
	Enabled    bool   `yaml:"enabled"`
	HTTPAddr   string `yaml:"http_addr"`
	HealthAddr string `yaml:"health_addr"`
}

// AuditConfig holds crash/restart audit-log persistence settings.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// RegistryCacheConfig holds the optional Redis-backed device-space cache.
type RegistryCacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// BoundaryConfig holds the AF_VSOCK GPU boundary settings.
type BoundaryConfig struct {
	Enabled   bool `yaml:"enabled"`
	ContextID uint32 `yaml:"context_id"`
	Port      uint32 `yaml:"port"`
}

// ImageSourceConfig holds the optional S3-backed domain-image fetch
// settings, used when a DomainSpec's Image field is an s3:// URL.
type ImageSourceConfig struct {
	Enabled bool   `yaml:"enabled"`
	Region  string `yaml:"region"`
	Bucket  string `yaml:"bucket"`
	// AccessKeyID/SecretAccessKey pin the source to explicit static
	// credentials (e.g. a MinIO dev instance) instead of the default AWS
	// provider chain. Both are empty by default, which leaves discovery
	// to the environment/instance role.
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// Config is the kernel core's top-level boot configuration.
type Config struct {
	Harts         HartConfig          `yaml:"harts"`
	PagesTotal    uint64              `yaml:"pages_total"`
	Domains       []DomainSpec        `yaml:"domains"`
	DeviceSpace   []domain.DeviceSpaceEntry `yaml:"device_space"`
	DTBPath       string              `yaml:"dtb_path"`
	Logging       LoggingConfig       `yaml:"logging"`
	Tracing       TracingConfig       `yaml:"tracing"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Control       ControlConfig       `yaml:"control"`
	Audit         AuditConfig         `yaml:"audit"`
	RegistryCache RegistryCacheConfig `yaml:"registry_cache"`
	Boundary      BoundaryConfig      `yaml:"boundary"`
	ImageSource   ImageSourceConfig   `yaml:"image_source"`
}

// DefaultConfig returns a Config with sensible defaults for a single-node
// boot with no external backends enabled.
func DefaultConfig() *Config {
	return &Config{
		Harts:      HartConfig{Count: 4},
		PagesTotal: 1 << 16,
		Logging: LoggingConfig{
			Level: "info",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Endpoint:    "localhost:4318",
			ServiceName: "domaincore",
			SampleRate:  1.0,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "domaincore",
			Addr:      ":9100",
		},
		Control: ControlConfig{
			Enabled:    true,
			HTTPAddr:   ":7070",
			HealthAddr: ":7071",
		},
		Audit: AuditConfig{
			Enabled: false,
		},
		RegistryCache: RegistryCacheConfig{
			Enabled: false,
			Addr:    "localhost:6379",
		},
		Boundary: BoundaryConfig{
			Enabled: false,
			Port:    9999,
		},
		ImageSource: ImageSourceConfig{
			Enabled: false,
		},
	}
}

// LoadFromFile loads configuration from a YAML file, starting from
// DefaultConfig so an omitted section keeps its default.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromEnv applies environment variable overrides to cfg, mirroring
// the DOMAINCORE_* convention.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("DOMAINCORE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DOMAINCORE_HARTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Harts.Count = n
		}
	}
	if v := os.Getenv("DOMAINCORE_PAGES_TOTAL"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.PagesTotal = n
		}
	}
	if v := os.Getenv("DOMAINCORE_TRACING_ENABLED"); v != "" {
		cfg.Tracing.Enabled = parseBool(v)
	}
	if v := os.Getenv("DOMAINCORE_TRACING_ENDPOINT"); v != "" {
		cfg.Tracing.Endpoint = v
	}
	if v := os.Getenv("DOMAINCORE_TRACING_SAMPLE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Tracing.SampleRate = f
		}
	}
	if v := os.Getenv("DOMAINCORE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("DOMAINCORE_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("DOMAINCORE_CONTROL_HTTP_ADDR"); v != "" {
		cfg.Control.HTTPAddr = v
	}
	if v := os.Getenv("DOMAINCORE_CONTROL_HEALTH_ADDR"); v != "" {
		cfg.Control.HealthAddr = v
	}
	if v := os.Getenv("DOMAINCORE_AUDIT_ENABLED"); v != "" {
		cfg.Audit.Enabled = parseBool(v)
	}
	if v := os.Getenv("DOMAINCORE_AUDIT_DSN"); v != "" {
		cfg.Audit.DSN = v
		cfg.Audit.Enabled = true
	}
	if v := os.Getenv("DOMAINCORE_REGISTRY_CACHE_ENABLED"); v != "" {
		cfg.RegistryCache.Enabled = parseBool(v)
	}
	if v := os.Getenv("DOMAINCORE_REGISTRY_CACHE_ADDR"); v != "" {
		cfg.RegistryCache.Addr = v
	}
	if v := os.Getenv("DOMAINCORE_BOUNDARY_ENABLED"); v != "" {
		cfg.Boundary.Enabled = parseBool(v)
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes"
}

// HartPoolSize returns the configured hart count, defaulting to 1 if the
// configuration specifies a non-positive value.
func (c *Config) HartPoolSize() int {
	if c.Harts.Count < 1 {
		return 1
	}
	return c.Harts.Count
}
