package toggle

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/prometheus/client_golang/prometheus"
)

// EnvPrefix prefixes every variable read by ConfigFromEnv.
const EnvPrefix = "HYPHEN_"

// NetworkOptions control how the provider talks to the Toggle service.
type NetworkOptions struct {
	// UseCellularOrMeteredAccess is carried for parity with mobile clients
	// and reported in diagnostics. Go's HTTP client has no metered mode.
	UseCellularOrMeteredAccess bool `env:"USE_METERED_ACCESS" envDefault:"true"`

	// Timeout bounds each HTTP request.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`

	// MaxRetries is the number of attempts, each covering every candidate URL.
	MaxRetries int `env:"MAX_RETRIES" envDefault:"3"`

	// RetryBaseDelay is raised to the attempt number to get the wait
	// before the next attempt.
	RetryBaseDelay time.Duration `env:"RETRY_BASE_DELAY" envDefault:"500ms"`

	// CacheTTL is how long an evaluation bundle stays fresh.
	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"5m"`
}

// DefaultNetworkOptions returns the defaults: metered access allowed, 10s
// timeout, 3 attempts, 500ms base delay and a 5 minute cache.
func DefaultNetworkOptions() NetworkOptions {
	return NetworkOptions{
		UseCellularOrMeteredAccess: true,
		Timeout:                    10 * time.Second,
		MaxRetries:                 3,
		RetryBaseDelay:             500 * time.Millisecond,
		CacheTTL:                   5 * time.Minute,
	}
}

// BuildInfo supplies the diagnostic attributes attached to every context.
type BuildInfo struct {
	BundleIdentifier   string `env:"BUNDLE_IDENTIFIER"`
	BuildConfiguration string `env:"CONFIGURATION"`
	AppVersion         string `env:"APP_VERSION"`
	BuildVersion       string `env:"VERSION"`
}

// DefaultBuildInfo reads the running binary's module path, version and VCS
// revision. The build configuration defaults to RELEASE.
func DefaultBuildInfo() BuildInfo {
	info := BuildInfo{BuildConfiguration: BuildRelease}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	info.BundleIdentifier = bi.Main.Path
	if bi.Main.Version != "(devel)" {
		info.AppVersion = bi.Main.Version
	}
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" {
			info.BuildVersion = s.Value
		}
	}
	return info
}

func (b BuildInfo) withDefaults(d BuildInfo) BuildInfo {
	if b.BundleIdentifier == "" {
		b.BundleIdentifier = d.BundleIdentifier
	}
	if b.BuildConfiguration == "" {
		b.BuildConfiguration = d.BuildConfiguration
	}
	if b.AppVersion == "" {
		b.AppVersion = d.AppVersion
	}
	if b.BuildVersion == "" {
		b.BuildVersion = d.BuildVersion
	}
	return b
}

// Config is the provider configuration.
type Config struct {
	// PublicKey authenticates requests and encodes the organization id.
	PublicKey string `env:"PUBLIC_KEY"`

	// Application and Environment are sent with every context.
	Application string `env:"APPLICATION"`
	Environment string `env:"ENVIRONMENT"`

	// CustomURLs replace the derived service URLs, tried in order.
	CustomURLs []string `env:"CUSTOM_URLS" envSeparator:","`

	// EnableToggleUsage turns telemetry reporting on.
	EnableToggleUsage bool `env:"ENABLE_TOGGLE_USAGE" envDefault:"true"`

	// RefreshOnStale re-evaluates the last context in the background when
	// a read observes an expired bundle.
	RefreshOnStale bool `env:"REFRESH_ON_STALE" envDefault:"true"`

	Network NetworkOptions `envPrefix:"NETWORK_"`
	Build   BuildInfo      `envPrefix:"BUILD_"`

	logger     *slog.Logger
	httpClient *http.Client
	registerer prometheus.Registerer
	now        func() time.Time
}

// DefaultConfig returns a configuration with default network options and
// telemetry and stale refresh enabled. PublicKey, Application and
// Environment must still be set.
func DefaultConfig() Config {
	return Config{
		EnableToggleUsage: true,
		RefreshOnStale:    true,
		Network:           DefaultNetworkOptions(),
	}
}

// ConfigFromEnv reads HYPHEN_* variables, for example HYPHEN_PUBLIC_KEY,
// HYPHEN_CUSTOM_URLS (comma separated) and HYPHEN_NETWORK_CACHE_TTL.
func ConfigFromEnv() (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Prefix: EnvPrefix})
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// ConfigError reports an invalid configuration field.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Message)
}

// Validate checks required fields and network option ranges.
func (c Config) Validate() error {
	switch {
	case c.PublicKey == "":
		return &ConfigError{Field: "PublicKey", Message: "is required"}
	case c.Application == "":
		return &ConfigError{Field: "Application", Message: "is required"}
	case c.Environment == "":
		return &ConfigError{Field: "Environment", Message: "is required"}
	case c.Network.MaxRetries < 1:
		return &ConfigError{Field: "Network.MaxRetries", Message: "must be at least 1"}
	case c.Network.Timeout <= 0:
		return &ConfigError{Field: "Network.Timeout", Message: "must be positive"}
	case c.Network.RetryBaseDelay < 0:
		return &ConfigError{Field: "Network.RetryBaseDelay", Message: "must not be negative"}
	case c.Network.CacheTTL < 0:
		return &ConfigError{Field: "Network.CacheTTL", Message: "must not be negative"}
	}
	return nil
}

// Option configures a Provider.
type Option func(*Config)

// WithLogger sets the logger for the provider and its components.
// If not set, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.logger = logger }
}

// WithNetworkOptions replaces the network options.
func WithNetworkOptions(opts NetworkOptions) Option {
	return func(c *Config) { c.Network = opts }
}

// WithCustomURLs sets base URLs used instead of the derived service URLs.
func WithCustomURLs(urls ...string) Option {
	return func(c *Config) { c.CustomURLs = append([]string(nil), urls...) }
}

// WithHTTPClient sets the HTTP client. The default client is instrumented
// with OpenTelemetry.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) { c.httpClient = client }
}

// WithUsageTelemetry turns telemetry reporting on or off.
func WithUsageTelemetry(enabled bool) Option {
	return func(c *Config) { c.EnableToggleUsage = enabled }
}

// WithRefreshOnStale turns background refresh of expired bundles on or off.
func WithRefreshOnStale(enabled bool) Option {
	return func(c *Config) { c.RefreshOnStale = enabled }
}

// WithMetricsRegisterer registers the provider's Prometheus collectors on r.
// Without it the collectors live in a private registry.
func WithMetricsRegisterer(r prometheus.Registerer) Option {
	return func(c *Config) { c.registerer = r }
}

// WithBuildInfo overrides the diagnostic attributes. Empty fields keep the
// values read from the binary.
func WithBuildInfo(info BuildInfo) Option {
	return func(c *Config) { c.Build = info }
}
