package toggle

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing public key", func(c *Config) { c.PublicKey = "" }, "PublicKey"},
		{"missing application", func(c *Config) { c.Application = "" }, "Application"},
		{"missing environment", func(c *Config) { c.Environment = "" }, "Environment"},
		{"zero retries", func(c *Config) { c.Network.MaxRetries = 0 }, "Network.MaxRetries"},
		{"zero timeout", func(c *Config) { c.Network.Timeout = 0 }, "Network.Timeout"},
		{"negative base delay", func(c *Config) { c.Network.RetryBaseDelay = -time.Second }, "Network.RetryBaseDelay"},
		{"negative ttl", func(c *Config) { c.Network.CacheTTL = -time.Second }, "Network.CacheTTL"},
		{"zero ttl", func(c *Config) { c.Network.CacheTTL = 0 }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.True(t, cfg.EnableToggleUsage)
	assert.True(t, cfg.RefreshOnStale)
	assert.Equal(t, DefaultNetworkOptions(), cfg.Network)
	assert.Equal(t, 10*time.Second, cfg.Network.Timeout)
	assert.Equal(t, 3, cfg.Network.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Network.RetryBaseDelay)
	assert.Equal(t, 5*time.Minute, cfg.Network.CacheTTL)

	var cfgErr *ConfigError
	assert.ErrorAs(t, cfg.Validate(), &cfgErr, "defaults lack credentials")
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("HYPHEN_PUBLIC_KEY", testPublicKey)
	t.Setenv("HYPHEN_APPLICATION", "checkout")
	t.Setenv("HYPHEN_ENVIRONMENT", "staging")
	t.Setenv("HYPHEN_CUSTOM_URLS", "https://a.example.com,https://b.example.com")
	t.Setenv("HYPHEN_ENABLE_TOGGLE_USAGE", "false")
	t.Setenv("HYPHEN_NETWORK_CACHE_TTL", "90s")
	t.Setenv("HYPHEN_BUILD_APP_VERSION", "4.5.6")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, testPublicKey, cfg.PublicKey)
	assert.Equal(t, "checkout", cfg.Application)
	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CustomURLs)
	assert.False(t, cfg.EnableToggleUsage)
	assert.True(t, cfg.RefreshOnStale, "default applies")
	assert.Equal(t, 90*time.Second, cfg.Network.CacheTTL)
	assert.Equal(t, 10*time.Second, cfg.Network.Timeout, "default applies")
	assert.Equal(t, 3, cfg.Network.MaxRetries, "default applies")
	assert.Equal(t, "4.5.6", cfg.Build.AppVersion)
	assert.NoError(t, cfg.Validate())
}

func TestConfigFromEnvInvalidValue(t *testing.T) {
	t.Setenv("HYPHEN_NETWORK_TIMEOUT", "soon")

	_, err := ConfigFromEnv()
	assert.ErrorContains(t, err, "parse environment")
}

func TestOptions(t *testing.T) {
	reg := prometheus.NewRegistry()
	client := &http.Client{}
	urls := []string{"https://toggle.example.com"}
	net := NetworkOptions{Timeout: time.Second, MaxRetries: 1, CacheTTL: time.Minute}

	cfg := testConfig()
	for _, opt := range []Option{
		WithLogger(quietLogger()),
		WithHTTPClient(client),
		WithCustomURLs(urls...),
		WithNetworkOptions(net),
		WithUsageTelemetry(false),
		WithRefreshOnStale(false),
		WithMetricsRegisterer(reg),
		WithBuildInfo(BuildInfo{AppVersion: "9.9.9"}),
	} {
		opt(&cfg)
	}
	urls[0] = "mutated"

	assert.NotNil(t, cfg.logger)
	assert.Same(t, client, cfg.httpClient)
	assert.Equal(t, []string{"https://toggle.example.com"}, cfg.CustomURLs, "custom URLs are copied")
	assert.Equal(t, net, cfg.Network)
	assert.False(t, cfg.EnableToggleUsage)
	assert.False(t, cfg.RefreshOnStale)
	assert.Equal(t, reg, cfg.registerer)
	assert.Equal(t, "9.9.9", cfg.Build.AppVersion)
}

func TestBuildInfoDefaults(t *testing.T) {
	info := BuildInfo{AppVersion: "1.0.0"}.withDefaults(BuildInfo{
		BundleIdentifier:   "example.com/app",
		BuildConfiguration: BuildRelease,
		AppVersion:         "0.0.1",
		BuildVersion:       "deadbeef",
	})

	assert.Equal(t, BuildInfo{
		BundleIdentifier:   "example.com/app",
		BuildConfiguration: BuildRelease,
		AppVersion:         "1.0.0",
		BuildVersion:       "deadbeef",
	}, info)
	assert.Equal(t, BuildRelease, DefaultBuildInfo().BuildConfiguration)
}
