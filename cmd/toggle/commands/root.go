package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	toggle "github.com/hyphen/toggle-openfeature-go"
)

var (
	// Global flags
	cfgFile  string
	envFile  string
	logLevel string
	format   string

	v = viper.New()
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Evaluate Hyphen Toggle feature flags from the command line",
	Long: `toggle evaluates Hyphen Toggle feature flags through the OpenFeature provider.

Configuration is read, in increasing precedence, from HYPHEN_* variables in a
.env file, the environment, an optional config file and command line flags.

Examples:
  toggle eval new-checkout --type bool --targeting-key user-123
  toggle eval theme --type string --targeting-key user-123 --attr plan=pro
  toggle watch --targeting-key user-123 --flag new-checkout --metrics-addr :9090
  toggle urls`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig(cmd)
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (yaml, json or toml)")
	pf.StringVar(&envFile, "env-file", ".env", "Dotenv file loaded before reading the environment")
	pf.StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	pf.StringVar(&format, "format", "text", "Output format (text, json, yaml)")

	pf.String("public-key", "", "Toggle public key (HYPHEN_PUBLIC_KEY)")
	pf.String("application", "", "Application id (HYPHEN_APPLICATION)")
	pf.String("environment", "", "Environment (HYPHEN_ENVIRONMENT)")
	pf.StringSlice("custom-urls", nil, "Base URLs replacing the hosted service (HYPHEN_CUSTOM_URLS)")
	pf.Duration("timeout", 0, "Per request timeout (HYPHEN_NETWORK_TIMEOUT)")
	pf.Int("max-retries", 0, "Attempts per fetch (HYPHEN_NETWORK_MAX_RETRIES)")
	pf.Duration("cache-ttl", 0, "Bundle time to live (HYPHEN_NETWORK_CACHE_TTL)")
	pf.Bool("telemetry", true, "Report flag usage (HYPHEN_ENABLE_TOGGLE_USAGE)")
}

// initConfig loads the dotenv file and binds flags and the optional config
// file into viper.
func initConfig(cmd *cobra.Command) error {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", envFile, err)
	}

	v.SetEnvPrefix(strings.TrimSuffix(toggle.EnvPrefix, "_"))
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	}
	return nil
}

// newLogger returns a colored stderr logger at the configured level.
func newLogger() *slog.Logger {
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      toggle.ParseLogLevel(v.GetString("log-level")),
		TimeFormat: time.TimeOnly,
	}))
}

// providerConfig is loadConfig followed by validation.
func providerConfig() (toggle.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return toggle.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return toggle.Config{}, err
	}
	return cfg, nil
}

// loadConfig starts from HYPHEN_* variables and applies values set through
// flags or the config file on top.
func loadConfig() (toggle.Config, error) {
	cfg, err := toggle.ConfigFromEnv()
	if err != nil {
		return toggle.Config{}, err
	}

	if s := v.GetString("public-key"); s != "" {
		cfg.PublicKey = s
	}
	if s := v.GetString("application"); s != "" {
		cfg.Application = s
	}
	if s := v.GetString("environment"); s != "" {
		cfg.Environment = s
	}
	if urls := v.GetStringSlice("custom-urls"); len(urls) > 0 {
		cfg.CustomURLs = urls
	}
	if d := v.GetDuration("timeout"); d > 0 {
		cfg.Network.Timeout = d
	}
	if n := v.GetInt("max-retries"); n > 0 {
		cfg.Network.MaxRetries = n
	}
	if d := v.GetDuration("cache-ttl"); d > 0 {
		cfg.Network.CacheTTL = d
	}
	if rootCmd.PersistentFlags().Changed("telemetry") || v.InConfig("telemetry") {
		cfg.EnableToggleUsage = v.GetBool("telemetry")
	}
	return cfg, nil
}
