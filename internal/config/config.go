package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/everstacklabs/pricewatch/internal/httpclient"
	"github.com/everstacklabs/pricewatch/internal/openrouter"
)

// Output formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Config holds all configuration for a harvest run.
type Config struct {
	Providers   []string `mapstructure:"providers"`
	Concurrency int      `mapstructure:"concurrency"`
	Retries     int      `mapstructure:"retries"`
	TimeoutMs   int      `mapstructure:"timeout_ms"`
	Limit       int      `mapstructure:"limit"` // 0 means no limit
	DryRun      bool     `mapstructure:"dry_run"`
	OutDir      string   `mapstructure:"out_dir"`
	Format      string   `mapstructure:"format"`
	BaseURL     string   `mapstructure:"base_url"`
	UserAgent   string   `mapstructure:"user_agent"`
	RateLimit   float64  `mapstructure:"rate_limit"` // requests per second, 0 disables
	LogLevel    string   `mapstructure:"log_level"`
	LogFormat   string   `mapstructure:"log_format"`
}

// ConfigError reports an invalid setting.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// DefaultProviders are harvested when none are configured.
var DefaultProviders = []string{"mistral", "nebius"}

const (
	DefaultConcurrency = 8
	DefaultRetries     = 3
	DefaultTimeoutMs   = 20000
	MinTimeoutMs       = 1000
)

// Load reads configuration from file, environment, flags and defaults.
// Flags that were set on the command line take precedence.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("providers", DefaultProviders)
	v.SetDefault("concurrency", DefaultConcurrency)
	v.SetDefault("retries", DefaultRetries)
	v.SetDefault("timeout_ms", DefaultTimeoutMs)
	v.SetDefault("limit", 0)
	v.SetDefault("dry_run", false)
	v.SetDefault("out_dir", "data")
	v.SetDefault("format", FormatJSON)
	v.SetDefault("base_url", openrouter.DefaultBaseURL)
	v.SetDefault("user_agent", httpclient.DefaultUserAgent)
	v.SetDefault("rate_limit", 0)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("pricewatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/pricewatch")
	}

	// Environment variables
	v.SetEnvPrefix("PRICEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Providers = NormalizeProviders(cfg.Providers)
	cfg.Format = strings.ToLower(strings.TrimSpace(cfg.Format))

	if cfg.OutDir != "" && !filepath.IsAbs(cfg.OutDir) {
		abs, err := filepath.Abs(cfg.OutDir)
		if err != nil {
			return nil, fmt.Errorf("resolving out dir: %w", err)
		}
		cfg.OutDir = abs
	}

	return &cfg, nil
}

// bindFlags maps kebab-case flags onto snake_case keys.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if err != nil || f.Name == "config" {
			return
		}
		key := strings.ReplaceAll(f.Name, "-", "_")
		if bindErr := v.BindPFlag(key, f); bindErr != nil {
			err = fmt.Errorf("binding flag %s: %w", f.Name, bindErr)
		}
	})
	return err
}

// NormalizeProviders trims, lower-cases and de-duplicates provider names,
// keeping first-seen order. Comma-separated entries are split.
func NormalizeProviders(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, raw := range in {
		for _, p := range strings.Split(raw, ",") {
			p = strings.ToLower(strings.TrimSpace(p))
			if p == "" || seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the settings the harvest depends on. It performs no I/O.
func (c *Config) Validate() error {
	switch {
	case len(c.Providers) == 0:
		return &ConfigError{"providers", "must include at least one provider name"}
	case c.Concurrency < 1:
		return &ConfigError{"concurrency", "must be an integer >= 1"}
	case c.Retries < 0:
		return &ConfigError{"retries", "must be an integer >= 0"}
	case c.TimeoutMs < MinTimeoutMs:
		return &ConfigError{"timeout_ms", fmt.Sprintf("must be an integer >= %d", MinTimeoutMs)}
	case c.Limit < 0:
		return &ConfigError{"limit", "must be an integer >= 1 (or 0 for no limit)"}
	case c.RateLimit < 0:
		return &ConfigError{"rate_limit", "must be >= 0"}
	case c.Format != FormatJSON && c.Format != FormatYAML:
		return &ConfigError{"format", fmt.Sprintf("must be %q or %q", FormatJSON, FormatYAML)}
	}
	return nil
}

// Timeout is the per-attempt request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}
