package loader

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"popreport/pkg/cachestore"
	"popreport/pkg/confkit"
	"popreport/pkg/dataset"
)

// Config describes where shards live and how aggressively they are fetched.
type Config struct {
	BaseURL         string   `yaml:"base_url"`
	ManifestVersion int      `yaml:"manifest_version"`
	Currency        string   `yaml:"currency"`
	Prefetch        []string `yaml:"prefetch"`
	MaxConcurrent   int      `yaml:"max_concurrent"`
	RecentWindow    int      `yaml:"recent_window"`

	HTTPTimeoutRaw string        `yaml:"http_timeout"`
	HTTPTimeout    time.Duration `yaml:"-"`
	MaxRetries     *int          `yaml:"max_retries"`
}

// LoadConfig reads loader configuration from disk.
func LoadConfig(path string) (*Config, error) {
	confkit.LoadDotenvOnce()
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open loader config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// MustLoad reads loader configuration from the default project location and panics on error.
func MustLoad() *Config {
	cfg, err := LoadConfig(confkit.MustProjectPath("etc/loader.yaml"))
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadConfigFromReader constructs a Config from an io.Reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	confkit.LoadDotenvOnce()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read loader config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal loader config: %w", err)
	}
	if err := cfg.normalise(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalise() error {
	c.BaseURL = strings.TrimSpace(os.ExpandEnv(c.BaseURL))
	c.Currency = strings.TrimSpace(os.ExpandEnv(c.Currency))
	c.HTTPTimeoutRaw = strings.TrimSpace(os.ExpandEnv(c.HTTPTimeoutRaw))

	if c.Currency == "" {
		c.Currency = defaultCurrency
	}
	if cur, err := dataset.NormalizeCurrency(c.Currency); err == nil {
		c.Currency = cur
	}
	prefetch := make([]string, 0, len(c.Prefetch))
	for _, raw := range c.Prefetch {
		cur, err := dataset.NormalizeCurrency(os.ExpandEnv(raw))
		if err != nil {
			return fmt.Errorf("loader config: prefetch: %w", err)
		}
		if cur != c.Currency {
			prefetch = append(prefetch, cur)
		}
	}
	c.Prefetch = prefetch

	if c.ManifestVersion == 0 {
		c.ManifestVersion = defaultManifestVersion
	}
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = defaultMaxConcurrent
	}
	if c.RecentWindow == 0 {
		c.RecentWindow = defaultRecentWindow
	}
	if c.MaxRetries == nil {
		n := defaultMaxRetries
		c.MaxRetries = &n
	}

	c.HTTPTimeout = defaultHTTPTimeout
	if c.HTTPTimeoutRaw != "" {
		d, err := time.ParseDuration(c.HTTPTimeoutRaw)
		if err != nil {
			return fmt.Errorf("loader config: invalid http_timeout %q: %w", c.HTTPTimeoutRaw, err)
		}
		if d <= 0 {
			return fmt.Errorf("loader config: http_timeout must be positive, got %s", d)
		}
		c.HTTPTimeout = d
	}
	return nil
}

// Validate ensures the configuration is structurally sound.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("loader config: base_url is required")
	}
	if _, err := dataset.NormalizeCurrency(c.Currency); err != nil {
		return fmt.Errorf("loader config: currency: %w", err)
	}
	if c.ManifestVersion < 1 {
		return fmt.Errorf("loader config: manifest_version must be >= 1, got %d", c.ManifestVersion)
	}
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("loader config: max_concurrent must be >= 1, got %d", c.MaxConcurrent)
	}
	if c.RecentWindow < 1 {
		return fmt.Errorf("loader config: recent_window must be >= 1, got %d", c.RecentWindow)
	}
	if c.MaxRetries != nil && *c.MaxRetries < 0 {
		return fmt.Errorf("loader config: max_retries cannot be negative, got %d", *c.MaxRetries)
	}
	return nil
}

// BuildClient instantiates the shard client described by the configuration.
func (c *Config) BuildClient(opts ...ClientOption) (*Client, error) {
	base := []ClientOption{
		WithManifestVersion(c.ManifestVersion),
		WithHTTPTimeout(c.HTTPTimeout),
	}
	if c.MaxRetries != nil {
		base = append(base, WithMaxRetries(*c.MaxRetries))
	}
	return NewClient(c.BaseURL, append(base, opts...)...)
}

// BuildLoader instantiates a Loader for the configured primary currency.
func (c *Config) BuildLoader(cache *cachestore.Store, opts ...Option) (*Loader, error) {
	client, err := c.BuildClient()
	if err != nil {
		return nil, err
	}
	base := []Option{
		WithCurrency(c.Currency),
		WithMaxConcurrent(c.MaxConcurrent),
		WithRecentWindow(c.RecentWindow),
	}
	return New(client, cache, append(base, opts...)...)
}
