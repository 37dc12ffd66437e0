package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/crypto/bcrypt"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Registrar RegistrarConfig   `yaml:"registrar"`
	RateLimit RateLimitConfig   `yaml:"ratelimit"`
	Resolver  ResolverConfig    `yaml:"resolver"`
	Crawler   CrawlerConfig     `yaml:"crawler"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Registrar.Validate(); err != nil {
		return err
	}
	if err := c.RateLimit.Validate(); err != nil {
		return err
	}
	if err := c.Resolver.Validate(); err != nil {
		return err
	}
	return c.Crawler.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// RegistrarConfig holds secret hashing settings.
type RegistrarConfig struct {
	BcryptCost int `yaml:"bcrypt_cost"`
}

// Validate validates the registrar configuration.
func (c *RegistrarConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BcryptCost, validation.Required, validation.Min(bcrypt.MinCost), validation.Max(bcrypt.MaxCost)),
	)
}

// RateLimitConfig limits mutating API calls per client IP. Burst 0
// disables the limiter.
type RateLimitConfig struct {
	Burst        int  `yaml:"burst"`
	RefillPerMin int  `yaml:"refill_per_min"`
	MaxEntries   int  `yaml:"max_entries"`
	TrustProxy   bool `yaml:"trust_proxy"`
}

// Validate validates the rate limit configuration.
func (c *RateLimitConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Burst, validation.Min(0)),
		validation.Field(&c.RefillPerMin, validation.When(c.Burst > 0, validation.Required, validation.Min(1))),
		validation.Field(&c.MaxEntries, validation.Min(0)),
	)
}

// ResolverConfig controls how names are resolved.
//
// RegistrarURL is used by the CLI commands and by `mcp --remote`. Retries
// applies to document fetches and to idempotent registrar reads. A zero
// CacheTTL, the default, looks every name up again so edits and deletes
// are seen at once. An empty AssetsDir serves only the bundled system-name
// pages.
type ResolverConfig struct {
	RegistrarURL string        `yaml:"registrar_url"`
	Timeout      time.Duration `yaml:"timeout"`
	Retries      int           `yaml:"retries"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	MaxBody      int64         `yaml:"max_body"`
	AssetsDir    string        `yaml:"assets_dir"`
}

// Validate validates the resolver configuration.
func (c *ResolverConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.RegistrarURL, validation.Required),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.Retries, validation.Min(0), validation.Max(5)),
		validation.Field(&c.CacheTTL, validation.Min(time.Duration(0))),
		validation.Field(&c.MaxBody, validation.Required, validation.Min(int64(1))),
	)
}

// CrawlerConfig controls background content indexing.
type CrawlerConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// Validate validates the crawler configuration.
func (c *CrawlerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Interval, validation.When(c.Enabled, validation.Required, validation.Min(time.Second))),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./virt.db",
		},
		Registrar: RegistrarConfig{
			BcryptCost: bcrypt.DefaultCost,
		},
		RateLimit: RateLimitConfig{
			Burst:        10,
			RefillPerMin: 30,
			MaxEntries:   10000,
		},
		Resolver: ResolverConfig{
			RegistrarURL: "http://localhost:8080/api",
			Timeout:      5 * time.Second,
			Retries:      1,
			MaxBody:      10 << 20,
		},
		Crawler: CrawlerConfig{
			Enabled:  true,
			Interval: time.Hour,
		},
	}
}
