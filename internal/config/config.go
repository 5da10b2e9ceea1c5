// Package config loads the client's settings from an optional YAML file,
// a .env file and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/HamedDawoudzai/hybrid-exchange/internal/refresh"
)

// FileEnv names the YAML file to read before the environment.
const FileEnv = "TRADECLIENT_CONFIG"

type Config struct {
	APIBaseURL        string             `yaml:"api_base_url"`
	Port              string             `yaml:"port"`
	RedisURL          string             `yaml:"redis_url"`
	DatabaseURL       string             `yaml:"database_url"`
	MigrationsPath    string             `yaml:"migrations_path"`
	PricePollInterval time.Duration      `yaml:"price_poll_interval"`
	SymbolDebounce    time.Duration      `yaml:"symbol_debounce"`
	RequestTimeout    time.Duration      `yaml:"request_timeout"`
	RateLimitRPS      float64            `yaml:"rate_limit_rps"`
	RateLimitBurst    int                `yaml:"rate_limit_burst"`
	TrackInterval     time.Duration      `yaml:"track_interval"`
	CORSOrigins       []string           `yaml:"cors_origins"`
	LogLevel          string             `yaml:"log_level"`
	Stale             refresh.StaleTimes `yaml:"stale"`
}

func Default() Config {
	return Config{
		APIBaseURL:        "http://localhost:8080/api",
		Port:              "8090",
		MigrationsPath:    "migrations",
		PricePollInterval: 10 * time.Second,
		SymbolDebounce:    400 * time.Millisecond,
		RequestTimeout:    15 * time.Second,
		RateLimitRPS:      20,
		RateLimitBurst:    10,
		TrackInterval:     5 * time.Second,
		CORSOrigins:       []string{"http://localhost:5173"},
		LogLevel:          "info",
		Stale:             refresh.DefaultStaleTimes(),
	}
}

// Load reads the YAML file named by TRADECLIENT_CONFIG if set, then .env,
// then the environment. The result is validated.
func Load() (Config, error) {
	_ = godotenv.Load()
	cfg := Default()
	if path := os.Getenv(FileEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("API_BASE_URL", &c.APIBaseURL)
	str("PORT", &c.Port)
	str("REDIS_URL", &c.RedisURL)
	str("DATABASE_URL", &c.DatabaseURL)
	str("MIGRATIONS_PATH", &c.MigrationsPath)
	str("LOG_LEVEL", &c.LogLevel)
	dur("PRICE_POLL_INTERVAL", &c.PricePollInterval)
	dur("SYMBOL_DEBOUNCE", &c.SymbolDebounce)
	dur("REQUEST_TIMEOUT", &c.RequestTimeout)
	dur("TRACK_INTERVAL", &c.TrackInterval)
	dur("STALE_ACCOUNT", &c.Stale.Account)
	dur("STALE_PORTFOLIOS", &c.Stale.Portfolios)
	dur("STALE_PORTFOLIO", &c.Stale.Portfolio)
	dur("STALE_ORDERS", &c.Stale.Orders)
	dur("STALE_CONDITIONAL", &c.Stale.Conditional)
	dur("STALE_WATCHLIST", &c.Stale.Watchlist)
	dur("STALE_ASSETS", &c.Stale.Assets)
	dur("STALE_PRICE", &c.Stale.Price)

	if v, ok := lookup("RATE_LIMIT_RPS"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS: %w", err))
		} else {
			c.RateLimitRPS = f
		}
	}
	if v, ok := lookup("RATE_LIMIT_BURST"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("RATE_LIMIT_BURST: %w", err))
		} else {
			c.RateLimitBurst = n
		}
	}
	if v, ok := lookup("CORS_ORIGINS"); ok && v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.CORSOrigins = origins
	}
	return errors.Join(errs...)
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	if u, err := url.Parse(c.APIBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("api_base_url %q is not an absolute URL", c.APIBaseURL))
	}
	if p, err := strconv.Atoi(c.Port); err != nil || p <= 0 || p > 65535 {
		errs = append(errs, fmt.Errorf("port %q is not a valid port", c.Port))
	}
	if c.PricePollInterval <= 0 {
		errs = append(errs, errors.New("price_poll_interval must be positive"))
	}
	if c.SymbolDebounce < 0 {
		errs = append(errs, errors.New("symbol_debounce must not be negative"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request_timeout must be positive"))
	}
	if c.TrackInterval <= 0 {
		errs = append(errs, errors.New("track_interval must be positive"))
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("rate limit rps and burst must be positive"))
	}
	for name, d := range map[string]time.Duration{
		"account": c.Stale.Account, "portfolios": c.Stale.Portfolios, "portfolio": c.Stale.Portfolio,
		"orders": c.Stale.Orders, "conditional": c.Stale.Conditional, "watchlist": c.Stale.Watchlist,
		"assets": c.Stale.Assets, "price": c.Stale.Price,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("stale.%s must not be negative", name))
		}
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level %q: %w", c.LogLevel, err)
	}
	return l, nil
}
