package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	FetcherHTTP    = "http"
	FetcherBrowser = "browser"

	BackendFile     = "file"
	BackendPostgres = "postgres"
)

var ErrMissingAPIKey = errors.New("POKEMON_API_KEY is required")

type Config struct {
	Server      ServerConfig
	Scraper     ScraperConfig
	Browser     BrowserConfig
	Market      MarketConfig
	Exchange    ExchangeConfig
	Storage     StorageConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Logging     LoggingConfig
	CatalogPath string
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type ScraperConfig struct {
	RateLimitMin       time.Duration
	RateLimitMax       time.Duration
	PageTimeout        time.Duration
	MaxPages           int
	Fetcher            string
	UserAgent          string
	JapanTorecaBaseURL string
	TorecacampBaseURL  string
}

type BrowserConfig struct {
	Headless       bool
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
}

type MarketConfig struct {
	APIKey      string
	BaseURL     string
	Timeout     time.Duration
	CacheTTL    time.Duration
	RateLimit   float64
	Language    string
	Limit       int
	HistoryDays int
}

type ExchangeConfig struct {
	URL          string
	Timeout      time.Duration
	TTL          time.Duration
	FallbackRate float64
	ServeStale   bool
}

type StorageConfig struct {
	Backend     string
	SnapshotDir string
}

type DatabaseConfig struct {
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig with an empty Addr disables the market response cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads .env files (missing ones are ignored) and then the process
// environment, and validates the result.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 90*time.Second),
			RequestTimeout:  getDurationOrDefault("SERVER_REQUEST_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getStringSliceOrDefault("SERVER_ALLOWED_ORIGINS", []string{"http://localhost:*", "https://localhost:*"}),
		},
		Scraper: ScraperConfig{
			RateLimitMin:       getDurationOrDefault("SCRAPER_RATE_LIMIT_MIN", 1500*time.Millisecond),
			RateLimitMax:       getDurationOrDefault("SCRAPER_RATE_LIMIT_MAX", 2*time.Second),
			PageTimeout:        getDurationOrDefault("SCRAPER_PAGE_TIMEOUT", 30*time.Second),
			MaxPages:           getIntOrDefault("SCRAPER_MAX_PAGES", 20),
			Fetcher:            getEnvOrDefault("SCRAPER_FETCHER", FetcherHTTP),
			UserAgent:          getEnvOrDefault("SCRAPER_USER_AGENT", ""),
			JapanTorecaBaseURL: getEnvOrDefault("JAPAN_TORECA_BASE_URL", ""),
			TorecacampBaseURL:  getEnvOrDefault("TORECACAMP_BASE_URL", ""),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1366),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 900),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "ja,en-US;q=0.9,en;q=0.8"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "Asia/Tokyo"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "ja-JP"),
			ProxyServer:    getEnvOrDefault("BROWSER_PROXY", ""),
		},
		Market: MarketConfig{
			APIKey:      getEnvOrDefault("POKEMON_API_KEY", ""),
			BaseURL:     getEnvOrDefault("MARKET_BASE_URL", "https://www.pokemonpricetracker.com/api/v2"),
			Timeout:     getDurationOrDefault("MARKET_TIMEOUT", 30*time.Second),
			CacheTTL:    getDurationOrDefault("MARKET_CACHE_TTL", time.Hour),
			RateLimit:   getFloatOrDefault("MARKET_RATE_LIMIT", 2),
			Language:    getEnvOrDefault("MARKET_LANGUAGE", "japanese"),
			Limit:       getIntOrDefault("MARKET_LIMIT", 50),
			HistoryDays: getIntOrDefault("MARKET_HISTORY_DAYS", 30),
		},
		Exchange: ExchangeConfig{
			URL:          getEnvOrDefault("EXCHANGE_URL", "https://api.exchangerate-api.com/v4/latest/JPY"),
			Timeout:      getDurationOrDefault("EXCHANGE_TIMEOUT", 10*time.Second),
			TTL:          getDurationOrDefault("EXCHANGE_TTL", 24*time.Hour),
			FallbackRate: getFloatOrDefault("EXCHANGE_FALLBACK_RATE", 0.0067),
			ServeStale:   getBoolOrDefault("EXCHANGE_SERVE_STALE", true),
		},
		Storage: StorageConfig{
			Backend:     getEnvOrDefault("SNAPSHOT_BACKEND", BackendFile),
			SnapshotDir: getEnvOrDefault("SNAPSHOT_DIR", "data"),
		},
		Database: DatabaseConfig{
			URL:      getEnvOrDefault("DATABASE_URL", ""),
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "toreca_arbitrage"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: getIntOrDefault("DB_MAX_CONNS", 10),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", ""),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
		CatalogPath: getEnvOrDefault("CATALOG_PATH", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if port, err := strconv.Atoi(c.Server.Port); err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("invalid SERVER_PORT: %q", c.Server.Port)
	}

	if c.Scraper.RateLimitMin > c.Scraper.RateLimitMax {
		return fmt.Errorf("SCRAPER_RATE_LIMIT_MIN cannot be greater than SCRAPER_RATE_LIMIT_MAX")
	}

	if c.Scraper.MaxPages < 1 {
		return fmt.Errorf("SCRAPER_MAX_PAGES must be at least 1")
	}

	switch c.Scraper.Fetcher {
	case FetcherHTTP, FetcherBrowser:
	default:
		return fmt.Errorf("SCRAPER_FETCHER must be %q or %q, got %q", FetcherHTTP, FetcherBrowser, c.Scraper.Fetcher)
	}

	switch c.Storage.Backend {
	case BackendFile:
		if c.Storage.SnapshotDir == "" {
			return fmt.Errorf("SNAPSHOT_DIR is required for the file backend")
		}
	case BackendPostgres:
		if c.Database.URL == "" && (c.Database.Host == "" || c.Database.DBName == "") {
			return fmt.Errorf("DATABASE_URL or DB_HOST and DB_NAME are required for the postgres backend")
		}
	default:
		return fmt.Errorf("SNAPSHOT_BACKEND must be %q or %q, got %q", BackendFile, BackendPostgres, c.Storage.Backend)
	}

	if c.Exchange.FallbackRate <= 0 {
		return fmt.Errorf("EXCHANGE_FALLBACK_RATE must be positive")
	}

	if c.Market.RateLimit < 0 {
		return fmt.Errorf("MARKET_RATE_LIMIT must not be negative")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.Logging.Format)
	}

	return nil
}

// ValidateServer adds the checks only the HTTP server needs.
func (c *Config) ValidateServer() error {
	if c.Market.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
