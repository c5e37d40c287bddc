package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	apperrors "github.com/anime-shed/sku-image-audit/internal/errors"
	"github.com/anime-shed/sku-image-audit/pkg/models"
	"github.com/anime-shed/sku-image-audit/pkg/validation"
)

// Catalog providers
const (
	CatalogStatic      = "static"
	CatalogFile        = "file"
	CatalogBigCommerce = "bigcommerce"
)

// Extractor kinds
const (
	ExtractorProcess = "process"
	ExtractorBuiltin = "builtin"
)

type Config struct {
	Host               string        `yaml:"host"`
	Port               string        `yaml:"port"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	MaxRequestBodySize int64         `yaml:"max_request_body_size"`

	Validation  models.Thresholds `yaml:"validation"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Fetch       FetchConfig       `yaml:"fetch"`
	Extractor   ExtractorConfig   `yaml:"extractor"`
	Catalog     CatalogConfig     `yaml:"catalog"`
	Cache       CacheConfig       `yaml:"cache"`
	Azure       AzureConfig       `yaml:"azure"`
	S3          S3Config          `yaml:"s3"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

type ConcurrencyConfig struct {
	MaxConcurrency int `yaml:"max_concurrency"`
}

type FetchConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryBackoff  time.Duration `yaml:"retry_backoff"`
	MaxImageBytes int64         `yaml:"max_image_bytes"`
	TempDir       string        `yaml:"temp_dir"`
	InsecureTLS   bool          `yaml:"insecure_tls"`
}

type ExtractorConfig struct {
	Kind    string        `yaml:"kind"`
	Command string        `yaml:"command"`
	Args    []string      `yaml:"args"`
	Timeout time.Duration `yaml:"timeout"`
}

type CatalogConfig struct {
	Provider    string `yaml:"provider"`
	File        string `yaml:"file"`
	StoreHash   string `yaml:"store_hash"`
	AccessToken string `yaml:"access_token"`
	BaseURL     string `yaml:"base_url"`
}

type CacheConfig struct {
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	TTL           time.Duration `yaml:"ttl"`
}

type AzureConfig struct {
	AccountName string `yaml:"account_name"`
	AccountKey  string `yaml:"account_key"`
}

type S3Config struct {
	Region string `yaml:"region"`
}

func (c *Config) ServerAddress() string {
	// Trim any whitespace from host and port
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		Host:               "0.0.0.0",
		Port:               "8080",
		RequestTimeout:     5 * time.Minute,
		MaxRequestBodySize: 1024 * 1024, // 1MB
		Validation:         validation.DefaultQualityThresholds(),
		Concurrency:        ConcurrencyConfig{MaxConcurrency: 4},
		Fetch: FetchConfig{
			Timeout:       30 * time.Second,
			RetryAttempts: 3,
			RetryBackoff:  time.Second,
			MaxImageBytes: 50 * 1024 * 1024, // 50MB
		},
		Extractor: ExtractorConfig{
			Kind:    ExtractorProcess,
			Command: "image-meta",
			Timeout: 20 * time.Second,
		},
		Catalog: CatalogConfig{
			Provider: CatalogStatic,
			BaseURL:  "https://api.bigcommerce.com",
		},
		Cache:     CacheConfig{TTL: 15 * time.Minute},
		S3:        S3Config{Region: "us-east-1"},
		LogLevel:  "info",
		LogFormat: "json",
	}
}

// LoadFromEnv loads configuration from defaults, CONFIG_FILE and the environment
func LoadFromEnv() (*Config, error) {
	return Load(os.Getenv("CONFIG_FILE"))
}

// Load layers defaults, the YAML file at path (optional), a .env file in the
// working directory (optional) and environment variables, then validates.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, apperrors.NewSetupError(fmt.Sprintf("cannot read config file %s", path), err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, apperrors.NewSetupError(fmt.Sprintf("cannot parse config file %s", path), err)
		}
	}

	// A missing .env is normal; anything else is worth reporting
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, apperrors.NewSetupError("cannot load .env file", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv layers environment variables over cfg. A variable that is set but
// does not parse is reported instead of being ignored.
func applyEnv(cfg *Config) error {
	env := &envReader{}

	cfg.Host = getEnvOrDefault("HOST", cfg.Host)
	cfg.Port = getEnvOrDefault("PORT", cfg.Port)
	cfg.RequestTimeout = env.duration("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.MaxRequestBodySize = env.integer("MAX_REQUEST_BODY_SIZE", cfg.MaxRequestBodySize)

	cfg.Validation.MinWidthPx = int(env.integer("MIN_WIDTH_PX", int64(cfg.Validation.MinWidthPx)))
	cfg.Validation.MinHeightPx = int(env.integer("MIN_HEIGHT_PX", int64(cfg.Validation.MinHeightPx)))
	cfg.Validation.MinDpi = env.float("MIN_DPI", cfg.Validation.MinDpi)
	cfg.Validation.FailIfDpiMissing = env.boolean("FAIL_IF_DPI_MISSING", cfg.Validation.FailIfDpiMissing)

	cfg.Concurrency.MaxConcurrency = int(env.integer("MAX_CONCURRENCY", int64(cfg.Concurrency.MaxConcurrency)))

	cfg.Fetch.Timeout = env.duration("IMAGE_FETCH_TIMEOUT", cfg.Fetch.Timeout)
	cfg.Fetch.RetryAttempts = int(env.integer("FETCH_RETRY_ATTEMPTS", int64(cfg.Fetch.RetryAttempts)))
	cfg.Fetch.RetryBackoff = env.duration("FETCH_RETRY_BACKOFF", cfg.Fetch.RetryBackoff)
	cfg.Fetch.MaxImageBytes = env.integer("MAX_IMAGE_BYTES", cfg.Fetch.MaxImageBytes)
	cfg.Fetch.TempDir = getEnvOrDefault("TEMP_DIR", cfg.Fetch.TempDir)
	cfg.Fetch.InsecureTLS = env.boolean("FETCH_INSECURE_TLS", cfg.Fetch.InsecureTLS)

	cfg.Extractor.Kind = getEnvOrDefault("EXTRACTOR_KIND", cfg.Extractor.Kind)
	cfg.Extractor.Command = getEnvOrDefault("EXTRACTOR_COMMAND", cfg.Extractor.Command)
	if value := os.Getenv("EXTRACTOR_ARGS"); value != "" {
		cfg.Extractor.Args = strings.Fields(value)
	}
	cfg.Extractor.Timeout = env.duration("EXTRACT_TIMEOUT", cfg.Extractor.Timeout)

	cfg.Catalog.Provider = getEnvOrDefault("CATALOG_PROVIDER", cfg.Catalog.Provider)
	cfg.Catalog.File = getEnvOrDefault("CATALOG_FILE", cfg.Catalog.File)
	cfg.Catalog.StoreHash = getEnvOrDefault("BIGCOMMERCE_STORE_HASH", cfg.Catalog.StoreHash)
	cfg.Catalog.AccessToken = getEnvOrDefault("BIGCOMMERCE_ACCESS_TOKEN", cfg.Catalog.AccessToken)
	cfg.Catalog.BaseURL = getEnvOrDefault("BIGCOMMERCE_BASE_URL", cfg.Catalog.BaseURL)

	cfg.Cache.RedisAddr = getEnvOrDefault("REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = getEnvOrDefault("REDIS_PASSWORD", cfg.Cache.RedisPassword)
	cfg.Cache.RedisDB = int(env.integer("REDIS_DB", int64(cfg.Cache.RedisDB)))
	cfg.Cache.TTL = env.duration("CATALOG_CACHE_TTL", cfg.Cache.TTL)

	cfg.Azure.AccountName = getEnvOrDefault("AZURE_STORAGE_ACCOUNT", cfg.Azure.AccountName)
	cfg.Azure.AccountKey = getEnvOrDefault("AZURE_STORAGE_KEY", cfg.Azure.AccountKey)
	cfg.S3.Region = getEnvOrDefault("AWS_REGION", cfg.S3.Region)

	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvOrDefault("LOG_FORMAT", cfg.LogFormat)

	return env.err()
}

// Validate rejects configurations the batch cannot run with
func (c *Config) Validate() error {
	// Validate port is numeric and in range
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return apperrors.NewSetupError(fmt.Sprintf("invalid PORT: %q", c.Port), nil)
	}
	if c.MaxRequestBodySize <= 0 {
		return apperrors.NewSetupError(fmt.Sprintf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize), nil)
	}
	if c.RequestTimeout <= 0 || c.Fetch.Timeout <= 0 || c.Extractor.Timeout <= 0 {
		return apperrors.NewSetupError(fmt.Sprintf("timeouts must be > 0 (got request=%s, fetch=%s, extract=%s)",
			c.RequestTimeout, c.Fetch.Timeout, c.Extractor.Timeout), nil)
	}
	if err := validation.CheckThresholds(c.Validation); err != nil {
		return apperrors.NewSetupError("invalid validation thresholds", err)
	}
	if c.Concurrency.MaxConcurrency < 1 {
		return apperrors.NewSetupError(fmt.Sprintf("MAX_CONCURRENCY must be >= 1 (got %d)", c.Concurrency.MaxConcurrency), nil)
	}
	if c.Fetch.RetryAttempts < 1 {
		return apperrors.NewSetupError(fmt.Sprintf("FETCH_RETRY_ATTEMPTS must be >= 1 (got %d)", c.Fetch.RetryAttempts), nil)
	}

	switch c.Extractor.Kind {
	case ExtractorProcess:
		if strings.TrimSpace(c.Extractor.Command) == "" {
			return apperrors.NewSetupError("EXTRACTOR_COMMAND is required for the process extractor", nil)
		}
	case ExtractorBuiltin:
	default:
		return apperrors.NewSetupError(fmt.Sprintf("unknown extractor kind %q", c.Extractor.Kind), nil)
	}

	switch c.Catalog.Provider {
	case CatalogStatic:
	case CatalogFile:
		if c.Catalog.File == "" {
			return apperrors.NewSetupError("CATALOG_FILE is required for the file catalog", nil)
		}
	case CatalogBigCommerce:
		if c.Catalog.StoreHash == "" || c.Catalog.AccessToken == "" {
			return apperrors.NewSetupError("BIGCOMMERCE_STORE_HASH and BIGCOMMERCE_ACCESS_TOKEN are required", nil)
		}
	default:
		return apperrors.NewSetupError(fmt.Sprintf("unknown catalog provider %q", c.Catalog.Provider), nil)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envReader parses typed environment values and collects the ones that are malformed
type envReader struct {
	invalid []string
}

func (r *envReader) lookup(key string) (string, bool) {
	value := strings.TrimSpace(os.Getenv(key))
	return value, value != ""
}

func (r *envReader) reject(key, value string) {
	r.invalid = append(r.invalid, fmt.Sprintf("%s=%q", key, value))
}

func (r *envReader) duration(key string, defaultValue time.Duration) time.Duration {
	value, ok := r.lookup(key)
	if !ok {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		r.reject(key, value)
		return defaultValue
	}
	return duration
}

func (r *envReader) integer(key string, defaultValue int64) int64 {
	value, ok := r.lookup(key)
	if !ok {
		return defaultValue
	}
	intValue, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		r.reject(key, value)
		return defaultValue
	}
	return intValue
}

func (r *envReader) float(key string, defaultValue float64) float64 {
	value, ok := r.lookup(key)
	if !ok {
		return defaultValue
	}
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(floatValue) || math.IsInf(floatValue, 0) {
		r.reject(key, value)
		return defaultValue
	}
	return floatValue
}

func (r *envReader) boolean(key string, defaultValue bool) bool {
	value, ok := r.lookup(key)
	if !ok {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		r.reject(key, value)
		return defaultValue
	}
	return boolValue
}

func (r *envReader) err() error {
	if len(r.invalid) == 0 {
		return nil
	}
	return apperrors.NewSetupError("invalid environment values: "+strings.Join(r.invalid, ", "), nil)
}
