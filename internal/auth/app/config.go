package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/aussiebroadwan/tokensmith/internal/auth/cache"
	"github.com/aussiebroadwan/tokensmith/internal/auth/service"
	"github.com/aussiebroadwan/tokensmith/pkg/jwtx"
	"github.com/aussiebroadwan/tokensmith/pkg/policy"
)

// Key sources.
const (
	KeySourceStatic     = "static"
	KeySourcePersistent = "persistent"
	KeySourceEphemeral  = "ephemeral"
)

// Store drivers.
const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// defaultTrustedSecret is only accepted outside prod.
const defaultTrustedSecret = "secret"

type Config struct {
	Issuer string // issuer claim for tokens (default: tokensmith)

	KeySource              string        // static, persistent or ephemeral (default: static)
	PrivateKeyFile         string        // static: PEM private key path
	PrivateKey             string        // static: inline PEM private key, used when no file is set
	PublicKeyFile          string        // static: PEM public key path, optional
	PublicKey              string        // static: inline PEM public key, optional
	PreviousPublicKeyFiles []string      // static: retired public keys kept for the overlap window
	KeyID                  string        // static: kid (default: key thumbprint)
	Algorithm              string        // generated keys: RS256, ES256 or EdDSA (default: RS256)
	RSABits                int           // generated RSA keys (default: 2048)
	KeyOverlap             time.Duration // how long retired keys keep verifying (default: 24h)
	MasterKeyPath          string        // persistent: AES master key file, falls back to AUTH_MASTER_KEY

	TokenValidity time.Duration // default access token validity (default: 1h)
	ClockSkew     time.Duration // verification leeway (default: 0)

	StoreDriver  string // sqlite or memory (default: sqlite)
	DatabaseFile string // SQLite file (default: ./auth.db)
	PepperFile   string // secret hashing pepper (default: ./pepper)

	CacheDriver   string        // none, memory or redis (default: memory)
	CacheTTL      time.Duration // client cache TTL (default: 5m)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string // key namespace for the redis cache (default: tokensmith:)

	TrustedClientID     string   // seeded client (default: trusted)
	TrustedClientSecret string   // required in prod; "secret" elsewhere
	TrustedClientScopes []string // default: read write

	IntrospectPolicy string
	TokenKeyPolicy   string

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

// LoadEnvFile loads variables from a dotenv file without overriding ones
// already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func LoadConfig() Config {
	cfg := Config{
		Issuer: getEnvOrDefault("AUTH_ISSUER", "tokensmith"),

		KeySource:              getEnvOrDefault("AUTH_KEY_SOURCE", KeySourceStatic),
		PrivateKeyFile:         os.Getenv("AUTH_PRIVATE_KEY_FILE"),
		PrivateKey:             os.Getenv("AUTH_PRIVATE_KEY"),
		PublicKeyFile:          os.Getenv("AUTH_PUBLIC_KEY_FILE"),
		PublicKey:              os.Getenv("AUTH_PUBLIC_KEY"),
		PreviousPublicKeyFiles: splitList(os.Getenv("AUTH_PREVIOUS_PUBLIC_KEY_FILES"), ","),
		KeyID:                  os.Getenv("AUTH_KEY_ID"),
		Algorithm:              getEnvOrDefault("AUTH_ALGORITHM", jwtx.AlgorithmRS256),
		RSABits:                getEnvIntOrDefault("AUTH_RSA_BITS", 2048),
		KeyOverlap:             getEnvDurationOrDefault("AUTH_KEY_OVERLAP", service.DefaultKeyOverlap),
		MasterKeyPath:          os.Getenv("AUTH_MASTER_KEY_PATH"),

		TokenValidity: time.Duration(getEnvIntOrDefault("AUTH_TOKEN_VALIDITY_SECONDS", 3600)) * time.Second,
		ClockSkew:     getEnvDurationOrDefault("AUTH_CLOCK_SKEW", 0),

		StoreDriver:  getEnvOrDefault("AUTH_STORE_DRIVER", StoreSQLite),
		DatabaseFile: getEnvOrDefault("AUTH_DATABASE_FILE", "auth.db"),
		PepperFile:   getEnvOrDefault("AUTH_PEPPER_FILE", "pepper"),

		CacheDriver:   getEnvOrDefault("AUTH_CACHE_DRIVER", cache.DriverMemory),
		CacheTTL:      getEnvDurationOrDefault("AUTH_CACHE_TTL", 5*time.Minute),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvIntOrDefault("REDIS_DB", 0),
		RedisPrefix:   getEnvOrDefault("REDIS_PREFIX", "tokensmith:"),

		TrustedClientID:     getEnvOrDefault("AUTH_TRUSTED_CLIENT_ID", "trusted"),
		TrustedClientSecret: os.Getenv("AUTH_TRUSTED_CLIENT_SECRET"),
		TrustedClientScopes: splitList(getEnvOrDefault("AUTH_TRUSTED_CLIENT_SCOPES", "read write"), " "),

		IntrospectPolicy: getEnvOrDefault("AUTH_INTROSPECT_POLICY", service.DefaultIntrospectPolicy),
		TokenKeyPolicy:   getEnvOrDefault("AUTH_TOKEN_KEY_POLICY", service.DefaultTokenKeyPolicy),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}

	if cfg.TrustedClientSecret == "" && cfg.Env != "prod" {
		cfg.TrustedClientSecret = defaultTrustedSecret
	}

	return cfg
}

// Validate rejects configurations the server cannot start with. In static
// mode it also reads the key material to check the pair matches.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Issuer) == "" {
		errs = append(errs, errors.New("AUTH_ISSUER must not be empty"))
	}
	if c.TokenValidity <= 0 {
		errs = append(errs, errors.New("AUTH_TOKEN_VALIDITY_SECONDS must be positive"))
	}
	if c.ClockSkew < 0 {
		errs = append(errs, errors.New("AUTH_CLOCK_SKEW must not be negative"))
	}
	if c.KeyOverlap <= 0 {
		errs = append(errs, errors.New("AUTH_KEY_OVERLAP must be positive"))
	}

	switch c.KeySource {
	case KeySourceStatic:
		if _, err := c.staticKeyMaterial(); err != nil {
			errs = append(errs, err)
		}
	case KeySourcePersistent, KeySourceEphemeral:
		if !jwtx.IsSupportedAlgorithm(c.Algorithm) {
			errs = append(errs, fmt.Errorf("AUTH_ALGORITHM %q is not supported", c.Algorithm))
		}
	default:
		errs = append(errs, fmt.Errorf("AUTH_KEY_SOURCE %q is not one of static, persistent, ephemeral", c.KeySource))
	}

	switch c.StoreDriver {
	case StoreSQLite, StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("AUTH_STORE_DRIVER %q is not one of sqlite, memory", c.StoreDriver))
	}

	switch c.CacheDriver {
	case cache.DriverNone, cache.DriverMemory:
	case cache.DriverRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for the redis cache"))
		}
	default:
		errs = append(errs, fmt.Errorf("AUTH_CACHE_DRIVER %q is not one of none, memory, redis", c.CacheDriver))
	}

	if c.TrustedClientID == "" {
		errs = append(errs, errors.New("AUTH_TRUSTED_CLIENT_ID must not be empty"))
	}
	switch {
	case c.TrustedClientSecret == "":
		errs = append(errs, errors.New("AUTH_TRUSTED_CLIENT_SECRET is required"))
	case c.Env == "prod" && c.TrustedClientSecret == defaultTrustedSecret:
		errs = append(errs, errors.New("AUTH_TRUSTED_CLIENT_SECRET must not use the default in prod"))
	}
	if len(c.TrustedClientScopes) == 0 {
		errs = append(errs, errors.New("AUTH_TRUSTED_CLIENT_SCOPES must not be empty"))
	}

	if _, err := policy.Compile(c.IntrospectPolicy); err != nil {
		errs = append(errs, fmt.Errorf("AUTH_INTROSPECT_POLICY: %w", err))
	}
	if _, err := policy.Compile(c.TokenKeyPolicy); err != nil {
		errs = append(errs, fmt.Errorf("AUTH_TOKEN_KEY_POLICY: %w", err))
	}

	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are seconds.
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}

func splitList(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
