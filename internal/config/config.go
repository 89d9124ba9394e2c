// Package config holds the runtime settings of eventpagesd.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Keys shared by flags, environment variables and viper lookups.
const (
	KeyDatabaseURL    = "database-url"
	KeyStoreDriver    = "store-driver"
	KeyHTTPListenAddr = "http-listen-addr"
	KeyGRPCListenAddr = "grpc-listen-addr"
	KeyEnvironment    = "environment"
	KeyAllowedOrigins = "allowed-origins"
	KeyJWTSigningKey  = "jwt-signing-key"
	KeyJWTIssuer      = "jwt-issuer"
	KeyJWTCookieName  = "jwt-cookie-name"
	KeyWebhookSecret  = "webhook-secret"
	KeyRequestTimeout = "request-timeout"
	KeySlugCacheSize  = "slug-cache-size"
	KeySlugCacheTTL   = "slug-cache-ttl"

	EnvPrefix = "EVENTPAGES"

	StoreDriverGorm = "gorm"
	StoreDriverPgx  = "pgx"

	DefaultDatabaseURL    = "sqlite:///tmp/eventpages.db"
	DefaultHTTPListenAddr = ":8080"
	DefaultGRPCListenAddr = ":7000"
	DefaultEnvironment    = "development"
	DefaultAllowedOrigin  = "http://localhost:3000"
	DefaultJWTIssuer      = "tauth"
	DefaultJWTCookieName  = "app_session"
	DefaultRequestTimeout = 5 * time.Second
	DefaultSlugCacheSize  = 512
	DefaultSlugCacheTTL   = 30 * time.Second
)

var ErrInvalidConfig = errors.New("invalid config")

// Config aggregates runtime settings for the server.
type Config struct {
	DatabaseURL    string
	StoreDriver    string
	HTTPListenAddr string
	GRPCListenAddr string
	Environment    string
	AllowedOrigins []string
	JWTSigningKey  string
	JWTIssuer      string
	JWTCookieName  string
	WebhookSecret  string
	RequestTimeout time.Duration
	SlugCacheSize  int
	SlugCacheTTL   time.Duration
}

// NewViper returns a viper instance that reads EVENTPAGES_* environment variables.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads every key from v. Call Validate before use.
func Load(v *viper.Viper) Config {
	return Config{
		DatabaseURL:    v.GetString(KeyDatabaseURL),
		StoreDriver:    v.GetString(KeyStoreDriver),
		HTTPListenAddr: v.GetString(KeyHTTPListenAddr),
		GRPCListenAddr: v.GetString(KeyGRPCListenAddr),
		Environment:    v.GetString(KeyEnvironment),
		AllowedOrigins: splitList(v.GetString(KeyAllowedOrigins)),
		JWTSigningKey:  v.GetString(KeyJWTSigningKey),
		JWTIssuer:      v.GetString(KeyJWTIssuer),
		JWTCookieName:  v.GetString(KeyJWTCookieName),
		WebhookSecret:  v.GetString(KeyWebhookSecret),
		RequestTimeout: v.GetDuration(KeyRequestTimeout),
		SlugCacheSize:  v.GetInt(KeySlugCacheSize),
		SlugCacheTTL:   v.GetDuration(KeySlugCacheTTL),
	}
}

// Validate applies defaults and rejects settings the server cannot run with.
func (cfg *Config) Validate() error {
	cfg.DatabaseURL = defaultIfEmpty(cfg.DatabaseURL, DefaultDatabaseURL)
	cfg.StoreDriver = strings.ToLower(defaultIfEmpty(cfg.StoreDriver, StoreDriverGorm))
	cfg.HTTPListenAddr = defaultIfEmpty(cfg.HTTPListenAddr, DefaultHTTPListenAddr)
	cfg.GRPCListenAddr = defaultIfEmpty(cfg.GRPCListenAddr, DefaultGRPCListenAddr)
	cfg.Environment = defaultIfEmpty(cfg.Environment, DefaultEnvironment)
	cfg.JWTIssuer = defaultIfEmpty(cfg.JWTIssuer, DefaultJWTIssuer)
	cfg.JWTCookieName = defaultIfEmpty(cfg.JWTCookieName, DefaultJWTCookieName)
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{DefaultAllowedOrigin}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.SlugCacheSize <= 0 {
		cfg.SlugCacheSize = DefaultSlugCacheSize
	}
	if cfg.SlugCacheTTL <= 0 {
		cfg.SlugCacheTTL = DefaultSlugCacheTTL
	}
	switch cfg.StoreDriver {
	case StoreDriverGorm:
	case StoreDriverPgx:
		if !IsPostgresURL(cfg.DatabaseURL) {
			return fmt.Errorf("%w: %s=%s requires a postgres %s", ErrInvalidConfig, KeyStoreDriver, StoreDriverPgx, KeyDatabaseURL)
		}
	default:
		return fmt.Errorf("%w: unsupported %s %q", ErrInvalidConfig, KeyStoreDriver, cfg.StoreDriver)
	}
	if len(cfg.JWTSigningKey) == 0 {
		return fmt.Errorf("%w: %s is required", ErrInvalidConfig, KeyJWTSigningKey)
	}
	if len(cfg.WebhookSecret) == 0 {
		return fmt.Errorf("%w: %s is required", ErrInvalidConfig, KeyWebhookSecret)
	}
	return nil
}

// IsPostgresURL reports whether dsn names a postgres database.
func IsPostgresURL(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func splitList(raw string) []string {
	var values []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}
