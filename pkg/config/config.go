package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds controller configuration.
type Config struct {
	Addr         string
	Env          string
	LogLevel     string
	Store        string // memory|mysql
	MySQLDSN     string
	AuditDB      string // sqlite file; empty keeps audit in the primary store
	JWTSecret    string
	TokenTTL     time.Duration
	BootToken    string
	UrgeInterval time.Duration
	CatalogFile  string
	ConsulAddr   string
	CatalogKey   string
	TLSCert      string
	TLSKey       string
	ClientCA     string
}

// Load reads configuration from the environment, loading .env first when present.
func Load() (*Config, error) {
	_ = loadDotEnv()

	cfg := &Config{
		Addr:        getenv("ADDR", ":8080"),
		Env:         getenv("APP_ENV", "development"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		Store:       getenv("STORE", "memory"),
		MySQLDSN:    mysqlDSN(),
		AuditDB:     os.Getenv("AUDIT_DB"),
		JWTSecret:   getenv("JWT_SECRET", "change-me-secret"),
		BootToken:   os.Getenv("BOOT_TOKEN"),
		CatalogFile: os.Getenv("CATALOG_FILE"),
		ConsulAddr:  os.Getenv("CONSUL_ADDR"),
		CatalogKey:  getenv("CATALOG_KEY", "bizdesk/catalog"),
		TLSCert:     os.Getenv("TLS_CERT"),
		TLSKey:      os.Getenv("TLS_KEY"),
		ClientCA:    os.Getenv("CLIENT_CA"),
	}

	var err error
	if cfg.TokenTTL, err = getDuration("TOKEN_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.UrgeInterval, err = getDuration("URGE_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	switch cfg.Store {
	case "memory", "mysql":
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Store)
	}
	return cfg, nil
}

// Production reports whether the controller runs outside development.
func (c *Config) Production() bool {
	return c.Env == "production"
}

// mysqlDSN honours MYSQL_DSN or assembles one from MYSQL_HOST, MYSQL_PORT,
// MYSQL_USER, MYSQL_PASS and MYSQL_DB.
func mysqlDSN() string {
	if dsn := os.Getenv("MYSQL_DSN"); dsn != "" {
		return dsn
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		getenv("MYSQL_USER", "root"),
		os.Getenv("MYSQL_PASS"),
		getenv("MYSQL_HOST", "127.0.0.1"),
		getenv("MYSQL_PORT", "3306"),
		getenv("MYSQL_DB", "bizdesk"),
	)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	// plain seconds
	secs, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return time.Duration(secs) * time.Second, nil
}

func loadDotEnv() error {
	if _, err := os.Stat(".env"); err == nil {
		return godotenv.Load(".env")
	}
	return nil
}
