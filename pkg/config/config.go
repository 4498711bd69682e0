package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/soft-duck/shorty/pkg/core/domain"
	"github.com/soft-duck/shorty/pkg/core/services"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port            string `yaml:"port"`
	ListenAddr      string `yaml:"listen_addr"`
	PublicURL       string `yaml:"public_url"`
	DatabaseURL     string `yaml:"database_url"`
	DatabaseDriver  string `yaml:"database_driver"`
	AppEnv          string `yaml:"app_env"`
	LogLevel        string `yaml:"log_level"`
	LogFormat       string `yaml:"log_format"`
	CleanupSchedule string `yaml:"cleanup_schedule"`

	// Link limits. DefaultValidFor is in milliseconds.
	DefaultMaxUses    int64 `yaml:"default_max_uses"`
	DefaultValidFor   int64 `yaml:"default_valid_for"`
	MaxLinkLength     int   `yaml:"max_link_length"`
	MaxCustomIDLength int   `yaml:"max_custom_id_length"`
	MaxJSONSize       int64 `yaml:"max_json_size"`
	IDLength          int   `yaml:"id_length"`

	GoogleClientID     string   `yaml:"google_client_id"`
	GoogleClientSecret string   `yaml:"google_client_secret"`
	GoogleRedirectURL  string   `yaml:"google_redirect_url"`
	JWTSecret          string   `yaml:"jwt_secret"`
	FrontendURL        string   `yaml:"frontend_url"`
	AllowedEmails      []string `yaml:"allowed_emails"`
}

// Default returns the configuration used when neither a file nor the environment set a value.
func Default() *Config {
	return &Config{
		Port:              "7999",
		ListenAddr:        "127.0.0.1",
		PublicURL:         "http://localhost:7999",
		DatabaseURL:       "file:db.sqlite",
		AppEnv:            "local",
		LogLevel:          "info",
		LogFormat:         "text",
		CleanupSchedule:   "@every 1h",
		DefaultMaxUses:    0,
		DefaultValidFor:   7 * 24 * time.Hour.Milliseconds(),
		MaxLinkLength:     2500,
		MaxCustomIDLength: 500,
		MaxJSONSize:       2 * 1024 * 1024,
		IDLength:          services.DefaultIDLength,
		GoogleRedirectURL: "http://localhost:7999/auth/google/callback",
		JWTSecret:         "secret",
		FrontendURL:       "http://localhost:7999",
	}
}

// Load reads .env, then the YAML file named by SHORTY_CONFIG (default
// config.yaml, optional), then environment variables, each layer overriding
// the previous one.
func Load() (*Config, error) {
	_ = godotenv.Load() // Ignore error if .env not found (e.g. prod)

	cfg := Default()
	if err := cfg.loadFile(getEnv("SHORTY_CONFIG", "config.yaml")); err != nil {
		return nil, err
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	c.Port = getEnv("PORT", c.Port)
	c.ListenAddr = getEnv("LISTEN_ADDR", c.ListenAddr)
	c.PublicURL = getEnv("PUBLIC_URL", c.PublicURL)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.DatabaseDriver = getEnv("DATABASE_DRIVER", c.DatabaseDriver)
	c.AppEnv = getEnv("APP_ENV", c.AppEnv)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.CleanupSchedule = getEnv("CLEANUP_SCHEDULE", c.CleanupSchedule)
	c.GoogleClientID = getEnv("GOOGLE_CLIENT_ID", c.GoogleClientID)
	c.GoogleClientSecret = getEnv("GOOGLE_CLIENT_SECRET", c.GoogleClientSecret)
	c.GoogleRedirectURL = getEnv("GOOGLE_REDIRECT_URL", c.GoogleRedirectURL)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.FrontendURL = getEnv("FRONTEND_URL", c.FrontendURL)
	if v, ok := os.LookupEnv("ALLOWED_EMAILS"); ok {
		c.AllowedEmails = splitList(v)
	}

	var err error
	if c.DefaultMaxUses, err = getEnvInt64("DEFAULT_MAX_USES", c.DefaultMaxUses); err != nil {
		return err
	}
	if c.DefaultValidFor, err = getEnvInt64("DEFAULT_VALID_FOR", c.DefaultValidFor); err != nil {
		return err
	}
	if c.MaxJSONSize, err = getEnvInt64("MAX_JSON_SIZE", c.MaxJSONSize); err != nil {
		return err
	}
	if c.MaxLinkLength, err = getEnvInt("MAX_LINK_LENGTH", c.MaxLinkLength); err != nil {
		return err
	}
	if c.MaxCustomIDLength, err = getEnvInt("MAX_CUSTOM_ID_LENGTH", c.MaxCustomIDLength); err != nil {
		return err
	}
	if c.IDLength, err = getEnvInt("ID_LENGTH", c.IDLength); err != nil {
		return err
	}
	return nil
}

func (c *Config) Validate() error {
	switch {
	case c.PublicURL == "":
		return errors.New("public_url must be set")
	case c.DefaultMaxUses < 0:
		return errors.New("default_max_uses must not be negative")
	case c.DefaultValidFor < 0:
		return errors.New("default_valid_for must not be negative")
	case c.MaxLinkLength < 0:
		return errors.New("max_link_length must not be negative")
	case c.MaxCustomIDLength < 0:
		return errors.New("max_custom_id_length must not be negative")
	case c.MaxJSONSize <= 0:
		return errors.New("max_json_size must be positive")
	case c.IDLength <= 0:
		return errors.New("id_length must be positive")
	}
	return nil
}

// Addr is the host:port the server listens on.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.ListenAddr, c.Port)
}

// Driver returns the storage backend: "postgres" or "sqlite".
func (c *Config) Driver() string {
	if c.DatabaseDriver != "" {
		return strings.ToLower(c.DatabaseDriver)
	}
	if strings.HasPrefix(c.DatabaseURL, "postgres://") || strings.HasPrefix(c.DatabaseURL, "postgresql://") {
		return "postgres"
	}
	return "sqlite"
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func (c *Config) StoreOptions() services.Options {
	return services.Options{
		DefaultMaxUses:    c.DefaultMaxUses,
		DefaultValidFor:   domain.ValidForMillis(c.DefaultValidFor),
		MaxLinkLength:     c.MaxLinkLength,
		MaxCustomIDLength: c.MaxCustomIDLength,
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) (int64, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvInt(key string, fallback int) (int, error) {
	n, err := getEnvInt64(key, int64(fallback))
	return int(n), err
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
