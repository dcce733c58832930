// Package config loads the server configuration.
//
// Values are layered, later sources winning:
//
//  1. built-in defaults (the embedded config.example.toml)
//  2. an optional TOML file
//  3. a .env file, for variables not already set in the environment
//  4. environment variables
package config

import (
	"crypto/rand"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// MinSecretLength is the shortest APP_SECRET accepted.
const MinSecretLength = 16

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Security SecurityConfig `toml:"security"`
	Log      LogConfig      `toml:"log"`

	// GeneratedSecret is set when no secret was configured and a random one
	// was made up for this process.
	GeneratedSecret bool `toml:"-"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port           int `toml:"port"`
	WriteRateLimit int `toml:"write_rate_limit"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// SecurityConfig contains session and CSRF settings.
type SecurityConfig struct {
	AppSecret       string        `toml:"app_secret"`
	CSRFTokenTTL    time.Duration `toml:"csrf_token_ttl"`
	SessionLifetime time.Duration `toml:"session_lifetime"`
	SecureCookies   bool          `toml:"secure_cookies"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	if err := toml.Unmarshal(exampleConf, &cfg); err != nil {
		panic(fmt.Sprintf("config: parsing embedded defaults: %v", err))
	}
	return &cfg
}

// Example returns the annotated example configuration file.
func Example() []byte {
	return exampleConf
}

// Load builds the configuration from the defaults, the TOML file at path and
// the environment. A missing file at path or envFile is not an error; an
// empty path or envFile skips that layer.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.decodeFile(path); err != nil {
			return nil, err
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: loading %s: %w", envFile, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) decodeFile(path string) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid PORT %q", v)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("APP_SECRET"); v != "" {
		c.Security.AppSecret = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("SECURE_COOKIES"); v != "" {
		secure, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: invalid SECURE_COOKIES %q", v)
		}
		c.Security.SecureCookies = secure
	}
	return nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Server.Port)
	}
	if c.Server.WriteRateLimit < 0 {
		return fmt.Errorf("config: write_rate_limit must not be negative")
	}
	if c.Database.Path == "" {
		return errors.New("config: database path is empty")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if c.Security.CSRFTokenTTL <= 0 || c.Security.SessionLifetime <= 0 {
		return errors.New("config: csrf_token_ttl and session_lifetime must be positive")
	}

	switch {
	case c.Security.AppSecret == "":
		secret, err := randomSecret()
		if err != nil {
			return err
		}
		c.Security.AppSecret = secret
		c.GeneratedSecret = true
	case len(c.Security.AppSecret) < MinSecretLength:
		return fmt.Errorf("config: APP_SECRET must be at least %d characters", MinSecretLength)
	}
	return nil
}

// SlogLevel parses Log.Level ("debug", "info", "warn", "error").
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("config: invalid log level %q", c.Log.Level)
	}
	return level, nil
}

// Addr is the listen address for http.Server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("config: generating secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
