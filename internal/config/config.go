package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/alexjbarnes/linesdk-go/internal/state"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for the SDK and CLI.
type Config struct {
	// Channel ID of the LINE Login channel. Required.
	ChannelID string `env:"LINESDK_CHANNEL_ID"`

	// Bundle ID scopes the secure storage namespace, so two applications
	// sharing a state file keep separate credentials.
	BundleID string `env:"LINESDK_BUNDLE_ID" envDefault:"linesdk-go"`

	// API host for the token endpoints.
	APIHost string `env:"LINESDK_API_HOST" envDefault:"api.line.me"`

	// OpenID discovery document URL; its jwks_uri supplies ID token keys.
	OpenIDDiscoveryURL string `env:"LINESDK_OPENID_DISCOVERY_URL" envDefault:"https://access.line.me/.well-known/openid-configuration"`

	// State database path. Defaults to ~/.linesdk/state.db.
	StatePath string `env:"LINESDK_STATE_PATH"`

	// Secret the stored credential is sealed under. Required.
	StorageSecret string `env:"LINESDK_STORAGE_SECRET"`

	HTTPTimeout time.Duration `env:"LINESDK_HTTP_TIMEOUT" envDefault:"30s"`

	// Loopback address the login command listens on for the
	// authorization redirect.
	CallbackAddr string `env:"LINESDK_CALLBACK_ADDR" envDefault:"127.0.0.1:8765"`

	// Allowed clock skew when validating ID token times.
	IDTokenLeeway time.Duration `env:"LINESDK_ID_TOKEN_LEEWAY" envDefault:"5m"`

	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

const (
	// storageSecretMinLen is the minimum storage secret length. The secret
	// is stretched with scrypt, but very short secrets remain guessable.
	storageSecretMinLen = 16
)

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. It holds the storage secret.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if cfg.StatePath == "" {
		p, err := state.DefaultPath()
		if err != nil {
			return nil, err
		}

		cfg.StatePath = p
	}

	absPath, err := filepath.Abs(cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("resolving state path to absolute path: %w", err)
	}

	cfg.StatePath = absPath

	return cfg, nil
}

func (c *Config) validate() error {
	if c.ChannelID == "" {
		return fmt.Errorf("LINESDK_CHANNEL_ID is required")
	}

	if strings.ContainsAny(c.ChannelID, "@/ ") {
		return fmt.Errorf("LINESDK_CHANNEL_ID must not contain '@', '/' or spaces")
	}

	if c.StorageSecret == "" {
		return fmt.Errorf("LINESDK_STORAGE_SECRET is required")
	}

	if len(c.StorageSecret) < storageSecretMinLen {
		return fmt.Errorf("LINESDK_STORAGE_SECRET too short (minimum %d characters)", storageSecretMinLen)
	}

	if c.APIHost == "" || strings.Contains(c.APIHost, "/") {
		return fmt.Errorf("LINESDK_API_HOST must be a bare host name")
	}

	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("LINESDK_HTTP_TIMEOUT must be positive")
	}

	if c.CallbackAddr == "" {
		return fmt.Errorf("LINESDK_CALLBACK_ADDR must not be empty")
	}

	if c.IDTokenLeeway < 0 {
		return fmt.Errorf("LINESDK_ID_TOKEN_LEEWAY must not be negative")
	}

	return nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
