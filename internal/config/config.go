// Package config handles loading and validating configuration from environment variables.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// ServerAddr is the HTTP listen address (e.g., :8080).
	ServerAddr string
	// DataDir holds the sqlite databases and generated artifacts.
	DataDir string
	// WorkDir is the parent directory for per-build workspaces.
	// Empty means the operating system temp directory.
	WorkDir string
	// TemplatesConfig is the path to the base-template registry JSON file.
	TemplatesConfig string
	// Keystore holds environment overrides for the signing keystore.
	// Empty fields fall back to the values in the template registry file.
	Keystore KeystoreOverrides
	// JobRetention is how long build jobs are kept before the sweep drops them.
	JobRetention time.Duration
	// SweepInterval is how often the retention sweep runs.
	SweepInterval time.Duration
	// ApktoolBin is the apktool executable name or path.
	ApktoolBin string
	// JarsignerBin is the jarsigner executable name or path.
	JarsignerBin string
}

// KeystoreOverrides carries keystore credentials injected via environment,
// so secrets never have to live in the static registry file.
type KeystoreOverrides struct {
	Path      string
	Alias     string
	StorePass string
	KeyPass   string
}

// Load reads configuration from environment variables.
// It loads .env file if present, but environment variables take precedence.
func Load() (*Config, error) {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		ServerAddr:      os.Getenv("SERVER_ADDR"),
		DataDir:         os.Getenv("DATA_DIR"),
		WorkDir:         os.Getenv("WORK_DIR"),
		TemplatesConfig: os.Getenv("TEMPLATES_CONFIG"),
		Keystore: KeystoreOverrides{
			Path:      os.Getenv("KEYSTORE_PATH"),
			Alias:     os.Getenv("KEYSTORE_ALIAS"),
			StorePass: os.Getenv("KEYSTORE_PASS"),
			KeyPass:   os.Getenv("KEY_PASS"),
		},
		ApktoolBin:   os.Getenv("APKTOOL_BIN"),
		JarsignerBin: os.Getenv("JARSIGNER_BIN"),
	}
	cfg.JobRetention = parseDurationEnv("JOB_RETENTION", 7*24*time.Hour)
	cfg.SweepInterval = parseDurationEnv("SWEEP_INTERVAL", time.Hour)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required fields and fills in defaults.
func (c *Config) Validate() error {
	if c.TemplatesConfig == "" {
		return errors.New("TEMPLATES_CONFIG is required")
	}
	if c.ServerAddr == "" {
		c.ServerAddr = ":8080"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.ApktoolBin == "" {
		c.ApktoolBin = "apktool"
	}
	if c.JarsignerBin == "" {
		c.JarsignerBin = "jarsigner"
	}
	// WorkDir may stay empty - workspaces then use the OS temp dir
	return nil
}

// GeneratedDir returns the directory finished artifacts are copied into.
func (c *Config) GeneratedDir() string {
	return filepath.Join(c.DataDir, "generated")
}

// JobsDBPath returns the path of the build-job database.
func (c *Config) JobsDBPath() string {
	return filepath.Join(c.DataDir, "build_jobs.db")
}

// KeysDBPath returns the path of the API-key database.
func (c *Config) KeysDBPath() string {
	return filepath.Join(c.DataDir, "api_keys.db")
}

func parseDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return defaultValue
	}
	return parsed
}
