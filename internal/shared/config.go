package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file and the environment.
type Config struct {
	Server      ServerConfig      `toml:"server"`
	Auth        AuthConfig        `toml:"auth"`
	Credentials CredentialsConfig `toml:"credentials"`
	Retailer    RetailerConfig    `toml:"retailer"`
	Client      ClientConfig      `toml:"client"`
	Database    DatabaseConfig    `toml:"database"`
	Log         LogConfig         `toml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host" env:"ABX_HOST"`
	Port int    `toml:"port" env:"AUDIBLE_PORT"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AuthConfig controls where device registrations are persisted and how long a login waits on a challenge.
type AuthConfig struct {
	CredentialsPath  string        `toml:"credentials_path" env:"ABX_CREDENTIALS_PATH"`
	SnapshotPath     string        `toml:"snapshot_path" env:"ABX_SNAPSHOT_PATH"`
	ChallengeTimeout time.Duration `toml:"challenge_timeout" env:"ABX_CHALLENGE_TIMEOUT"`
	MaxChallenges    int           `toml:"max_challenges" env:"ABX_MAX_CHALLENGES"`
}

// CredentialsConfig holds the account used by the CLI when it has to (re)authenticate the shim.
type CredentialsConfig struct {
	Email       string `toml:"email" env:"AUDIBLE_EMAIL"`
	Password    string `toml:"password" env:"AUDIBLE_PASSWORD"`
	CountryCode string `toml:"country_code" env:"AUDIBLE_COUNTRY_CODE"`
}

// Complete reports whether all three credential fields are set.
func (c CredentialsConfig) Complete() bool {
	return c.Email != "" && c.Password != "" && c.CountryCode != ""
}

// RetailerConfig contains upstream API settings.
type RetailerConfig struct {
	APIURL    string        `toml:"api_url" env:"ABX_API_URL"`
	AuthURL   string        `toml:"auth_url" env:"ABX_AUTH_URL"`
	RateLimit float64       `toml:"rate_limit" env:"ABX_RATE_LIMIT"`
	Timeout   time.Duration `toml:"timeout" env:"ABX_RETAILER_TIMEOUT"`
}

// ClientConfig contains settings for the CLI talking to a running shim.
type ClientConfig struct {
	BaseURL string `toml:"base_url" env:"ABX_SHIM_URL"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path" env:"ABX_DATABASE_PATH"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level" env:"ABX_LOG_LEVEL"`
}

// LoadConfig reads a TOML configuration file from the specified path on top of the defaults.
//
// Keys missing from the file keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// ApplyEnv overrides config values with any environment variables that are set.
func ApplyEnv(config *Config) error {
	if err := env.Parse(config); err != nil {
		return fmt.Errorf("%w: error getting env configs: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Validate checks the values that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Server.Port)
	}
	if strings.TrimSpace(c.Auth.CredentialsPath) == "" {
		return fmt.Errorf("%w: auth.credentials_path is required", ErrInvalidConfig)
	}
	if c.Auth.ChallengeTimeout < 0 {
		return fmt.Errorf("%w: auth.challenge_timeout must not be negative", ErrInvalidConfig)
	}
	if c.Auth.MaxChallenges <= 0 {
		return fmt.Errorf("%w: auth.max_challenges must be positive", ErrInvalidConfig)
	}
	if c.Retailer.RateLimit < 0 {
		return fmt.Errorf("%w: retailer.rate_limit must not be negative", ErrInvalidConfig)
	}
	return nil
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: config file already exists at %s", ErrInvalidConfig, path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
