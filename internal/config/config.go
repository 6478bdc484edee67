package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/slipstream/homecloud/internal/remote/types"
)

// Config holds all application configuration.
type Config struct {
	Remote   RemoteConfig   `mapstructure:"remote"`
	Session  SessionConfig  `mapstructure:"session"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Watch    WatchConfig    `mapstructure:"watch"`
}

// RemoteConfig holds the remote API endpoint configuration.
type RemoteConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	DefaultPath string        `mapstructure:"default_path"`
	Timeout     time.Duration `mapstructure:"timeout"`
	UserAgent   string        `mapstructure:"user_agent"`
}

// SessionConfig holds the cookies that make up an authenticated session.
// Values prefixed with "enc:v1:" are decrypted with Passphrase and Salt.
type SessionConfig struct {
	UserID     string            `mapstructure:"user_id"`
	SessionID  string            `mapstructure:"session_id"`
	Cookies    map[string]string `mapstructure:"cookies"`
	Passphrase string            `mapstructure:"passphrase"`
	Salt       string            `mapstructure:"salt"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// DatabaseConfig holds the submission history database configuration.
type DatabaseConfig struct {
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"` // 0 keeps everything
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// WatchConfig holds the task progress watcher configuration.
type WatchConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	PeerID     string   `mapstructure:"peer_id"`
	Cron       string   `mapstructure:"cron"`
	Categories []string `mapstructure:"categories"`
	Limit      int      `mapstructure:"limit"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Remote: RemoteConfig{
			BaseURL:     types.DefaultBaseURL,
			DefaultPath: types.DefaultDownloadPath,
			Timeout:     30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Database: DatabaseConfig{
			Path:          "./data/homecloud.db",
			RetentionDays: 90,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8089,
		},
		Watch: WatchConfig{
			Cron:       "*/1 * * * *",
			Categories: []string{"downloading"},
			Limit:      types.DefaultListLimit,
		},
	}
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults.
// A .env file in the working directory is loaded into the environment first.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.homecloud")
	}

	v.SetEnvPrefix("HOMECLOUD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("remote.base_url", d.Remote.BaseURL)
	v.SetDefault("remote.default_path", d.Remote.DefaultPath)
	v.SetDefault("remote.timeout", d.Remote.Timeout)
	v.SetDefault("remote.user_agent", "")

	// Registered so AutomaticEnv picks them up without a config file.
	v.SetDefault("session.user_id", "")
	v.SetDefault("session.session_id", "")
	v.SetDefault("session.passphrase", "")
	v.SetDefault("session.salt", "")

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.path", "")

	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.retention_days", d.Database.RetentionDays)

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.jwt_secret", "")

	v.SetDefault("watch.enabled", false)
	v.SetDefault("watch.peer_id", "")
	v.SetDefault("watch.cron", d.Watch.Cron)
	v.SetDefault("watch.categories", d.Watch.Categories)
	v.SetDefault("watch.limit", d.Watch.Limit)
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	var errs []error

	if c.Remote.BaseURL == "" {
		errs = append(errs, errors.New("remote.base_url is required"))
	}
	if c.Remote.Timeout < 0 {
		errs = append(errs, errors.New("remote.timeout must not be negative"))
	}
	if c.Database.RetentionDays < 0 {
		errs = append(errs, errors.New("database.retention_days must not be negative"))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Watch.Enabled {
		if c.Watch.PeerID == "" {
			errs = append(errs, errors.New("watch.peer_id is required when the watcher is enabled"))
		}
		if _, err := c.Watch.ListTypes(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// ListTypes converts the configured category names.
func (w *WatchConfig) ListTypes() ([]types.ListType, error) {
	out := make([]types.ListType, 0, len(w.Categories))
	for _, name := range w.Categories {
		t, err := types.ParseListType(name)
		if err != nil {
			return nil, fmt.Errorf("watch.categories: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
