package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// DatabaseConfig selects and locates the local mail cache.
type DatabaseConfig struct {
	// Driver is "sqlite" (default) or "bolt".
	Driver string `mapstructure:"driver" yaml:"driver"`

	// Path is the cache file location. ":memory:" is accepted for sqlite.
	Path string `mapstructure:"path" yaml:"path"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// IMAPConfig holds transport and synchronization tuning.
type IMAPConfig struct {
	// TimeoutSec bounds a whole IMAP session, from dial to logout.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`

	// DialTimeoutSec bounds the TCP connect.
	DialTimeoutSec int `mapstructure:"dial_timeout_sec" yaml:"dial_timeout_sec"`

	// SyncWindow is how many of the most recent INBOX messages a resync fetches.
	SyncWindow int `mapstructure:"sync_window" yaml:"sync_window"`

	// ListLimit is the default number of cached messages returned by a listing.
	ListLimit int `mapstructure:"list_limit" yaml:"list_limit"`

	// TrashFallback is used when no folder advertises the \Trash special use.
	TrashFallback string `mapstructure:"trash_fallback" yaml:"trash_fallback"`

	// RequireStartTLS rejects servers that offer no STARTTLS on ports other
	// than 993 instead of continuing in plaintext.
	RequireStartTLS bool `mapstructure:"require_starttls" yaml:"require_starttls"`
}

// AccountConfig maps an application user to the mailbox they configured.
type AccountConfig struct {
	User     string `mapstructure:"user" yaml:"user"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`

	// Password is optional; when empty it is read from the system keyring.
	Password string `mapstructure:"password" yaml:"password"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Database DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Log      LogConfig       `mapstructure:"log" yaml:"log"`
	IMAP     IMAPConfig      `mapstructure:"imap" yaml:"imap"`
	Accounts []AccountConfig `mapstructure:"accounts" yaml:"accounts"`
}

// Account returns the account configured for user.
func (c *AppConfig) Account(user string) (AccountConfig, bool) {
	for _, a := range c.Accounts {
		if a.User == user {
			return a, true
		}
	}
	return AccountConfig{}, false
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/inboxsync/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "inboxsync", "config.yaml")
}

// DefaultDatabasePath returns ~/.local/share/inboxsync/cache.db.
func DefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "cache.db"
	}
	return filepath.Join(home, ".local", "share", "inboxsync", "cache.db")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   DefaultDatabasePath(),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		IMAP: IMAPConfig{
			TimeoutSec:     60,
			DialTimeoutSec: 15,
			SyncWindow:     50,
			ListLimit:      100,
			TrashFallback:  "Trash",
		},
		Accounts: []AccountConfig{},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration with
// environment overrides applied.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("INBOXSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults so missing keys resolve to sensible values.
	d := defaultAppConfig()
	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("imap.timeout_sec", d.IMAP.TimeoutSec)
	v.SetDefault("imap.dial_timeout_sec", d.IMAP.DialTimeoutSec)
	v.SetDefault("imap.sync_window", d.IMAP.SyncWindow)
	v.SetDefault("imap.list_limit", d.IMAP.ListLimit)
	v.SetDefault("imap.trash_fallback", d.IMAP.TrashFallback)
	v.SetDefault("imap.require_starttls", d.IMAP.RequireStartTLS)

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	for i := range cfg.Accounts {
		if cfg.Accounts[i].Port == 0 {
			cfg.Accounts[i].Port = ImplicitTLSPort
		}
		cfg.Accounts[i].Host = strings.TrimSpace(cfg.Accounts[i].Host)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the account entries and the cache driver.
func (c *AppConfig) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "bolt":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	seen := make(map[string]bool, len(c.Accounts))
	for i, a := range c.Accounts {
		switch {
		case a.User == "":
			return fmt.Errorf("accounts[%d]: user is required", i)
		case a.Host == "":
			return fmt.Errorf("accounts[%d] (%s): host is required", i, a.User)
		case a.Username == "":
			return fmt.Errorf("accounts[%d] (%s): username is required", i, a.User)
		case a.Port < 1 || a.Port > 65535:
			return fmt.Errorf("accounts[%d] (%s): invalid port %d", i, a.User, a.Port)
		}
		if seen[a.User] {
			return fmt.Errorf("accounts[%d]: duplicate user %q", i, a.User)
		}
		seen[a.User] = true
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("database", cfg.Database)
	v.Set("log", cfg.Log)
	v.Set("imap", cfg.IMAP)
	v.Set("accounts", cfg.Accounts)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
