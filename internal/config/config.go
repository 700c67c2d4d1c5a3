// Package config handles loading and managing chanvault configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Supported query backends.
const (
	BackendSQLite = "sqlite"
	BackendDuckDB = "duckdb"
)

// Config represents the chanvault configuration.
type Config struct {
	Data   DataConfig   `toml:"data"`
	Store  StoreConfig  `toml:"store"`
	Search SearchConfig `toml:"search"`
	Server ServerConfig `toml:"server"`

	// Computed paths (not from config file)
	HomeDir string `toml:"-"`
}

// DataConfig holds data storage configuration.
type DataConfig struct {
	DataDir     string `toml:"data_dir"`
	DatabaseURL string `toml:"database_url"`
}

// StoreConfig selects the message table and the query backend.
type StoreConfig struct {
	Table            string `toml:"table"`              // message table (default: messages)
	Backend          string `toml:"backend"`            // "sqlite" or "duckdb"
	QueryTimeoutSecs int    `toml:"query_timeout_secs"` // per window query
}

// SearchConfig holds paging and schema refresh settings.
type SearchConfig struct {
	DefaultLimit      int    `toml:"default_limit"`
	MaxLimit          int    `toml:"max_limit"`
	WindowRowCap      int    `toml:"window_row_cap"`
	SchemaRefreshSecs int    `toml:"schema_refresh_secs"`
	RefreshSchedule   string `toml:"refresh_schedule"` // cron expression, empty disables
}

// ServerConfig holds HTTP API server configuration.
type ServerConfig struct {
	APIPort        int      `toml:"api_port"`  // HTTP server port (default: 8080)
	BindAddr       string   `toml:"bind_addr"` // default: 127.0.0.1
	APIKey         string   `toml:"api_key"`   // optional; empty disables auth
	CORSOrigins    []string `toml:"cors_origins"`
	RateLimitRPS   float64  `toml:"rate_limit_rps"`
	RateLimitBurst int      `toml:"rate_limit_burst"`
}

// DefaultHome returns the default chanvault home directory.
// Respects CHANVAULT_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("CHANVAULT_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chanvault"
	}
	return filepath.Join(home, ".chanvault")
}

// Default returns the configuration used when no file is present.
func Default(homeDir string) *Config {
	return &Config{
		HomeDir: homeDir,
		Data: DataConfig{
			DataDir: homeDir,
		},
		Store: StoreConfig{
			Table:            "messages",
			Backend:          BackendSQLite,
			QueryTimeoutSecs: 30,
		},
		Search: SearchConfig{
			DefaultLimit:      20,
			MaxLimit:          100,
			WindowRowCap:      500,
			SchemaRefreshSecs: 60,
			RefreshSchedule:   "*/5 * * * *",
		},
		Server: ServerConfig{
			APIPort:        8080,
			BindAddr:       "127.0.0.1",
			RateLimitRPS:   10,
			RateLimitBurst: 20,
		},
	}
}

// Load reads the configuration from the specified file.
// If path is empty, uses config.toml in homeDir, or DefaultHome() when
// homeDir is empty too. A missing file yields the defaults.
func Load(path, homeDir string) (*Config, error) {
	if homeDir == "" {
		homeDir = DefaultHome()
	}
	homeDir = expandPath(homeDir)

	if path == "" {
		path = filepath.Join(homeDir, "config.toml")
	}

	cfg := Default(homeDir)

	// Config file is optional - use defaults if not present
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// Expand ~ in paths
	cfg.Data.DataDir = expandPath(cfg.Data.DataDir)
	cfg.Data.DatabaseURL = expandPath(cfg.Data.DatabaseURL)
	cfg.Store.Backend = strings.ToLower(strings.TrimSpace(cfg.Store.Backend))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges that would otherwise fail at runtime.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendSQLite, BackendDuckDB:
	default:
		return fmt.Errorf("store.backend: unknown backend %q (want %q or %q)", c.Store.Backend, BackendSQLite, BackendDuckDB)
	}
	if c.Store.Table == "" {
		return fmt.Errorf("store.table must not be empty")
	}
	if c.Search.MaxLimit < 1 || c.Search.MaxLimit > 1000 {
		return fmt.Errorf("search.max_limit must be between 1 and 1000, got %d", c.Search.MaxLimit)
	}
	if c.Search.DefaultLimit < 1 || c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("search.default_limit must be between 1 and max_limit (%d), got %d", c.Search.MaxLimit, c.Search.DefaultLimit)
	}
	if c.Search.WindowRowCap < 1 {
		return fmt.Errorf("search.window_row_cap must be positive, got %d", c.Search.WindowRowCap)
	}
	if c.Server.APIPort < 0 || c.Server.APIPort > 65535 {
		return fmt.Errorf("server.api_port out of range: %d", c.Server.APIPort)
	}
	return nil
}

// DatabasePath returns the path to the SQLite database.
func (c *Config) DatabasePath() string {
	if c.Data.DatabaseURL != "" {
		return c.Data.DatabaseURL
	}
	return filepath.Join(c.Data.DataDir, "chanvault.db")
}

// EnsureHomeDir creates the home and data directories if they don't exist.
func (c *Config) EnsureHomeDir() error {
	for _, dir := range []string{c.HomeDir, c.Data.DataDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}
	return nil
}

// QueryTimeout returns the per-query timeout.
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.Store.QueryTimeoutSecs) * time.Second
}

// SchemaRefreshInterval returns the minimum interval between unforced
// schema refreshes.
func (c *Config) SchemaRefreshInterval() time.Duration {
	return time.Duration(c.Search.SchemaRefreshSecs) * time.Second
}

// ListenAddr returns the host:port the API server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddr, c.Server.APIPort)
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
