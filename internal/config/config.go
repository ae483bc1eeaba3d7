// Package config handles loading and managing mailtriage configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// SyncConfig holds sync cycle tuning.
type SyncConfig struct {
	Query        string `toml:"query"`          // Listing scope (default: "in:inbox")
	RateLimitQPS int    `toml:"rate_limit_qps"` // API request rate (default: 5)
	PageSize     int    `toml:"page_size"`      // Id listing page size (default: 100)
	FetchCap     int    `toml:"fetch_cap"`      // Full fetches per cycle (default: 50)
}

// TriageConfig holds staged-action behavior.
type TriageConfig struct {
	GraceSeconds  int  `toml:"grace_seconds"`  // Undo window (default: 5)
	RemoteCommits bool `toml:"remote_commits"` // Push commits to the provider via modify calls
}

// ServerConfig holds HTTP API server configuration.
type ServerConfig struct {
	APIPort         int      `toml:"api_port"`         // HTTP server port (default: 8080)
	APIKey          string   `toml:"api_key"`          // API authentication key
	BindAddr        string   `toml:"bind_addr"`        // Bind address (default: 127.0.0.1)
	CORSOrigins     []string `toml:"cors_origins"`     // Allowed origins; empty disables CORS
	CORSCredentials bool     `toml:"cors_credentials"` // Allow credentialed requests
	CORSMaxAge      int      `toml:"cors_max_age"`     // Preflight cache seconds
}

// ValidateSecure rejects configurations that expose the API beyond loopback
// without authentication.
func (s *ServerConfig) ValidateSecure() error {
	bind := s.BindAddr
	if bind == "" || bind == "127.0.0.1" || bind == "localhost" || bind == "::1" {
		return nil
	}
	if s.APIKey == "" {
		return fmt.Errorf("refusing to bind to %s without an api_key; set [server] api_key in config.toml", bind)
	}
	return nil
}

// AccountSchedule defines the sync schedule for a single account.
type AccountSchedule struct {
	Email    string `toml:"email"`    // Account email
	Schedule string `toml:"schedule"` // Cron expression (e.g., "*/15 * * * *")
	Enabled  bool   `toml:"enabled"`  // Whether scheduled sync is active
}

// OAuthConfig holds OAuth configuration.
type OAuthConfig struct {
	ClientSecrets string `toml:"client_secrets"`
}

type Config struct {
	OAuth    OAuthConfig       `toml:"oauth"`
	Sync     SyncConfig        `toml:"sync"`
	Triage   TriageConfig      `toml:"triage"`
	Server   ServerConfig      `toml:"server"`
	Accounts []AccountSchedule `toml:"accounts"`

	// Computed paths (not from config file)
	HomeDir string `toml:"-"`
}

// DefaultHome returns the default mailtriage home directory.
// Respects MAILTRIAGE_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("MAILTRIAGE_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mailtriage"
	}
	return filepath.Join(home, ".mailtriage")
}

// Load reads the configuration from the specified file.
// If path is empty, uses the default location (~/.mailtriage/config.toml).
func Load(path string) (*Config, error) {
	homeDir := DefaultHome()

	if path == "" {
		path = filepath.Join(homeDir, "config.toml")
	}

	cfg := &Config{
		HomeDir: homeDir,
		// Defaults
		Sync: SyncConfig{
			Query:        "in:inbox",
			RateLimitQPS: 5,
			PageSize:     100,
			FetchCap:     50,
		},
		Triage: TriageConfig{
			GraceSeconds: 5,
		},
		Server: ServerConfig{
			APIPort: 8080,
		},
		Accounts: []AccountSchedule{},
	}

	// Config file is optional - use defaults if not present
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.OAuth.ClientSecrets = expandPath(cfg.OAuth.ClientSecrets)

	return cfg, nil
}

// TokensDir returns the path to the OAuth tokens directory.
func (c *Config) TokensDir() string {
	return filepath.Join(c.HomeDir, "tokens")
}

// ScheduledAccounts returns accounts with scheduling enabled.
func (c *Config) ScheduledAccounts() []AccountSchedule {
	var scheduled []AccountSchedule
	for _, acc := range c.Accounts {
		if acc.Enabled && acc.Schedule != "" {
			scheduled = append(scheduled, acc)
		}
	}
	return scheduled
}

// GetAccountSchedule returns the schedule for a specific account email.
// Returns nil if the account is not configured for scheduling.
func (c *Config) GetAccountSchedule(email string) *AccountSchedule {
	for i := range c.Accounts {
		if c.Accounts[i].Email == email {
			return &c.Accounts[i]
		}
	}
	return nil
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
