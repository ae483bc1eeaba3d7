package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Sync.Query != "in:inbox" {
		t.Errorf("Sync.Query = %q", cfg.Sync.Query)
	}
	if cfg.Sync.RateLimitQPS != 5 {
		t.Errorf("Sync.RateLimitQPS = %d", cfg.Sync.RateLimitQPS)
	}
	if cfg.Sync.PageSize != 100 {
		t.Errorf("Sync.PageSize = %d", cfg.Sync.PageSize)
	}
	if cfg.Sync.FetchCap != 50 {
		t.Errorf("Sync.FetchCap = %d", cfg.Sync.FetchCap)
	}
	if cfg.Triage.GraceSeconds != 5 {
		t.Errorf("Triage.GraceSeconds = %d", cfg.Triage.GraceSeconds)
	}
	if cfg.Server.APIPort != 8080 {
		t.Errorf("Server.APIPort = %d", cfg.Server.APIPort)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	content := `
[sync]
query = "in:inbox -category:promotions"
rate_limit_qps = 2
fetch_cap = 25

[triage]
grace_seconds = 10
remote_commits = true

[server]
api_port = 9090
api_key = "secret"

[[accounts]]
email = "a@example.com"
schedule = "*/15 * * * *"
enabled = true

[[accounts]]
email = "b@example.com"
schedule = "0 2 * * *"
enabled = false
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Sync.Query != "in:inbox -category:promotions" {
		t.Errorf("Sync.Query = %q", cfg.Sync.Query)
	}
	if cfg.Sync.RateLimitQPS != 2 {
		t.Errorf("Sync.RateLimitQPS = %d", cfg.Sync.RateLimitQPS)
	}
	if cfg.Sync.FetchCap != 25 {
		t.Errorf("Sync.FetchCap = %d", cfg.Sync.FetchCap)
	}
	// Unset keys keep their defaults.
	if cfg.Sync.PageSize != 100 {
		t.Errorf("Sync.PageSize = %d, want default 100", cfg.Sync.PageSize)
	}
	if cfg.Triage.GraceSeconds != 10 || !cfg.Triage.RemoteCommits {
		t.Errorf("Triage = %+v", cfg.Triage)
	}
	if cfg.Server.APIPort != 9090 || cfg.Server.APIKey != "secret" {
		t.Errorf("Server = %+v", cfg.Server)
	}

	scheduled := cfg.ScheduledAccounts()
	if len(scheduled) != 1 || scheduled[0].Email != "a@example.com" {
		t.Errorf("ScheduledAccounts = %+v", scheduled)
	}

	if got := cfg.GetAccountSchedule("b@example.com"); got == nil || got.Enabled {
		t.Errorf("GetAccountSchedule(b) = %+v", got)
	}
	if got := cfg.GetAccountSchedule("missing@example.com"); got != nil {
		t.Errorf("GetAccountSchedule(missing) = %+v", got)
	}
}

func TestDefaultHomeEnvOverride(t *testing.T) {
	t.Setenv("MAILTRIAGE_HOME", "/tmp/mailtriage-test")
	if got := DefaultHome(); got != "/tmp/mailtriage-test" {
		t.Errorf("DefaultHome = %q", got)
	}
}

func TestValidateSecure(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ServerConfig
		wantErr bool
	}{
		{"LoopbackNoKey", ServerConfig{BindAddr: "127.0.0.1"}, false},
		{"DefaultNoKey", ServerConfig{}, false},
		{"PublicNoKey", ServerConfig{BindAddr: "0.0.0.0"}, true},
		{"PublicWithKey", ServerConfig{BindAddr: "0.0.0.0", APIKey: "k"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.ValidateSecure()
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSecure() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTokensDir(t *testing.T) {
	cfg := &Config{HomeDir: "/home/u/.mailtriage"}
	want := filepath.Join("/home/u/.mailtriage", "tokens")
	if got := cfg.TokensDir(); got != want {
		t.Errorf("TokensDir = %q, want %q", got, want)
	}
}
