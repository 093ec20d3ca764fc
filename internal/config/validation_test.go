package config

import (
	"strings"
	"testing"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := Default()
	cfg.Project.Path = t.TempDir()
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"port too low", func(c *Config) { c.Server.Port = 0 }, "server.port must be between 1 and 65535"},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, "server.port must be between 1 and 65535"},
		{"empty host", func(c *Config) { c.Server.Host = "" }, "server.host cannot be empty"},
		{"wildcard origin", func(c *Config) { c.Server.AllowedOrigins = []string{"*"} }, ""},
		{"valid origin", func(c *Config) { c.Server.AllowedOrigins = []string{"http://localhost:5173"} }, ""},
		{"origin without host", func(c *Config) { c.Server.AllowedOrigins = []string{"localhost"} }, "must include a host"},
		{"origin bad scheme", func(c *Config) { c.Server.AllowedOrigins = []string{"ftp://x"} }, "must use http or https"},
		{"subdomain wildcard origin", func(c *Config) { c.Server.AllowedOrigins = []string{"*.example.com"} }, ""},
		{"trusted proxy cidr", func(c *Config) { c.Server.TrustedProxies = []string{"10.0.0.0/8", "127.0.0.1"} }, ""},
		{"bad trusted proxy", func(c *Config) { c.Server.TrustedProxies = []string{"not-an-ip"} }, "server.trusted_proxies"},
		{"negative debounce", func(c *Config) { c.Watcher.DebounceMS = -1 }, "cannot be negative"},
		{"huge debounce", func(c *Config) { c.Watcher.DebounceMS = 20000 }, "cannot exceed 10000ms"},
		{"empty git command", func(c *Config) { c.Git.Command = "" }, "git.command cannot be empty"},
		{"negative ttl", func(c *Config) { c.Cache.AheadBehindTTLMS = -5 }, "cache.ahead_behind_ttl_ms cannot be negative"},
		{"zero history", func(c *Config) { c.History.Capacity = 0 }, "history.capacity must be at least 1"},
		{"tiny output budget", func(c *Config) { c.History.MaxOutputBytes = 10 }, "history.max_output_bytes"},
		{"unknown codepage", func(c *Config) { c.Exec.LegacyCodePage = "cp9999" }, "not supported"},
		{"codepage case insensitive", func(c *Config) { c.Exec.LegacyCodePage = "CP866" }, ""},
		{"no codepage", func(c *Config) { c.Exec.LegacyCodePage = "" }, ""},
		{"unknown script", func(c *Config) { c.Exec.TargetScript = "Klingon" }, "not a Unicode script name"},
		{"stop grace too long", func(c *Config) { c.Interactive.StopGraceMS = 120000 }, "interactive.stop_grace_ms"},
		{"negative rate", func(c *Config) { c.Limits.ExecRatePerSec = -1 }, "cannot be negative"},
		{"rate without burst", func(c *Config) { c.Limits.ExecBurst = 0 }, "limits.exec_burst"},
		{"rate disabled without burst", func(c *Config) { c.Limits.ExecRatePerSec = 0; c.Limits.ExecBurst = 0 }, ""},
		{"small request limit", func(c *Config) { c.Limits.MaxRequestBytes = 10 }, "limits.max_request_bytes"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"file without size", func(c *Config) { c.Logging.File = "/tmp/x.log"; c.Logging.MaxSizeMB = 0 }, "logging.max_size_mb"},
		{"missing project", func(c *Config) { c.Project.Path = c.Project.Path + "/nope" }, "project.path does not exist"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}
