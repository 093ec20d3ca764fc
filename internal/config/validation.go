package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"unicode"

	"github.com/brianly1003/gitdeck/internal/platform"
	"github.com/brianly1003/gitdeck/internal/security"
)

// Validate validates the configuration.
func Validate(cfg *Config) error {
	if err := validateServer(&cfg.Server); err != nil {
		return err
	}
	if err := validateProject(&cfg.Project); err != nil {
		return err
	}
	if err := validateWatcher(&cfg.Watcher); err != nil {
		return err
	}
	if cfg.Git.Command == "" {
		return fmt.Errorf("git.command cannot be empty")
	}
	if err := validateCache(&cfg.Cache); err != nil {
		return err
	}
	if err := validateHistory(&cfg.History); err != nil {
		return err
	}
	if err := validateExec(&cfg.Exec); err != nil {
		return err
	}
	if cfg.Interactive.StopGraceMS < 0 || cfg.Interactive.StopGraceMS > 60000 {
		return fmt.Errorf("interactive.stop_grace_ms must be between 0 and 60000")
	}
	if err := validateLimits(&cfg.Limits); err != nil {
		return err
	}
	return validateLogging(&cfg.Logging)
}

func validateServer(cfg *ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if cfg.Host == "" {
		return fmt.Errorf("server.host cannot be empty")
	}
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" || (strings.HasPrefix(origin, "*.") && len(origin) > 2) {
			continue
		}
		if err := validateOrigin(origin); err != nil {
			return err
		}
	}
	if _, err := security.ParseTrustedProxies(cfg.TrustedProxies); err != nil {
		return fmt.Errorf("server.trusted_proxies: %w", err)
	}
	return nil
}

// validateOrigin checks that an allowed origin is a scheme://host[:port] URL.
func validateOrigin(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("server.allowed_origins has invalid URL %q: %w", raw, err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("server.allowed_origins entry %q must include a host", raw)
	}
	if !strings.EqualFold(parsed.Scheme, "http") && !strings.EqualFold(parsed.Scheme, "https") {
		return fmt.Errorf("server.allowed_origins entry %q must use http or https", raw)
	}
	return nil
}

func validateProject(cfg *ProjectConfig) error {
	info, err := os.Stat(cfg.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("project.path does not exist: %s", cfg.Path)
		}
		return fmt.Errorf("error accessing project.path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("project.path is not a directory: %s", cfg.Path)
	}
	return nil
}

func validateWatcher(cfg *WatcherConfig) error {
	if cfg.DebounceMS < 0 {
		return fmt.Errorf("watcher.debounce_ms cannot be negative")
	}
	if cfg.DebounceMS > 10000 {
		return fmt.Errorf("watcher.debounce_ms cannot exceed 10000ms")
	}
	return nil
}

func validateCache(cfg *CacheConfig) error {
	fields := []struct {
		name  string
		value int
	}{
		{"cache.branch_ttl_ms", cfg.BranchTTLMS},
		{"cache.upstream_ttl_ms", cfg.UpstreamTTLMS},
		{"cache.ahead_behind_ttl_ms", cfg.AheadBehindTTLMS},
		{"cache.push_suppression_ms", cfg.PushSuppressionMS},
	}
	for _, f := range fields {
		if f.value < 0 {
			return fmt.Errorf("%s cannot be negative", f.name)
		}
	}
	return nil
}

func validateHistory(cfg *HistoryConfig) error {
	if cfg.Capacity < 1 {
		return fmt.Errorf("history.capacity must be at least 1")
	}
	if cfg.Capacity > 10000 {
		return fmt.Errorf("history.capacity cannot exceed 10000")
	}
	if cfg.MaxOutputBytes < 256 {
		return fmt.Errorf("history.max_output_bytes must be at least 256")
	}
	return nil
}

func validateExec(cfg *ExecConfig) error {
	if cfg.LegacyCodePage != "" {
		if _, ok := platform.LookupCodePage(cfg.LegacyCodePage); !ok {
			return fmt.Errorf("exec.legacy_codepage %q is not supported", cfg.LegacyCodePage)
		}
	}
	if cfg.TargetScript != "" {
		if _, ok := unicode.Scripts[cfg.TargetScript]; !ok {
			return fmt.Errorf("exec.target_script %q is not a Unicode script name", cfg.TargetScript)
		}
	}
	return nil
}

func validateLimits(cfg *LimitsConfig) error {
	if cfg.ExecRatePerSec < 0 {
		return fmt.Errorf("limits.exec_rate_per_sec cannot be negative")
	}
	if cfg.ExecRatePerSec > 0 && cfg.ExecBurst < 1 {
		return fmt.Errorf("limits.exec_burst must be at least 1 when rate limiting is enabled")
	}
	if cfg.MaxRequestBytes < 1024 {
		return fmt.Errorf("limits.max_request_bytes must be at least 1024")
	}
	return nil
}

func validateLogging(cfg *LoggingConfig) error {
	switch strings.ToLower(cfg.Level) {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of trace, debug, info, warn, error")
	}
	switch strings.ToLower(cfg.Format) {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format must be one of auto, console, json")
	}
	if cfg.File != "" && cfg.MaxSizeMB < 1 {
		return fmt.Errorf("logging.max_size_mb must be at least 1")
	}
	return nil
}
