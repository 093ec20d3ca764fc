// Package config handles configuration management for gitdeck.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brianly1003/gitdeck/internal/platform"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. GITDECK_SERVER_PORT.
const EnvPrefix = "GITDECK"

// Config holds all configuration for the application.
type Config struct {
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	Project     ProjectConfig     `mapstructure:"project" yaml:"project"`
	Watcher     WatcherConfig     `mapstructure:"watcher" yaml:"watcher"`
	Git         GitConfig         `mapstructure:"git" yaml:"git"`
	Cache       CacheConfig       `mapstructure:"cache" yaml:"cache"`
	History     HistoryConfig     `mapstructure:"history" yaml:"history"`
	Exec        ExecConfig        `mapstructure:"exec" yaml:"exec"`
	Interactive InteractiveConfig `mapstructure:"interactive" yaml:"interactive"`
	Terminal    TerminalConfig    `mapstructure:"terminal" yaml:"terminal"`
	Limits      LimitsConfig      `mapstructure:"limits" yaml:"limits"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Host           string   `mapstructure:"host" yaml:"host"`
	Port           int      `mapstructure:"port" yaml:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	TrustedProxies []string `mapstructure:"trusted_proxies" yaml:"trusted_proxies"`
	Debug          bool     `mapstructure:"debug" yaml:"debug"`
	Pprof          bool     `mapstructure:"pprof" yaml:"pprof"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ProjectConfig selects the initial working directory.
type ProjectConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// WatcherConfig holds file watcher configuration.
type WatcherConfig struct {
	Enabled        bool     `mapstructure:"enabled" yaml:"enabled"`
	DebounceMS     int      `mapstructure:"debounce_ms" yaml:"debounce_ms"`
	IgnorePatterns []string `mapstructure:"ignore_patterns" yaml:"ignore_patterns"`
}

// Debounce returns the quiet period as a duration.
func (w WatcherConfig) Debounce() time.Duration {
	return time.Duration(w.DebounceMS) * time.Millisecond
}

// GitConfig holds Git configuration.
type GitConfig struct {
	Command string `mapstructure:"command" yaml:"command"`
}

// CacheConfig holds repository fact cache lifetimes.
type CacheConfig struct {
	BranchTTLMS       int `mapstructure:"branch_ttl_ms" yaml:"branch_ttl_ms"`
	UpstreamTTLMS     int `mapstructure:"upstream_ttl_ms" yaml:"upstream_ttl_ms"`
	AheadBehindTTLMS  int `mapstructure:"ahead_behind_ttl_ms" yaml:"ahead_behind_ttl_ms"`
	PushSuppressionMS int `mapstructure:"push_suppression_ms" yaml:"push_suppression_ms"`
}

// BranchTTL returns the branch name cache lifetime.
func (c CacheConfig) BranchTTL() time.Duration { return ms(c.BranchTTLMS) }

// UpstreamTTL returns the upstream name cache lifetime.
func (c CacheConfig) UpstreamTTL() time.Duration { return ms(c.UpstreamTTLMS) }

// AheadBehindTTL returns the ahead/behind cache lifetime.
func (c CacheConfig) AheadBehindTTL() time.Duration { return ms(c.AheadBehindTTLMS) }

// PushSuppression returns how long a successful push suppresses remote checks.
func (c CacheConfig) PushSuppression() time.Duration { return ms(c.PushSuppressionMS) }

// HistoryConfig holds command history limits.
type HistoryConfig struct {
	Capacity       int `mapstructure:"capacity" yaml:"capacity"`
	MaxOutputBytes int `mapstructure:"max_output_bytes" yaml:"max_output_bytes"`
}

// ExecConfig holds output decoding settings. They only take effect on
// platforms whose built-in shell verbs write a legacy code page.
type ExecConfig struct {
	LegacyCodePage string   `mapstructure:"legacy_codepage" yaml:"legacy_codepage"`
	TargetScript   string   `mapstructure:"target_script" yaml:"target_script"`
	LegacyVerbs    []string `mapstructure:"legacy_verbs" yaml:"legacy_verbs"`
}

// InteractiveConfig holds interactive session settings.
type InteractiveConfig struct {
	StopGraceMS int  `mapstructure:"stop_grace_ms" yaml:"stop_grace_ms"`
	UsePTY      bool `mapstructure:"use_pty" yaml:"use_pty"`
}

// StopGrace returns how long Stop waits before escalating to a kill.
func (i InteractiveConfig) StopGrace() time.Duration { return ms(i.StopGraceMS) }

// TerminalConfig holds external terminal settings.
type TerminalConfig struct {
	Emulator string `mapstructure:"emulator" yaml:"emulator"`
}

// LimitsConfig holds various limits.
type LimitsConfig struct {
	ExecRatePerSec  float64 `mapstructure:"exec_rate_per_sec" yaml:"exec_rate_per_sec"`
	ExecBurst       int     `mapstructure:"exec_burst" yaml:"exec_burst"`
	MaxRequestBytes int64   `mapstructure:"max_request_bytes" yaml:"max_request_bytes"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// Load loads configuration from files and environment.
func Load(configPath string) (*Config, error) {
	cfg, _, err := LoadWithSource(configPath)
	return cfg, err
}

// LoadWithSource is Load that also reports which config file was read.
// The path is empty when only defaults and environment were used.
func LoadWithSource(configPath string) (*Config, string, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.gitdeck")
		v.AddConfigPath("/etc/gitdeck")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional - not an error if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, "", fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("error parsing config: %w", err)
	}

	if err := postProcess(&cfg); err != nil {
		return nil, "", err
	}

	if err := Validate(&cfg); err != nil {
		return nil, "", err
	}

	return &cfg, v.ConfigFileUsed(), nil
}

// Default returns the configuration produced by defaults alone, without
// reading files or the environment and without resolving the project path.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 7878)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.trusted_proxies", []string{})
	v.SetDefault("server.debug", false)
	v.SetDefault("server.pprof", false)

	v.SetDefault("project.path", "")

	v.SetDefault("watcher.enabled", true)
	v.SetDefault("watcher.debounce_ms", 1000)
	v.SetDefault("watcher.ignore_patterns", DefaultWatcherIgnorePatterns)

	v.SetDefault("git.command", "git")

	v.SetDefault("cache.branch_ttl_ms", 300000)
	v.SetDefault("cache.upstream_ttl_ms", 300000)
	v.SetDefault("cache.ahead_behind_ttl_ms", 5000)
	v.SetDefault("cache.push_suppression_ms", 10000)

	v.SetDefault("history.capacity", 100)
	v.SetDefault("history.max_output_bytes", 10240)

	v.SetDefault("exec.legacy_codepage", "cp866")
	v.SetDefault("exec.target_script", "Cyrillic")
	v.SetDefault("exec.legacy_verbs", platform.DefaultLegacyVerbs)

	v.SetDefault("interactive.stop_grace_ms", 2000)
	v.SetDefault("interactive.use_pty", false)

	v.SetDefault("terminal.emulator", "")

	v.SetDefault("limits.exec_rate_per_sec", 10.0)
	v.SetDefault("limits.exec_burst", 20)
	v.SetDefault("limits.max_request_bytes", 1<<20)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "auto")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)
	v.SetDefault("logging.compress", false)
}

// postProcess applies post-processing to configuration.
func postProcess(cfg *Config) error {
	// If project path is empty, use current directory
	if cfg.Project.Path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
		cfg.Project.Path = cwd
	}

	absPath, err := filepath.Abs(cfg.Project.Path)
	if err != nil {
		return fmt.Errorf("failed to resolve project path: %w", err)
	}
	cfg.Project.Path = absPath

	if cfg.Logging.File != "" {
		cfg.Logging.File = expandHome(cfg.Logging.File)
	}

	return nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// GetConfigDir returns the user config directory for gitdeck.
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".gitdeck"), nil
}
