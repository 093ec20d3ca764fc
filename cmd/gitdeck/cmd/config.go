package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/brianly1003/gitdeck/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	configInitLocal bool
	configInitForce bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Display and manage configuration",
	Long: `Display and manage gitdeck configuration.

Without subcommands, prints the effective configuration as YAML.

Examples:
  gitdeck config                         # Show effective config
  gitdeck config init                    # Write ~/.gitdeck/config.yaml with defaults
  gitdeck config path                    # Show config search paths
  gitdeck config get cache.ahead_behind_ttl_ms
  gitdeck config set server.port 9000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to serialize config: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a config file with default settings",
	Long: `Create a config file with default settings.

By default, creates ~/.gitdeck/config.yaml.
Use --local to create ./config.yaml in the current directory.`,
	RunE: runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show config file location",
	RunE:  runConfigPath,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Long: `Get a configuration value by key. Keys use dot notation, e.g.
server.port or watcher.ignore_patterns.`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in ~/.gitdeck/config.yaml, creating the file
if needed. Values are parsed as YAML scalars, so 9000 is a number and true a
boolean.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)

	configInitCmd.Flags().BoolVar(&configInitLocal, "local", false, "create config in current directory instead of ~/.gitdeck/")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite existing config file")
}

func userConfigPath() (string, error) {
	dir, err := config.GetConfigDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := "config.yaml"
	if !configInitLocal {
		p, err := userConfigPath()
		if err != nil {
			return err
		}
		configPath = p
	}

	if _, err := os.Stat(configPath); err == nil && !configInitForce {
		return fmt.Errorf("config file already exists: %s\nUse --force to overwrite", configPath)
	}

	content, err := defaultConfigYAML()
	if err != nil {
		return err
	}
	if err := os.WriteFile(configPath, content, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", configPath)
	return nil
}

// defaultConfigYAML renders the built-in defaults. The project path is left
// out so the file stays portable.
func defaultConfigYAML() ([]byte, error) {
	cfg := config.Default()
	cfg.Project.Path = ""
	body, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize defaults: %w", err)
	}
	header := "# gitdeck configuration\n# Every key can also be set as GITDECK_<SECTION>_<KEY>.\n\n"
	return append([]byte(header), body...), nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	configDir, err := config.GetConfigDir()
	if err != nil {
		return fmt.Errorf("failed to get config dir: %w", err)
	}

	_, used, err := config.LoadWithSource(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	out := cmd.OutOrStdout()
	locations := []string{
		"./config.yaml",
		filepath.Join(configDir, "config.yaml"),
		"/etc/gitdeck/config.yaml",
	}
	fmt.Fprintln(out, "Config search paths (in order):")
	for i, loc := range locations {
		state := "not found"
		if _, err := os.Stat(loc); err == nil {
			state = "exists"
		}
		fmt.Fprintf(out, "  %d. %s (%s)\n", i+1, loc, state)
	}
	if used == "" {
		used = "(defaults only)"
	}
	fmt.Fprintf(out, "\nIn use: %s\n", used)
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	tree, err := toTree(cfg)
	if err != nil {
		return err
	}
	value, err := getNestedValue(tree, args[0])
	if err != nil {
		return err
	}

	switch v := value.(type) {
	case map[string]interface{}, []interface{}:
		out, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	default:
		fmt.Fprintln(cmd.OutOrStdout(), v)
		return nil
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	if _, err := getNestedValue(mustTree(config.Default()), key); err != nil {
		return err
	}

	configPath, err := userConfigPath()
	if err != nil {
		return err
	}

	data := make(map[string]interface{})
	if content, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(content, &data); err != nil {
			return fmt.Errorf("failed to parse existing config: %w", err)
		}
	}

	if err := setNestedValue(data, key, parseValue(value)); err != nil {
		return err
	}

	content, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	if err := os.WriteFile(configPath, content, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s in %s\n", key, value, configPath)
	return nil
}

// toTree converts cfg into nested maps keyed by the YAML names.
func toTree(cfg *config.Config) (map[string]interface{}, error) {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize config: %w", err)
	}
	tree := make(map[string]interface{})
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return tree, nil
}

func mustTree(cfg *config.Config) map[string]interface{} {
	tree, err := toTree(cfg)
	if err != nil {
		panic(err)
	}
	return tree
}

func getNestedValue(data map[string]interface{}, key string) (interface{}, error) {
	var current interface{} = data
	for _, part := range strings.Split(key, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("unknown config key: %s", key)
		}
		if current, ok = m[part]; !ok {
			return nil, fmt.Errorf("unknown config key: %s", key)
		}
	}
	return current, nil
}

func setNestedValue(data map[string]interface{}, key string, value interface{}) error {
	parts := strings.Split(key, ".")

	current := data
	for _, part := range parts[:len(parts)-1] {
		if _, ok := current[part]; !ok {
			current[part] = make(map[string]interface{})
		}
		nested, ok := current[part].(map[string]interface{})
		if !ok {
			return fmt.Errorf("cannot set nested value: %s is not a map", part)
		}
		current = nested
	}
	current[parts[len(parts)-1]] = value
	return nil
}

// parseValue interprets a command line value as a YAML scalar.
func parseValue(value string) interface{} {
	var v interface{}
	if err := yaml.Unmarshal([]byte(value), &v); err != nil || v == nil {
		return value
	}
	return v
}
