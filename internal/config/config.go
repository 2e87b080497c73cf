package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/samsaffron/sizesync/internal/history"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Debug    bool           `mapstructure:"debug"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Resize   ResizeConfig   `mapstructure:"resize"`
	History  history.Config `mapstructure:"history"`
}

// TelegramConfig configures the Telegram bot.
type TelegramConfig struct {
	Token            string   `mapstructure:"token"`
	AllowedUserIDs   []int64  `mapstructure:"allowed_user_ids"`  // empty = anyone
	AllowedUsernames []string `mapstructure:"allowed_usernames"` // without the leading @
	IdleTimeout      int      `mapstructure:"idle_timeout"`      // minutes
	PollTimeout      int      `mapstructure:"poll_timeout"`      // seconds
	MaxDownloadBytes int64    `mapstructure:"max_download_bytes"`
}

// IdleTimeoutDuration returns the idle timeout, or 0 when disabled.
func (c TelegramConfig) IdleTimeoutDuration() time.Duration {
	if c.IdleTimeout <= 0 {
		return 0
	}
	return time.Duration(c.IdleTimeout) * time.Minute
}

// ResizeConfig bounds the work a single request may cause.
type ResizeConfig struct {
	MaxIterations int `mapstructure:"max_iterations"` // size search attempts
	MaxDimension  int `mapstructure:"max_dimension"`  // per side, pixels
	MaxPixels     int `mapstructure:"max_pixels"`     // decoded source limit
}

const (
	DefaultIdleTimeout      = 30       // minutes
	DefaultPollTimeout      = 60       // seconds
	DefaultMaxDownloadBytes = 20 << 20 // Telegram's getFile limit
	DefaultMaxIterations    = 20
	DefaultMaxDimension     = 10000
	DefaultMaxPixels        = 64 * 1000 * 1000
)

// tokenEnvVars are consulted in order when no token is configured.
var tokenEnvVars = []string{"TELEGRAM_BOT_TOKEN", "BOT_TOKEN"}

func Load() (*Config, error) {
	configPath, err := GetConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")

	// Set defaults
	v.SetDefault("debug", false)
	v.SetDefault("telegram.idle_timeout", DefaultIdleTimeout)
	v.SetDefault("telegram.poll_timeout", DefaultPollTimeout)
	v.SetDefault("telegram.max_download_bytes", DefaultMaxDownloadBytes)
	v.SetDefault("resize.max_iterations", DefaultMaxIterations)
	v.SetDefault("resize.max_dimension", DefaultMaxDimension)
	v.SetDefault("resize.max_pixels", DefaultMaxPixels)
	hist := history.DefaultConfig()
	v.SetDefault("history.enabled", hist.Enabled)
	v.SetDefault("history.max_count", hist.MaxCount)

	// Read config file (optional - won't error if missing)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	resolveTelegramCredentials(&cfg.Telegram)
	cfg.History.Path = expandEnv(cfg.History.Path)

	return &cfg, nil
}

func resolveTelegramCredentials(cfg *TelegramConfig) {
	cfg.Token = strings.TrimSpace(expandEnv(cfg.Token))
	for _, name := range tokenEnvVars {
		if cfg.Token != "" {
			return
		}
		cfg.Token = strings.TrimSpace(os.Getenv(name))
	}
}

// expandEnv expands ${VAR} or $VAR in a string
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		varName := s[2 : len(s)-1]
		return os.Getenv(varName)
	}
	if strings.HasPrefix(s, "$") {
		return os.Getenv(s[1:])
	}
	return s
}

// GetConfigDir returns the XDG config directory for sizesync.
// Uses $XDG_CONFIG_HOME if set, otherwise ~/.config
func GetConfigDir() (string, error) {
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		return filepath.Join(xdgHome, "sizesync"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "sizesync"), nil
}

// GetConfigPath returns the path where the config file should be located
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

// Exists returns true if a config file exists
func Exists() bool {
	path, err := GetConfigPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// SetTelegramConfig persists the bot credentials, keeping the rest of the
// file (including comments) intact.
func SetTelegramConfig(cfg TelegramConfig) error {
	ids := make([]string, len(cfg.AllowedUserIDs))
	for i, id := range cfg.AllowedUserIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}
	return updateFile(func(root *yaml.Node) error {
		if err := setYAMLValue(root, []string{"telegram", "token"}, cfg.Token); err != nil {
			return err
		}
		if err := setYAMLList(root, []string{"telegram", "allowed_user_ids"}, ids); err != nil {
			return err
		}
		return setYAMLList(root, []string{"telegram", "allowed_usernames"}, cfg.AllowedUsernames)
	})
}

// SetValue sets a dotted key (e.g. "resize.max_dimension") in the config file.
func SetValue(key, value string) error {
	return updateFile(func(root *yaml.Node) error {
		return setYAMLValue(root, strings.Split(key, "."), value)
	})
}

// GetValue reads a dotted key from the config file.
func GetValue(key string) (string, error) {
	path, err := GetConfigPath()
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("config file does not exist")
		}
		return "", fmt.Errorf("failed to read config: %w", err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return "", fmt.Errorf("failed to parse config: %w", err)
	}
	return getYAMLValue(&root, strings.Split(key, "."))
}

// updateFile loads the config file as a node tree (or starts an empty one),
// applies edit and writes it back with owner-only permissions.
func updateFile(edit func(*yaml.Node) error) error {
	path, err := GetConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var root yaml.Node
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err) || (err == nil && len(bytes.TrimSpace(data)) == 0):
		root = yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{{Kind: yaml.MappingNode}},
		}
	case err != nil:
		return fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &root); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := edit(&root); err != nil {
		return fmt.Errorf("failed to set value: %w", err)
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&root); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	encoder.Close()

	// The file may hold the bot token.
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// setYAMLValue navigates/creates the path in a yaml.Node tree and sets a scalar
func setYAMLValue(root *yaml.Node, path []string, value string) error {
	node, err := lookupOrCreate(root, path)
	if err != nil {
		return err
	}
	node.Kind = yaml.ScalarNode
	node.Tag = ""
	node.Style = 0
	node.Content = nil
	node.Value = value
	return nil
}

// setYAMLList replaces the node at path with a flow sequence of scalars.
func setYAMLList(root *yaml.Node, path []string, values []string) error {
	node, err := lookupOrCreate(root, path)
	if err != nil {
		return err
	}
	node.Kind = yaml.SequenceNode
	node.Tag = ""
	node.Value = ""
	node.Style = yaml.FlowStyle
	node.Content = make([]*yaml.Node, len(values))
	for i, v := range values {
		node.Content[i] = &yaml.Node{Kind: yaml.ScalarNode, Value: v}
	}
	return nil
}

func lookupOrCreate(root *yaml.Node, path []string) (*yaml.Node, error) {
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, fmt.Errorf("invalid document structure")
	}
	if len(path) == 0 {
		return nil, fmt.Errorf("empty key")
	}

	current := root.Content[0]
	if current.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("root is not a mapping")
	}

	for i, part := range path {
		isLast := i == len(path)-1

		var next *yaml.Node
		for j := 0; j+1 < len(current.Content); j += 2 {
			if current.Content[j].Value == part {
				next = current.Content[j+1]
				break
			}
		}
		if next == nil {
			next = &yaml.Node{Kind: yaml.MappingNode}
			if isLast {
				next = &yaml.Node{Kind: yaml.ScalarNode}
			}
			current.Content = append(current.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: part}, next)
		}
		if isLast {
			return next, nil
		}
		if next.Kind != yaml.MappingNode {
			// Convert to mapping if needed
			next.Kind = yaml.MappingNode
			next.Content = nil
			next.Value = ""
			next.Tag = ""
			next.Style = 0
		}
		current = next
	}
	return current, nil
}

// getYAMLValue navigates the yaml.Node tree and returns the value at path
func getYAMLValue(root *yaml.Node, path []string) (string, error) {
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return "", fmt.Errorf("invalid document structure")
	}

	current := root.Content[0]
	for _, part := range path {
		if current.Kind != yaml.MappingNode {
			return "", fmt.Errorf("path not found: expected mapping")
		}

		found := false
		for j := 0; j+1 < len(current.Content); j += 2 {
			if current.Content[j].Value == part {
				current = current.Content[j+1]
				found = true
				break
			}
		}
		if !found {
			return "", fmt.Errorf("key not found: %s", part)
		}
	}

	switch current.Kind {
	case yaml.ScalarNode:
		return current.Value, nil
	case yaml.SequenceNode:
		items := make([]string, 0, len(current.Content))
		for _, item := range current.Content {
			items = append(items, item.Value)
		}
		return strings.Join(items, ","), nil
	}
	return "", fmt.Errorf("value is not a scalar")
}
