package cmd

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/samsaffron/sizesync/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage sizesync configuration",
	Long: `View or edit your sizesync configuration.

Examples:
  sizesync config                                  # show current config
  sizesync config edit                             # edit in $EDITOR
  sizesync config set resize.max_dimension 4000
  sizesync config get telegram.idle_timeout`,
	RunE: configShow, // Default to show
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  configShow,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration file in $EDITOR",
	Args:  cobra.NoArgs,
	RunE:  configEdit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print configuration file path",
	Args:  cobra.NoArgs,
	RunE:  configPath,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value while preserving comments.

Examples:
  sizesync config set telegram.idle_timeout 10
  sizesync config set resize.max_iterations 30
  sizesync config set history.enabled false`,
	Args:      cobra.ExactArgs(2),
	RunE:      configSet,
	ValidArgs: configKeys,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Long: `Get a configuration value from the config file.

Examples:
  sizesync config get telegram.allowed_user_ids`,
	Args:      cobra.ExactArgs(1),
	RunE:      configGet,
	ValidArgs: configKeys,
}

// configKeys lists the settable keys, used for shell completion.
var configKeys = []string{
	"debug",
	"telegram.token",
	"telegram.allowed_user_ids",
	"telegram.allowed_usernames",
	"telegram.idle_timeout",
	"telegram.poll_timeout",
	"telegram.max_download_bytes",
	"resize.max_iterations",
	"resize.max_dimension",
	"resize.max_pixels",
	"history.enabled",
	"history.path",
	"history.max_count",
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
}

func configShow(cmd *cobra.Command, args []string) error {
	path, err := config.GetConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	printConfig(os.Stdout, cfg, path, config.Exists())
	return nil
}

func printConfig(w io.Writer, cfg *config.Config, path string, exists bool) {
	if exists {
		fmt.Fprintf(w, "# %s\n\n", path)
	} else {
		fmt.Fprintf(w, "# No config file (using defaults)\n")
		fmt.Fprintf(w, "# Create one at: %s\n\n", path)
	}

	fmt.Fprintf(w, "debug: %t\n\n", cfg.Debug)

	t := cfg.Telegram
	fmt.Fprintln(w, "telegram:")
	fmt.Fprintf(w, "  token: %s\n", maskToken(t.Token))
	fmt.Fprintf(w, "  allowed_user_ids: %s\n", listOrAnyone(t.AllowedUserIDs))
	fmt.Fprintf(w, "  allowed_usernames: %s\n", listOrAnyone(t.AllowedUsernames))
	fmt.Fprintf(w, "  idle_timeout: %d # minutes, 0 disables\n", t.IdleTimeout)
	fmt.Fprintf(w, "  poll_timeout: %d # seconds\n", t.PollTimeout)
	fmt.Fprintf(w, "  max_download_bytes: %d\n\n", t.MaxDownloadBytes)

	r := cfg.Resize
	fmt.Fprintln(w, "resize:")
	fmt.Fprintf(w, "  max_iterations: %d\n", r.MaxIterations)
	fmt.Fprintf(w, "  max_dimension: %d\n", r.MaxDimension)
	fmt.Fprintf(w, "  max_pixels: %d\n\n", r.MaxPixels)

	h := cfg.History
	fmt.Fprintln(w, "history:")
	fmt.Fprintf(w, "  enabled: %t\n", h.Enabled)
	if h.Path != "" {
		fmt.Fprintf(w, "  path: %s\n", h.Path)
	}
	fmt.Fprintf(w, "  max_count: %d\n", h.MaxCount)
}

// maskToken keeps only enough of a bot token to recognise it.
func maskToken(token string) string {
	if token == "" {
		return "[NOT SET - export TELEGRAM_BOT_TOKEN or run 'sizesync serve --setup']"
	}
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "…" + token[len(token)-4:]
}

func listOrAnyone[T any](items []T) string {
	if len(items) == 0 {
		return "[] # anyone"
	}
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = fmt.Sprint(item)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func configEdit(cmd *cobra.Command, args []string) error {
	path, err := config.GetConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, []byte(defaultConfigContent()), 0600); err != nil {
			return fmt.Errorf("failed to create config file: %w", err)
		}
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		editor = "vi"
	}

	editorCmd := exec.Command(editor, path)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr
	return editorCmd.Run()
}

func configPath(cmd *cobra.Command, args []string) error {
	path, err := config.GetConfigPath()
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func configSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]
	if err := config.SetValue(key, value); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	fmt.Fprintf(os.Stderr, "Set %s = %s\n", key, value)
	return nil
}

func configGet(cmd *cobra.Command, args []string) error {
	value, err := config.GetValue(args[0])
	if err != nil {
		return err
	}
	fmt.Println(value)
	return nil
}

func defaultConfigContent() string {
	return fmt.Sprintf(`# sizesync configuration
# Run 'sizesync config edit' to modify

debug: false

telegram:
  # Bot token from @BotFather. ${VAR} references are expanded.
  # Falls back to TELEGRAM_BOT_TOKEN, then BOT_TOKEN.
  token: ""
  # Empty lists let anyone use the bot.
  allowed_user_ids: []
  allowed_usernames: []
  idle_timeout: %d # minutes, 0 disables
  poll_timeout: %d # seconds
  max_download_bytes: %d

resize:
  max_iterations: %d # size search attempts
  max_dimension: %d # pixels per side
  max_pixels: %d # largest accepted source image

history:
  enabled: true
  max_count: 1000
`, config.DefaultIdleTimeout, config.DefaultPollTimeout, config.DefaultMaxDownloadBytes,
		config.DefaultMaxIterations, config.DefaultMaxDimension, config.DefaultMaxPixels)
}
