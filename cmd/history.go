package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/samsaffron/sizesync/internal/config"
	"github.com/samsaffron/sizesync/internal/history"
	"github.com/samsaffron/sizesync/internal/ui"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent resize jobs",
	Long: `List recent resize jobs from both the bot and the resize command.

Examples:
  sizesync history
  sizesync history -n 5`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	AddLimitFlag(historyCmd, &historyLimit, 20)
}

func runHistory(cmd *cobra.Command, args []string) error {
	if historyLimit <= 0 {
		return fmt.Errorf("invalid --limit %d (must be > 0)", historyLimit)
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.History.Enabled {
		fmt.Fprintln(os.Stderr, "History is disabled (history.enabled: false).")
		return nil
	}

	store, err := history.NewStore(cfg.History)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()

	jobs, err := store.Recent(cmd.Context(), historyLimit)
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	return ui.WriteJobs(os.Stdout, ui.NewStyles(os.Stdout), jobs, time.Now())
}
