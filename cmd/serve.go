package cmd

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/samsaffron/sizesync/internal/config"
	"github.com/samsaffron/sizesync/internal/serve"
	"github.com/samsaffron/sizesync/internal/signal"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	serveSetup         bool
	serveDebug         bool
	serveIdleTimeout   time.Duration
	serveSweepInterval time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram resize bot",
	Long: `Run the Telegram bot until interrupted.

Users send an image, pick how to resize it, then reply with the target
dimensions or file size. The bot token comes from config, or from the
TELEGRAM_BOT_TOKEN / BOT_TOKEN environment variables.

Examples:
  sizesync serve --setup           # prompt for token and allowed users
  sizesync serve --idle-timeout 10m`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveSetup, "setup", false, "Run the setup wizard before starting")
	serveCmd.Flags().DurationVar(&serveSweepInterval, "sweep-interval", time.Minute, "How often idle conversations are collected")
	AddIdleTimeoutFlag(serveCmd, &serveIdleTimeout)
	AddDebugFlag(serveCmd, &serveDebug)
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveIdleTimeout < 0 {
		return fmt.Errorf("invalid --idle-timeout %s (must be >= 0)", serveIdleTimeout)
	}
	if serveSweepInterval <= 0 {
		return fmt.Errorf("invalid --sweep-interval %s (must be > 0)", serveSweepInterval)
	}

	ctx, stop := signal.NotifyContext(cmd.Context())
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	platform := serve.NewTelegramPlatform(cfg.Telegram)
	if serveSetup || platform.NeedsSetup() {
		if !serveSetup && !term.IsTerminal(int(os.Stdin.Fd())) {
			return fmt.Errorf("telegram bot token not configured: set TELEGRAM_BOT_TOKEN or run 'sizesync serve --setup'")
		}
		if err := platform.RunSetup(); err != nil {
			return fmt.Errorf("setup: %w", err)
		}
	}

	idle := cfg.Telegram.IdleTimeoutDuration()
	if cmd.Flags().Changed("idle-timeout") {
		idle = serveIdleTimeout
	}
	debug := serveDebug || cfg.Debug

	store := openHistory(cfg)
	defer store.Close()

	orch := newOrchestrator(cfg, store, idle, debug)
	log.Printf("[serve] starting %s bot (idle timeout %s)", platform.Name(), idleLabel(idle))
	return platform.Run(ctx, serve.Settings{
		Orchestrator:  orch,
		SweepInterval: serveSweepInterval,
		Debug:         debug,
	})
}

func idleLabel(d time.Duration) string {
	if d <= 0 {
		return "disabled"
	}
	return d.String()
}
