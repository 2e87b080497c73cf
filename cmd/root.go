package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "sizesync",
	Short: "Resize images by pixels, centimeters or file size",
	Long: `sizesync resizes images to exact dimensions or to fit a file size budget,
either from the command line or as a Telegram bot.

Examples:
  sizesync resize photo.jpg --px 800x600
  sizesync resize photo.jpg --kb 500 --show
  sizesync resize scan.png                 # choose interactively
  sizesync serve --setup                   # configure and run the bot
  sizesync history -n 5

  sizesync config show                     # view configuration`,
	Version:           Version,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	SilenceUsage:      true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
