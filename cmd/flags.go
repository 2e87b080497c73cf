package cmd

import (
	"time"

	"github.com/spf13/cobra"
)

// AddDebugFlag adds the --debug/-d flag
func AddDebugFlag(cmd *cobra.Command, dest *bool) {
	cmd.Flags().BoolVarP(dest, "debug", "d", false, "Show debug information")
}

// AddOutputFlag adds the --output/-o flag
func AddOutputFlag(cmd *cobra.Command, dest *string) {
	cmd.Flags().StringVarP(dest, "output", "o", "", "Output file (default: <input>_resized.<ext> next to the input)")
}

// AddIdleTimeoutFlag adds the --idle-timeout flag
func AddIdleTimeoutFlag(cmd *cobra.Command, dest *time.Duration) {
	cmd.Flags().DurationVar(dest, "idle-timeout", 0, "Discard conversations idle this long (overrides config, 0 disables)")
}

// AddLimitFlag adds the --limit/-n flag
func AddLimitFlag(cmd *cobra.Command, dest *int, defaultValue int) {
	cmd.Flags().IntVarP(dest, "limit", "n", defaultValue, "Maximum number of entries to show")
}

// AddModeFlags adds the mutually exclusive --px, --cm and --kb flags
func AddModeFlags(cmd *cobra.Command, px, cm, kb *string) {
	cmd.Flags().StringVar(px, "px", "", "Target size in pixels, e.g. 800x600")
	cmd.Flags().StringVar(cm, "cm", "", "Target size in centimeters at 96 DPI, e.g. 10x15")
	cmd.Flags().StringVar(kb, "kb", "", "Target file size in KB (JPEG output), e.g. 500")
	cmd.MarkFlagsMutuallyExclusive("px", "cm", "kb")
}
