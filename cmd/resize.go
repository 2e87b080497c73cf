package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/samsaffron/sizesync/internal/config"
	"github.com/samsaffron/sizesync/internal/conversation"
	"github.com/samsaffron/sizesync/internal/imaging"
	"github.com/samsaffron/sizesync/internal/preview"
	"github.com/samsaffron/sizesync/internal/resize"
	"github.com/samsaffron/sizesync/internal/signal"
	"github.com/samsaffron/sizesync/internal/ui"
	"github.com/spf13/cobra"
)

// cliSession is the conversation id used by the resize command.
const cliSession int64 = 0

var (
	resizePx     string
	resizeCm     string
	resizeKb     string
	resizeOutput string
	resizeShow   bool
	resizeDebug  bool
)

var resizeCmd = &cobra.Command{
	Use:   "resize <image>",
	Short: "Resize an image file",
	Long: `Resize an image to exact pixel or centimeter dimensions, or re-encode it
as a JPEG that fits a file size budget.

Without --px, --cm or --kb you are asked interactively.

Examples:
  sizesync resize photo.jpg --px 800x600
  sizesync resize photo.jpg --cm "10 x 15" -o print.png
  sizesync resize photo.jpg --kb 500 --show`,
	Args: cobra.ExactArgs(1),
	RunE: runResize,
}

func init() {
	rootCmd.AddCommand(resizeCmd)

	AddModeFlags(resizeCmd, &resizePx, &resizeCm, &resizeKb)
	AddOutputFlag(resizeCmd, &resizeOutput)
	resizeCmd.Flags().BoolVar(&resizeShow, "show", false, "Preview the result inline (kitty, iTerm2 or sixel terminals)")
	AddDebugFlag(resizeCmd, &resizeDebug)
}

// prompter asks the user for the pieces a flag did not supply.
type prompter interface {
	Choose(title string, choices []conversation.Choice) (string, error)
	Ask(title, problem string) (string, error)
}

type formPrompter struct{}

func (formPrompter) Choose(title string, choices []conversation.Choice) (string, error) {
	return ui.Choose(title, choices)
}

func (formPrompter) Ask(title, problem string) (string, error) {
	return ui.Ask(title, problem)
}

func runResize(cmd *cobra.Command, args []string) error {
	input := args[0]
	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context())
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	store := openHistory(cfg)
	defer store.Close()

	orch := newOrchestrator(cfg, store, 0, resizeDebug || cfg.Debug)
	defer orch.Close()

	mode, params := modeFromFlags(resizePx, resizeCm, resizeKb)
	reply, err := runResizeFlow(ctx, orch, data, mode, params, formPrompter{})
	styles := ui.DefaultStyles()
	if err != nil {
		if ui.IsAborted(err) {
			fmt.Fprintln(os.Stderr, styles.Muted.Render(reply.Text))
			return nil
		}
		return err
	}
	if reply.Err != nil {
		return fmt.Errorf("%s: %s (%w)", input, reply.Text, reply.Err)
	}

	doc := reply.Document
	out := outputPath(input, resizeOutput, doc.Format)
	if err := os.WriteFile(out, doc.Data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}

	fmt.Fprintln(os.Stderr, styles.FormatResult(true, reply.Text))
	fmt.Fprintf(os.Stderr, "  %s  %s  %s\n",
		styles.Highlighted.Render(out),
		styles.Muted.Render(fmt.Sprintf("%dx%d", doc.Width, doc.Height)),
		styles.Muted.Render(humanize.IBytes(uint64(len(doc.Data)))))

	if resizeShow {
		c := preview.Detect()
		if c == preview.CapNone {
			fmt.Fprintln(os.Stderr, styles.Muted.Render("(terminal does not support inline images)"))
			return nil
		}
		if err := preview.Render(os.Stdout, doc.Data, c); err != nil {
			return fmt.Errorf("preview: %w", err)
		}
		fmt.Fprintln(os.Stdout)
	}
	return nil
}

// modeFromFlags maps the mutually exclusive mode flags to a menu key and its
// parameter text. Both are empty when no flag was given.
func modeFromFlags(px, cm, kb string) (mode, params string) {
	switch {
	case px != "":
		return resize.ModePixels.Key(), px
	case cm != "":
		return resize.ModeCentimeters.Key(), cm
	case kb != "":
		return resize.ModeSizeBudget.Key(), kb
	}
	return "", ""
}

// runResizeFlow drives one conversation to completion. A non-nil error means
// the prompter failed or the user aborted; the returned reply then carries
// the cancellation text. Parameters supplied up front are not re-prompted
// when malformed.
func runResizeFlow(ctx context.Context, orch *conversation.Orchestrator, data []byte, mode, params string, p prompter) (conversation.Reply, error) {
	reply := orch.OnImageReceived(ctx, cliSession, data)
	if reply.Err != nil {
		return reply, nil
	}

	if mode == "" {
		key, err := p.Choose(reply.Text, reply.Choices)
		if err != nil {
			return orch.OnCancel(ctx, cliSession), err
		}
		mode = key
	}
	reply = orch.OnChoiceReceived(ctx, cliSession, mode)
	if reply.Err != nil {
		return reply, nil
	}

	prompt := reply.Text
	text, problem := params, ""
	for {
		if text == "" {
			answer, err := p.Ask(prompt, problem)
			if err != nil {
				return orch.OnCancel(ctx, cliSession), err
			}
			text = answer
		}
		reply = orch.OnTextReceived(ctx, cliSession, text)
		if params == "" && errors.Is(reply.Err, conversation.ErrInputFormat) {
			problem, text = reply.Text, ""
			continue
		}
		return reply, nil
	}
}

// outputPath picks where to write the result. Without an explicit path the
// file lands next to the input as <stem>_resized<ext>, where ext follows the
// encoded format.
func outputPath(input, explicit string, format imaging.Format) string {
	if explicit != "" {
		return explicit
	}
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(filepath.Dir(input), stem+"_resized"+format.Extension())
}
