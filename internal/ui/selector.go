package ui

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/samsaffron/sizesync/internal/conversation"
)

// getTTY opens /dev/tty for direct terminal access (bypasses redirections)
func getTTY() (*os.File, error) {
	return os.OpenFile("/dev/tty", os.O_RDWR, 0)
}

// runForm runs form on /dev/tty when available.
func runForm(form *huh.Form) error {
	if tty, err := getTTY(); err == nil {
		defer tty.Close()
		form = form.WithInput(tty).WithOutput(tty)
	}
	return form.Run()
}

// Choose shows a menu and returns the key of the selected choice.
func Choose(title string, choices []conversation.Choice) (string, error) {
	if len(choices) == 0 {
		return "", fmt.Errorf("no choices")
	}

	options := make([]huh.Option[string], 0, len(choices))
	for _, c := range choices {
		options = append(options, huh.NewOption(c.Label, c.Key))
	}

	var selected string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(title).
				Options(options...).
				Value(&selected),
		),
	)
	if err := runForm(form); err != nil {
		return "", err
	}
	return selected, nil
}

// Ask prompts for one line of input. problem, when set, is shown above the
// field (e.g. why the previous answer was rejected).
func Ask(title, problem string) (string, error) {
	var answer string
	input := huh.NewInput().
		Title(title).
		Value(&answer).
		Validate(func(s string) error {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("please enter a value")
			}
			return nil
		})
	if problem != "" {
		input = input.Description(problem)
	}

	if err := runForm(huh.NewForm(huh.NewGroup(input))); err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

// IsAborted reports whether err is the user backing out of a prompt.
func IsAborted(err error) bool {
	return errors.Is(err, huh.ErrUserAborted)
}
