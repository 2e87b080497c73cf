package conversation

import (
	"errors"

	"github.com/samsaffron/sizesync/internal/resize"
)

var (
	// ErrNoImage means an image was expected but none (or an undecodable
	// one) arrived.
	ErrNoImage = errors.New("no usable image")
	// ErrInputFormat marks malformed parameter text; the state is kept and
	// the user is prompted again.
	ErrInputFormat = resize.ErrInputFormat
	// ErrUnsupportedChoice is an unknown menu choice. It ends the conversation.
	ErrUnsupportedChoice = errors.New("unsupported choice")
	// ErrStaleChoice is a menu choice that arrived outside the mode-choice
	// state, e.g. a button pressed on an old menu.
	ErrStaleChoice = errors.New("stale choice")
	// ErrProcessing wraps codec failures while resizing or encoding.
	ErrProcessing = errors.New("processing failed")
	// ErrBudgetUnreachable means the size search gave up.
	ErrBudgetUnreachable = errors.New("size budget unreachable")
	// ErrExpired means the session was discarded after being idle too long.
	ErrExpired = errors.New("session expired")
)
