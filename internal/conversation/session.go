package conversation

import (
	"fmt"
	"sync"
	"time"

	"github.com/samsaffron/sizesync/internal/history"
	"github.com/samsaffron/sizesync/internal/imaging"
	"github.com/samsaffron/sizesync/internal/resize"
)

// State is a conversation's position in the resize flow.
type State int

const (
	StateAwaitingImage State = iota
	StateAwaitingModeChoice
	StateAwaitingPixelInput
	StateAwaitingCmInput
	StateAwaitingKbInput
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateAwaitingImage:
		return "awaiting image"
	case StateAwaitingModeChoice:
		return "awaiting mode choice"
	case StateAwaitingPixelInput:
		return "awaiting pixel dimensions"
	case StateAwaitingCmInput:
		return "awaiting centimeter dimensions"
	case StateAwaitingKbInput:
		return "awaiting size budget"
	case StateTerminal:
		return "finished"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// inputState maps a chosen mode to the state that collects its parameters.
func inputState(m resize.Mode) State {
	switch m {
	case resize.ModePixels:
		return StateAwaitingPixelInput
	case resize.ModeCentimeters:
		return StateAwaitingCmInput
	default:
		return StateAwaitingKbInput
	}
}

// session is one user's conversation. mu is held for the whole handling of
// an event, which serializes events per session.
//
// source is non-nil exactly when state is neither AwaitingImage nor Terminal.
type session struct {
	mu           sync.Mutex
	id           int64
	state        State
	mode         resize.Mode
	source       *imaging.Image
	lastActivity time.Time
	// pending is a finished job waiting to be recorded after mu is released.
	pending *history.Job
	// retired is set once the session has reached Terminal and left the
	// manager's map; goroutines that were waiting on mu must not reuse it.
	retired bool
}

func newSession(id int64, now time.Time) *session {
	return &session{
		id:           id,
		state:        StateAwaitingImage,
		lastActivity: now,
	}
}

// release drops the source image and marks the session terminal.
func (s *session) release() {
	s.source = nil
	s.mode = 0
	s.state = StateTerminal
	s.retired = true
}
