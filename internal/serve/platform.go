package serve

import (
	"context"
	"net/http"
	"time"

	"github.com/samsaffron/sizesync/internal/conversation"
)

// Settings holds per-platform runtime settings derived from CLI flags and config.
type Settings struct {
	// Orchestrator owns the resize conversations. Run closes it on shutdown.
	Orchestrator *conversation.Orchestrator
	// SweepInterval is how often idle sessions are collected (default 1m).
	SweepInterval time.Duration
	// HTTPClient downloads incoming files (default http.DefaultClient).
	HTTPClient *http.Client
	Debug      bool
}

// Platform is the interface implemented by each messaging platform adapter.
type Platform interface {
	// Name returns the platform identifier (e.g. "telegram").
	Name() string
	// NeedsSetup returns true when required configuration is missing.
	NeedsSetup() bool
	// RunSetup runs an interactive wizard to collect and persist configuration.
	RunSetup() error
	// Run starts the platform's message loop, blocking until ctx is cancelled.
	Run(ctx context.Context, settings Settings) error
}
