package cmd

import (
	"log"
	"time"

	"github.com/samsaffron/sizesync/internal/config"
	"github.com/samsaffron/sizesync/internal/conversation"
	"github.com/samsaffron/sizesync/internal/history"
	"github.com/samsaffron/sizesync/internal/imaging"
	"github.com/samsaffron/sizesync/internal/resize"
)

// openHistory opens the job store. History is best effort: on failure the
// problem is logged and a no-op store is returned.
func openHistory(cfg *config.Config) history.Store {
	store, err := history.NewStore(cfg.History)
	if err != nil {
		log.Printf("[history] disabled: %v", err)
		return &history.NoopStore{}
	}
	return store
}

// newOrchestrator builds the conversation engine from config.
func newOrchestrator(cfg *config.Config, store history.Store, idle time.Duration, debug bool) *conversation.Orchestrator {
	codec := &imaging.Processor{MaxPixels: cfg.Resize.MaxPixels}
	return conversation.New(conversation.Options{
		Codec:        codec,
		Searcher:     &resize.Searcher{Codec: codec, MaxIterations: cfg.Resize.MaxIterations},
		Store:        store,
		IdleTimeout:  idle,
		MaxDimension: cfg.Resize.MaxDimension,
		Debug:        debug,
	})
}
