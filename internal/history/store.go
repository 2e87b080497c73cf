// Package history keeps an audit log of finished resize jobs.
package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Outcome is how a job ended.
type Outcome string

const (
	OutcomeDelivered   Outcome = "delivered"
	OutcomeUnreachable Outcome = "unreachable"
	OutcomeFailed      Outcome = "failed"
	OutcomeCancelled   Outcome = "cancelled"
)

// Job is one finished conversation.
type Job struct {
	ID           string
	SessionID    int64
	Mode         string
	Input        string
	SourceWidth  int
	SourceHeight int
	Width        int
	Height       int
	Quality      int
	Bytes        int
	Outcome      Outcome
	CreatedAt    time.Time
}

// Store is the interface for job persistence.
type Store interface {
	Record(ctx context.Context, job *Job) error
	Recent(ctx context.Context, limit int) ([]Job, error)
	Close() error
}

// Config holds history storage configuration.
type Config struct {
	Enabled  bool   `mapstructure:"enabled"`   // Master switch
	Path     string `mapstructure:"path"`      // Override database path
	MaxCount int    `mapstructure:"max_count"` // Keep at most N jobs (0=unlimited)
}

// DefaultConfig returns the default history configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:  true,
		MaxCount: 1000,
	}
}

// NewID returns a time-ordered job identifier.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// GetDataDir returns the XDG data directory for sizesync.
// Uses $XDG_DATA_HOME if set, otherwise ~/.local/share
func GetDataDir() (string, error) {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "sizesync"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "sizesync"), nil
}

// GetDBPath returns the path to the history database.
func GetDBPath(cfg Config) (string, error) {
	if cfg.Path != "" {
		return cfg.Path, nil
	}
	dataDir, err := GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "history.db"), nil
}

// NewStore creates a Store based on the configuration.
// If history is disabled, returns a no-op store.
func NewStore(cfg Config) (Store, error) {
	if !cfg.Enabled {
		return &NoopStore{}, nil
	}
	return NewSQLiteStore(cfg)
}

// NoopStore discards every job.
type NoopStore struct{}

func (s *NoopStore) Record(ctx context.Context, job *Job) error {
	if job.ID == "" {
		job.ID = NewID()
	}
	return nil
}

func (s *NoopStore) Recent(ctx context.Context, limit int) ([]Job, error) {
	return nil, nil
}

func (s *NoopStore) Close() error {
	return nil
}
