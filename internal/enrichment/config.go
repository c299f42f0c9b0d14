package enrichment

import (
	"time"

	appconfig "github.com/halfnote/halfnote/internal/config"
)

// Config controls the enrichment controller and worker loop.
type Config struct {
	// SyncCompletion gates backfill/requeue: both must be able to mark
	// empty-plan memos processed before returning.
	SyncCompletion bool
	PollTimeout    time.Duration
}

func DefaultConfig(cfg appconfig.Config) Config {
	return Config{
		SyncCompletion: cfg.EnrichmentSyncCompletion,
		PollTimeout:    5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	if c.PollTimeout <= 0 {
		c.PollTimeout = 5 * time.Second
	}
	return c
}
