package storage

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// RunMaintenance runs Maintain every interval until ctx is done.
func RunMaintenance(ctx context.Context, store *Storage, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := store.Maintain(ctx); err != nil {
				log.Error().Str("component", "storage").Str("backend", store.Backend()).Err(err).Msg("maintenance failed")
			}
		}
	}
}
