package cmd

import (
	"context"
	"log/slog"

	"github.com/dukex/conduit/pkg/idempotency"
)

// NewIdempotencyStore returns a Redis store when redisURL is set and an
// in-memory store otherwise. The returned function releases the store.
func NewIdempotencyStore(ctx context.Context, logger *slog.Logger, redisURL string) (idempotency.Store, func() error, error) {
	if redisURL == "" {
		logger.InfoContext(ctx, "Using in-memory idempotency store")

		return idempotency.NewMemoryStore(), func() error { return nil }, nil
	}

	store, err := idempotency.NewRedisStore(ctx, redisURL, "conduit:")
	if err != nil {
		return nil, nil, err
	}

	logger.InfoContext(ctx, "Using Redis idempotency store")

	return store, store.Close, nil
}
