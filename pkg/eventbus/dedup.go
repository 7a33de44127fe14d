package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/conduit/pkg/events"
	"github.com/dukex/conduit/pkg/idempotency"
)

// DefaultDedupTTL is how long a handled event is remembered.
const DefaultDedupTTL = 24 * time.Hour

// Deduplicate wraps handler so that an event with an already handled id and
// version is dropped. name scopes the keys, so several handlers can share
// one store. A failed handler releases its key to allow redelivery.
func Deduplicate(store idempotency.Store, name string, ttl time.Duration, handler EventHandler) EventHandler {
	return func(ctx context.Context, event events.Event) error {
		key := "event:" + name + ":" + event.GetBase().DedupKey()

		claimed, err := store.Claim(ctx, key, ttl)
		if err != nil {
			return fmt.Errorf("dedup claim: %w", err)
		}

		if !claimed {
			return nil
		}

		err = handler(ctx, event)
		if err != nil {
			_ = store.Release(ctx, key)

			return err
		}

		return nil
	}
}
