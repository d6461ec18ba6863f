// internal/domain/correlation/store.go
package correlation

import (
	"context"
	"time"
)

// Store is a process-shared key-value map with per-entry TTL, used to
// correlate asynchronous chat events: registration dialogs in progress,
// question threads awaiting text, curator replies, and curator return
// feedback prompts. Injected so tests and single-instance deployments run on
// an in-process map while multi-instance deployments can share a Redis
// backing.
type Store interface {
	// Set stores a JSON-serializable value under key for at most ttl.
	// A zero ttl means no expiry.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// Get loads the value under key into dest. The bool reports whether the
	// key was present and unexpired.
	Get(ctx context.Context, key string, dest any) (bool, error)

	Delete(ctx context.Context, key string) error
}
