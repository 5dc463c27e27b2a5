package dedupe

import "context"

// Deduper remembers keys for a bounded time (redis, in-memory).
type Deduper interface {
	// Seen claims id. alreadySeen=true -> id was claimed before and has not expired.
	Seen(ctx context.Context, id string) (alreadySeen bool, err error)
	// Forget releases a claim so the same id can be used again.
	Forget(ctx context.Context, id string) error
}
