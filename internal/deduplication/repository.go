package deduplication

import (
	"context"
	"time"
)

// Repository holds deduplication records. Implementations must make
// CreateIfAbsent atomic per key: of any number of concurrent callers for the
// same key, exactly one observes created=true.
type Repository interface {
	// CreateIfAbsent stores an IN_PROGRESS record first seen at now unless a
	// record newer than now-retention already exists. Older records are replaced.
	CreateIfAbsent(ctx context.Context, key string, now time.Time, retention time.Duration) (created bool, err error)
	// MarkCompleted moves an IN_PROGRESS record to COMPLETED. Missing or already
	// completed records are not an error.
	MarkCompleted(ctx context.Context, key string) error
	// Sweep deletes records first seen before cutoff and returns how many went.
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
	Name() string
}
