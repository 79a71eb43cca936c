package deduplication

import (
	"context"
	"sync"
	"time"
)

type MemoryRepository struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]Record)}
}

func (r *MemoryRepository) CreateIfAbsent(ctx context.Context, key string, now time.Time, retention time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.records[key]; ok && !existing.Expired(now.Add(-retention)) {
		return false, nil
	}
	r.records[key] = Record{Key: key, Status: StatusInProgress, FirstSeenAt: now}
	return true, nil
}

func (r *MemoryRepository) MarkCompleted(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.records[key]; ok && rec.Status == StatusInProgress {
		rec.Status = StatusCompleted
		r.records[key] = rec
	}
	return nil
}

func (r *MemoryRepository) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, rec := range r.records {
		if rec.Expired(cutoff) {
			delete(r.records, key)
			removed++
		}
	}
	return removed, nil
}

func (r *MemoryRepository) Get(key string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[key]
	return rec, ok
}

func (r *MemoryRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func (r *MemoryRepository) Name() string { return "memory" }
