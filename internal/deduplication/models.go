package deduplication

import (
	"errors"
	"time"
)

type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
)

// Record is the persisted deduplication state of one event.
type Record struct {
	Key         string    `bson:"_id"`
	Status      Status    `bson:"status"`
	FirstSeenAt time.Time `bson:"first_seen_at"`
}

// Expired reports whether the record is older than cutoff and therefore counts as absent.
func (r Record) Expired(cutoff time.Time) bool {
	return r.FirstSeenAt.Before(cutoff)
}

type Admission int

const (
	Admitted Admission = iota + 1
	Duplicate
)

func (a Admission) String() string {
	switch a {
	case Admitted:
		return "admitted"
	case Duplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

var (
	ErrEmptyEventID     = errors.New("deduplication: empty event id")
	ErrStoreUnavailable = errors.New("deduplication: store unavailable")
)
