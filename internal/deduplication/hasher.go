package deduplication

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hasher derives the store key of an event id. Platform ids are long opaque strings;
// hashing bounds key size for stores with key length limits.
type Hasher struct {
	algorithm string
}

func NewHasher(algorithm string) *Hasher {
	return &Hasher{algorithm: strings.ToLower(algorithm)}
}

func (h *Hasher) Key(eventID string) string {
	switch h.algorithm {
	case "sha256":
		sum := sha256.Sum256([]byte(eventID))
		return hex.EncodeToString(sum[:])
	case "md5":
		sum := md5.Sum([]byte(eventID))
		return hex.EncodeToString(sum[:])
	default:
		return eventID
	}
}
