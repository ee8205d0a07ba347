// Package idempotency replays the stored response of a mutating request when
// a client retries it with the same Idempotency-Key.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const HeaderKey = "Idempotency-Key"

var (
	ErrKeyInvalid = errors.New("idempotency key must be 1-255 characters of [A-Za-z0-9_-]")
	ErrNotFound   = errors.New("idempotency record not found")
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,255}$`)

// ValidateKey checks the header value a client sent
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return ErrKeyInvalid
	}
	return nil
}

// Record is one key claimed by a request. A record is in flight while
// LockedAt is set and CompletedAt is not; once completed it holds the
// response to replay.
type Record struct {
	ID          primitive.ObjectID `bson:"_id"`
	Service     string             `bson:"service"`
	Key         string             `bson:"key"`
	Method      string             `bson:"method"`
	Path        string             `bson:"path"`
	Fingerprint string             `bson:"fingerprint"`
	LockedAt    *time.Time         `bson:"lockedAt,omitempty"`

	Status  int               `bson:"status,omitempty"`
	Body    []byte            `bson:"body,omitempty"`
	Headers map[string]string `bson:"headers,omitempty"`

	CreatedAt   time.Time  `bson:"createdAt"`
	CompletedAt *time.Time `bson:"completedAt,omitempty"`
	ExpiresAt   time.Time  `bson:"expiresAt"`
}

func (r *Record) Completed() bool {
	return r.CompletedAt != nil
}

// InFlight reports whether another request holds the key and its lock is
// younger than timeout
func (r *Record) InFlight(now time.Time, timeout time.Duration) bool {
	return !r.Completed() && r.LockedAt != nil && now.Sub(*r.LockedAt) < timeout
}

// Fingerprint identifies a request by method, path and body, so a key reused
// for a different request is detected
func Fingerprint(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
