package outbox

import (
	"context"
	"time"
)

// Repository is the storage side of the outbox.
// Append must join the transaction carried by ctx when there is one.
type Repository interface {
	Append(ctx context.Context, entries []*Entry) error

	// Due returns unpublished, unparked entries whose NextAttemptAt is not after now, oldest first
	Due(ctx context.Context, now time.Time, limit int) ([]*Entry, error)

	MarkPublished(ctx context.Context, id string, at time.Time) error

	// MarkFailed records a failed attempt and pushes NextAttemptAt out to retryAt
	MarkFailed(ctx context.Context, id, reason string, retryAt time.Time) error
}
