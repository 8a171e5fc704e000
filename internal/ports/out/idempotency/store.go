package idempotency

import (
	"context"
	"time"

	"github.com/eskate/storefront-api/internal/domain"
)

// Key is the client-chosen Idempotency-Key of a registration submit.
type Key string

// Fingerprint scopes a key to one device and route. BodyHash is the hex
// SHA-256 of the request body; the empty hash addresses the key's meta record.
type Fingerprint struct {
	Key      Key
	Device   domain.DeviceID
	Method   string
	Route    string
	BodyHash string
}

// Record is a stored response. Replays write it back verbatim.
type Record struct {
	StatusCode  int
	ContentType string
	Body        []byte
	CreatedAt   time.Time
}

// Store keeps submit responses so a retried submit never provisions twice.
type Store interface {
	Get(ctx context.Context, fp Fingerprint) (Record, bool, error)
	Put(ctx context.Context, fp Fingerprint, rec Record) error
}

// Purger is implemented by stores that keep records until told otherwise.
// Stores that expire records on read do not need it.
type Purger interface {
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}
