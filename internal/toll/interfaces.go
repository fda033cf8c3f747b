package toll

import (
	"context"
	"time"
)

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Namer derives a stable content-address key from a URL. Implementations must
// be pure: the same URL yields the same key across runs.
type Namer interface {
	Name(url string) string
}

// Hasher derives a hex content hash from raw bytes.
type Hasher interface {
	Hash(data []byte) string
}

// Fetcher retrieves a single artifact and persists it to the content store.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResult, error)
}

// ReferenceSource loads the candidate reference URLs for a sweep.
type ReferenceSource interface {
	References(ctx context.Context) ([]string, error)
}

// SnapshotStore commits validated records into versioned snapshot tables and
// reads them back.
type SnapshotStore interface {
	Commit(ctx context.Context, records []TollRate) (int64, error)
	LatestSnapshotID(ctx context.Context) (int64, error)
	Records(ctx context.Context, snapshotID int64) ([]TollRate, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces sweep IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
