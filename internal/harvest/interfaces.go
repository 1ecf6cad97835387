package harvest

import (
	"context"
	"io"
	"time"
)

// Backend creates extraction sessions. One session is bound to one worker.
type Backend interface {
	Name() string
	NewSession(ctx context.Context) (Session, error)
}

// Session extracts raw records for a single worker. Implementations are not
// safe for concurrent use.
type Session interface {
	Extract(ctx context.Context, item WorkItem) (RawRecord, error)
	Close() error
}

// Normalizer maps a raw record onto the flat product shape. The second return
// lists fields that could not be found.
type Normalizer interface {
	Normalize(raw RawRecord, item WorkItem) (ProductRecord, []string)
}

// Queue provides FIFO semantics over work items.
type Queue interface {
	Enqueue(ctx context.Context, item WorkItem) error
	Dequeue(ctx context.Context) (WorkItem, error)
	TryDequeue() (WorkItem, bool)
	Len() int
	Close()
}

// Recorder receives per-item outcomes from workers.
type Recorder interface {
	Record(item WorkItem, entry Entry)
}

// RawRecorder optionally captures raw payload bodies for later re-normalization.
type RawRecorder interface {
	RecordRaw(item WorkItem, productID string, body []byte)
}

// ResultWriter persists an aggregate run result.
type ResultWriter interface {
	Name() string
	Write(ctx context.Context, result RunResult) (string, error)
}

// BlobStore writes artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for artifact integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
