package domain

import (
	"context"
	"io"
	"time"
)

// ObjectInfo is the metadata of one archived object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ObjectStore is the cold-storage surface used by the hand archive. Put is
// for small documents sent in one request; Upload streams a body of unknown
// length. Stat reports ok=false for a missing key.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Upload(ctx context.Context, key string, body io.Reader, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (info ObjectInfo, ok bool, err error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// HandArchiver stores finished hands in cold storage.
type HandArchiver interface {
	ArchiveHand(ctx context.Context, rec HandRecord) (key string, err error)
	ExportAudit(ctx context.Context, since, until time.Time) (key string, n int, err error)
}
