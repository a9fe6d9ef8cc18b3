package driven

import (
	"context"
	"io"
)

// PutRequest describes one object upload.
type PutRequest struct {
	// Key is the destination object key.
	Key string

	// ContentType is the MIME type of the content stream.
	ContentType string

	// Size is the content length, or -1 when unknown.
	Size int64

	// Metadata is attached to the object as user metadata. Values must
	// be ASCII-safe; callers sanitise before handing them over.
	Metadata map[string]string
}

// ObjectStore uploads replicated content to the destination bucket.
// Re-uploading to the same key is idempotent: the object is simply
// replaced with identical content. Retryable failures wrap
// domain.ErrTransientStorage.
type ObjectStore interface {
	// Put stores the content stream under the request key.
	Put(ctx context.Context, req PutRequest, content io.Reader) error

	// Remove deletes the object under key. Removing a missing object
	// is not an error.
	Remove(ctx context.Context, key string) error

	// Ping verifies the bucket is reachable and writable.
	Ping(ctx context.Context) error
}
