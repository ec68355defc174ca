package port

import (
	"context"
	"io"
)

type BlobStore interface {
	// PutBlob stores data under key and returns its public reference URL
	PutBlob(ctx context.Context, key, contentType string, data []byte) (string, error)

	// DeleteBlob removes the blob behind ref. A missing blob is not an error.
	DeleteBlob(ctx context.Context, ref string) error

	// OpenBlob opens the blob stored under key, ErrNotFound if missing
	OpenBlob(ctx context.Context, key string) (io.ReadCloser, string, error)
}
