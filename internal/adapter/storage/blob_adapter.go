package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"

	"github.com/rl1809/easy-inventory/internal/port"
)

// PhotoRoute is the public path prefix under which blobs are served.
const PhotoRoute = "/photos/"

// BlobAdapter stores photos in a gocloud bucket and hands out URLs under
// publicBaseURL + PhotoRoute.
type BlobAdapter struct {
	bucket        *blob.Bucket
	publicBaseURL string
}

// OpenBucket opens a bucket URL such as file:///var/lib/inventory or mem://.
func OpenBucket(ctx context.Context, bucketURL string) (*blob.Bucket, error) {
	b, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %q: %w", bucketURL, err)
	}
	return b, nil
}

func NewBlobAdapter(bucket *blob.Bucket, publicBaseURL string) *BlobAdapter {
	return &BlobAdapter{bucket: bucket, publicBaseURL: strings.TrimRight(publicBaseURL, "/")}
}

func (b *BlobAdapter) PutBlob(ctx context.Context, key, contentType string, data []byte) (string, error) {
	opts := &blob.WriterOptions{ContentType: contentType}
	if err := b.bucket.WriteAll(ctx, key, data, opts); err != nil {
		return "", fmt.Errorf("write blob %s: %w", key, err)
	}
	return b.URL(key), nil
}

func (b *BlobAdapter) DeleteBlob(ctx context.Context, ref string) error {
	key, err := b.KeyFromRef(ref)
	if err != nil {
		return err
	}
	err = b.bucket.Delete(ctx, key)
	if err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return fmt.Errorf("delete blob %s: %w", key, err)
	}
	return nil
}

func (b *BlobAdapter) OpenBlob(ctx context.Context, key string) (io.ReadCloser, string, error) {
	r, err := b.bucket.NewReader(ctx, key, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, "", port.ErrNotFound
		}
		return nil, "", fmt.Errorf("open blob %s: %w", key, err)
	}
	return r, r.ContentType(), nil
}

// URL is the public reference for key.
func (b *BlobAdapter) URL(key string) string {
	return b.publicBaseURL + PhotoRoute + key
}

// KeyFromRef extracts the bucket key from a reference produced by URL.
func (b *BlobAdapter) KeyFromRef(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse blob ref %q: %w", ref, err)
	}
	idx := strings.Index(u.Path, PhotoRoute)
	if idx < 0 {
		return "", fmt.Errorf("blob ref %q is not a photo url", ref)
	}
	key := u.Path[idx+len(PhotoRoute):]
	if key == "" || strings.Contains(key, "..") {
		return "", fmt.Errorf("blob ref %q has no valid key", ref)
	}
	return key, nil
}
