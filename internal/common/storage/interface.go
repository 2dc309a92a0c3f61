package storage

import (
	"context"
	"io"
)

// Object is one upload.
type Object struct {
	Bucket      string
	Key         string
	Body        io.Reader
	Size        int64
	ContentType string
	// Metadata is stored as user metadata next to the object.
	Metadata map[string]string
}

// ObjectStorage keeps submission source archives.
type ObjectStorage interface {
	Put(ctx context.Context, obj Object) error
	// Open returns the object body. Caller must close it.
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	// EnsureBucket creates bucket when it does not exist.
	EnsureBucket(ctx context.Context, bucket string) error
}
