package domain

import "context"

// ObjectInfo describes a stored object. ETag and Size together form the
// content fingerprint used for enqueue deduplication.
type ObjectInfo struct {
	Key  string
	ETag string
	Size int64
}

// ObjectStorage is the object-store port used by the import path to fetch a
// source archive and persist theory text.
type ObjectStorage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Stat(ctx context.Context, key string) (*ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}
