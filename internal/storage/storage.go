package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// Package storage contains the "disk" abstraction: named storage backends
// (S3-compatible object store, local filesystem) behind a uniform interface.
// Implementations rely on streaming I/O and take context on every call.

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("object not found")

// PutObjectOptions define optional parameters for uploading objects.
// Size should be the exact number of bytes if known; if unknown, set to -1 and the implementation
// will buffer/chunk as supported by the backend.
// ContentType and Metadata are optional.
type PutObjectOptions struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo contains basic information about an object in storage.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
}

// Storage is a single named disk. Methods use context and streaming
// readers/writers.
type Storage interface {
	// Put uploads an object under the given key using the provided reader and options.
	Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error)
	// Get retrieves an object's content as a streaming reader alongside its info.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	// Exists reports whether an object is present under the key.
	Exists(ctx context.Context, key string) (bool, error)
	// Delete removes an object by key.
	Delete(ctx context.Context, key string) error
	// URL returns the unsigned public URL for the key, or an error when the
	// disk has no public endpoint configured.
	URL(key string) (string, error)
	// PresignGet returns a time-limited URL that can be used to download the object without credentials.
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}
