// Package blob provides the object storage collaborator: a thin S3-like
// abstraction with memory, filesystem, and S3/MinIO drivers. Attachments are
// stored under pdfs/<userId>/<fileName> keys by higher layers.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Driver identifies a concrete storage backend implementation.
type Driver string

const (
	DriverMemory     Driver = "memory" // in-process (tests, single-node dev)
	DriverFilesystem Driver = "fs"     // local filesystem (default, dev)
	DriverS3         Driver = "s3"     // S3 / MinIO compatible
)

// PutOptions specifies optional parameters for Put.
type PutOptions struct {
	ContentType string            // MIME type, optional
	Metadata    map[string]string // small flat key-value user metadata
}

// SignedURLOptions holds options for generating a download URL.
type SignedURLOptions struct {
	Method string        // GET|PUT; only GET is used internally
	Expiry time.Duration // default 15m
}

// Info describes a stored object.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
	URL          string            `json:"url,omitempty"`
}

// Store is the object storage contract. Semantics mirror a minimal S3 subset
// so the S3 adapter is nearly 1:1 while the other drivers emulate them.
type Store interface {
	// Put stores a new object at key. Fails if the key already exists.
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	// Get retrieves contents and metadata. Returns ErrNotFound if missing.
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	// Head returns existence metadata only. Returns ErrNotFound if missing.
	Head(ctx context.Context, key string) (Info, error)
	// Delete removes an object. A missing object is not an error: (false, nil).
	Delete(ctx context.Context, key string) (bool, error)
	// List returns objects whose key has the prefix, ordered by key ascending.
	List(ctx context.Context, prefix string) ([]Info, error)
	// PresignURL returns a time-limited download URL for the key.
	PresignURL(ctx context.Context, key string, opts SignedURLOptions) (string, error)
	// Driver returns the configured backend driver.
	Driver() Driver
}

// ErrUnsupported is returned when an optional capability is not available.
var ErrUnsupported = errors.New("blob: unsupported operation")

// ErrNotFound is returned by Get and Head for missing keys.
var ErrNotFound = errors.New("blob: object not found")

// NotFound wraps ErrNotFound with the offending key.
func NotFound(key string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, key)
}
