// Package artifact stores the processed files returned by the backend until
// the owning workflow releases them.
package artifact

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrNotFound = errors.New("artifact not found")

// Artifact is a handle to a stored result. Location is what a client uses to
// fetch it: a local path for disk storage or a presigned URL for S3.
type Artifact struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Location    string    `json:"location"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store holds artifacts. Every Put must be paired with a Release.
type Store interface {
	Put(ctx context.Context, name, contentType string, r io.Reader) (Artifact, error)
	Open(ctx context.Context, a Artifact) (io.ReadCloser, error)
	Release(ctx context.Context, a Artifact) error
}
