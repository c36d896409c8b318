package storage

import (
	"context"
	"errors"

	"github.com/dshills/docgen/pkg/types"
)

var (
	// ErrNotFound is returned when a requested document doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrStoreClosed is returned by every operation after Close
	ErrStoreClosed = errors.New("store is closed")
	// ErrNilMetadata is returned when Save is called without metadata
	ErrNilMetadata = errors.New("metadata is required")
)

// Storage defines the interface for persisting generated documents
type Storage interface {
	// Save upserts a document keyed by (meta.SourcePath, hash(prompt)) and
	// returns its id. meta.PromptHash is set as a side effect.
	Save(ctx context.Context, content string, meta *types.DocMetadata, prompt string, opts ...SaveOption) (string, error)

	// Get returns the document with id, or ErrNotFound
	Get(ctx context.Context, id string) (*types.Document, error)

	// ListByPath returns all documents for a source path, newest first
	ListByPath(ctx context.Context, sourcePath string) ([]*types.Document, error)

	// Delete removes a document and reports whether it existed
	Delete(ctx context.Context, id string) (bool, error)

	// Vector returns the embedding stored with a document, or ErrNotFound
	Vector(ctx context.Context, id string) ([]float32, error)

	// Stats returns row counts and schema information
	Stats(ctx context.Context) (*Stats, error)

	// Close compacts and closes the database
	Close() error
}

// Stats summarizes store contents
type Stats struct {
	Documents     int    `json:"documents"`
	Prompts       int    `json:"prompts"`
	Embeddings    int    `json:"embeddings"`
	SchemaVersion string `json:"schema_version"`
	BuildMode     string `json:"build_mode"`
	Path          string `json:"path"`
}

// SaveOption customizes a single Save call
type SaveOption func(*saveOptions)

type saveOptions struct {
	vector []float32
}

// WithVector stores an embedding vector alongside the document
func WithVector(vector []float32) SaveOption {
	return func(o *saveOptions) {
		o.vector = vector
	}
}
