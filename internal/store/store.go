// Package store persists call graphs keyed by repository url and ref.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jward/callgraph/internal/graph"
)

// ErrNotFound is returned by Load when no graph is stored for a url and ref.
var ErrNotFound = errors.New("graph not found")

// BuildInfo describes the run that produced a saved graph.
type BuildInfo struct {
	RunID   string
	BuiltAt time.Time
}

// GraphStore is implemented by the SQLite, bbolt and file backends.
type GraphStore interface {
	// Metadata returns the stored metadata for url at ref, or for the most
	// recently saved ref of url when ref is "". It returns nil, nil when
	// nothing is stored.
	Metadata(ctx context.Context, url, ref string) (*graph.Metadata, error)

	// Load returns the stored graph, or ErrNotFound.
	Load(ctx context.Context, url, ref string) (*graph.RepoGraph, error)

	// Save replaces any graph stored for g's url and ref.
	Save(ctx context.Context, g *graph.RepoGraph, info BuildInfo) error

	// Latest returns the metadata of the most recently saved graph, or nil.
	Latest(ctx context.Context) (*graph.Metadata, error)

	Close() error
}

// Backend names.
const (
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
	BackendFile   = "file"
)

// Open returns the backend named by backend at path.
func Open(backend, path string) (GraphStore, error) {
	switch backend {
	case BackendSQLite, "":
		s, err := NewStore(path)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	case BackendBolt:
		return NewBoltStore(path)
	case BackendFile:
		return NewFileStore(path), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
