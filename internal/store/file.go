package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jward/callgraph/internal/graph"
)

// FileStore keeps a single graph in one JSON or YAML file, chosen by the
// path's extension. Saving a graph for another repository replaces it.
type FileStore struct {
	path string
}

var _ GraphStore = (*FileStore)(nil)

// NewFileStore returns a store writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) yaml() bool {
	ext := strings.ToLower(filepath.Ext(s.path))
	return ext == ".yaml" || ext == ".yml"
}

func (s *FileStore) read() (*graph.RepoGraph, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read graph file: %w", err)
	}
	if s.yaml() {
		return graph.DecodeYAML(bytes.NewReader(data))
	}
	return graph.UnmarshalJSON(data)
}

func matches(meta graph.Metadata, url, ref string) bool {
	return meta.URL == url && (ref == "" || meta.Ref == ref)
}

// Metadata implements GraphStore.
func (s *FileStore) Metadata(_ context.Context, url, ref string) (*graph.Metadata, error) {
	g, err := s.read()
	if err != nil || g == nil || !matches(g.Metadata, url, ref) {
		return nil, err
	}
	meta := g.Metadata
	return &meta, nil
}

// Latest implements GraphStore.
func (s *FileStore) Latest(context.Context) (*graph.Metadata, error) {
	g, err := s.read()
	if err != nil || g == nil {
		return nil, err
	}
	meta := g.Metadata
	return &meta, nil
}

// Load implements GraphStore.
func (s *FileStore) Load(_ context.Context, url, ref string) (*graph.RepoGraph, error) {
	g, err := s.read()
	if err != nil {
		return nil, err
	}
	if g == nil || !matches(g.Metadata, url, ref) {
		return nil, ErrNotFound
	}
	return g, nil
}

// Save writes g to a temporary file and renames it over the target.
func (s *FileStore) Save(_ context.Context, g *graph.RepoGraph, _ BuildInfo) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create graph directory: %w", err)
	}
	var buf bytes.Buffer
	var err error
	if s.yaml() {
		err = graph.EncodeYAML(&buf, g)
	} else {
		err = graph.EncodeJSON(&buf, g)
	}
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write graph file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace graph file: %w", err)
	}
	return nil
}

// Close implements GraphStore.
func (s *FileStore) Close() error {
	return nil
}
