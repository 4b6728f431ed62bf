package provider

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cached decorates a Provider with an LRU cache of file content keyed by
// file URL. File URLs embed the ref, so entries never go stale within a
// process unless the ref is a moving branch; Purge drops everything.
type Cached struct {
	Provider
	content *lru.Cache[string, []byte]
}

// NewCached wraps p with a cache holding up to entries files.
func NewCached(p Provider, entries int) (*Cached, error) {
	cache, err := lru.New[string, []byte](entries)
	if err != nil {
		return nil, fmt.Errorf("content cache: %w", err)
	}
	return &Cached{Provider: p, content: cache}, nil
}

// GetFileContent serves from the cache, filling it on a miss.
func (c *Cached) GetFileContent(ctx context.Context, fileURL string) ([]byte, error) {
	if data, ok := c.content.Get(fileURL); ok {
		return data, nil
	}
	data, err := c.Provider.GetFileContent(ctx, fileURL)
	if err != nil {
		return nil, err
	}
	c.content.Add(fileURL, data)
	return data, nil
}

// Purge empties the cache, e.g. after a branch moves.
func (c *Cached) Purge() {
	c.content.Purge()
}

// Len is the number of cached files.
func (c *Cached) Len() int {
	return c.content.Len()
}
