package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/jward/callgraph/internal/graph"
)

var (
	graphsBucket = []byte("graphs") // url bucket -> ref -> graph JSON
	indexBucket  = []byte("index")  // url \x00 ref -> record JSON
)

type boltRecord struct {
	URL        string    `json:"url"`
	Ref        string    `json:"ref"`
	CommitHash string    `json:"commit_hash,omitempty"`
	RunID      string    `json:"run_id,omitempty"`
	BuiltAt    time.Time `json:"built_at"`
}

func (r boltRecord) metadata() *graph.Metadata {
	return &graph.Metadata{URL: r.URL, Ref: r.Ref, CommitHash: r.CommitHash}
}

func indexKey(url, ref string) []byte {
	return []byte(url + "\x00" + ref)
}

// BoltStore is the bbolt backend: one bucket per repository url, one key
// per ref.
type BoltStore struct {
	db *bolt.DB
}

var _ GraphStore = (*BoltStore)(nil)

// NewBoltStore opens or creates a bbolt database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{graphsBucket, indexBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// records returns index entries matching url, or all entries when url is "".
func (s *BoltStore) records(url string) ([]boltRecord, error) {
	var recs []boltRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(indexBucket).ForEach(func(_, v []byte) error {
			var r boltRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			if url == "" || r.URL == url {
				recs = append(recs, r)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	return recs, nil
}

func newest(recs []boltRecord) *graph.Metadata {
	var best *boltRecord
	for i := range recs {
		if best == nil || recs[i].BuiltAt.After(best.BuiltAt) {
			best = &recs[i]
		}
	}
	if best == nil {
		return nil
	}
	return best.metadata()
}

// Metadata implements GraphStore.
func (s *BoltStore) Metadata(_ context.Context, url, ref string) (*graph.Metadata, error) {
	if ref == "" {
		recs, err := s.records(url)
		if err != nil {
			return nil, err
		}
		return newest(recs), nil
	}
	var meta *graph.Metadata
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(indexBucket).Get(indexKey(url, ref))
		if v == nil {
			return nil
		}
		var r boltRecord
		if err := json.Unmarshal(v, &r); err != nil {
			return err
		}
		meta = r.metadata()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	return meta, nil
}

// Latest implements GraphStore.
func (s *BoltStore) Latest(context.Context) (*graph.Metadata, error) {
	recs, err := s.records("")
	if err != nil {
		return nil, err
	}
	return newest(recs), nil
}

// Load implements GraphStore.
func (s *BoltStore) Load(ctx context.Context, url, ref string) (*graph.RepoGraph, error) {
	meta, err := s.Metadata(ctx, url, ref)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, ErrNotFound
	}
	var data []byte
	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(graphsBucket).Bucket([]byte(meta.URL))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(meta.Ref)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read graph: %w", err)
	}
	if data == nil {
		return nil, ErrNotFound
	}
	return graph.UnmarshalJSON(data)
}

// Save implements GraphStore.
func (s *BoltStore) Save(_ context.Context, g *graph.RepoGraph, info BuildInfo) error {
	if info.BuiltAt.IsZero() {
		info.BuiltAt = time.Now()
	}
	data, err := graph.MarshalJSON(g)
	if err != nil {
		return err
	}
	rec, err := json.Marshal(boltRecord{
		URL:        g.Metadata.URL,
		Ref:        g.Metadata.Ref,
		CommitHash: g.Metadata.CommitHash,
		RunID:      info.RunID,
		BuiltAt:    info.BuiltAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(graphsBucket).CreateBucketIfNotExists([]byte(g.Metadata.URL))
		if err != nil {
			return err
		}
		if err := b.Put([]byte(g.Metadata.Ref), data); err != nil {
			return err
		}
		return tx.Bucket(indexBucket).Put(indexKey(g.Metadata.URL, g.Metadata.Ref), rec)
	})
	if err != nil {
		return fmt.Errorf("save graph: %w", err)
	}
	return nil
}
