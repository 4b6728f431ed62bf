package callgraph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jward/callgraph/internal/gate"
	"github.com/jward/callgraph/internal/governor"
	"github.com/jward/callgraph/internal/grammar"
	"github.com/jward/callgraph/internal/graph"
	"github.com/jward/callgraph/internal/provider"
	"github.com/jward/callgraph/internal/store"
)

// Build is the result of Generate or GenerateIfNeeded.
type Build struct {
	Graph *graph.RepoGraph
	State gate.State // Current when a stored graph was reused

	// The fields below are zero for a reused graph.
	RunID       string
	Stats       governor.Stats
	Unsupported int // files with no registered language or filtered out
	Elapsed     time.Duration
}

// Reused reports whether the graph came from the store.
func (b *Build) Reused() bool {
	return b.State == gate.Current
}

// build lists the tree at meta.Ref, runs every supported file through the
// worker pool, assembles the graph and saves it.
func (e *Engine) build(ctx context.Context, meta graph.Metadata) (*Build, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := e.logger.With("run_id", runID, "url", meta.URL, "ref", meta.Ref)

	tree, err := e.provider.FetchRepoStructure(ctx, meta.URL, meta.Ref)
	if err != nil {
		return nil, fmt.Errorf("callgraph: fetch repository structure: %w", err)
	}
	tasks, unsupported := e.tasks(tree, log)
	log.Info("build.start", "files", len(tasks), "unsupported", unsupported, "commit", meta.CommitHash)

	cfg := e.governor
	cfg.Languages = e.Languages()
	gov := governor.New(cfg, governor.WithLogger(log))

	asm := graph.NewAssembler(meta)
	stats, err := gov.Run(ctx, tasks, func(r governor.Result) {
		if r.Err == nil {
			asm.Add(r.Path, r.Summary)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("callgraph: build cancelled: %w", err)
	}
	g := asm.Graph()

	if e.store != nil {
		if err := e.store.Save(ctx, g, store.BuildInfo{RunID: runID, BuiltAt: start}); err != nil {
			return nil, fmt.Errorf("callgraph: save graph: %w", err)
		}
	}

	elapsed := time.Since(start)
	log.Info("build.done",
		"files", len(g.Files),
		"failed", stats.Failed,
		"timed_out", stats.TimedOut,
		"workers", stats.Workers,
		"recycled", stats.Recycled,
		"elapsed", elapsed,
	)
	return &Build{
		Graph:       g,
		State:       gate.Stale,
		RunID:       runID,
		Stats:       stats,
		Unsupported: unsupported,
		Elapsed:     elapsed,
	}, nil
}

// tasks turns the tree's files into governor tasks, skipping files whose
// language is unknown or disabled.
func (e *Engine) tasks(tree *provider.Tree, log *slog.Logger) ([]governor.Task, int) {
	var (
		tasks       []governor.Task
		unsupported int
	)
	for _, entry := range tree.Files() {
		lang, ok := grammar.LanguageFor(entry.Path)
		if !ok {
			unsupported++
			log.Debug("file.skipped", "path", entry.Path, "reason", "unsupported language")
			continue
		}
		if e.languages != nil && !e.languages[lang] {
			unsupported++
			log.Debug("file.skipped", "path", entry.Path, "reason", "language disabled", "language", lang)
			continue
		}
		fileURL := entry.URL
		tasks = append(tasks, governor.Task{
			Path: entry.Path,
			Fetch: func(ctx context.Context) ([]byte, error) {
				return e.provider.GetFileContent(ctx, fileURL)
			},
		})
	}
	return tasks, unsupported
}
