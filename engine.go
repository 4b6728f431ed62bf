package callgraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jward/callgraph/internal/config"
	"github.com/jward/callgraph/internal/gate"
	"github.com/jward/callgraph/internal/governor"
	"github.com/jward/callgraph/internal/grammar"
	"github.com/jward/callgraph/internal/graph"
	"github.com/jward/callgraph/internal/logging"
	"github.com/jward/callgraph/internal/provider"
	"github.com/jward/callgraph/internal/store"
)

// Engine orchestrates the call graph pipeline: ref resolution, the
// incremental gate, file enumeration, parallel extraction, assembly and
// persistence.
type Engine struct {
	provider  provider.Provider
	store     store.GraphStore // nil disables persistence and the gate
	ownsStore bool
	gate      *gate.Gate
	governor  governor.Config
	logger    *slog.Logger

	// languages restricts which files are processed. nil means all.
	languages     map[grammar.Language]bool
	languageNames []string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLanguages restricts which languages the Engine will process. Names are
// grammar names such as "python", "go" or "c_sharp".
func WithLanguages(languages ...string) Option {
	return func(e *Engine) {
		e.languageNames = languages
	}
}

// WithStore persists built graphs in s and lets GenerateIfNeeded reuse them.
// The caller keeps ownership of s.
func WithStore(s store.GraphStore) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithGovernor replaces the worker pool limits.
func WithGovernor(cfg governor.Config) Option {
	return func(e *Engine) {
		e.governor = cfg
	}
}

// WithWorkers caps the worker pool. 1 runs files sequentially.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.governor.MaxWorkers = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine reading repositories through p.
func New(p provider.Provider, opts ...Option) (*Engine, error) {
	if p == nil {
		return nil, errors.New("callgraph: nil provider")
	}
	e := &Engine{provider: p}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.OrDiscard(e.logger)
	e.gate = gate.New(p, e.logger)

	if len(e.languageNames) > 0 {
		e.languages = make(map[grammar.Language]bool, len(e.languageNames))
		for _, name := range e.languageNames {
			lang, ok := grammar.Parse(name)
			if !ok {
				return nil, fmt.Errorf("callgraph: unknown language %q", name)
			}
			e.languages[lang] = true
		}
	}
	return e, nil
}

// Open creates an Engine for repoURL from cfg: the provider is chosen by
// URL and the store backend is opened from cfg.Store. The Engine closes the
// store on Close.
func Open(cfg *config.Config, repoURL string, opts ...Option) (*Engine, error) {
	p, err := provider.ForURL(repoURL, ProviderOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("callgraph: provider: %w", err)
	}
	s, err := store.Open(cfg.Store.Backend, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("callgraph: open store: %w", err)
	}
	base := []Option{
		WithStore(s),
		WithGovernor(governor.Config{
			MaxWorkers:   cfg.Governor.MaxWorkers,
			RecycleAfter: cfg.Governor.RecycleAfter,
			FileTimeout:  cfg.Governor.FileTimeout,
			MaxSteps:     cfg.Governor.MaxSteps,
		}),
	}
	if len(cfg.Languages) > 0 {
		base = append(base, WithLanguages(cfg.Languages...))
	}
	e, err := New(p, append(base, opts...)...)
	if err != nil {
		s.Close()
		return nil, err
	}
	e.ownsStore = true
	return e, nil
}

// ProviderOptions maps cfg onto provider selection options.
func ProviderOptions(cfg *config.Config) provider.Options {
	return provider.Options{
		GitHubToken:     cfg.GitHub.Token,
		GitHubRateLimit: cfg.GitHub.RateLimit,
		GitHubBaseURL:   cfg.GitHub.BaseURL,
		CacheEntries:    cfg.Cache.ContentEntries,
	}
}

// Close releases the store if the Engine opened it.
func (e *Engine) Close() error {
	if e.ownsStore && e.store != nil {
		return e.store.Close()
	}
	return nil
}

// Provider returns the provider the Engine reads through.
func (e *Engine) Provider() provider.Provider {
	return e.provider
}

// Store returns the graph store, or nil.
func (e *Engine) Store() store.GraphStore {
	return e.store
}

// Languages returns the enabled languages, sorted, or nil when every
// language is enabled.
func (e *Engine) Languages() []grammar.Language {
	if e.languages == nil {
		return nil
	}
	langs := make([]grammar.Language, 0, len(e.languages))
	for lang := range e.languages {
		langs = append(langs, lang)
	}
	sort.Slice(langs, func(i, j int) bool { return langs[i] < langs[j] })
	return langs
}

// Generate resolves ref and builds the graph unconditionally. An empty ref
// builds the default branch. RefNotFound and InvalidRepository errors are
// returned wrapped and still match errors.Is.
func (e *Engine) Generate(ctx context.Context, repoURL, ref string) (*Build, error) {
	resolved, err := e.provider.ValidateRef(ctx, repoURL, ref)
	if err != nil {
		return nil, fmt.Errorf("callgraph: validate ref: %w", err)
	}
	hash, err := e.provider.GetLastCommitHash(ctx, repoURL, resolved)
	if err != nil {
		return nil, fmt.Errorf("callgraph: commit hash: %w", err)
	}
	return e.build(ctx, graph.Metadata{URL: repoURL, Ref: resolved, CommitHash: hash})
}

// GenerateIfNeeded returns the stored graph unmodified when it was built
// from the commit ref still points at, and rebuilds otherwise. Reusing a
// stored graph fetches no file content.
func (e *Engine) GenerateIfNeeded(ctx context.Context, repoURL, ref string) (*Build, error) {
	if e.store == nil {
		return e.Generate(ctx, repoURL, ref)
	}
	d, err := e.decide(ctx, repoURL, ref)
	if err != nil {
		return nil, err
	}
	if d.State == gate.Current {
		g, err := e.store.Load(ctx, repoURL, d.Ref)
		switch {
		case err == nil:
			e.logger.Info("build.reused", "url", repoURL, "ref", d.Ref, "commit", d.CommitHash)
			return &Build{Graph: g, State: gate.Current}, nil
		case !errors.Is(err, store.ErrNotFound):
			return nil, fmt.Errorf("callgraph: load graph: %w", err)
		}
	}
	e.logger.Debug("build.stale", "url", repoURL, "ref", d.Ref, "reason", d.Reason)
	return e.build(ctx, graph.Metadata{URL: repoURL, Ref: d.Ref, CommitHash: d.CommitHash})
}

// IsUpToDate reports whether the stored graph for repoURL at ref matches the
// live commit.
func (e *Engine) IsUpToDate(ctx context.Context, repoURL, ref string) (bool, error) {
	if e.store == nil {
		return false, nil
	}
	d, err := e.decide(ctx, repoURL, ref)
	if err != nil {
		return false, err
	}
	return d.State == gate.Current, nil
}

// decide runs the gate against the stored metadata. For an empty ref the
// newest stored ref is compared first; when the ref resolves elsewhere the
// metadata stored under the resolved ref is compared without further
// provider calls.
func (e *Engine) decide(ctx context.Context, repoURL, ref string) (gate.Decision, error) {
	prior, err := e.store.Metadata(ctx, repoURL, ref)
	if err != nil {
		return gate.Decision{}, fmt.Errorf("callgraph: stored metadata: %w", err)
	}
	d, err := e.gate.Decide(ctx, prior, repoURL, ref)
	if err != nil {
		return gate.Decision{}, fmt.Errorf("callgraph: %w", err)
	}
	if d.State == gate.Stale && prior != nil && prior.Ref != d.Ref {
		again, err := e.store.Metadata(ctx, repoURL, d.Ref)
		if err != nil {
			return gate.Decision{}, fmt.Errorf("callgraph: stored metadata: %w", err)
		}
		d = gate.Compare(again, repoURL, d)
	}
	return d, nil
}
