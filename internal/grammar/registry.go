package grammar

import (
	"context"
	"fmt"
	"log/slog"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/callgraph/internal/logging"
)

type entry struct {
	grammar *sitter.Language
	parser  *sitter.Parser
	queries Queries
	roles   map[string]Role
}

// Registry owns one parser per language. It is not safe for concurrent
// use: each worker builds its own at start and closes it when it retires.
type Registry struct {
	entries map[Language]*entry
	logger  *slog.Logger
	loaders map[Language]func() *sitter.Language
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger used for grammar initialization warnings.
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// WithLoader overrides the grammar loader for one language.
func WithLoader(lang Language, load func() *sitter.Language) RegistryOption {
	return func(r *Registry) { r.loaders[lang] = load }
}

// NewRegistry initializes parsers for langs, or for every known language
// when langs is empty. A language whose grammar fails to load is left out
// with a warning; it never fails the registry as a whole.
func NewRegistry(langs []Language, opts ...RegistryOption) *Registry {
	r := &Registry{
		entries: make(map[Language]*entry),
		loaders: make(map[Language]func() *sitter.Language, len(loaders)),
	}
	for l, fn := range loaders {
		r.loaders[l] = fn
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.OrDiscard(r.logger)

	if len(langs) == 0 {
		langs = All()
	}
	for _, lang := range langs {
		grammar, err := r.load(lang)
		if err != nil {
			r.logger.Warn("grammar.unavailable", "language", string(lang), "err", err)
			continue
		}
		q := queries[lang]
		p := sitter.NewParser()
		p.SetLanguage(grammar)
		r.entries[lang] = &entry{grammar: grammar, parser: p, queries: q, roles: q.roleIndex()}
	}
	return r
}

func (r *Registry) load(lang Language) (g *sitter.Language, err error) {
	fn, ok := r.loaders[lang]
	if !ok {
		return nil, fmt.Errorf("no grammar for %q", lang)
	}
	if _, ok := queries[lang]; !ok {
		return nil, fmt.Errorf("no queries for %q", lang)
	}
	defer func() {
		if rec := recover(); rec != nil {
			g, err = nil, fmt.Errorf("load grammar %q: %v", lang, rec)
		}
	}()
	g = fn()
	if g == nil {
		return nil, fmt.Errorf("load grammar %q: nil language", lang)
	}
	return g, nil
}

// Has reports whether lang was initialized.
func (r *Registry) Has(lang Language) bool {
	_, ok := r.entries[lang]
	return ok
}

// Languages returns the initialized languages.
func (r *Registry) Languages() []Language {
	out := make([]Language, 0, len(r.entries))
	for _, l := range All() {
		if r.Has(l) {
			out = append(out, l)
		}
	}
	return out
}

// Queries returns the structural queries for an initialized language.
func (r *Registry) Queries(lang Language) (Queries, bool) {
	e, ok := r.entries[lang]
	if !ok {
		return Queries{}, false
	}
	return e.queries, true
}

// RoleOf classifies a node kind for lang.
func (r *Registry) RoleOf(lang Language, kind string) Role {
	e, ok := r.entries[lang]
	if !ok {
		return RoleOther
	}
	return e.roles[kind]
}

// Parse parses src with lang's parser. The caller must Close the tree.
func (r *Registry) Parse(ctx context.Context, lang Language, src []byte) (*sitter.Tree, error) {
	e, ok := r.entries[lang]
	if !ok {
		return nil, fmt.Errorf("language %q not available", lang)
	}
	tree, err := e.parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", lang, err)
	}
	if tree == nil {
		return nil, fmt.Errorf("parse %s: no tree", lang)
	}
	return tree, nil
}

// Close releases every parser.
func (r *Registry) Close() {
	for lang, e := range r.entries {
		e.parser.Close()
		delete(r.entries, lang)
	}
}
