package extract

import (
	"context"
	"log/slog"

	"github.com/zeebo/xxh3"

	cgerrors "github.com/jward/callgraph/internal/errors"
	"github.com/jward/callgraph/internal/grammar"
	"github.com/jward/callgraph/internal/graph"
)

// Resolve rewrites every function's raw calls into canonical targets and
// rebuilds the summary's flattened call list.
func (ex *Extraction) Resolve() *graph.FileSummary {
	st := ex.state
	for _, fs := range st.fns {
		scope := st.scopeFor(fs)
		for _, call := range fs.entity.RawCalls {
			if target, ok := st.resolver.Resolve(call, scope); ok {
				fs.entity.AddResolved(target, call.Line)
			}
		}
	}
	st.summary.FlattenCalls()
	return st.summary
}

// Processor turns one file's content into a resolved FileSummary.
type Processor struct {
	extractor *Extractor
	logger    *slog.Logger
}

// NewProcessor returns a Processor over registry.
func NewProcessor(registry *grammar.Registry, opts ...Option) *Processor {
	e := New(registry, opts...)
	return &Processor{extractor: e, logger: e.logger}
}

// Process detects the language of path and processes src.
func (p *Processor) Process(ctx context.Context, path string, src []byte) (*graph.FileSummary, error) {
	lang, ok := grammar.LanguageFor(path)
	if !ok || !p.extractor.registry.Has(lang) {
		return nil, cgerrors.UnsupportedLanguage(path)
	}
	return p.ProcessLanguage(ctx, lang, src)
}

// ProcessLanguage extracts and resolves src as lang.
func (p *Processor) ProcessLanguage(ctx context.Context, lang grammar.Language, src []byte) (*graph.FileSummary, error) {
	ex, err := p.extractor.Extract(ctx, lang, src)
	if err != nil {
		return nil, err
	}
	summary := ex.Resolve()
	summary.Fingerprint = xxh3.Hash(src)
	p.logger.Debug("file.processed",
		"language", lang,
		"functions", len(summary.Functions),
		"types", len(summary.Types),
		"calls", len(summary.Calls),
	)
	return summary, nil
}
