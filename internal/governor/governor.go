// Package governor runs per-file extraction on a bounded pool of workers.
//
// Each worker owns its grammar registry and replaces it after a fixed number
// of files. Every file runs under its own deadline; a file that overruns is
// abandoned and reported as a parse timeout while the worker continues with a
// fresh registry. Results are handed to the caller on a single goroutine.
package governor

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	cgerrors "github.com/jward/callgraph/internal/errors"
	"github.com/jward/callgraph/internal/extract"
	"github.com/jward/callgraph/internal/grammar"
	"github.com/jward/callgraph/internal/graph"
	"github.com/jward/callgraph/internal/logging"
)

const (
	DefaultMaxWorkers   = 8
	DefaultRecycleAfter = 50
	DefaultFileTimeout  = 30 * time.Second
)

// Task is one file to process. Fetch is called on a worker goroutine with
// the file's deadline.
type Task struct {
	Path  string
	Fetch func(ctx context.Context) ([]byte, error)
}

// Result is the outcome of one Task. Exactly one of Summary and Err is set.
type Result struct {
	Path    string
	Summary *graph.FileSummary
	Err     error
}

// Config bounds the pool.
type Config struct {
	MaxWorkers   int
	RecycleAfter int
	FileTimeout  time.Duration
	MaxSteps     int
	Languages    []grammar.Language // nil loads every grammar
}

// Stats counts what a Run did.
type Stats struct {
	Workers   int
	Processed int
	Failed    int
	Recycled  int
	TimedOut  int
	Skipped   int // not started because the run was cancelled
}

// Governor schedules Tasks.
type Governor struct {
	cfg    Config
	logger *slog.Logger
}

// Option configures a Governor.
type Option func(*Governor)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Governor) { g.logger = l }
}

// New returns a Governor, filling zero Config fields with defaults.
func New(cfg Config, opts ...Option) *Governor {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultMaxWorkers
	}
	if cfg.RecycleAfter <= 0 {
		cfg.RecycleAfter = DefaultRecycleAfter
	}
	if cfg.FileTimeout <= 0 {
		cfg.FileTimeout = DefaultFileTimeout
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = extract.DefaultMaxSteps
	}
	g := &Governor{cfg: cfg}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = logging.OrDiscard(g.logger)
	return g
}

// WorkerCount is min(NumCPU, tasks, MaxWorkers), at least 1.
func (g *Governor) WorkerCount(tasks int) int {
	return max(1, min(runtime.NumCPU(), tasks, g.cfg.MaxWorkers))
}

// Run processes tasks and calls collect once per finished task, always from
// the calling goroutine. Per-file failures are delivered as Results, not
// returned. When ctx is cancelled no further files start, in-flight files
// finish, and Run returns the context error.
func (g *Governor) Run(ctx context.Context, tasks []Task, collect func(Result)) (Stats, error) {
	stats := Stats{}
	if len(tasks) == 0 {
		return stats, ctx.Err()
	}
	stats.Workers = g.WorkerCount(len(tasks))

	taskCh := make(chan Task)
	resultCh := make(chan Result)
	recycled := make(chan int, stats.Workers)

	// Dispatcher and workers share one group; its context stops dispatch.
	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		defer close(taskCh)
		for _, t := range tasks {
			if err := gctx.Err(); err != nil {
				return err
			}
			select {
			case <-gctx.Done():
				return gctx.Err()
			case taskCh <- t:
			}
		}
		return nil
	})

	for id := range stats.Workers {
		eg.Go(func() error {
			w := g.newWorker(id)
			defer func() {
				w.close()
				recycled <- w.recycled
			}()
			for t := range taskCh {
				if gctx.Err() != nil {
					continue
				}
				resultCh <- w.process(gctx, t)
			}
			return nil
		})
	}
	var waitErr error
	done := make(chan struct{})
	go func() {
		waitErr = eg.Wait()
		close(resultCh)
		close(done)
	}()

	for res := range resultCh {
		g.account(&stats, res)
		if collect != nil {
			collect(res)
		}
	}
	<-done
	close(recycled)
	for n := range recycled {
		stats.Recycled += n
	}

	stats.Skipped = len(tasks) - stats.Processed - stats.Failed
	if err := ctx.Err(); err != nil || waitErr != nil {
		if err == nil {
			err = waitErr
		}
		g.logger.Warn("governor.cancelled", "completed", stats.Processed+stats.Failed, "skipped", stats.Skipped)
		return stats, err
	}
	return stats, nil
}

func (g *Governor) account(stats *Stats, res Result) {
	if res.Err == nil {
		stats.Processed++
		return
	}
	stats.Failed++
	if errors.Is(res.Err, cgerrors.ErrParseTimeout) {
		stats.TimedOut++
	}
	kind := "unknown"
	if k, ok := cgerrors.KindOf(res.Err); ok {
		kind = k.String()
	}
	g.logger.Warn("file.failed", "path", res.Path, "kind", kind, "error", res.Err)
}

// worker owns one registry at a time.
type worker struct {
	id        int
	g         *Governor
	registry  *grammar.Registry
	proc      *extract.Processor
	processed int
	recycled  int
}

func (g *Governor) newWorker(id int) *worker {
	w := &worker{id: id, g: g}
	w.reset()
	return w
}

func (w *worker) reset() {
	w.registry = grammar.NewRegistry(w.g.cfg.Languages, grammar.WithLogger(w.g.logger))
	w.proc = extract.NewProcessor(w.registry,
		extract.WithMaxSteps(w.g.cfg.MaxSteps),
		extract.WithLogger(w.g.logger))
	w.processed = 0
}

func (w *worker) close() {
	if w.registry != nil {
		w.registry.Close()
	}
}

func (w *worker) recycle() {
	w.close()
	w.reset()
	w.recycled++
	w.g.logger.Debug("worker.recycled", "worker", w.id, "recycled", w.recycled)
}

// process runs one task under its own deadline.
func (w *worker) process(ctx context.Context, t Task) Result {
	fctx, cancel := context.WithTimeout(ctx, w.g.cfg.FileTimeout)
	defer cancel()

	done := make(chan Result, 1)
	proc := w.proc
	go func() { done <- run(fctx, proc, t) }()

	var res Result
	select {
	case res = <-done:
	case <-fctx.Done():
		select {
		case res = <-done:
		default:
			// The overrunning file still holds this registry; it is closed
			// once that goroutine returns.
			old := w.registry
			go func() {
				<-done
				old.Close()
			}()
			w.reset()
			w.recycled++
			res = Result{Path: t.Path, Err: fctx.Err()}
		}
	}

	// A parser interrupted by the deadline reports its own error.
	if res.Err != nil && ctx.Err() == nil && fctx.Err() != nil && !errors.Is(res.Err, cgerrors.ErrParseTimeout) {
		res.Err = cgerrors.ParseTimeout(t.Path, res.Err)
	}

	w.processed++
	if w.processed >= w.g.cfg.RecycleAfter {
		w.recycle()
	}
	return res
}

func run(ctx context.Context, proc *extract.Processor, t Task) Result {
	src, err := t.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Result{Path: t.Path, Err: ctx.Err()}
		}
		if _, typed := cgerrors.KindOf(err); typed {
			return Result{Path: t.Path, Err: err}
		}
		return Result{Path: t.Path, Err: cgerrors.FetchFailure(t.Path, err)}
	}
	summary, err := proc.Process(ctx, t.Path, src)
	if err != nil {
		if errors.Is(err, extract.ErrStepBudget) {
			err = cgerrors.ParseTimeout(t.Path, err)
		}
		return Result{Path: t.Path, Err: err}
	}
	return Result{Path: t.Path, Summary: summary}
}
