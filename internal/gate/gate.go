// Package gate decides whether a stored call graph can be reused for a
// repository ref or must be rebuilt.
package gate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jward/callgraph/internal/graph"
	"github.com/jward/callgraph/internal/logging"
)

// State is the outcome of a Decide call.
type State int

const (
	Stale State = iota
	Current
)

func (s State) String() string {
	if s == Current {
		return "current"
	}
	return "stale"
}

// Resolver is the part of a provider the gate needs. It never fetches file
// content.
type Resolver interface {
	ValidateRef(ctx context.Context, repoURL, ref string) (string, error)
	GetLastCommitHash(ctx context.Context, repoURL, ref string) (string, error)
}

// Decision carries the resolved ref and live commit so a rebuild can reuse
// them.
type Decision struct {
	State      State
	Ref        string
	CommitHash string
	Reason     string
}

// Gate compares stored metadata against the live repository.
type Gate struct {
	resolver Resolver
	logger   *slog.Logger
}

// New returns a Gate over r.
func New(r Resolver, logger *slog.Logger) *Gate {
	return &Gate{resolver: r, logger: logging.OrDiscard(logger)}
}

// Decide resolves ref and reports Current only when prior was built from the
// same url and resolved ref and the ref still points at the stored commit.
// Ref resolution errors, including RefNotFound, are returned.
func (g *Gate) Decide(ctx context.Context, prior *graph.Metadata, repoURL, ref string) (Decision, error) {
	resolved, err := g.resolver.ValidateRef(ctx, repoURL, ref)
	if err != nil {
		return Decision{}, err
	}
	d := Decision{State: Stale, Ref: resolved}

	hash, err := g.resolver.GetLastCommitHash(ctx, repoURL, resolved)
	if err != nil {
		return Decision{}, fmt.Errorf("commit hash for %s: %w", resolved, err)
	}
	d.CommitHash = hash
	d = Compare(prior, repoURL, d)
	g.logger.Debug("gate.decided", "url", repoURL, "ref", resolved, "state", d.State.String(), "reason", d.Reason)
	return d, nil
}

// Compare sets d.State and d.Reason from prior and the live ref and commit
// already in d. It makes no provider calls.
func Compare(prior *graph.Metadata, repoURL string, d Decision) Decision {
	d.State = Stale
	switch {
	case prior == nil:
		d.Reason = "no prior build"
	case prior.URL != repoURL:
		d.Reason = "different repository"
	case prior.Ref != d.Ref:
		d.Reason = "different ref"
	case prior.CommitHash == "" || d.CommitHash == "":
		d.Reason = "commit unknown"
	case prior.CommitHash != d.CommitHash:
		d.Reason = "commit changed"
	default:
		d.State = Current
		d.Reason = "commit unchanged"
	}
	return d
}
