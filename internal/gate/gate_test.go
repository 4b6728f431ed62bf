package gate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cgerrors "github.com/jward/callgraph/internal/errors"
	"github.com/jward/callgraph/internal/graph"
	"github.com/jward/callgraph/internal/provider"
)

const url = "https://github.com/owner/repo"

type fakeResolver struct {
	defaultRef string
	hashes     map[string]string
	calls      int
}

func (f *fakeResolver) ValidateRef(_ context.Context, repoURL, ref string) (string, error) {
	f.calls++
	if ref == "" {
		return f.defaultRef, nil
	}
	if _, ok := f.hashes[ref]; !ok {
		return "", &provider.RefNotFoundError{Repo: repoURL, Ref: ref}
	}
	return ref, nil
}

func (f *fakeResolver) GetLastCommitHash(_ context.Context, _, ref string) (string, error) {
	f.calls++
	return f.hashes[ref], nil
}

func newTestGate() (*Gate, *fakeResolver) {
	r := &fakeResolver{defaultRef: "main", hashes: map[string]string{"main": "h1", "dev": "h2", "tag": ""}}
	return New(r, nil), r
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name   string
		prior  *graph.Metadata
		ref    string
		want   State
		reason string
	}{
		{"no prior", nil, "main", Stale, "no prior build"},
		{"same commit", &graph.Metadata{URL: url, Ref: "main", CommitHash: "h1"}, "main", Current, "commit unchanged"},
		{"default ref resolves to stored ref", &graph.Metadata{URL: url, Ref: "main", CommitHash: "h1"}, "", Current, "commit unchanged"},
		{"commit moved", &graph.Metadata{URL: url, Ref: "main", CommitHash: "h0"}, "main", Stale, "commit changed"},
		{"other repository", &graph.Metadata{URL: "https://github.com/other/repo", Ref: "main", CommitHash: "h1"}, "main", Stale, "different repository"},
		{"other ref", &graph.Metadata{URL: url, Ref: "main", CommitHash: "h1"}, "dev", Stale, "different ref"},
		{"stored hash missing", &graph.Metadata{URL: url, Ref: "main"}, "main", Stale, "commit unknown"},
		{"live hash missing", &graph.Metadata{URL: url, Ref: "tag", CommitHash: "h1"}, "tag", Stale, "commit unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _ := newTestGate()
			d, err := g.Decide(context.Background(), tt.prior, url, tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.State)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestDecide_ReturnsResolvedRefAndHash(t *testing.T) {
	g, r := newTestGate()
	d, err := g.Decide(context.Background(), nil, url, "")
	require.NoError(t, err)
	assert.Equal(t, "main", d.Ref)
	assert.Equal(t, "h1", d.CommitHash)
	assert.Equal(t, 2, r.calls)
}

func TestDecide_RefNotFound(t *testing.T) {
	g, _ := newTestGate()
	_, err := g.Decide(context.Background(), nil, url, "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, cgerrors.ErrRefNotFound))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "current", Current.String())
	assert.Equal(t, "stale", Stale.String())
}

func TestCompare_NoProviderCalls(t *testing.T) {
	d := Compare(&graph.Metadata{URL: url, Ref: "dev", CommitHash: "h2"}, url,
		Decision{Ref: "dev", CommitHash: "h2"})
	assert.Equal(t, Current, d.State)

	d = Compare(nil, url, Decision{State: Current, Ref: "dev", CommitHash: "h2"})
	assert.Equal(t, Stale, d.State)
}
