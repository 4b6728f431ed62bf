package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cgerrors "github.com/jward/callgraph/internal/errors"
)

const repoURL = "https://github.com/o/r"

func newTestGitHub(t *testing.T) (*GitHub, *int) {
	t.Helper()
	var contentCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/repos/o/r", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"default_branch":"main"}`)
	})
	mux.HandleFunc("GET /api/v3/repos/o/r/branches/{branch}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("branch") != "main" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"name":"main"}`)
	})
	mux.HandleFunc("GET /api/v3/repos/o/r/git/ref/tags/{tag}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("tag") != "v1" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"ref":"refs/tags/v1"}`)
	})
	mux.HandleFunc("GET /api/v3/repos/o/r/commits/{ref}", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("ref") {
		case "main", "abc123":
			fmt.Fprint(w, "deadbeef")
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("GET /api/v3/repos/o/r/git/trees/{ref}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("ref") == "empty" {
			fmt.Fprint(w, `{"sha":"t0","tree":[]}`)
			return
		}
		fmt.Fprint(w, `{"sha":"t1","tree":[
			{"path":"pkg/b.go","type":"blob","mode":"100644","size":12,"sha":"s2"},
			{"path":"pkg","type":"tree","mode":"040000","sha":"s3"},
			{"path":"a.py","type":"blob","mode":"100644","size":20,"sha":"s1"}
		]}`)
	})
	mux.HandleFunc("GET /api/v3/repos/o/r/contents/a.py", func(w http.ResponseWriter, r *http.Request) {
		contentCalls++
		assert.Equal(t, "main", r.URL.Query().Get("ref"))
		body := base64.StdEncoding.EncodeToString([]byte("def f():\n    pass\n"))
		fmt.Fprintf(w, `{"type":"file","encoding":"base64","content":%q}`, body)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	gh, err := NewGitHub(GitHubOptions{BaseURL: srv.URL})
	require.NoError(t, err)
	return gh, &contentCalls
}

func TestGitHub_ValidateRef(t *testing.T) {
	gh, _ := newTestGitHub(t)
	ctx := context.Background()

	ref, err := gh.ValidateRef(ctx, repoURL, "")
	require.NoError(t, err)
	assert.Equal(t, "main", ref)

	for _, r := range []string{"main", "v1", "abc123"} {
		got, err := gh.ValidateRef(ctx, repoURL, r)
		require.NoError(t, err, r)
		assert.Equal(t, r, got)
	}

	_, err = gh.ValidateRef(ctx, repoURL, "nope")
	require.Error(t, err)
	var rnf *RefNotFoundError
	require.True(t, errors.As(err, &rnf))
	assert.Equal(t, "nope", rnf.Ref)
	assert.True(t, errors.Is(err, cgerrors.ErrRefNotFound))
	assert.True(t, cgerrors.IsFatal(err))
	assert.Equal(t, "no ref found in repository by name: nope", err.Error())
}

func TestGitHub_FetchRepoStructure(t *testing.T) {
	gh, _ := newTestGitHub(t)

	tree, err := gh.FetchRepoStructure(context.Background(), repoURL, "main")
	require.NoError(t, err)
	require.Len(t, tree.Entries, 3)
	assert.Equal(t, "a.py", tree.Entries[0].Path)

	files := tree.Files()
	require.Len(t, files, 2)
	assert.Equal(t, "https://github.com/o/r/blob/main/a.py", files[0].URL)
	assert.Equal(t, int64(20), files[0].Size)
	assert.Equal(t, "100644", files[0].Mode)

	nested := tree.Nested()
	pkg, ok := nested["pkg"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, pkg, "b.go")

	_, err = gh.FetchRepoStructure(context.Background(), repoURL, "empty")
	assert.True(t, errors.Is(err, cgerrors.ErrInvalidRepository))
}

func TestGitHub_FileContentAndCommit(t *testing.T) {
	gh, calls := newTestGitHub(t)
	ctx := context.Background()

	data, err := gh.GetFileContent(ctx, "https://github.com/o/r/blob/main/a.py")
	require.NoError(t, err)
	assert.Equal(t, "def f():\n    pass\n", string(data))
	assert.Equal(t, 1, *calls)

	_, err = gh.GetFileContent(ctx, "https://github.com/o/r/tree/main")
	assert.True(t, errors.Is(err, cgerrors.ErrFetchFailure))

	sha, err := gh.GetLastCommitHash(ctx, repoURL, "")
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", sha)

	_, err = gh.GetLastCommitHash(ctx, repoURL, "gone")
	assert.True(t, errors.Is(err, cgerrors.ErrRefNotFound))
}

func TestParseRepo(t *testing.T) {
	r, err := parseRepo("https://github.com/owner/name.git")
	require.NoError(t, err)
	assert.Equal(t, repoName{owner: "owner", name: "name"}, r)

	_, err = parseRepo("https://github.com/owner")
	assert.True(t, errors.Is(err, cgerrors.ErrInvalidRepository))
}

func TestGitHubFileURL_RefWithSlash(t *testing.T) {
	u := githubFileURL(repoName{owner: "o", name: "r"}, "feature/x", "dir/a.py")
	repo, ref, path, err := parseGitHubFileURL(u)
	require.NoError(t, err)
	assert.Equal(t, "o", repo.owner)
	assert.Equal(t, "feature/x", ref)
	assert.Equal(t, "dir/a.py", path)
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestLocal_Worktree(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "build/\n*.log\n")
	writeFile(t, root, "a.py", "def f():\n    pass\n")
	writeFile(t, root, "pkg/b.go", "package pkg\n")
	writeFile(t, root, "build/gen.py", "x = 1\n")
	writeFile(t, root, "debug.log", "noise\n")
	writeFile(t, root, "node_modules/m/index.js", "x\n")

	l := NewLocal()
	ctx := context.Background()

	ref, err := l.ValidateRef(ctx, root, "")
	require.NoError(t, err)
	assert.Equal(t, WorktreeRef, ref)

	_, err = l.ValidateRef(ctx, root, "main")
	assert.True(t, errors.Is(err, cgerrors.ErrRefNotFound))

	tree, err := l.FetchRepoStructure(ctx, root, ref)
	require.NoError(t, err)
	var paths []string
	for _, e := range tree.Files() {
		paths = append(paths, e.Path)
	}
	assert.Equal(t, []string{".gitignore", "a.py", "pkg/b.go"}, paths)

	a := tree.Files()[1]
	assert.Equal(t, root+"/-/blob/worktree/a.py", a.URL)
	data, err := l.GetFileContent(ctx, a.URL)
	require.NoError(t, err)
	assert.Equal(t, "def f():\n    pass\n", string(data))

	_, err = l.GetFileContent(ctx, root+"/-/blob/worktree/../escape.py")
	assert.True(t, errors.Is(err, cgerrors.ErrFetchFailure))

	sha, err := l.GetLastCommitHash(ctx, root, ref)
	require.NoError(t, err)
	assert.Empty(t, sha)
}

func TestLocal_EmptyAndMissing(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	_, err := l.FetchRepoStructure(ctx, t.TempDir(), WorktreeRef)
	assert.True(t, errors.Is(err, cgerrors.ErrInvalidRepository))

	_, err = l.ValidateRef(ctx, filepath.Join(t.TempDir(), "missing"), "")
	assert.True(t, errors.Is(err, cgerrors.ErrInvalidRepository))
}

type countingProvider struct {
	Provider
	calls int
}

func (c *countingProvider) GetFileContent(context.Context, string) ([]byte, error) {
	c.calls++
	return []byte("body"), nil
}

func TestCached_ServesRepeatsFromCache(t *testing.T) {
	inner := &countingProvider{}
	c, err := NewCached(inner, 2)
	require.NoError(t, err)

	for range 3 {
		data, err := c.GetFileContent(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, "body", string(data))
	}
	assert.Equal(t, 1, inner.calls)

	_, _ = c.GetFileContent(context.Background(), "u2")
	_, _ = c.GetFileContent(context.Background(), "u3")
	assert.Equal(t, 2, c.Len())

	c.Purge()
	_, _ = c.GetFileContent(context.Background(), "u1")
	assert.Equal(t, 4, inner.calls)
}

func TestForURL(t *testing.T) {
	p, err := ForURL(t.TempDir(), Options{})
	require.NoError(t, err)
	assert.IsType(t, &Local{}, p)

	p, err = ForURL(repoURL, Options{CacheEntries: 8})
	require.NoError(t, err)
	cached, ok := p.(*Cached)
	require.True(t, ok)
	assert.IsType(t, &GitHub{}, cached.Provider)

	_, err = ForURL("https://example.com/a/b", Options{})
	assert.True(t, errors.Is(err, cgerrors.ErrInvalidRepository))
}
