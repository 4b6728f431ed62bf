// Package provider abstracts the version-control host a repository is read
// from. A Provider resolves refs, lists the files at a ref, returns file
// content and reports the commit a ref points at.
package provider

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"

	cgerrors "github.com/jward/callgraph/internal/errors"
)

// Provider is implemented by the GitHub and local providers.
type Provider interface {
	// ValidateRef resolves ref, returning the default branch when ref is
	// empty. It fails with *RefNotFoundError when no such ref exists.
	ValidateRef(ctx context.Context, repoURL, ref string) (string, error)

	// FetchRepoStructure lists every entry of the repository at ref.
	FetchRepoStructure(ctx context.Context, repoURL, ref string) (*Tree, error)

	// GetFileContent returns the content behind a file URL taken from an
	// Entry.
	GetFileContent(ctx context.Context, fileURL string) ([]byte, error)

	// GetLastCommitHash returns the commit ref points at, or "" when the
	// provider cannot tell.
	GetLastCommitHash(ctx context.Context, repoURL, ref string) (string, error)

	// FileURL builds the URL of path at ref, as FetchRepoStructure does.
	FileURL(repoURL, ref, path string) string
}

// Entry types.
const (
	TypeBlob = "blob"
	TypeTree = "tree"
)

// Entry is one path in a repository tree.
type Entry struct {
	Path string
	Type string // blob or tree
	Mode string
	Size int64
	SHA  string
	URL  string // accepted by GetFileContent
}

// IsFile reports whether e is a file blob.
func (e Entry) IsFile() bool {
	return e.Type == TypeBlob
}

// Tree is the listing of a repository at one ref, ordered by path.
type Tree struct {
	Ref     string
	Entries []Entry
}

// NewTree sorts entries by path.
func NewTree(ref string, entries []Entry) *Tree {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return &Tree{Ref: ref, Entries: entries}
}

// Files returns the blob entries.
func (t *Tree) Files() []Entry {
	var files []Entry
	for _, e := range t.Entries {
		if e.IsFile() {
			files = append(files, e)
		}
	}
	return files
}

// Nested returns the tree as directory name -> child map, with Entry values
// at the leaves.
func (t *Tree) Nested() map[string]any {
	root := make(map[string]any)
	for _, e := range t.Files() {
		parts := strings.Split(e.Path, "/")
		cur := root
		for _, dir := range parts[:len(parts)-1] {
			next, ok := cur[dir].(map[string]any)
			if !ok {
				next = make(map[string]any)
				cur[dir] = next
			}
			cur = next
		}
		cur[parts[len(parts)-1]] = e
	}
	return root
}

// RefNotFoundError reports that neither the requested nor a default ref
// exists.
type RefNotFoundError struct {
	Repo string
	Ref  string
}

func (e *RefNotFoundError) Error() string {
	return fmt.Sprintf("no ref found in repository by name: %s", e.Ref)
}

// Is lets errors.Is(err, cgerrors.ErrRefNotFound) match.
func (e *RefNotFoundError) Is(target error) bool {
	t, ok := target.(*cgerrors.Error)
	return ok && t.Kind == cgerrors.KindRefNotFound
}

// emptyRepository is returned when a tree has no entries.
func emptyRepository(repoURL, ref string) error {
	return cgerrors.InvalidRepository(repoURL, fmt.Sprintf("no files at ref %q", ref), nil)
}

// Options configures provider selection.
type Options struct {
	GitHubToken     string
	GitHubRateLimit int
	GitHubBaseURL   string
	CacheEntries    int // content cache size, 0 disables the cache
}

// ForURL picks a provider for repoURL: a local directory or file:// URL
// gets the local provider, a github.com URL (or any URL when a GitHub base
// URL is configured) gets the GitHub provider.
func ForURL(repoURL string, opts Options) (Provider, error) {
	var p Provider
	switch {
	case isLocal(repoURL):
		p = NewLocal()
	case isGitHub(repoURL) || opts.GitHubBaseURL != "":
		gh, err := NewGitHub(GitHubOptions{
			Token:     opts.GitHubToken,
			RateLimit: opts.GitHubRateLimit,
			BaseURL:   opts.GitHubBaseURL,
		})
		if err != nil {
			return nil, err
		}
		p = gh
	default:
		return nil, cgerrors.InvalidRepository(repoURL, "no provider for repository url", nil)
	}
	if opts.CacheEntries > 0 {
		return NewCached(p, opts.CacheEntries)
	}
	return p, nil
}

func isLocal(repoURL string) bool {
	if strings.HasPrefix(repoURL, "file://") {
		return true
	}
	if strings.Contains(repoURL, "://") {
		return false
	}
	info, err := os.Stat(repoURL)
	return err == nil && info.IsDir()
}

func isGitHub(repoURL string) bool {
	u, err := url.Parse(repoURL)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(u.Host, "www.")
	return host == "github.com"
}
