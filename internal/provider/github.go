package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	cgerrors "github.com/jward/callgraph/internal/errors"
)

const githubWeb = "https://github.com"

// GitHubOptions configures a GitHub provider.
type GitHubOptions struct {
	Token      string
	RateLimit  int // requests per second, <= 0 is unlimited
	BaseURL    string
	HTTPClient *http.Client
}

// GitHub reads repositories through the GitHub REST API.
type GitHub struct {
	client      *github.Client
	rateLimiter *rate.Limiter
}

// NewGitHub returns a GitHub provider. BaseURL points it at a GitHub
// Enterprise API root.
func NewGitHub(opts GitHubOptions) (*GitHub, error) {
	client := github.NewClient(opts.HTTPClient)
	if opts.Token != "" {
		client = client.WithAuthToken(opts.Token)
	}
	if opts.BaseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(opts.BaseURL, opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("github base url: %w", err)
		}
	}
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	return &GitHub{client: client, rateLimiter: rate.NewLimiter(limit, 1)}, nil
}

type repoName struct {
	owner string
	name  string
}

// parseRepo reads owner and name from https://<host>/<owner>/<repo>[.git].
func parseRepo(repoURL string) (repoName, error) {
	u, err := url.Parse(repoURL)
	if err != nil || u.Host == "" {
		return repoName{}, cgerrors.InvalidRepository(repoURL, "invalid repository url", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return repoName{}, cgerrors.InvalidRepository(repoURL, "repository url must name owner/repo", nil)
	}
	return repoName{owner: parts[0], name: strings.TrimSuffix(parts[1], ".git")}, nil
}

func (g *GitHub) wait(ctx context.Context) error {
	if err := g.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

func notFound(resp *github.Response, err error) bool {
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return true
	}
	var ghErr *github.ErrorResponse
	return errors.As(err, &ghErr) && ghErr.Response != nil &&
		(ghErr.Response.StatusCode == http.StatusNotFound || ghErr.Response.StatusCode == http.StatusUnprocessableEntity)
}

func (g *GitHub) defaultBranch(ctx context.Context, repo repoName, repoURL string) (string, error) {
	if err := g.wait(ctx); err != nil {
		return "", err
	}
	r, resp, err := g.client.Repositories.Get(ctx, repo.owner, repo.name)
	if err != nil {
		if notFound(resp, err) {
			return "", cgerrors.InvalidRepository(repoURL, "repository not found", err)
		}
		return "", fmt.Errorf("fetch repository: %w", err)
	}
	if r.GetDefaultBranch() == "" {
		return "", &RefNotFoundError{Repo: repoURL}
	}
	return r.GetDefaultBranch(), nil
}

// ValidateRef probes ref as a branch, a tag and a commit, preferring them in
// that order.
func (g *GitHub) ValidateRef(ctx context.Context, repoURL, ref string) (string, error) {
	repo, err := parseRepo(repoURL)
	if err != nil {
		return "", err
	}
	if ref == "" {
		return g.defaultBranch(ctx, repo, repoURL)
	}

	var found [3]bool
	probes := [3]func() (*github.Response, error){
		func() (*github.Response, error) {
			_, resp, err := g.client.Repositories.GetBranch(ctx, repo.owner, repo.name, ref, 1)
			return resp, err
		},
		func() (*github.Response, error) {
			_, resp, err := g.client.Git.GetRef(ctx, repo.owner, repo.name, "tags/"+ref)
			return resp, err
		},
		func() (*github.Response, error) {
			_, resp, err := g.client.Repositories.GetCommitSHA1(ctx, repo.owner, repo.name, ref, "")
			return resp, err
		},
	}
	eg, ctx := errgroup.WithContext(ctx)
	for i, probe := range probes {
		eg.Go(func() error {
			if err := g.wait(ctx); err != nil {
				return err
			}
			resp, err := probe()
			if err != nil {
				if notFound(resp, err) {
					return nil
				}
				return fmt.Errorf("probe ref %s: %w", ref, err)
			}
			found[i] = true
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return "", err
	}
	for _, ok := range found {
		if ok {
			return ref, nil
		}
	}
	return "", &RefNotFoundError{Repo: repoURL, Ref: ref}
}

// FetchRepoStructure lists the repository recursively through the git trees
// API.
func (g *GitHub) FetchRepoStructure(ctx context.Context, repoURL, ref string) (*Tree, error) {
	repo, err := parseRepo(repoURL)
	if err != nil {
		return nil, err
	}
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	tree, resp, err := g.client.Git.GetTree(ctx, repo.owner, repo.name, ref, true)
	if err != nil {
		if notFound(resp, err) {
			return nil, &RefNotFoundError{Repo: repoURL, Ref: ref}
		}
		return nil, fmt.Errorf("fetch tree: %w", err)
	}
	if len(tree.Entries) == 0 {
		return nil, emptyRepository(repoURL, ref)
	}

	entries := make([]Entry, 0, len(tree.Entries))
	for _, e := range tree.Entries {
		entry := Entry{
			Path: e.GetPath(),
			Type: e.GetType(),
			Mode: e.GetMode(),
			Size: int64(e.GetSize()),
			SHA:  e.GetSHA(),
		}
		if entry.IsFile() {
			entry.URL = githubFileURL(repo, ref, entry.Path)
		}
		entries = append(entries, entry)
	}
	return NewTree(ref, entries), nil
}

func githubFileURL(repo repoName, ref, path string) string {
	return fmt.Sprintf("%s/%s/%s/blob/%s/%s", githubWeb, repo.owner, repo.name, url.PathEscape(ref), path)
}

// FileURL implements Provider.
func (g *GitHub) FileURL(repoURL, ref, path string) string {
	repo, err := parseRepo(repoURL)
	if err != nil {
		return ""
	}
	return githubFileURL(repo, ref, path)
}

// parseGitHubFileURL splits https://github.com/<owner>/<repo>/blob/<ref>/<path>.
func parseGitHubFileURL(fileURL string) (repo repoName, ref, path string, err error) {
	u, err := url.Parse(fileURL)
	if err != nil {
		return repoName{}, "", "", err
	}
	parts := strings.SplitN(strings.TrimPrefix(u.EscapedPath(), "/"), "/", 5)
	if len(parts) < 5 || parts[2] != "blob" {
		return repoName{}, "", "", fmt.Errorf("not a file url: %s", fileURL)
	}
	ref, err = url.PathUnescape(parts[3])
	if err != nil {
		return repoName{}, "", "", err
	}
	path, err = url.PathUnescape(parts[4])
	if err != nil {
		return repoName{}, "", "", err
	}
	return repoName{owner: parts[0], name: parts[1]}, ref, path, nil
}

// GetFileContent fetches and decodes a file through the contents API.
func (g *GitHub) GetFileContent(ctx context.Context, fileURL string) ([]byte, error) {
	repo, ref, path, err := parseGitHubFileURL(fileURL)
	if err != nil {
		return nil, cgerrors.FetchFailure(fileURL, err)
	}
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	file, _, _, err := g.client.Repositories.GetContents(ctx, repo.owner, repo.name, path,
		&github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		return nil, cgerrors.FetchFailure(fileURL, err)
	}
	if file == nil {
		return nil, cgerrors.FetchFailure(fileURL, errors.New("path is a directory"))
	}
	content, err := file.GetContent()
	if err != nil {
		return nil, cgerrors.FetchFailure(fileURL, err)
	}
	return []byte(content), nil
}

// GetLastCommitHash returns the SHA ref points at, using the default branch
// when ref is empty.
func (g *GitHub) GetLastCommitHash(ctx context.Context, repoURL, ref string) (string, error) {
	repo, err := parseRepo(repoURL)
	if err != nil {
		return "", err
	}
	if ref == "" {
		if ref, err = g.defaultBranch(ctx, repo, repoURL); err != nil {
			return "", err
		}
	}
	if err := g.wait(ctx); err != nil {
		return "", err
	}
	sha, resp, err := g.client.Repositories.GetCommitSHA1(ctx, repo.owner, repo.name, ref, "")
	if err != nil {
		if notFound(resp, err) {
			return "", &RefNotFoundError{Repo: repoURL, Ref: ref}
		}
		return "", fmt.Errorf("fetch commit: %w", err)
	}
	return sha, nil
}
