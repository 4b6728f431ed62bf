package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	cgerrors "github.com/jward/callgraph/internal/errors"
)

// WorktreeRef names the files on disk of a directory that is not a git
// repository, or the uncommitted state of one that is.
const WorktreeRef = "worktree"

const blobMarker = "/-/blob/"

var skipDirs = map[string]struct{}{
	".git":          {},
	".hg":           {},
	".svn":          {},
	"node_modules":  {},
	"__pycache__":   {},
	"venv":          {},
	".venv":         {},
	".tox":          {},
	".mypy_cache":   {},
	".pytest_cache": {},
	"vendor":        {},
}

// Local reads a repository from the filesystem, through git when the
// directory is a git checkout.
type Local struct {
	git string
}

// NewLocal returns a local provider using git from PATH.
func NewLocal() *Local {
	return &Local{git: "git"}
}

func localRoot(repoURL string) (string, error) {
	root := strings.TrimPrefix(repoURL, "file://")
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", cgerrors.InvalidRepository(repoURL, "invalid path", err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return "", cgerrors.InvalidRepository(repoURL, "not a directory", err)
	}
	return abs, nil
}

func (l *Local) run(ctx context.Context, root string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, l.git, args...)
	cmd.Dir = root
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return string(out), nil
}

func (l *Local) isGit(ctx context.Context, root string) bool {
	out, err := l.run(ctx, root, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(out) == "true"
}

func (l *Local) verify(ctx context.Context, root, rev string) (string, bool) {
	out, err := l.run(ctx, root, "rev-parse", "--verify", "--quiet", rev)
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(out), true
}

// ValidateRef resolves ref against refs/heads, refs/tags and then commits.
// An empty ref is the checked-out branch.
func (l *Local) ValidateRef(ctx context.Context, repoURL, ref string) (string, error) {
	root, err := localRoot(repoURL)
	if err != nil {
		return "", err
	}
	if !l.isGit(ctx, root) {
		if ref == "" || ref == WorktreeRef {
			return WorktreeRef, nil
		}
		return "", &RefNotFoundError{Repo: repoURL, Ref: ref}
	}
	if ref == WorktreeRef {
		return ref, nil
	}
	if ref == "" {
		if out, err := l.run(ctx, root, "symbolic-ref", "--short", "HEAD"); err == nil {
			return strings.TrimSpace(out), nil
		}
		if _, ok := l.verify(ctx, root, "HEAD^{commit}"); ok {
			return "HEAD", nil
		}
		return "", &RefNotFoundError{Repo: repoURL}
	}
	for _, rev := range []string{"refs/heads/" + ref, "refs/tags/" + ref, ref + "^{commit}"} {
		if _, ok := l.verify(ctx, root, rev); ok {
			return ref, nil
		}
	}
	return "", &RefNotFoundError{Repo: repoURL, Ref: ref}
}

// FetchRepoStructure lists ref with git ls-tree, or walks the directory for
// WorktreeRef.
func (l *Local) FetchRepoStructure(ctx context.Context, repoURL, ref string) (*Tree, error) {
	root, err := localRoot(repoURL)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	if ref == WorktreeRef || ref == "" {
		entries, err = walkWorktree(root)
	} else {
		entries, err = l.lsTree(ctx, root, ref)
	}
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, emptyRepository(repoURL, ref)
	}
	for i := range entries {
		if entries[i].IsFile() {
			entries[i].URL = localFileURL(repoURL, ref, entries[i].Path)
		}
	}
	return NewTree(ref, entries), nil
}

// lsTree parses "<mode> <type> <sha> <size>\t<path>" lines.
func (l *Local) lsTree(ctx context.Context, root, ref string) ([]Entry, error) {
	if _, ok := l.verify(ctx, root, ref+"^{tree}"); !ok {
		return nil, &RefNotFoundError{Repo: root, Ref: ref}
	}
	out, err := l.run(ctx, root, "ls-tree", "-r", "-l", "--full-tree", ref)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		meta, path, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		fields := strings.Fields(meta)
		if len(fields) != 4 || fields[1] != TypeBlob {
			continue
		}
		size, _ := strconv.ParseInt(fields[3], 10, 64)
		entries = append(entries, Entry{
			Path: path,
			Type: TypeBlob,
			Mode: fields[0],
			Size: size,
			SHA:  fields[2],
		})
	}
	return entries, nil
}

func walkWorktree(root string) ([]Entry, error) {
	gi, _ := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))

	var entries []Entry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if _, skip := skipDirs[d.Name()]; skip || (gi != nil && gi.MatchesPath(rel+"/")) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 || !d.Type().IsRegular() {
			return nil
		}
		if gi != nil && gi.MatchesPath(rel) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		entries = append(entries, Entry{
			Path: rel,
			Type: TypeBlob,
			Mode: fmt.Sprintf("%06o", 0o100000|info.Mode().Perm()),
			Size: info.Size(),
		})
		return nil
	})
	return entries, err
}

// FileURL implements Provider.
func (l *Local) FileURL(repoURL, ref, path string) string {
	return localFileURL(repoURL, ref, path)
}

func localFileURL(repoURL, ref, path string) string {
	return strings.TrimRight(repoURL, "/") + blobMarker + url.PathEscape(ref) + "/" + path
}

// parseLocalFileURL splits <repo>/-/blob/<ref>/<path>.
func parseLocalFileURL(fileURL string) (repo, ref, path string, err error) {
	repo, rest, ok := strings.Cut(fileURL, blobMarker)
	if !ok {
		return "", "", "", fmt.Errorf("not a file url: %s", fileURL)
	}
	escRef, path, ok := strings.Cut(rest, "/")
	if !ok || path == "" {
		return "", "", "", fmt.Errorf("not a file url: %s", fileURL)
	}
	ref, err = url.PathUnescape(escRef)
	return repo, ref, path, err
}

// GetFileContent reads the file with git show, or from disk for WorktreeRef.
func (l *Local) GetFileContent(ctx context.Context, fileURL string) ([]byte, error) {
	repo, ref, path, err := parseLocalFileURL(fileURL)
	if err != nil {
		return nil, cgerrors.FetchFailure(fileURL, err)
	}
	root, err := localRoot(repo)
	if err != nil {
		return nil, cgerrors.FetchFailure(fileURL, err)
	}
	if ref == WorktreeRef {
		full := filepath.Join(root, filepath.FromSlash(path))
		if !strings.HasPrefix(full, root+string(filepath.Separator)) {
			return nil, cgerrors.FetchFailure(fileURL, errors.New("path escapes repository"))
		}
		data, err := os.ReadFile(full)
		if err != nil {
			return nil, cgerrors.FetchFailure(fileURL, err)
		}
		return data, nil
	}
	out, err := l.run(ctx, root, "show", ref+":"+path)
	if err != nil {
		return nil, cgerrors.FetchFailure(fileURL, err)
	}
	return []byte(out), nil
}

// GetLastCommitHash returns the commit ref points at. A worktree has no
// commit and reports "".
func (l *Local) GetLastCommitHash(ctx context.Context, repoURL, ref string) (string, error) {
	root, err := localRoot(repoURL)
	if err != nil {
		return "", err
	}
	if ref == WorktreeRef || !l.isGit(ctx, root) {
		return "", nil
	}
	if ref == "" {
		ref = "HEAD"
	}
	sha, ok := l.verify(ctx, root, ref+"^{commit}")
	if !ok {
		return "", &RefNotFoundError{Repo: repoURL, Ref: ref}
	}
	return sha, nil
}
