package fetch

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"go.uber.org/zap"

	"specgen/pkg/manifest"
)

// CacheEnv overrides the directory git sources are checked out under.
const CacheEnv = "SPECGEN_CACHE"

// DefaultCacheDir returns $SPECGEN_CACHE or <user cache dir>/specgen.
func DefaultCacheDir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv(CacheEnv)); dir != "" {
		return filepath.Abs(dir)
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("fetch: locate cache dir: %w", err)
	}
	return filepath.Join(base, "specgen"), nil
}

// GitFetcher checks git sources out into a local cache, one directory per pinned version.
type GitFetcher struct {
	cacheDir string
	lock     *manifest.Lockfile
	logger   *zap.Logger
}

func NewGitFetcher(cacheDir string) *GitFetcher {
	return &GitFetcher{cacheDir: cacheDir, logger: zap.NewNop()}
}

// WithLock returns a fetcher that reuses the commits pinned in lock.
func (g *GitFetcher) WithLock(lock *manifest.Lockfile) *GitFetcher {
	clone := *g
	clone.lock = lock
	return &clone
}

func (g *GitFetcher) WithLogger(logger *zap.Logger) *GitFetcher {
	clone := *g
	if logger == nil {
		logger = zap.NewNop()
	}
	clone.logger = logger
	return &clone
}

// Fetch makes src available on disk and returns its lock entry and checkout directory.
func (g *GitFetcher) Fetch(name string, src *manifest.Source) (*manifest.LockedSource, string, error) {
	if g == nil || g.cacheDir == "" {
		return nil, "", errors.New("fetch: git fetcher unavailable")
	}
	if src == nil {
		return nil, "", fmt.Errorf("fetch: source %q: nil spec", name)
	}
	url := strings.TrimSpace(src.Git)
	if url == "" {
		return nil, "", fmt.Errorf("fetch: source %q: git URL required", name)
	}
	revision, descriptor, err := gitRevision(src)
	if err != nil {
		return nil, "", fmt.Errorf("fetch: source %q: %w", name, err)
	}

	baseDir := filepath.Join(g.cacheDir, "src", cacheSegment(name))
	if locked, ok := g.lock.Find(name); ok && lockMatches(locked, url, descriptor) {
		dir := filepath.Join(baseDir, cacheSegment(locked.Version))
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			g.logger.Debug("reusing locked checkout", zap.String("source", name), zap.String("commit", locked.Commit))
			return g.verify(locked, dir)
		}
		revision = plumbing.Revision(locked.Commit)
	}

	g.logger.Debug("cloning source", zap.String("source", name), zap.String("url", url), zap.String("revision", string(revision)))
	commit, err := g.checkout(baseDir, url, revision, descriptor)
	if err != nil {
		return nil, "", fmt.Errorf("fetch: source %q: %w", name, err)
	}
	version := pinnedVersion(descriptor, commit)
	checkoutDir := filepath.Join(baseDir, cacheSegment(version))
	checksum, err := dirChecksum(checkoutDir)
	if err != nil {
		return nil, "", fmt.Errorf("fetch: checksum %s: %w", checkoutDir, err)
	}
	return &manifest.LockedSource{
		Name:     name,
		Version:  version,
		Commit:   commit,
		Source:   fmt.Sprintf("git+%s@%s", url, commit),
		Checksum: checksum,
	}, checkoutDir, nil
}

func (g *GitFetcher) verify(locked *manifest.LockedSource, dir string) (*manifest.LockedSource, string, error) {
	checksum, err := dirChecksum(dir)
	if err != nil {
		return nil, "", fmt.Errorf("fetch: checksum %s: %w", dir, err)
	}
	if locked.Checksum != "" && locked.Checksum != checksum {
		return nil, "", fmt.Errorf("fetch: source %q: checkout %s does not match locked checksum", locked.Name, dir)
	}
	out := *locked
	out.Checksum = checksum
	return &out, dir, nil
}

// lockMatches reports whether a lock entry was produced from the same url and pin.
func lockMatches(locked *manifest.LockedSource, url, descriptor string) bool {
	if locked.Commit == "" || !strings.HasPrefix(locked.Source, "git+"+url+"@") {
		return false
	}
	return locked.Version == pinnedVersion(descriptor, locked.Commit)
}

// checkout clones url into a staging directory under baseDir and resolves revision
// there. Unless the resolved version is already cached, the work tree is moved into
// place. The staging directory never outlives the call.
func (g *GitFetcher) checkout(baseDir, url string, revision plumbing.Revision, descriptor string) (string, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return "", err
	}
	staging, err := os.MkdirTemp(baseDir, ".staging-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(staging)

	work := filepath.Join(staging, "repo")
	repo, err := git.PlainClone(work, false, &git.CloneOptions{URL: url})
	if err != nil {
		return "", fmt.Errorf("git clone %s: %w", url, err)
	}
	hash, err := repo.ResolveRevision(revision)
	if err != nil {
		return "", fmt.Errorf("resolve revision %s: %w", revision, err)
	}
	commit := hash.String()
	target := filepath.Join(baseDir, cacheSegment(pinnedVersion(descriptor, commit)))
	if _, err := os.Stat(target); err == nil {
		g.logger.Debug("checkout already cached", zap.String("dir", target))
		return commit, nil
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return "", err
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Hash: *hash, Force: true}); err != nil {
		return "", fmt.Errorf("git checkout %s: %w", commit, err)
	}
	if err := os.Rename(work, target); err != nil {
		return "", err
	}
	return commit, nil
}

// pinnedVersion names a checkout after its pin: the bare commit for rev pins, or
// "<tag or branch>@<commit>".
func pinnedVersion(descriptor, commit string) string {
	descriptor, commit = strings.TrimSpace(descriptor), strings.TrimSpace(commit)
	switch {
	case commit == "":
		return descriptor
	case descriptor == "", descriptor == commit:
		return commit
	default:
		return descriptor + "@" + commit
	}
}

// gitRevision maps the source pin onto a revision that resolves in a fresh clone.
// Clones only carry the default branch locally, so branches resolve through origin.
func gitRevision(src *manifest.Source) (plumbing.Revision, string, error) {
	if rev := strings.TrimSpace(src.Rev); rev != "" {
		return plumbing.Revision(rev), rev, nil
	}
	if tag := strings.TrimSpace(src.Tag); tag != "" {
		return plumbing.Revision("refs/tags/" + tag), tag, nil
	}
	if branch := strings.TrimSpace(src.Branch); branch != "" {
		return plumbing.Revision("refs/remotes/origin/" + branch), branch, nil
	}
	return "", "", fmt.Errorf("git sources require rev, tag, or branch")
}

// dirChecksum hashes every file below path except git metadata.
func dirChecksum(path string) (string, error) {
	h := sha256.New()
	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(path, p)
		if err != nil {
			return err
		}
		h.Write([]byte(filepath.ToSlash(rel)))
		h.Write(data)
		return nil
	})
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// cacheSegment turns a source name or version into a single path element.
func cacheSegment(segment string) string {
	segment = strings.TrimSpace(segment)
	if segment == "" {
		return "head"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, segment)
}

// SuitePaths expands a source's suite globs inside its checkout. Patterns may not
// leave the checkout.
func SuitePaths(checkoutDir string, globs []string) ([]string, error) {
	for _, pattern := range globs {
		clean := filepath.Clean(pattern)
		if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
			return nil, fmt.Errorf("fetch: suite glob %q escapes the checkout", pattern)
		}
	}
	return manifest.ExpandGlobs(checkoutDir, globs)
}
