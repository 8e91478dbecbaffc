package fetch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"specgen/pkg/manifest"
)

// initSuiteRepo creates a git repository holding one suite file, tags the commit v1 and
// returns the commit hash.
func initSuiteRepo(t *testing.T, dir string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(dir, "suites"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	suite := "describe: shared\nblocks:\n  - it: works\n    body: \"\"\n"
	if err := os.WriteFile(filepath.Join(dir, "suites", "shared.spec.yml"), []byte(suite), 0o600); err != nil {
		t.Fatalf("write suite: %v", err)
	}
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}
	if _, err := worktree.Add("suites/shared.spec.yml"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	hash, err := worktree.Commit("init", &git.CommitOptions{
		Author: &object.Signature{
			Name:  "specgen",
			Email: "specgen@example.com",
			When:  time.Now(),
		},
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, err := repo.CreateTag("v1", hash, nil); err != nil {
		t.Fatalf("CreateTag: %v", err)
	}
	return hash.String()
}

func TestFetchTag(t *testing.T) {
	origin := t.TempDir()
	commit := initSuiteRepo(t, origin)
	cache := t.TempDir()

	src := &manifest.Source{Name: "shared", Git: origin, Tag: "v1", Suites: []string{"suites/*.spec.yml"}}
	locked, dir, err := NewGitFetcher(cache).Fetch("shared", src)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if locked.Commit != commit {
		t.Fatalf("Commit = %q, want %q", locked.Commit, commit)
	}
	if want := "v1@" + commit; locked.Version != want {
		t.Fatalf("Version = %q, want %q", locked.Version, want)
	}
	if want := "git+" + origin + "@" + commit; locked.Source != want {
		t.Fatalf("Source = %q, want %q", locked.Source, want)
	}
	if len(locked.Checksum) != 64 {
		t.Fatalf("Checksum = %q, want a sha256 hex digest", locked.Checksum)
	}
	if !strings.HasPrefix(dir, filepath.Join(cache, "src", "shared")) {
		t.Fatalf("checkout dir = %q, want it under the cache", dir)
	}
	entries, err := os.ReadDir(filepath.Join(cache, "src", "shared"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != cacheSegment(locked.Version) {
		t.Fatalf("cache entries = %v, want only the checkout", entries)
	}

	paths, err := SuitePaths(dir, src.Suites)
	if err != nil {
		t.Fatalf("SuitePaths: %v", err)
	}
	if len(paths) != 1 || filepath.Base(paths[0]) != "shared.spec.yml" {
		t.Fatalf("SuitePaths = %v, want the shared suite", paths)
	}
}

func TestFetchReusesLockedCheckout(t *testing.T) {
	origin := t.TempDir()
	initSuiteRepo(t, origin)
	cache := t.TempDir()
	src := &manifest.Source{Name: "shared", Git: origin, Tag: "v1", Suites: []string{"suites/*.yml"}}

	first, dir, err := NewGitFetcher(cache).Fetch("shared", src)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	lock := manifest.NewLockfile("test")
	lock.Upsert(first)

	if err := os.RemoveAll(origin); err != nil {
		t.Fatalf("remove origin: %v", err)
	}
	second, again, err := NewGitFetcher(cache).WithLock(lock).Fetch("shared", src)
	if err != nil {
		t.Fatalf("locked Fetch without origin: %v", err)
	}
	if again != dir || second.Commit != first.Commit || second.Checksum != first.Checksum {
		t.Fatalf("locked Fetch = %+v in %q, want %+v in %q", second, again, first, dir)
	}
}

func TestFetchDetectsTamperedCheckout(t *testing.T) {
	origin := t.TempDir()
	initSuiteRepo(t, origin)
	cache := t.TempDir()
	src := &manifest.Source{Name: "shared", Git: origin, Rev: "v1", Suites: []string{"suites/*.yml"}}

	first, dir, err := NewGitFetcher(cache).Fetch("shared", src)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	lock := manifest.NewLockfile("test")
	lock.Upsert(first)
	if err := os.WriteFile(filepath.Join(dir, "suites", "extra.yml"), []byte("it: x\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := NewGitFetcher(cache).WithLock(lock).Fetch("shared", src); err == nil || !strings.Contains(err.Error(), "locked checksum") {
		t.Fatalf("err = %v, want checksum mismatch", err)
	}
}

func TestFetchRequiresPin(t *testing.T) {
	fetcher := NewGitFetcher(t.TempDir())
	if _, _, err := fetcher.Fetch("x", &manifest.Source{Git: "https://example.com/x.git"}); err == nil {
		t.Fatalf("expected error for unpinned source")
	}
	if _, _, err := fetcher.Fetch("x", &manifest.Source{Tag: "v1"}); err == nil {
		t.Fatalf("expected error for missing git URL")
	}
	if _, _, err := NewGitFetcher("").Fetch("x", &manifest.Source{Git: "u", Tag: "v1"}); err == nil {
		t.Fatalf("expected error without a cache dir")
	}
}

func TestSuitePathsRejectsEscapes(t *testing.T) {
	for _, pattern := range []string{"../*.yml", "/etc/*.yml", ".."} {
		if _, err := SuitePaths(t.TempDir(), []string{pattern}); err == nil {
			t.Fatalf("SuitePaths(%q): expected error", pattern)
		}
	}
}

func TestPinnedVersion(t *testing.T) {
	cases := []struct{ descriptor, commit, want string }{
		{"v1", "abc", "v1@abc"},
		{"abc", "abc", "abc"},
		{"", "abc", "abc"},
		{"main", "", "main"},
	}
	for _, tc := range cases {
		if got := pinnedVersion(tc.descriptor, tc.commit); got != tc.want {
			t.Fatalf("pinnedVersion(%q, %q) = %q, want %q", tc.descriptor, tc.commit, got, tc.want)
		}
	}
}

func TestCacheSegment(t *testing.T) {
	cases := map[string]string{
		"":                "head",
		"v1@abc":          "v1_abc",
		" feature/x-1.2 ": "feature_x-1.2",
	}
	for in, want := range cases {
		if got := cacheSegment(in); got != want {
			t.Fatalf("cacheSegment(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDefaultCacheDirHonoursEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(CacheEnv, dir)
	got, err := DefaultCacheDir()
	if err != nil {
		t.Fatalf("DefaultCacheDir: %v", err)
	}
	if got != dir {
		t.Fatalf("DefaultCacheDir = %q, want %q", got, dir)
	}
}
