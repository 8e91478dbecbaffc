package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	writeFile(t, path, `package: calc
output: gen
layout: subtests
test_param: tt
imports: [" strings "]
suites:
  - specs/*.yml
sources:
  shared-specs:
    git: https://example.com/shared.git
    tag: v1.2.0
    suites: ["suites/*.spec.yml"]
`)

	m, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, path, m.Path)
	require.Equal(t, dir, m.Dir)
	require.Equal(t, "calc", m.Package)
	require.Equal(t, filepath.Join(dir, "gen"), m.Output)
	require.Equal(t, "subtests", m.Layout)
	require.Equal(t, "tt", m.TestParam)
	require.Equal(t, []string{"strings"}, m.Imports)
	require.Len(t, m.Sources, 1)

	src, ok := m.FindSource("shared-specs")
	require.True(t, ok)
	require.Equal(t, "shared_specs", src.Name)
	require.Equal(t, "v1.2.0", src.Tag)
	require.Equal(t, filepath.Join(dir, LockFileName), m.LockPath())
}

func TestLoadManifestValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	writeFile(t, path, `package: not-valid
layout: nested
suites: ["[broken"]
sources:
  nopin:
    git: https://example.com/a.git
    suites: ["*.yml"]
  twopins:
    git: https://example.com/b.git
    tag: v1
    branch: main
  nogit:
    rev: abc123
    suites: ["*.yml"]
`)

	_, err := Load(path)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "err = %v", err)
	joined := strings.Join(verr.Issues, "\n")
	for _, want := range []string{
		`package "not-valid" is not a Go identifier`,
		`layout "nested" must be flat or subtests`,
		`suites[0]: bad pattern "[broken"`,
		"sources.nopin: must specify exactly one of rev, tag or branch",
		"sources.twopins: must specify exactly one of rev, tag or branch",
		"sources.twopins: suites must list at least one glob",
		"sources.nogit: git URL required",
	} {
		require.Contains(t, joined, want)
	}
}

func TestLoadManifestRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	writeFile(t, path, "package: calc\nflavour: spicy\n")
	_, err := Load(path)
	require.ErrorContains(t, err, "flavour")
}

func TestLoadManifestEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	writeFile(t, path, "")
	_, err := Load(path)
	require.ErrorContains(t, err, "is empty")
}

func TestSuitePaths(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "specs", "b.yml"), "it: b\nbody: \"\"\n")
	writeFile(t, filepath.Join(dir, "specs", "a.yml"), "it: a\nbody: \"\"\n")
	writeFile(t, filepath.Join(dir, "specs", "notes.txt"), "")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "specs", "dir.yml"), 0o755))

	m := &Manifest{Dir: dir, Suites: []string{"specs/*.yml", "specs/a.yml"}}
	paths, err := m.SuitePaths()
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "specs", "a.yml"),
		filepath.Join(dir, "specs", "b.yml"),
	}, paths)
}

func TestFindWalksUp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	writeFile(t, path, "suites: []\n")
	nested := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	got, ok := Find(nested)
	require.True(t, ok)
	require.Equal(t, path, got)
}
