package suite

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"specgen/pkg/block"
)

const calcSuite = `package: calc
imports: [strings]
helpers: |
  func add(a, b int) int { return a + b }
describe: calc
before: |
  total := 0
after: |
  _ = total
blocks:
  - it: adds
    body: |
      if add(1, 2) != 3 {
          t.Fatal("bad sum")
      }
  - bench: sums
    param: bencher
    body: |
      for i := 0; i < bencher.N; i++ {
          add(i, i)
      }
  - describe: nested
    blocks:
      - bench: plain
        body: "_ = strings.Repeat(\"x\", b.N)"
`

func TestParseSuite(t *testing.T) {
	s, err := Parse("calc.spec.yml", []byte(calcSuite))
	require.NoError(t, err)
	require.Equal(t, "calc.spec.yml", s.Path)
	require.Equal(t, "calc", s.Package)
	require.Equal(t, []string{"strings"}, s.Imports)
	require.Len(t, s.Helpers, 1)

	root, ok := s.Root.(*block.Describe)
	require.True(t, ok, "root is %T", s.Root)
	require.Equal(t, "calc", root.Name)
	require.Equal(t, 1, root.Before.Len())
	require.Equal(t, 1, root.After.Len())
	require.Equal(t, 5, root.Span().Line)
	require.Len(t, root.Children, 3)

	adds, ok := root.Children[0].(*block.It)
	require.True(t, ok)
	require.Equal(t, "adds", adds.Name)
	require.Equal(t, 13, adds.Body.Span().Line)
	require.Equal(t, 11, adds.Span().Line)

	sums, ok := root.Children[1].(*block.Bench)
	require.True(t, ok)
	require.Equal(t, "bencher", sums.Param)

	nested, ok := root.Children[2].(*block.Describe)
	require.True(t, ok)
	require.Nil(t, nested.Before)
	plain, ok := nested.Children[0].(*block.Bench)
	require.True(t, ok)
	require.Equal(t, DefaultBenchParam, plain.Param)
}

func TestSuiteWalk(t *testing.T) {
	s, err := Parse("calc.spec.yml", []byte(calcSuite))
	require.NoError(t, err)
	var got []string
	s.Walk(func(path []string, b block.Block) bool {
		got = append(got, string(b.Kind())+":"+strings.Join(path, "/"))
		return true
	})
	require.Equal(t, []string{
		"describe:calc",
		"it:calc/adds",
		"bench:calc/sums",
		"describe:calc/nested",
		"bench:calc/nested/plain",
	}, got)
}

func TestParseAggregatesIssues(t *testing.T) {
	src := `describe: calc
body: "x()"
blocks:
  - it: adds two
    body: ""
  - it: twin
    body: ""
  - it: twin
    body: ""
  - it: leaf
    blocks: []
  - describe: both
    it: also
  - param: p
`
	_, err := Parse("bad.yml", []byte(src))
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "err = %v", err)
	require.Equal(t, "bad.yml", verr.Path)
	joined := strings.Join(verr.Issues, "\n")
	for _, want := range []string{
		`describe "calc" must not set body or param`,
		`it name "adds two" is not a Go identifier`,
		`bad.yml:8:5: duplicate name "twin"`,
		`it "leaf" must not set before, after or blocks`,
		`it "leaf" needs a body`,
		"block must set only one of describe, it or bench",
		"block must set one of describe, it or bench",
	} {
		require.Contains(t, joined, want)
	}
}

func TestParseBodyErrorPointsAtSuiteLine(t *testing.T) {
	src := `describe: calc
blocks:
  - it: broken
    body: |
      x := 1
      x := )
`
	_, err := Parse("calc.spec.yml", []byte(src))
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "err = %v", err)
	require.Len(t, verr.Issues, 1)
	require.True(t, strings.HasPrefix(verr.Issues[0], "calc.spec.yml:6:"), "issue = %q", verr.Issues[0])
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	src := `describe: calc
blocks:
  - it: adds
    body: ""
    timeout: 5s
`
	_, err := Parse("calc.spec.yml", []byte(src))
	require.ErrorContains(t, err, `unknown key "timeout"`)
	require.ErrorContains(t, err, "line 5")
}

func TestParseRejectsBadHelpersAndPackage(t *testing.T) {
	src := `package: not-a-package
helpers: |
  import "os"
it: solo
body: ""
`
	_, err := Parse("solo.yml", []byte(src))
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "err = %v", err)
	joined := strings.Join(verr.Issues, "\n")
	require.Contains(t, joined, `package "not-a-package" is not a Go identifier`)
	require.Contains(t, joined, "helpers must not declare imports")
}

func TestParseRootLeaf(t *testing.T) {
	s, err := Parse("solo.yml", []byte("it: solo\nbody: t.Skip()\n"))
	require.NoError(t, err)
	it, ok := s.Root.(*block.It)
	require.True(t, ok)
	require.Equal(t, "solo", it.Name)
	require.Equal(t, 1, it.Body.Len())
}

func TestParseEmpty(t *testing.T) {
	_, err := Parse("empty.yml", nil)
	require.ErrorContains(t, err, "empty.yml is empty")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "calc.spec.yml")
	require.NoError(t, os.WriteFile(path, []byte(calcSuite), 0o600))

	s, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, path, s.Path)

	_, err = Load(filepath.Join(dir, "missing.yml"))
	require.ErrorContains(t, err, "suite: read")
}
