package manifest

import (
	"errors"
	"fmt"
	"go/token"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"specgen/pkg/emit"
)

// FileName is the manifest looked up in the working directory when no path is given.
const FileName = "specgen.yml"

// Manifest represents the parsed contents of specgen.yml.
type Manifest struct {
	Path      string
	Dir       string
	Package   string
	Output    string
	Layout    string
	TestParam string
	Imports   []string
	Suites    []string
	// Sources are sorted by name.
	Sources []*Source
}

// Source is a git repository whose suite files are generated alongside local ones.
type Source struct {
	Name   string
	Git    string
	Rev    string
	Tag    string
	Branch string
	Suites []string
}

// ValidationError aggregates manifest validation failures.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "manifest: invalid configuration"
	}
	var b strings.Builder
	b.WriteString("manifest validation failed:")
	for _, issue := range e.Issues {
		b.WriteString("\n- ")
		b.WriteString(issue)
	}
	return b.String()
}

// Load parses specgen.yml from disk, returning a validated manifest.
func Load(path string) (*Manifest, error) {
	if path == "" {
		return nil, fmt.Errorf("manifest: empty path")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: resolve %s: %w", path, err)
	}
	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("manifest: open %s: %w", absPath, err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)

	var raw manifestFile
	if err := decoder.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("manifest: %s is empty", absPath)
		}
		return nil, fmt.Errorf("manifest: parse %s: %w", absPath, err)
	}

	m := raw.toManifest(absPath)
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manifest) validate() error {
	var errs ValidationError
	if m.Package != "" && !token.IsIdentifier(m.Package) {
		errs.Issues = append(errs.Issues, fmt.Sprintf("package %q is not a Go identifier", m.Package))
	}
	if m.TestParam != "" && !token.IsIdentifier(m.TestParam) {
		errs.Issues = append(errs.Issues, fmt.Sprintf("test_param %q is not a Go identifier", m.TestParam))
	}
	if _, err := emit.ParseLayout(m.Layout); err != nil {
		errs.Issues = append(errs.Issues, fmt.Sprintf("layout %q must be flat or subtests", m.Layout))
	}
	for i, pattern := range m.Suites {
		if pattern == "" {
			errs.Issues = append(errs.Issues, fmt.Sprintf("suites[%d] must be a non-empty glob", i))
		} else if _, err := filepath.Match(pattern, ""); err != nil {
			errs.Issues = append(errs.Issues, fmt.Sprintf("suites[%d]: bad pattern %q", i, pattern))
		}
	}
	for _, src := range m.Sources {
		for _, issue := range src.validate() {
			errs.Issues = append(errs.Issues, fmt.Sprintf("sources.%s: %s", src.Name, issue))
		}
	}
	if len(errs.Issues) > 0 {
		return &errs
	}
	return nil
}

func (s *Source) validate() []string {
	var errs []string
	if s.Name == "" {
		errs = append(errs, "sources must not use empty keys")
	}
	if s.Git == "" {
		errs = append(errs, "git URL required")
	}
	pins := 0
	for _, pin := range []string{s.Rev, s.Tag, s.Branch} {
		if pin != "" {
			pins++
		}
	}
	if pins != 1 {
		errs = append(errs, "must specify exactly one of rev, tag or branch")
	}
	if len(s.Suites) == 0 {
		errs = append(errs, "suites must list at least one glob")
	}
	for i, pattern := range s.Suites {
		if _, err := filepath.Match(pattern, ""); pattern == "" || err != nil {
			errs = append(errs, fmt.Sprintf("suites[%d]: bad pattern %q", i, pattern))
		}
	}
	return errs
}

// FindSource looks up a source by name.
func (m *Manifest) FindSource(name string) (*Source, bool) {
	if m == nil {
		return nil, false
	}
	name = sanitizeSegment(name)
	for _, src := range m.Sources {
		if src.Name == name {
			return src, true
		}
	}
	return nil, false
}

// SuitePaths expands the local suite globs relative to the manifest directory. The
// result is sorted and free of duplicates.
func (m *Manifest) SuitePaths() ([]string, error) {
	if m == nil {
		return nil, nil
	}
	return ExpandGlobs(m.Dir, m.Suites)
}

// ExpandGlobs resolves patterns against dir and returns the matching regular files,
// sorted and de-duplicated.
func ExpandGlobs(dir string, patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, pattern := range patterns {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(dir, pattern)
		}
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("manifest: glob %s: %w", pattern, err)
		}
		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil || info.IsDir() {
				continue
			}
			if _, ok := seen[match]; ok {
				continue
			}
			seen[match] = struct{}{}
			out = append(out, match)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Find walks up from dir looking for specgen.yml and returns its path.
func Find(dir string) (string, bool) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", false
	}
	for {
		candidate := filepath.Join(abs, FileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", false
		}
		abs = parent
	}
}

// LockPath is where the lockfile for this manifest lives.
func (m *Manifest) LockPath() string {
	return filepath.Join(m.Dir, LockFileName)
}

type manifestFile struct {
	Package   string                 `yaml:"package"`
	Output    string                 `yaml:"output"`
	Layout    string                 `yaml:"layout"`
	TestParam string                 `yaml:"test_param"`
	Imports   []string               `yaml:"imports"`
	Suites    []string               `yaml:"suites"`
	Sources   map[string]*sourceYAML `yaml:"sources"`
}

type sourceYAML struct {
	Git    string   `yaml:"git"`
	Rev    string   `yaml:"rev"`
	Tag    string   `yaml:"tag"`
	Branch string   `yaml:"branch"`
	Suites []string `yaml:"suites"`
}

func (mf manifestFile) toManifest(path string) *Manifest {
	m := &Manifest{
		Path:      path,
		Dir:       filepath.Dir(path),
		Package:   strings.TrimSpace(mf.Package),
		Output:    strings.TrimSpace(mf.Output),
		Layout:    strings.TrimSpace(mf.Layout),
		TestParam: strings.TrimSpace(mf.TestParam),
		Imports:   trimAll(mf.Imports),
		Suites:    trimAll(mf.Suites),
		Sources:   make([]*Source, 0, len(mf.Sources)),
	}
	if m.Output != "" && !filepath.IsAbs(m.Output) {
		m.Output = filepath.Join(m.Dir, m.Output)
	}
	for name, src := range mf.Sources {
		if src == nil {
			src = &sourceYAML{}
		}
		m.Sources = append(m.Sources, &Source{
			Name:   sanitizeSegment(name),
			Git:    strings.TrimSpace(src.Git),
			Rev:    strings.TrimSpace(src.Rev),
			Tag:    strings.TrimSpace(src.Tag),
			Branch: strings.TrimSpace(src.Branch),
			Suites: trimAll(src.Suites),
		})
	}
	sort.Slice(m.Sources, func(i, j int) bool {
		return m.Sources[i].Name < m.Sources[j].Name
	})
	return m
}

func trimAll(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.TrimSpace(s)
	}
	return out
}

func sanitizeSegment(seg string) string {
	seg = strings.TrimSpace(seg)
	seg = strings.ReplaceAll(seg, "-", "_")
	return seg
}
