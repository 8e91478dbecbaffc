package compiler

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"specgen/pkg/emit"
	"specgen/pkg/generator"
	"specgen/pkg/suite"
)

type Options struct {
	PackageName string
	Layout      emit.Layout
	TestParam   string
	// Imports are added to every generated file on top of each suite's own.
	Imports     []string
	Concurrency int
	Logger      *zap.Logger
}

type Result struct {
	Files    map[string][]byte
	Warnings []string
}

type Compiler struct {
	opts Options
}

func New(opts Options) *Compiler {
	if opts.PackageName == "" {
		opts.PackageName = "specs"
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.GOMAXPROCS(0)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Compiler{opts: opts}
}

type output struct {
	name     string
	pkg      string
	item     generator.Item
	opts     emit.Options
	file     *emit.File
	warnings []string
}

// Compile generates one _test.go file per suite. Suites are independent and compile
// concurrently; the first failure cancels the rest. All files share one package, so
// generated entry points that clash with an earlier suite's are renamed in suite order.
func (c *Compiler) Compile(ctx context.Context, suites []*suite.Suite) (*Result, error) {
	if len(suites) == 0 {
		return nil, fmt.Errorf("compiler: no suites")
	}
	owners := make(map[string]string, len(suites))
	for _, s := range suites {
		if s == nil || s.Root == nil {
			return nil, fmt.Errorf("compiler: missing suite root")
		}
		name := OutputName(s.Path)
		if other, dup := owners[name]; dup {
			return nil, fmt.Errorf("compiler: %s and %s both generate %s", other, s.Path, name)
		}
		owners[name] = s.Path
	}

	outputs := make([]*output, len(suites))
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(c.opts.Concurrency)
	for i, s := range suites {
		i, s := i, s
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out, err := c.compileSuite(s)
			if err != nil {
				return err
			}
			outputs[i] = out
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	result := &Result{Files: make(map[string][]byte, len(outputs))}
	pkg := outputs[0].pkg
	for i, out := range outputs {
		if out.pkg != pkg {
			return nil, fmt.Errorf("compiler: %s declares package %s, want %s", suites[i].Path, out.pkg, pkg)
		}
	}
	if err := c.separateNames(suites, outputs); err != nil {
		return nil, err
	}
	for _, out := range outputs {
		result.Files[out.name] = out.file.Source
		result.Warnings = append(result.Warnings, out.warnings...)
	}
	return result, nil
}

// separateNames walks the outputs in suite order and re-renders any file whose entry
// points clash with names declared by an earlier file. Helper declarations cannot be
// renamed, so a clash between helpers is an error.
func (c *Compiler) separateNames(suites []*suite.Suite, outputs []*output) error {
	owners := make(map[string]string)
	var taken []string
	for i, out := range outputs {
		if clashes(owners, out.file.Names) {
			opts := out.opts
			opts.Reserved = append([]string(nil), taken...)
			file, err := emit.RenderFile(out.item, opts)
			if err != nil {
				return fmt.Errorf("compiler: %s: %w", suites[i].Path, err)
			}
			c.opts.Logger.Debug("renamed clashing entry points", zap.String("suite", suites[i].Path))
			out.file = file
		}
		for _, name := range out.file.Names {
			if other, dup := owners[name]; dup {
				return fmt.Errorf("compiler: %s declared by both %s and %s", name, other, suites[i].Path)
			}
			owners[name] = suites[i].Path
			taken = append(taken, name)
		}
	}
	return nil
}

func clashes(owners map[string]string, names []string) bool {
	for _, name := range names {
		if _, ok := owners[name]; ok {
			return true
		}
	}
	return false
}

func (c *Compiler) compileSuite(s *suite.Suite) (*output, error) {
	item, err := generator.Generate(s.Root)
	if err != nil {
		return nil, fmt.Errorf("compiler: %s: %w", s.Path, err)
	}
	pkg := c.opts.PackageName
	if s.Package != "" {
		pkg = s.Package
	}
	opts := emit.Options{
		PackageName: pkg,
		Layout:      c.opts.Layout,
		TestParam:   c.opts.TestParam,
		Imports:     append(append([]string{}, c.opts.Imports...), s.Imports...),
		Helpers:     s.Helpers,
	}
	file, err := emit.RenderFile(item, opts)
	if err != nil {
		return nil, fmt.Errorf("compiler: %s: %w", s.Path, err)
	}

	tests, benchmarks := generator.Count(item)
	c.opts.Logger.Debug("compiled suite",
		zap.String("suite", s.Path),
		zap.String("package", pkg),
		zap.Int("tests", tests),
		zap.Int("benchmarks", benchmarks),
	)
	return &output{
		name:     OutputName(s.Path),
		pkg:      pkg,
		item:     item,
		opts:     opts,
		file:     file,
		warnings: suiteWarnings(s.Path, item, tests+benchmarks),
	}, nil
}

func suiteWarnings(path string, item generator.Item, units int) []string {
	var warnings []string
	if units == 0 {
		warnings = append(warnings, fmt.Sprintf("%s: suite contains no tests or benchmarks", path))
	}
	var visit func(prefix []string, item generator.Item)
	visit = func(prefix []string, item generator.Item) {
		group, ok := item.(*generator.Group)
		if !ok {
			return
		}
		groupPath := append(append([]string{}, prefix...), string(group.Name))
		members := group.Members()
		if len(members) == 0 {
			warnings = append(warnings, fmt.Sprintf("%s: describe %s is empty", path, strings.Join(groupPath, "/")))
		}
		for _, member := range members {
			visit(groupPath, member)
		}
	}
	visit(nil, item)
	return warnings
}

// OutputName maps a suite path to its generated file name:
// calc.spec.yml becomes calc_spec_test.go.
func OutputName(path string) string {
	base := filepath.Base(path)
	for _, ext := range []string{".yaml", ".yml"} {
		if strings.HasSuffix(base, ext) {
			base = strings.TrimSuffix(base, ext)
			break
		}
	}
	return strings.ToLower(sanitizeFileName(base)) + "_test.go"
}

func sanitizeFileName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "suite"
	}
	return b.String()
}

// Names returns the result's file names in sorted order.
func (r *Result) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.Files))
	for name := range r.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Result) Write(dir string) error {
	if r == nil {
		return fmt.Errorf("compiler: nil result")
	}
	return writeFiles(dir, r.Files)
}
