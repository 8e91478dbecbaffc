package suite

import (
	"bytes"
	"errors"
	"fmt"
	"go/token"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dave/dst"
	"gopkg.in/yaml.v3"

	"specgen/pkg/block"
)

// DefaultBenchParam names the benchmark timer when a bench block does not set param.
const DefaultBenchParam = "b"

// Suite is one parsed suite file.
type Suite struct {
	Path    string
	Package string
	Imports []string
	Helpers []dst.Decl
	Root    block.Block
}

// ValidationError aggregates suite validation failures.
type ValidationError struct {
	Path   string
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "suite: invalid suite"
	}
	var b strings.Builder
	b.WriteString("suite validation failed")
	if e.Path != "" {
		b.WriteString(" for ")
		b.WriteString(e.Path)
	}
	b.WriteString(":")
	for _, issue := range e.Issues {
		b.WriteString("\n- ")
		b.WriteString(issue)
	}
	return b.String()
}

// Load reads and validates the suite file at path.
func Load(path string) (*Suite, error) {
	if path == "" {
		return nil, fmt.Errorf("suite: empty path")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("suite: resolve %s: %w", path, err)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("suite: read %s: %w", absPath, err)
	}
	return Parse(absPath, data)
}

// Parse validates data as a suite named name. name is used for positions and as the
// suite's Path.
func Parse(name string, data []byte) (*Suite, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	var raw suiteFile
	if err := decoder.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("suite: %s is empty", name)
		}
		return nil, fmt.Errorf("suite: parse %s: %w", name, err)
	}
	conv := &converter{path: name}
	s := conv.suite(&raw)
	if len(conv.issues) > 0 {
		return nil, &ValidationError{Path: name, Issues: conv.issues}
	}
	return s, nil
}

// Walk visits the suite's blocks depth-first in declaration order.
func (s *Suite) Walk(fn func(path []string, b block.Block) bool) {
	if s == nil || s.Root == nil {
		return
	}
	block.Walk(s.Root, fn)
}

type converter struct {
	path   string
	issues []string
}

func (c *converter) addf(line, column int, format string, args ...any) {
	pos := block.Span{File: c.path, Line: line, Column: column}
	c.issues = append(c.issues, pos.String()+": "+fmt.Sprintf(format, args...))
}

func (c *converter) addErr(err error) {
	c.issues = append(c.issues, err.Error())
}

func (c *converter) suite(raw *suiteFile) *Suite {
	s := &Suite{Path: c.path, Package: strings.TrimSpace(raw.Package)}
	if s.Package != "" && !token.IsIdentifier(s.Package) {
		c.addf(raw.packageLine, 0, "package %q is not a Go identifier", s.Package)
	}
	for i, imp := range raw.Imports {
		imp = strings.TrimSpace(imp)
		if imp == "" {
			c.addf(raw.importsLine, 0, "imports[%d] must be a non-empty import path", i)
			continue
		}
		s.Imports = append(s.Imports, imp)
	}
	if raw.Helpers != nil {
		decls, err := block.ParseDecls(raw.Helpers.Value, c.span(raw.Helpers.line, raw.Helpers.column))
		if err != nil {
			c.addErr(err)
		}
		s.Helpers = decls
	}
	s.Root = c.block(&raw.Root)
	return s
}

func (c *converter) span(line, column int) block.Span {
	return block.Span{File: c.path, Line: line, Column: column}
}

func (c *converter) block(n *nodeYAML) block.Block {
	kinds := 0
	for _, set := range []bool{n.Describe != nil, n.It != nil, n.Bench != nil} {
		if set {
			kinds++
		}
	}
	switch {
	case kinds == 0:
		c.addf(n.line, n.column, "block must set one of describe, it or bench")
		return nil
	case kinds > 1:
		c.addf(n.line, n.column, "block must set only one of describe, it or bench")
		return nil
	}

	var out block.Block
	switch {
	case n.Describe != nil:
		out = c.describe(n)
	case n.It != nil:
		out = c.it(n)
	default:
		out = c.bench(n)
	}
	if out != nil {
		block.SetSpan(out, c.span(n.line, n.column))
	}
	return out
}

func (c *converter) name(n *nodeYAML, kind block.Kind, name string) string {
	name = strings.TrimSpace(name)
	if !token.IsIdentifier(name) {
		c.addf(n.line, n.column, "%s name %q is not a Go identifier", kind, name)
	}
	return name
}

func (c *converter) describe(n *nodeYAML) block.Block {
	name := c.name(n, block.KindDescribe, *n.Describe)
	if n.Body != nil || n.Param != nil {
		c.addf(n.line, n.column, "describe %q must not set body or param", name)
	}
	d := block.NewDescribe(name, c.hook(n.Before), c.hook(n.After))
	seen := make(map[string]int, len(n.Blocks))
	for _, child := range n.Blocks {
		if child == nil {
			continue
		}
		b := c.block(child)
		if b == nil {
			continue
		}
		childName := block.NameOf(b)
		if first, dup := seen[childName]; dup {
			c.addf(child.line, child.column, "duplicate name %q in describe %q (first declared on line %d)", childName, name, first)
			continue
		}
		seen[childName] = child.line
		d.Children = append(d.Children, b)
	}
	return d
}

func (c *converter) leafShape(n *nodeYAML, kind block.Kind, name string) {
	if n.Before != nil || n.After != nil || n.Blocks != nil {
		c.addf(n.line, n.column, "%s %q must not set before, after or blocks", kind, name)
	}
	if n.Body == nil {
		c.addf(n.line, n.column, "%s %q needs a body", kind, name)
	}
}

func (c *converter) it(n *nodeYAML) block.Block {
	name := c.name(n, block.KindIt, *n.It)
	c.leafShape(n, block.KindIt, name)
	if n.Param != nil {
		c.addf(n.line, n.column, "it %q must not set param", name)
	}
	return block.NewIt(name, c.hook(n.Body))
}

func (c *converter) bench(n *nodeYAML) block.Block {
	name := c.name(n, block.KindBench, *n.Bench)
	c.leafShape(n, block.KindBench, name)
	param := DefaultBenchParam
	if n.Param != nil {
		param = strings.TrimSpace(*n.Param)
		if !token.IsIdentifier(param) {
			c.addf(n.line, n.column, "bench %q param %q is not a Go identifier", name, param)
		}
	}
	return block.NewBench(name, param, c.hook(n.Body))
}

func (c *converter) hook(src *sourceText) *block.HookBody {
	if src == nil {
		return nil
	}
	body, err := block.ParseBody(src.Value, c.span(src.line, src.column))
	if err != nil {
		c.addErr(err)
		return nil
	}
	return body
}
