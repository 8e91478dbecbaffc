package generator

import (
	"errors"
	"fmt"
	"strings"

	"specgen/pkg/block"
)

// ErrMalformedTree reports a node the generator cannot handle. Generation stops at the
// first one and returns no output.
var ErrMalformedTree = errors.New("generator: malformed block tree")

// Scope is the context a Describe hands to its children: its name and the hooks in
// effect after merging with everything inherited from its ancestors.
type Scope struct {
	Name   string
	Before *block.HookBody
	After  *block.HookBody
}

func (s *Scope) before() *block.HookBody {
	if s == nil {
		return nil
	}
	return s.Before
}

func (s *Scope) after() *block.HookBody {
	if s == nil {
		return nil
	}
	return s.After
}

// Enter computes the scope of d nested under up (nil at the root). Inherited before
// hooks run ahead of d's own; inherited after hooks run behind d's own.
func Enter(d *block.Describe, up *Scope) *Scope {
	return &Scope{
		Name:   d.Name,
		Before: block.MergeOptional(up.before(), d.Before),
		After:  block.MergeOptional(d.After, up.after()),
	}
}

// Wrap surrounds body with the hooks in effect for up.
func Wrap(body *block.HookBody, up *Scope) *block.HookBody {
	return block.MergeOptional(block.MergeOptional(up.before(), body), up.after())
}

type Generator struct {
	builder Builder
}

// New returns a generator that builds its output through b, or through TreeBuilder when
// b is nil.
func New(b Builder) *Generator {
	if b == nil {
		b = TreeBuilder{}
	}
	return &Generator{builder: b}
}

// Generate compiles root with a TreeBuilder and no inherited context.
func Generate(root block.Block) (Item, error) {
	return New(nil).Generate(root, nil)
}

// Generate compiles b as if it were declared inside up.
func (g *Generator) Generate(b block.Block, up *Scope) (Item, error) {
	return g.generate(b, up, nil)
}

func (g *Generator) generate(b block.Block, up *Scope, parent []string) (Item, error) {
	switch n := b.(type) {
	case *block.Describe:
		if n != nil {
			return g.describe(n, up, extend(parent, n.Name))
		}
	case *block.It:
		if n != nil {
			return g.it(n, up, extend(parent, n.Name))
		}
	case *block.Bench:
		if n != nil {
			return g.bench(n, up, extend(parent, n.Name))
		}
	}
	return nil, fmt.Errorf("%w: %s: unexpected node %T", ErrMalformedTree, pathLabel(extend(parent, "?")), b)
}

func (g *Generator) describe(d *block.Describe, up *Scope, path []string) (Item, error) {
	scope := Enter(d, up)
	items := make([]Item, 0, len(d.Children)+1)
	for _, child := range d.Children {
		item, err := g.generate(child, scope, path)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	items = append(items, g.builder.Reexport())
	return g.builder.Namespace(g.builder.Ident(d.Name), items), nil
}

func (g *Generator) it(it *block.It, up *Scope, path []string) (Item, error) {
	if it.Body == nil {
		return nil, fmt.Errorf("%w: %s: it has no body", ErrMalformedTree, pathLabel(path))
	}
	return g.builder.Unit(g.builder.Ident(it.Name), UnitTest, nil, Wrap(it.Body, up)), nil
}

func (g *Generator) bench(bench *block.Bench, up *Scope, path []string) (Item, error) {
	if bench.Body == nil {
		return nil, fmt.Errorf("%w: %s: bench has no body", ErrMalformedTree, pathLabel(path))
	}
	if bench.Param == "" {
		return nil, fmt.Errorf("%w: %s: bench has no timer parameter", ErrMalformedTree, pathLabel(path))
	}
	params := []Param{{Name: g.builder.Ident(bench.Param), Kind: ParamBenchTimer}}
	return g.builder.Unit(g.builder.Ident(bench.Name), UnitBenchmark, params, Wrap(bench.Body, up)), nil
}

func extend(path []string, name string) []string {
	out := make([]string, len(path), len(path)+1)
	copy(out, path)
	return append(out, name)
}

func pathLabel(path []string) string {
	return strings.Join(path, "/")
}
