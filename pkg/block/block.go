package block

import "fmt"

type Kind string

const (
	KindDescribe Kind = "describe"
	KindIt       Kind = "it"
	KindBench    Kind = "bench"
)

// Span locates a node or hook body in its suite source. Lines and columns are 1-based;
// the zero value means the location is unknown.
type Span struct {
	File   string
	Line   int
	Column int
}

func (s Span) String() string {
	file := s.File
	if file == "" {
		file = "<input>"
	}
	switch {
	case s.Line > 0 && s.Column > 0:
		return fmt.Sprintf("%s:%d:%d", file, s.Line, s.Column)
	case s.Line > 0:
		return fmt.Sprintf("%s:%d", file, s.Line)
	default:
		return file
	}
}

// Block is one node of a suite tree. The variant set is closed: *Describe, *It and *Bench.
type Block interface {
	Kind() Kind
	Span() Span
	isBlock()
}

type blockImpl struct {
	kind Kind
	span Span
}

func (b blockImpl) Kind() Kind         { return b.kind }
func (b blockImpl) Span() Span         { return b.span }
func (blockImpl) isBlock()             {}
func (b *blockImpl) setSpan(span Span) { b.span = span }

// Describe is a named group. Children keep their declaration order.
type Describe struct {
	blockImpl
	Name     string
	Before   *HookBody
	After    *HookBody
	Children []Block
}

// It is a single example; Body is the example's own content.
type It struct {
	blockImpl
	Name string
	Body *HookBody
}

// Bench is a single benchmark. Param names the benchmark timer handle that is in
// scope for Body.
type Bench struct {
	blockImpl
	Name  string
	Param string
	Body  *HookBody
}

func NewDescribe(name string, before, after *HookBody, children ...Block) *Describe {
	return &Describe{
		blockImpl: blockImpl{kind: KindDescribe},
		Name:      name,
		Before:    before,
		After:     after,
		Children:  children,
	}
}

func NewIt(name string, body *HookBody) *It {
	return &It{blockImpl: blockImpl{kind: KindIt}, Name: name, Body: body}
}

func NewBench(name, param string, body *HookBody) *Bench {
	return &Bench{blockImpl: blockImpl{kind: KindBench}, Name: name, Param: param, Body: body}
}

// SetSpan annotates the block with the provided span.
func SetSpan(b Block, span Span) {
	if b == nil {
		return
	}
	if setter, ok := b.(interface{ setSpan(Span) }); ok {
		setter.setSpan(span)
	}
}

// NameOf returns the declared name of any block variant, or "" for nil.
func NameOf(b Block) string {
	switch n := b.(type) {
	case *Describe:
		if n != nil {
			return n.Name
		}
	case *It:
		if n != nil {
			return n.Name
		}
	case *Bench:
		if n != nil {
			return n.Name
		}
	}
	return ""
}

// Walk visits root and its descendants depth-first in declaration order. The path passed
// to fn holds the names from the root down to and including the visited block. Returning
// false from fn skips the block's children.
func Walk(root Block, fn func(path []string, b Block) bool) {
	walk(nil, root, fn)
}

func walk(prefix []string, b Block, fn func([]string, Block) bool) {
	if b == nil {
		return
	}
	path := make([]string, len(prefix), len(prefix)+1)
	copy(path, prefix)
	path = append(path, NameOf(b))
	if !fn(path, b) {
		return
	}
	if d, ok := b.(*Describe); ok && d != nil {
		for _, child := range d.Children {
			walk(path, child, fn)
		}
	}
}
