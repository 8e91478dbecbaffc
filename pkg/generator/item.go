package generator

import "specgen/pkg/block"

// Ident is a host-language identifier taken verbatim from a suite node name.
type Ident string

type UnitKind int

const (
	UnitTest UnitKind = iota
	UnitBenchmark
)

func (k UnitKind) String() string {
	switch k {
	case UnitTest:
		return "test"
	case UnitBenchmark:
		return "benchmark"
	default:
		return "unknown"
	}
}

type ParamKind string

// ParamBenchTimer is the host benchmark timer handle (*testing.B for Go).
const ParamBenchTimer ParamKind = "bench_timer"

// Param is a parameter injected into a generated unit.
type Param struct {
	Name Ident
	Kind ParamKind
}

// Item is one member of a generated namespace: *Unit, *Group or *Reexport.
type Item interface {
	Label() Ident
	isItem()
}

// Unit is a standalone executable test or benchmark with its fully merged body.
type Unit struct {
	Name   Ident
	Kind   UnitKind
	Params []Param
	Body   *block.HookBody
}

// Group is a generated namespace. Its last item is always a *Reexport.
type Group struct {
	Name  Ident
	Items []Item
}

// Reexport makes everything visible in the enclosing scope visible inside the group.
type Reexport struct{}

func (u *Unit) Label() Ident   { return u.Name }
func (g *Group) Label() Ident  { return g.Name }
func (*Reexport) Label() Ident { return "*" }
func (*Unit) isItem()          {}
func (*Group) isItem()         {}
func (*Reexport) isItem()      {}

// Members returns the group's items without the trailing re-export.
func (g *Group) Members() []Item {
	if g == nil || len(g.Items) == 0 {
		return nil
	}
	if _, ok := g.Items[len(g.Items)-1].(*Reexport); ok {
		return g.Items[:len(g.Items)-1]
	}
	return g.Items
}

// WalkUnits calls fn for every unit under item, depth-first in namespace order, with the
// names of the enclosing groups followed by the unit's own name.
func WalkUnits(item Item, fn func(path []Ident, unit *Unit)) {
	walkUnits(nil, item, fn)
}

func walkUnits(prefix []Ident, item Item, fn func([]Ident, *Unit)) {
	switch n := item.(type) {
	case *Unit:
		path := append(append([]Ident{}, prefix...), n.Name)
		fn(path, n)
	case *Group:
		path := append(append([]Ident{}, prefix...), n.Name)
		for _, child := range n.Items {
			walkUnits(path, child, fn)
		}
	}
}

// Count reports how many tests and benchmarks item contains.
func Count(item Item) (tests, benchmarks int) {
	WalkUnits(item, func(_ []Ident, unit *Unit) {
		if unit.Kind == UnitBenchmark {
			benchmarks++
		} else {
			tests++
		}
	})
	return tests, benchmarks
}
