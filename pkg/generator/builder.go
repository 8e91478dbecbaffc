package generator

import "specgen/pkg/block"

// Builder constructs the output tree. The generator never builds items directly, so a
// back end can supply its own Builder and receive host-specific nodes instead.
type Builder interface {
	Ident(name string) Ident
	Unit(name Ident, kind UnitKind, params []Param, body *block.HookBody) Item
	Namespace(name Ident, items []Item) Item
	Reexport() Item
}

// TreeBuilder builds *Unit, *Group and *Reexport values. Names pass through verbatim.
type TreeBuilder struct{}

func (TreeBuilder) Ident(name string) Ident {
	return Ident(name)
}

func (TreeBuilder) Unit(name Ident, kind UnitKind, params []Param, body *block.HookBody) Item {
	return &Unit{Name: name, Kind: kind, Params: params, Body: body}
}

func (TreeBuilder) Namespace(name Ident, items []Item) Item {
	return &Group{Name: name, Items: items}
}

func (TreeBuilder) Reexport() Item {
	return &Reexport{}
}
