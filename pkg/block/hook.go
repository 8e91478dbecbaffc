package block

import "github.com/dave/dst"

// HookBody is an immutable, ordered list of Go statements. dst nodes must not
// appear twice in one tree, so every read hands out structural clones and a
// single body can be spliced into any number of generated units.
type HookBody struct {
	stmts []dst.Stmt
	span  Span
}

// NewHookBody copies stmts into a new body located at span.
func NewHookBody(span Span, stmts ...dst.Stmt) *HookBody {
	return &HookBody{stmts: cloneStmts(stmts), span: span}
}

func (h *HookBody) Span() Span {
	if h == nil {
		return Span{}
	}
	return h.span
}

func (h *HookBody) Len() int {
	if h == nil {
		return 0
	}
	return len(h.stmts)
}

// Stmts returns clones of the body's statements in order.
func (h *HookBody) Stmts() []dst.Stmt {
	if h == nil {
		return nil
	}
	return cloneStmts(h.stmts)
}

// Block returns the statements wrapped in a fresh block statement.
func (h *HookBody) Block() *dst.BlockStmt {
	return &dst.BlockStmt{List: h.Stmts()}
}

// Merge concatenates left and right: the result runs every statement of left and then
// every statement of right. The span of left represents the merged body. Both bodies
// must be present; see MergeOptional for callers that hold optional hooks.
func Merge(left, right *HookBody) *HookBody {
	stmts := make([]dst.Stmt, 0, len(left.stmts)+len(right.stmts))
	stmts = append(stmts, left.stmts...)
	stmts = append(stmts, right.stmts...)
	return &HookBody{stmts: stmts, span: left.span}
}

// MergeOptional merges when both bodies are present, otherwise returns whichever one is.
func MergeOptional(left, right *HookBody) *HookBody {
	switch {
	case left != nil && right != nil:
		return Merge(left, right)
	case left != nil:
		return left
	default:
		return right
	}
}

func cloneStmts(stmts []dst.Stmt) []dst.Stmt {
	if len(stmts) == 0 {
		return nil
	}
	out := make([]dst.Stmt, len(stmts))
	for i, stmt := range stmts {
		out[i] = dst.Clone(stmt).(dst.Stmt)
	}
	return out
}
