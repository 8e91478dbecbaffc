package block

import (
	"errors"
	"fmt"
	"go/parser"
	"go/scanner"
	"go/token"

	"github.com/dave/dst"
	"github.com/dave/dst/decorator"
)

const (
	bodyPrelude  = "package p\n\nfunc _() {\n"
	bodyLines    = 3
	declsPrelude = "package p\n\n"
	declsLines   = 2
)

// SourceError is a Go syntax error inside a hook body or helper block, positioned in
// the suite source the snippet came from.
type SourceError struct {
	Pos Span
	Msg string
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}

// ParseBody parses src as a Go statement list. span is where src starts in its suite
// file; it becomes the body's span and anchors error positions.
func ParseBody(src string, span Span) (*HookBody, error) {
	file, err := parseSnippet(bodyPrelude+src+"\n}\n", span, bodyLines)
	if err != nil {
		return nil, err
	}
	if len(file.Decls) != 1 {
		return nil, &SourceError{Pos: span, Msg: "body must be a statement list"}
	}
	fn, ok := file.Decls[0].(*dst.FuncDecl)
	if !ok || fn.Body == nil {
		return nil, &SourceError{Pos: span, Msg: "body must be a statement list"}
	}
	return &HookBody{stmts: fn.Body.List, span: span}, nil
}

// ParseDecls parses src as top-level Go declarations. Imports are rejected; generated
// files manage their own import block.
func ParseDecls(src string, span Span) ([]dst.Decl, error) {
	file, err := parseSnippet(declsPrelude+src+"\n", span, declsLines)
	if err != nil {
		return nil, err
	}
	for _, decl := range file.Decls {
		if gen, ok := decl.(*dst.GenDecl); ok && gen.Tok == token.IMPORT {
			return nil, &SourceError{Pos: span, Msg: "helpers must not declare imports"}
		}
	}
	return file.Decls, nil
}

func parseSnippet(src string, span Span, prelude int) (*dst.File, error) {
	name := span.File
	if name == "" {
		name = "snippet.go"
	}
	file, err := decorator.ParseFile(token.NewFileSet(), name, src, parser.ParseComments)
	if err == nil {
		return file, nil
	}
	var list scanner.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		first := list[0]
		return nil, &SourceError{Pos: relocate(span, first.Pos, prelude), Msg: first.Msg}
	}
	return nil, fmt.Errorf("block: parse %s: %w", span, err)
}

func relocate(span Span, pos token.Position, prelude int) Span {
	line := pos.Line - prelude
	if line < 1 {
		line = 1
	}
	if span.Line > 0 {
		line = span.Line + line - 1
	}
	return Span{File: span.File, Line: line, Column: pos.Column}
}
