package emit

import (
	"bytes"
	"errors"
	"fmt"
	"go/format"
	"go/token"
	"sort"
	"strconv"
	"strings"

	"github.com/dave/dst"
	"github.com/dave/dst/decorator"

	"specgen/pkg/generator"
)

// Header marks emitted files as generated so linters and reviewers skip them.
const Header = "// Code generated by specgen. DO NOT EDIT.\n\n"

const (
	defaultPackage   = "specs"
	defaultTestParam = "t"
	groupBenchParam  = "b"
)

// ErrReexportMisplaced reports a group whose re-export is missing or not its last member.
var ErrReexportMisplaced = errors.New("emit: re-export must be the last member of a group")

type Layout int

const (
	// LayoutFlat emits one top-level function per unit, named after its namespace path.
	LayoutFlat Layout = iota
	// LayoutSubtests emits one function per root group and nests the rest with t.Run/b.Run.
	LayoutSubtests
)

func (l Layout) String() string {
	switch l {
	case LayoutSubtests:
		return "subtests"
	default:
		return "flat"
	}
}

func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "flat":
		return LayoutFlat, nil
	case "subtests":
		return LayoutSubtests, nil
	default:
		return LayoutFlat, fmt.Errorf("emit: unknown layout %q (want flat or subtests)", s)
	}
}

type Options struct {
	PackageName string
	Layout      Layout
	// TestParam names the *testing.T parameter every test unit receives.
	TestParam string
	Imports   []string
	// Helpers are copied into the file after the imports.
	Helpers []dst.Decl
	// Reserved names are already declared elsewhere in the package. Generated entry
	// points are renamed around them.
	Reserved []string
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.PackageName) == "" {
		o.PackageName = defaultPackage
	}
	if strings.TrimSpace(o.TestParam) == "" {
		o.TestParam = defaultTestParam
	}
	return o
}

type renderer struct {
	opts    Options
	mangler *nameMangler
}

// File is a rendered test file together with the package-level names it declares.
type File struct {
	Source []byte
	// Names lists the file's top-level identifiers in declaration order, helpers
	// included. Blank and init declarations are left out.
	Names []string
}

// Render lowers a generated tree into a formatted Go test file.
func Render(item generator.Item, opts Options) ([]byte, error) {
	file, err := RenderFile(item, opts)
	if err != nil {
		return nil, err
	}
	return file.Source, nil
}

// RenderFile is Render that also reports the declared names, so callers emitting
// several files into one package can keep them apart.
func RenderFile(item generator.Item, opts Options) (*File, error) {
	if item == nil {
		return nil, fmt.Errorf("emit: nil item")
	}
	opts = opts.withDefaults()
	r := &renderer{opts: opts, mangler: newNameMangler()}
	for _, name := range opts.Reserved {
		r.mangler.reserve(name)
	}
	for _, helper := range opts.Helpers {
		for _, name := range declNames(helper) {
			r.mangler.reserve(name)
		}
	}

	var decls []dst.Decl
	var err error
	switch opts.Layout {
	case LayoutSubtests:
		decls, err = r.subtestDecls(item)
	default:
		decls, err = r.flatDecls(nil, item)
	}
	if err != nil {
		return nil, err
	}

	tests, benchmarks := generator.Count(item)
	imports := opts.Imports
	if tests+benchmarks > 0 {
		imports = append([]string{"testing"}, imports...)
	}

	file := &dst.File{Name: dst.NewIdent(opts.PackageName)}
	if decl := importDecl(imports); decl != nil {
		file.Decls = append(file.Decls, decl)
	}
	for _, helper := range opts.Helpers {
		file.Decls = append(file.Decls, spaced(dst.Clone(helper).(dst.Decl)))
	}
	file.Decls = append(file.Decls, decls...)

	var names []string
	for _, decl := range file.Decls {
		names = append(names, declNames(decl)...)
	}

	var buf bytes.Buffer
	buf.WriteString(Header)
	if err := decorator.Fprint(&buf, file); err != nil {
		return nil, fmt.Errorf("emit: print: %w", err)
	}
	src, err := formatSource(buf.Bytes())
	if err != nil {
		return nil, err
	}
	return &File{Source: src, Names: names}, nil
}

// declNames returns the package-level identifiers a declaration introduces.
func declNames(decl dst.Decl) []string {
	var names []string
	add := func(ident *dst.Ident) {
		if ident != nil && ident.Name != "_" && ident.Name != "init" {
			names = append(names, ident.Name)
		}
	}
	switch d := decl.(type) {
	case *dst.FuncDecl:
		if d.Recv == nil {
			add(d.Name)
		}
	case *dst.GenDecl:
		for _, spec := range d.Specs {
			switch sp := spec.(type) {
			case *dst.TypeSpec:
				add(sp.Name)
			case *dst.ValueSpec:
				for _, ident := range sp.Names {
					add(ident)
				}
			}
		}
	}
	return names
}

func (r *renderer) flatDecls(prefix []string, item generator.Item) ([]dst.Decl, error) {
	switch n := item.(type) {
	case *generator.Unit:
		fn, err := r.unitFunc(extend(prefix, string(n.Name)), n)
		if err != nil {
			return nil, err
		}
		return []dst.Decl{fn}, nil
	case *generator.Group:
		if err := checkReexport(n); err != nil {
			return nil, err
		}
		path := extend(prefix, string(n.Name))
		var decls []dst.Decl
		for _, member := range n.Members() {
			child, err := r.flatDecls(path, member)
			if err != nil {
				return nil, err
			}
			decls = append(decls, child...)
		}
		return decls, nil
	case *generator.Reexport:
		// Package scope is already visible to every function in the file.
		return nil, nil
	default:
		return nil, fmt.Errorf("emit: unexpected item %T", item)
	}
}

func (r *renderer) unitFunc(path []string, unit *generator.Unit) (*dst.FuncDecl, error) {
	fields, err := r.unitParams(unit)
	if err != nil {
		return nil, fmt.Errorf("emit: %s: %w", strings.Join(path, "/"), err)
	}
	fn := &dst.FuncDecl{
		Name: dst.NewIdent(r.mangler.unique(funcName(unit.Kind, path))),
		Type: funcType(fields),
		Body: &dst.BlockStmt{List: unit.Body.Stmts()},
	}
	return spaced(fn).(*dst.FuncDecl), nil
}

func (r *renderer) unitParams(unit *generator.Unit) ([]*dst.Field, error) {
	var fields []*dst.Field
	switch unit.Kind {
	case generator.UnitTest:
		fields = append(fields, testingField(r.opts.TestParam, "T"))
	case generator.UnitBenchmark:
		if len(unit.Params) != 1 || unit.Params[0].Kind != generator.ParamBenchTimer {
			return nil, fmt.Errorf("benchmark needs exactly one timer parameter, got %d", len(unit.Params))
		}
	}
	for _, param := range unit.Params {
		switch param.Kind {
		case generator.ParamBenchTimer:
			fields = append(fields, testingField(SanitizeIdent(string(param.Name)), "B"))
		default:
			return nil, fmt.Errorf("unsupported parameter kind %q", param.Kind)
		}
	}
	return fields, nil
}

func (r *renderer) subtestDecls(item generator.Item) ([]dst.Decl, error) {
	group, ok := item.(*generator.Group)
	if !ok {
		return r.flatDecls(nil, item)
	}
	if err := checkReexport(group); err != nil {
		return nil, err
	}
	var decls []dst.Decl
	for _, kind := range []generator.UnitKind{generator.UnitTest, generator.UnitBenchmark} {
		if !hasKind(group, kind) {
			continue
		}
		param, typ := r.opts.TestParam, "T"
		if kind == generator.UnitBenchmark {
			param, typ = groupBenchParam, "B"
		}
		stmts, err := r.runStmts([]string{string(group.Name)}, group, kind, param)
		if err != nil {
			return nil, err
		}
		decls = append(decls, spaced(&dst.FuncDecl{
			Name: dst.NewIdent(r.mangler.unique(funcName(kind, []string{string(group.Name)}))),
			Type: funcType([]*dst.Field{testingField(param, typ)}),
			Body: &dst.BlockStmt{List: stmts},
		}))
	}
	return decls, nil
}

// runStmts builds the parent.Run calls for the members of group that contain units of
// the given kind.
func (r *renderer) runStmts(path []string, group *generator.Group, kind generator.UnitKind, parent string) ([]dst.Stmt, error) {
	var stmts []dst.Stmt
	for _, member := range group.Members() {
		switch n := member.(type) {
		case *generator.Unit:
			if n.Kind != kind {
				continue
			}
			fields, err := r.unitParams(n)
			if err != nil {
				return nil, fmt.Errorf("emit: %s: %w", strings.Join(extend(path, string(n.Name)), "/"), err)
			}
			stmts = append(stmts, runCall(parent, string(n.Name), fields, n.Body.Stmts()))
		case *generator.Group:
			if err := checkReexport(n); err != nil {
				return nil, err
			}
			if !hasKind(n, kind) {
				continue
			}
			param, typ := r.opts.TestParam, "T"
			if kind == generator.UnitBenchmark {
				param, typ = groupBenchParam, "B"
			}
			inner, err := r.runStmts(extend(path, string(n.Name)), n, kind, param)
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, runCall(parent, string(n.Name), []*dst.Field{testingField(param, typ)}, inner))
		default:
			return nil, fmt.Errorf("emit: unexpected item %T", member)
		}
	}
	return stmts, nil
}

func runCall(parent, name string, fields []*dst.Field, body []dst.Stmt) dst.Stmt {
	return &dst.ExprStmt{X: &dst.CallExpr{
		Fun: &dst.SelectorExpr{X: dst.NewIdent(parent), Sel: dst.NewIdent("Run")},
		Args: []dst.Expr{
			&dst.BasicLit{Kind: token.STRING, Value: strconv.Quote(name)},
			&dst.FuncLit{Type: funcType(fields), Body: &dst.BlockStmt{List: body}},
		},
	}}
}

func hasKind(item generator.Item, kind generator.UnitKind) bool {
	found := false
	generator.WalkUnits(item, func(_ []generator.Ident, unit *generator.Unit) {
		if unit.Kind == kind {
			found = true
		}
	})
	return found
}

func checkReexport(group *generator.Group) error {
	last := len(group.Items) - 1
	if last < 0 {
		return fmt.Errorf("%w: group %s is empty", ErrReexportMisplaced, group.Name)
	}
	for idx, item := range group.Items {
		if _, ok := item.(*generator.Reexport); ok != (idx == last) {
			return fmt.Errorf("%w: group %s", ErrReexportMisplaced, group.Name)
		}
	}
	return nil
}

// funcName joins a namespace path into a go test entry point name such as
// TestCalc_nested_adds.
func funcName(kind generator.UnitKind, path []string) string {
	prefix := "Test"
	if kind == generator.UnitBenchmark {
		prefix = "Benchmark"
	}
	parts := make([]string, 0, len(path))
	for idx, segment := range path {
		if idx == 0 {
			parts = append(parts, exportIdent(segment))
			continue
		}
		parts = append(parts, SanitizeIdent(segment))
	}
	return prefix + strings.Join(parts, "_")
}

func funcType(fields []*dst.Field) *dst.FuncType {
	return &dst.FuncType{
		Func:   true,
		Params: &dst.FieldList{Opening: true, List: fields, Closing: true},
	}
}

func testingField(name, typ string) *dst.Field {
	return &dst.Field{
		Names: []*dst.Ident{dst.NewIdent(name)},
		Type: &dst.StarExpr{X: &dst.SelectorExpr{
			X:   dst.NewIdent("testing"),
			Sel: dst.NewIdent(typ),
		}},
	}
}

func importDecl(paths []string) dst.Decl {
	seen := make(map[string]struct{}, len(paths))
	unique := make([]string, 0, len(paths))
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		unique = append(unique, path)
	}
	if len(unique) == 0 {
		return nil
	}
	sort.Strings(unique)
	specs := make([]dst.Spec, 0, len(unique))
	for _, path := range unique {
		specs = append(specs, &dst.ImportSpec{Path: &dst.BasicLit{Kind: token.STRING, Value: strconv.Quote(path)}})
	}
	grouped := len(specs) > 1
	return spaced(&dst.GenDecl{Tok: token.IMPORT, Lparen: grouped, Specs: specs, Rparen: grouped})
}

func spaced(decl dst.Decl) dst.Decl {
	decl.Decorations().Before = dst.EmptyLine
	return decl
}

func extend(path []string, name string) []string {
	out := make([]string, len(path), len(path)+1)
	copy(out, path)
	return append(out, name)
}

func formatSource(src []byte) ([]byte, error) {
	formatted, err := format.Source(src)
	if err != nil {
		return src, fmt.Errorf("emit: format: %w", err)
	}
	return formatted, nil
}
