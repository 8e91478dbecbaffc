package block

import (
	"errors"
	"strings"
	"testing"

	"github.com/dave/dst"
)

func TestParseBodyStatements(t *testing.T) {
	body, err := ParseBody("x := 1\nif x != 1 {\n\tpanic(x)\n}\nhelper(x)", Span{File: "calc.spec.yml", Line: 7})
	if err != nil {
		t.Fatalf("ParseBody: %v", err)
	}
	if body.Len() != 3 {
		t.Fatalf("Len = %d, want 3", body.Len())
	}
	if _, ok := body.Stmts()[1].(*dst.IfStmt); !ok {
		t.Fatalf("second statement = %T, want *dst.IfStmt", body.Stmts()[1])
	}
	if got := body.Span(); got.File != "calc.spec.yml" || got.Line != 7 {
		t.Fatalf("Span = %v, want calc.spec.yml:7", got)
	}
}

func TestParseBodyEmpty(t *testing.T) {
	body, err := ParseBody("", Span{})
	if err != nil {
		t.Fatalf("ParseBody: %v", err)
	}
	if body.Len() != 0 {
		t.Fatalf("Len = %d, want 0", body.Len())
	}
}

func TestParseBodyErrorPosition(t *testing.T) {
	_, err := ParseBody("a()\nb(:", Span{File: "calc.spec.yml", Line: 10})
	if err == nil {
		t.Fatalf("expected syntax error")
	}
	var srcErr *SourceError
	if !errors.As(err, &srcErr) {
		t.Fatalf("error = %T, want *SourceError", err)
	}
	if srcErr.Pos.File != "calc.spec.yml" || srcErr.Pos.Line != 11 {
		t.Fatalf("Pos = %v, want calc.spec.yml:11", srcErr.Pos)
	}
	if !strings.HasPrefix(err.Error(), "calc.spec.yml:11:") {
		t.Fatalf("Error() = %q, want calc.spec.yml:11 prefix", err.Error())
	}
}

func TestParseBodyRejectsEscapingBraces(t *testing.T) {
	if _, err := ParseBody("}\nfunc other() {", Span{}); err == nil {
		t.Fatalf("expected error for body closing its wrapper")
	}
}

func TestParseDecls(t *testing.T) {
	decls, err := ParseDecls("func add(a, b int) int { return a + b }\n\nvar seed = 4", Span{})
	if err != nil {
		t.Fatalf("ParseDecls: %v", err)
	}
	if len(decls) != 2 {
		t.Fatalf("len(decls) = %d, want 2", len(decls))
	}
}

func TestParseDeclsRejectsImports(t *testing.T) {
	_, err := ParseDecls("import \"strings\"\n\nvar _ = strings.ToUpper", Span{File: "h.yml", Line: 2})
	if err == nil || !strings.Contains(err.Error(), "imports") {
		t.Fatalf("expected import rejection, got %v", err)
	}
}
