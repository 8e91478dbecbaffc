package emit

import (
	"strconv"
	"strings"
	"unicode"
)

var goKeywords = map[string]struct{}{
	"break": {}, "default": {}, "func": {}, "interface": {}, "select": {},
	"case": {}, "defer": {}, "go": {}, "map": {}, "struct": {},
	"chan": {}, "else": {}, "goto": {}, "package": {}, "switch": {},
	"const": {}, "fallthrough": {}, "if": {}, "range": {}, "type": {},
	"continue": {}, "for": {}, "import": {}, "return": {}, "var": {},
}

// SanitizeIdent maps an arbitrary name onto a valid Go identifier.
func SanitizeIdent(name string) string {
	if name == "" {
		return "_"
	}
	var b strings.Builder
	for i, r := range name {
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			if i == 0 && unicode.IsDigit(r) {
				b.WriteByte('_')
			}
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	out := b.String()
	if _, ok := goKeywords[out]; ok {
		return "_" + out
	}
	return out
}

// exportIdent upper-cases the first rune so the result can follow a Test/Benchmark
// prefix and still be picked up by go test.
func exportIdent(name string) string {
	safe := strings.TrimLeft(SanitizeIdent(name), "_")
	if safe == "" {
		return "X"
	}
	runes := []rune(safe)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

type nameMangler struct {
	seen map[string]int
	used map[string]struct{}
}

func newNameMangler() *nameMangler {
	return &nameMangler{seen: make(map[string]int), used: make(map[string]struct{})}
}

// reserve marks name as taken without handing it out.
func (m *nameMangler) reserve(name string) {
	if m != nil && name != "" {
		m.used[name] = struct{}{}
	}
}

// unique returns base the first time it is asked for and base_2, base_3, ... after
// that, skipping any candidate already handed out.
func (m *nameMangler) unique(base string) string {
	if m == nil {
		return base
	}
	if base == "" {
		base = "_"
	}
	for n := m.seen[base]; ; n++ {
		name := base
		if n > 0 {
			name = base + "_" + strconv.Itoa(n+1)
		}
		if _, taken := m.used[name]; taken {
			continue
		}
		m.seen[base] = n + 1
		m.used[name] = struct{}{}
		return name
	}
}
