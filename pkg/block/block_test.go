package block

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWalkVisitsDepthFirstInOrder(t *testing.T) {
	root := NewDescribe("suite", nil, nil,
		NewIt("first", nil),
		NewDescribe("group", nil, nil,
			NewBench("fast", "b", nil),
			NewIt("inner", nil),
		),
		NewIt("last", nil),
	)

	var visited []string
	Walk(root, func(path []string, b Block) bool {
		visited = append(visited, string(b.Kind())+":"+strings.Join(path, "/"))
		return true
	})
	want := []string{
		"describe:suite",
		"it:suite/first",
		"describe:suite/group",
		"bench:suite/group/fast",
		"it:suite/group/inner",
		"it:suite/last",
	}
	if diff := cmp.Diff(want, visited); diff != "" {
		t.Fatalf("walk order mismatch (-want +got):\n%s", diff)
	}
}

func TestWalkSkipsChildren(t *testing.T) {
	root := NewDescribe("suite", nil, nil,
		NewDescribe("skipped", nil, nil, NewIt("hidden", nil)),
		NewIt("shown", nil),
	)
	var names []string
	Walk(root, func(path []string, b Block) bool {
		names = append(names, NameOf(b))
		return NameOf(b) != "skipped"
	})
	if diff := cmp.Diff([]string{"suite", "skipped", "shown"}, names); diff != "" {
		t.Fatalf("walk mismatch (-want +got):\n%s", diff)
	}
}

func TestSetSpanAndNameOf(t *testing.T) {
	bench := NewBench("fast", "b", nil)
	SetSpan(bench, Span{File: "a.yml", Line: 4, Column: 3})
	if got := bench.Span().String(); got != "a.yml:4:3" {
		t.Fatalf("Span = %q, want a.yml:4:3", got)
	}
	if got := NameOf(bench); got != "fast" {
		t.Fatalf("NameOf = %q, want fast", got)
	}
	if got := NameOf(nil); got != "" {
		t.Fatalf("NameOf(nil) = %q, want empty", got)
	}
}
