package collpath

import (
	"reflect"
	"testing"

	"github.com/arborxml/arbor/util/errors"
)

func TestCanonicalize_Root(t *testing.T) {
	p, err := Canonicalize("/db")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != "/db" {
		t.Fatalf("got %q, want %q", p, "/db")
	}
}

func TestCanonicalize_StripsTrailingSlashes(t *testing.T) {
	cases := map[string]string{
		"/db/":          "/db",
		"/db/colA/":     "/db/colA",
		"/db/colA////":  "/db/colA",
		"/db/colA/colB": "/db/colA/colB",
	}
	for in, want := range cases {
		got, err := Canonicalize(in)
		if err != nil {
			t.Errorf("Canonicalize(%q): unexpected error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("Canonicalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCanonicalize_Invalid(t *testing.T) {
	cases := []string{
		"",
		"db",
		"colA",
		"/",
		"/data",
		"/data/colA",
		"/dbx",
		"/db//colA",
		"/db/colA//colB",
	}
	for _, in := range cases {
		_, err := Canonicalize(in)
		if err == nil {
			t.Errorf("Canonicalize(%q): expected error, got nil", in)
			continue
		}
		if !errors.IsInvalidPath(err) {
			t.Errorf("Canonicalize(%q): expected InvalidPathError, got %v", in, err)
		}
	}
}

func TestAncestors_Root(t *testing.T) {
	chain, err := Ancestors("/db")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(chain, []string{"/db"}) {
		t.Fatalf("got %v, want [/db]", chain)
	}
}

func TestAncestors_Depth2(t *testing.T) {
	chain, err := Ancestors("/db/colA")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"/db", "/db/colA"}
	if !reflect.DeepEqual(chain, want) {
		t.Fatalf("got %v, want %v", chain, want)
	}
}

func TestAncestors_Depth3(t *testing.T) {
	chain, err := Ancestors("/db/colA/colB")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"/db", "/db/colA", "/db/colA/colB"}
	if !reflect.DeepEqual(chain, want) {
		t.Fatalf("got %v, want %v", chain, want)
	}
}

func TestAncestors_TrailingSlash(t *testing.T) {
	chain, err := Ancestors("/db/colA/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"/db", "/db/colA"}
	if !reflect.DeepEqual(chain, want) {
		t.Fatalf("got %v, want %v", chain, want)
	}
}

func TestAncestors_EachIsPrefixOfNext(t *testing.T) {
	chain, err := Ancestors("/db/a/b/c/d/e")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chain[0] != Root {
		t.Fatalf("chain does not start at root: %v", chain)
	}
	for i := 1; i < len(chain); i++ {
		prefix := chain[i-1] + "/"
		if len(chain[i]) <= len(chain[i-1]) || chain[i][:len(prefix)] != prefix {
			t.Fatalf("chain[%d]=%q is not a child of chain[%d]=%q", i, chain[i], i-1, chain[i-1])
		}
	}
}

func TestAncestors_Invalid(t *testing.T) {
	if _, err := Ancestors("/data/colA"); !errors.IsInvalidPath(err) {
		t.Fatalf("expected InvalidPathError, got %v", err)
	}
}
