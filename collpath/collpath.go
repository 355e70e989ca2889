// Package collpath canonicalizes collection paths in the hierarchical XML
// namespace and decomposes them into their ancestor chains.
//
// A collection path is an absolute, slash-separated identifier rooted at
// "/db". Equality is by canonical string: trailing slashes are stripped and
// empty segments are rejected.
package collpath

import (
	"strings"

	"github.com/arborxml/arbor/util/errors"
)

// Root is the canonical path of the root collection.
const Root = "/db"

// Canonicalize normalizes path and verifies that it lies under the root
// collection. It returns an InvalidPathError for malformed paths.
func Canonicalize(path string) (string, error) {
	if path == "" {
		return "", errors.NewInvalidPathError(path, "empty path")
	}
	if path[0] != '/' {
		return "", errors.NewInvalidPathError(path, "path is not absolute")
	}

	// strip trailing slashes, but never below "/"
	p := path
	for len(p) > 1 && p[len(p)-1] == '/' {
		p = p[:len(p)-1]
	}

	if p != Root && !strings.HasPrefix(p, Root+"/") {
		return "", errors.NewInvalidPathError(path, "not under "+Root)
	}

	for _, segment := range strings.Split(p[1:], "/") {
		if segment == "" {
			return "", errors.NewInvalidPathError(path, "empty path segment")
		}
	}

	return p, nil
}

// Ancestors canonicalizes path and returns its ancestor chain from the root
// collection down to the path itself. Ancestors("/db/a/b") returns
// ["/db", "/db/a", "/db/a/b"]; Ancestors("/db") returns ["/db"].
func Ancestors(path string) ([]string, error) {
	p, err := Canonicalize(path)
	if err != nil {
		return nil, err
	}

	if p == Root {
		return []string{Root}, nil
	}

	rest := p[len(Root)+1:]
	segments := strings.Split(rest, "/")
	chain := make([]string, 0, len(segments)+1)
	chain = append(chain, Root)

	current := Root
	for _, segment := range segments {
		current = current + "/" + segment
		chain = append(chain, current)
	}
	return chain, nil
}
