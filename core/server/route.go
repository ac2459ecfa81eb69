package server

import (
	"regexp"

	"github.com/searchktools/wsgiboost/core/static"
)

// Route pairs a case-insensitive path-prefix pattern with a static
// responder. The table is a plain ordered slice, first-match-wins
// (spec.md §3/§9: deliberately not a radix/compiled trie — see
// DESIGN.md for why the teacher's core/router is not reused here).
type Route struct {
	Prefix    string
	Pattern   *regexp.Regexp
	Responder *static.Responder
}

func compileRoute(prefix string, opts static.Options) (Route, error) {
	pattern, err := regexp.Compile("(?i)^" + regexp.QuoteMeta(prefix))
	if err != nil {
		return Route{}, err
	}
	responder, err := static.NewResponder(opts)
	if err != nil {
		return Route{}, err
	}
	return Route{Prefix: prefix, Pattern: pattern, Responder: responder}, nil
}

// match returns the first route whose pattern matches path, in table
// order, along with the remainder of path once the matched prefix is
// stripped (spec.md §4.E.3: the responder resolves files relative to its
// route, not the full request path).
func match(routes []Route, path string) (Route, string, bool) {
	for _, r := range routes {
		if loc := r.Pattern.FindStringIndex(path); loc != nil {
			return r, path[loc[1]:], true
		}
	}
	return Route{}, "", false
}
