package wsgi

import (
	"io"

	"github.com/searchktools/wsgiboost/core/httpproto"
)

// Environ is the per-request environment mapping of spec.md §4.F,
// keyed by the CGI/WSGI variable names a hosted application expects
// (REQUEST_METHOD, PATH_INFO, wsgi.input, ...).
type Environ map[string]any

// StartResponse is the Go shape of the WSGI start_response callable.
// headers is the application's own response headers, in the order the
// application supplied them. excInfo is non-nil when the application
// is re-announcing a response after an error; if headers have already
// gone out, the bridge returns a non-nil error here that the
// application is expected to propagate (the "re-raise" rule).
type StartResponse func(status int, statusText string, headers []httpproto.HeaderField, excInfo error) (WriteFunc, error)

// WriteFunc is the callable returned by StartResponse for an
// application that prefers imperative writes over returning an
// iterator.
type WriteFunc func([]byte) (int, error)

// ChunkIterator is the Go shape of the iterable a WSGI application
// returns: repeated calls to Next yield body chunks until io.EOF.
type ChunkIterator interface {
	Next() ([]byte, error)
}

// App is the hosted application handle of spec.md §3 ("App handle").
// Handle is called once per request, with the interpreter token
// already held by the caller.
type App interface {
	Handle(env Environ, start StartResponse) ChunkIterator
}

// AppFunc adapts a plain function to the App interface, the same
// convenience shape net/http.HandlerFunc offers over http.Handler.
type AppFunc func(env Environ, start StartResponse) ChunkIterator

// Handle calls f.
func (f AppFunc) Handle(env Environ, start StartResponse) ChunkIterator {
	return f(env, start)
}

// SliceIterator adapts a list of pre-built byte slices to ChunkIterator,
// for applications that already have their whole body in memory.
type SliceIterator struct {
	chunks [][]byte
	pos    int
}

// NewSliceIterator builds a ChunkIterator over chunks, yielded in
// order.
func NewSliceIterator(chunks ...[]byte) *SliceIterator {
	return &SliceIterator{chunks: chunks}
}

// Next implements ChunkIterator.
func (s *SliceIterator) Next() ([]byte, error) {
	if s.pos >= len(s.chunks) {
		return nil, io.EOF
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, nil
}
