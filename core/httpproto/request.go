package httpproto

// Request is the parsed request line plus headers of spec.md §3. The
// body itself is not buffered here — it stays on the Connection's input
// buffer and is drained through ReadBody/the wsgi.input stream.
type Request struct {
	Method  string
	Target  string // raw request-target as sent on the wire
	Path    string // Target with any "?query" stripped
	Query   string // everything after "?", empty if none
	Proto   string // "HTTP/1.0" or "HTTP/1.1"

	Headers Headers

	// ContentLength is -1 when the request declares no body (spec.md
	// §9's sentinel convention, mirrored from the response side).
	ContentLength int64

	// KeepAlive is the persistence decision from spec.md §4.C.4: HTTP/1.1
	// defaults to true unless Connection: close is present; HTTP/1.0
	// defaults to false unless Connection: keep-alive is present.
	KeepAlive bool
}

// Header is a convenience accessor over r.Headers.Get.
func (r *Request) Header(name string) (string, bool) {
	return r.Headers.Get(name)
}
