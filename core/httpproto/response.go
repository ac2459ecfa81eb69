package httpproto

import (
	"fmt"
	"strconv"
	"time"

	"github.com/searchktools/wsgiboost/core/netconn"
)

// DateFormat is RFC 7231 IMF-fixdate, always rendered in GMT. Shared
// with core/static for Last-Modified and conditional-GET comparisons.
const DateFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// ServerToken is the value sent in every response's Server header.
const ServerToken = "wsgiboost"

// Response is the response-side half of spec.md §3/§4.D: a status
// line, an ordered set of caller headers, and the framing decision
// (declared Content-Length vs. chunked, ContentLength == -1).
type Response struct {
	conn *netconn.Connection

	proto      string
	statusCode int
	statusText string

	headers Headers

	// ContentLength mirrors the sentinel convention of spec.md §9: -1
	// means the body length is unknown and must be chunk-framed.
	ContentLength int64

	headerSent bool
	keepAlive  bool
}

// NewResponse starts a response in its default state: 200 OK, unknown
// length (chunked unless the caller declares a length).
func NewResponse(conn *netconn.Connection, proto string, keepAlive bool) *Response {
	return &Response{
		conn:          conn,
		proto:         proto,
		statusCode:    200,
		statusText:    StatusText(200),
		ContentLength: -1,
		keepAlive:     keepAlive,
	}
}

// Headers returns the mutable caller-header set.
func (r *Response) Headers() *Headers { return &r.headers }

// HeaderSent reports whether the status line and headers have already
// gone out; once true, status/header/length mutators are rejected,
// matching the WSGI start_response "may not be called again" rule
// carried through to the native API (spec.md §6).
func (r *Response) HeaderSent() bool { return r.headerSent }

// SetStatus sets the status line. text may be empty to use the
// server's canned reason phrase for code.
func (r *Response) SetStatus(code int, text string) error {
	if r.headerSent {
		return fmt.Errorf("httpproto: SetStatus after headers sent")
	}
	r.statusCode = code
	if text == "" {
		text = StatusText(code)
	}
	r.statusText = text
	return nil
}

// SetHeader appends a caller header, joining with prior values of the
// same name per the ordered-multimap rule.
func (r *Response) SetHeader(name, value string) error {
	if r.headerSent {
		return fmt.Errorf("httpproto: SetHeader after headers sent")
	}
	r.headers.Add(name, value)
	return nil
}

// SetContentLength declares the body length; -1 requests chunked
// framing.
func (r *Response) SetContentLength(n int64) error {
	if r.headerSent {
		return fmt.Errorf("httpproto: SetContentLength after headers sent")
	}
	r.ContentLength = n
	return nil
}

// chunked reports whether the body must be chunk-framed.
func (r *Response) chunked() bool { return r.ContentLength < 0 }

// sendHeaders emits the status line, the server-injected headers
// (Server, Date, Connection, and either Content-Length or
// Transfer-Encoding: chunked), then the caller's own headers, in that
// fixed order (spec.md §4.D).
func (r *Response) sendHeaders(mode netconn.IOMode) error {
	if r.headerSent {
		return nil
	}
	r.headerSent = true

	buf := make([]byte, 0, 256)
	buf = append(buf, r.proto...)
	buf = append(buf, ' ')
	buf = append(buf, strconv.Itoa(r.statusCode)...)
	buf = append(buf, ' ')
	buf = append(buf, r.statusText...)
	buf = append(buf, "\r\n"...)

	buf = appendHeaderLine(buf, "Server", ServerToken)
	buf = appendHeaderLine(buf, "Date", time.Now().UTC().Format(DateFormat))

	connValue := "close"
	if r.keepAlive {
		connValue = "keep-alive"
	}
	buf = appendHeaderLine(buf, "Connection", connValue)

	if r.chunked() {
		buf = appendHeaderLine(buf, "Transfer-Encoding", "chunked")
	} else {
		buf = appendHeaderLine(buf, "Content-Length", strconv.FormatInt(r.ContentLength, 10))
	}

	for _, f := range r.headers.All() {
		buf = appendHeaderLine(buf, f.Name, f.Value)
	}
	buf = append(buf, "\r\n"...)

	r.conn.BufferOutput(buf)
	return r.conn.Flush(mode)
}

func appendHeaderLine(buf []byte, name, value string) []byte {
	buf = append(buf, name...)
	buf = append(buf, ':', ' ')
	buf = append(buf, value...)
	buf = append(buf, "\r\n"...)
	return buf
}

// FlushHeaders sends the status line and headers if not already sent,
// for callers (the static responder's sendfile fast path) that write
// the body directly to the Connection instead of through Write.
func (r *Response) FlushHeaders(mode netconn.IOMode) error {
	return r.sendHeaders(mode)
}

// Finish304 answers a conditional-GET hit: status 304, no body, an
// explicit zero Content-Length.
func (r *Response) Finish304(mode netconn.IOMode) error {
	if err := r.SetStatus(304, ""); err != nil {
		return err
	}
	if err := r.SetContentLength(0); err != nil {
		return err
	}
	return r.Finish(mode)
}

// Write sends the headers (on first call) and one body chunk, framing
// it as a chunked-encoding segment when the length is unknown. An
// empty chunk is a no-op in chunked mode (the zero-length chunk is
// reserved for the terminator, spec.md §4.D note).
func (r *Response) Write(chunk []byte, mode netconn.IOMode) error {
	if !r.headerSent {
		if err := r.sendHeaders(mode); err != nil {
			return err
		}
	}
	if len(chunk) == 0 {
		return nil
	}
	if r.chunked() {
		r.conn.BufferOutput(frameChunk(chunk))
	} else {
		r.conn.BufferOutput(chunk)
	}
	return r.conn.Flush(mode)
}

// Finish sends headers if they have not gone out yet (a body-less
// response, e.g. 304) and, for chunked responses, the terminating
// zero-length chunk.
func (r *Response) Finish(mode netconn.IOMode) error {
	if !r.headerSent {
		if err := r.sendHeaders(mode); err != nil {
			return err
		}
	}
	if r.chunked() {
		r.conn.BufferOutput(chunkTerminator)
		return r.conn.Flush(mode)
	}
	return nil
}

// SendMessage is the plain-text status-shortcut of spec.md §4.D: set
// status, a text/plain body with an explicit Content-Length, write it,
// and finish.
func (r *Response) SendMessage(code int, text string, mode netconn.IOMode) error {
	if err := r.SetStatus(code, ""); err != nil {
		return err
	}
	body := []byte(text)
	if err := r.SetContentLength(int64(len(body))); err != nil {
		return err
	}
	r.headers.Set("Content-Type", "text/plain; charset=utf-8")
	if err := r.Write(body, mode); err != nil {
		return err
	}
	return r.Finish(mode)
}

// SendHTML is the HTML status-shortcut of spec.md §4.D, used for the
// server's own error pages (400/404/411/416/500/...).
func (r *Response) SendHTML(code int, title, heading, detail string, mode netconn.IOMode) error {
	if err := r.SetStatus(code, ""); err != nil {
		return err
	}
	body := []byte(fmt.Sprintf(
		"<!DOCTYPE html>\n<html><head><title>%s</title></head>\n"+
			"<body><h1>%s</h1><p>%s</p></body></html>\n",
		title, heading, detail))
	if err := r.SetContentLength(int64(len(body))); err != nil {
		return err
	}
	r.headers.Set("Content-Type", "text/html; charset=utf-8")
	if err := r.Write(body, mode); err != nil {
		return err
	}
	return r.Finish(mode)
}
