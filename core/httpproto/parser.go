package httpproto

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/searchktools/wsgiboost/core/netconn"
)

// ParseError carries the status code the caller should answer with
// (spec.md §4.C: malformed request lines are 400, a missing
// Content-Length on a method that requires one is 411).
type ParseError struct {
	Status int
	Msg    string
}

func (e *ParseError) Error() string { return e.Msg }

func badRequest(msg string) error { return &ParseError{Status: 400, Msg: msg} }

var errLengthRequired = &ParseError{Status: 411, Msg: "missing Content-Length"}

// methodsRequiringLength are the methods spec.md §4.C.2 requires a
// declared body length for.
var methodsRequiringLength = map[string]bool{
	"POST":  true,
	"PUT":   true,
	"PATCH": true,
}

// ReadRequest performs the unchanged 4-step algorithm of spec.md §4.C:
// read the header block off conn, split the request line, parse
// headers into the ordered multimap, then apply the body-length and
// keep-alive persistence policies.
func ReadRequest(conn *netconn.Connection, mode netconn.IOMode) (*Request, error) {
	block, err := conn.ReadHeader(mode)
	if err != nil {
		return nil, err
	}
	return parseHeaderBlock(block)
}

func parseHeaderBlock(block []byte) (*Request, error) {
	lines := splitCRLF(block)
	if len(lines) == 0 {
		return nil, badRequest("empty request")
	}

	req := &Request{ContentLength: -1}
	if err := parseRequestLine(req, lines[0]); err != nil {
		return nil, err
	}

	for _, line := range lines[1:] {
		if len(line) == 0 {
			continue
		}
		colon := bytes.IndexByte(line, ':')
		if colon <= 0 {
			return nil, badRequest("malformed header line")
		}
		name := strings.TrimSpace(string(line[:colon]))
		value := strings.TrimSpace(string(line[colon+1:]))
		if name == "" {
			return nil, badRequest("empty header name")
		}
		req.Headers.Add(name, value)
	}

	if err := applyContentLengthPolicy(req); err != nil {
		return nil, err
	}
	applyPersistencePolicy(req)

	return req, nil
}

func parseRequestLine(req *Request, line []byte) error {
	sp1 := bytes.IndexByte(line, ' ')
	if sp1 <= 0 {
		return badRequest("malformed request line")
	}
	rest := line[sp1+1:]
	sp2 := bytes.IndexByte(rest, ' ')
	if sp2 <= 0 {
		return badRequest("malformed request line")
	}

	req.Method = string(line[:sp1])
	req.Target = string(rest[:sp2])
	req.Proto = string(rest[sp2+1:])

	if req.Proto != "HTTP/1.0" && req.Proto != "HTTP/1.1" {
		return badRequest("unsupported protocol version")
	}

	if idx := strings.IndexByte(req.Target, '?'); idx >= 0 {
		req.Path = req.Target[:idx]
		req.Query = req.Target[idx+1:]
	} else {
		req.Path = req.Target
	}
	if req.Path == "" {
		return badRequest("empty request target")
	}
	return nil
}

func applyContentLengthPolicy(req *Request) error {
	cl, present := req.Headers.Get("Content-Length")
	if !present {
		if methodsRequiringLength[req.Method] {
			return errLengthRequired
		}
		req.ContentLength = -1
		return nil
	}
	n, err := strconv.ParseInt(cl, 10, 64)
	if err != nil || n < 0 {
		return badRequest("invalid Content-Length")
	}
	req.ContentLength = n
	return nil
}

func applyPersistencePolicy(req *Request) {
	conn, present := req.Headers.Get("Connection")
	conn = strings.ToLower(conn)
	switch req.Proto {
	case "HTTP/1.1":
		req.KeepAlive = !(present && conn == "close")
	default: // HTTP/1.0
		req.KeepAlive = present && conn == "keep-alive"
	}
}

// splitCRLF splits a header block (no trailing terminator) into lines.
// It splits on LF and strips one trailing CR from each line, so a bare
// LF is accepted as a line end on every line, not only the request line.
func splitCRLF(block []byte) [][]byte {
	var lines [][]byte
	for len(block) > 0 {
		idx := bytes.IndexByte(block, '\n')
		if idx < 0 {
			lines = append(lines, trimCR(block))
			break
		}
		lines = append(lines, trimCR(block[:idx]))
		block = block[idx+1:]
	}
	return lines
}

func trimCR(line []byte) []byte {
	if len(line) > 0 && line[len(line)-1] == '\r' {
		return line[:len(line)-1]
	}
	return line
}
