package httpproto

import (
	"strings"
	"testing"

	"github.com/searchktools/wsgiboost/core/netconn"
)

func TestParseHeaderBlock_RequestLineAndHeaders(t *testing.T) {
	block := []byte("GET /hello?x=1 HTTP/1.1\r\nHost: example.com\r\nAccept: a\r\nAccept: b\r\n")
	req, err := parseHeaderBlock(trimTrailer(block))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Method != "GET" || req.Path != "/hello" || req.Query != "x=1" || req.Proto != "HTTP/1.1" {
		t.Fatalf("unexpected request: %+v", req)
	}
	if v, _ := req.Header("Host"); v != "example.com" {
		t.Fatalf("Host = %q", v)
	}
	if v, _ := req.Header("Accept"); v != "a, b" {
		t.Fatalf("duplicate headers should join with \", \", got %q", v)
	}
	if req.ContentLength != -1 {
		t.Fatalf("GET should have ContentLength -1, got %d", req.ContentLength)
	}
	if !req.KeepAlive {
		t.Fatalf("HTTP/1.1 with no Connection header should keep-alive")
	}
}

func trimTrailer(block []byte) []byte {
	return []byte(strings.TrimSuffix(string(block), "\r\n"))
}

func TestParseHeaderBlock_MalformedRequestLine(t *testing.T) {
	_, err := parseHeaderBlock([]byte("GET /only-one-token"))
	var perr *ParseError
	if err == nil {
		t.Fatal("expected an error")
	}
	if !isParseError(err, &perr) || perr.Status != 400 {
		t.Fatalf("expected 400 ParseError, got %v", err)
	}
}

func TestParseHeaderBlock_MissingContentLength(t *testing.T) {
	block := []byte("POST /upload HTTP/1.1\r\nHost: x\r\n")
	_, err := parseHeaderBlock(block)
	var perr *ParseError
	if !isParseError(err, &perr) || perr.Status != 411 {
		t.Fatalf("expected 411 ParseError, got %v", err)
	}
}

func TestParseHeaderBlock_KeepAlivePolicy(t *testing.T) {
	cases := []struct {
		proto string
		conn  string
		want  bool
	}{
		{"HTTP/1.1", "", true},
		{"HTTP/1.1", "close", false},
		{"HTTP/1.1", "keep-alive", true},
		{"HTTP/1.0", "", false},
		{"HTTP/1.0", "keep-alive", true},
	}
	for _, c := range cases {
		lines := "GET / " + c.proto + "\r\n"
		if c.conn != "" {
			lines += "Connection: " + c.conn + "\r\n"
		}
		req, err := parseHeaderBlock([]byte(lines))
		if err != nil {
			t.Fatalf("%+v: %v", c, err)
		}
		if req.KeepAlive != c.want {
			t.Fatalf("%+v: KeepAlive = %v, want %v", c, req.KeepAlive, c.want)
		}
	}
}

func isParseError(err error, target **ParseError) bool {
	if pe, ok := err.(*ParseError); ok {
		*target = pe
		return true
	}
	return false
}

// Exercise ReadRequest end to end over a real loopback Connection (via a
// pipe-backed net.Conn), matching the teacher's context_test.go style of
// driving real objects instead of mocks.
func TestReadRequest_OverConnection(t *testing.T) {
	client, conn := newLoopbackConnection(t)
	defer client.Close()

	go func() {
		client.Write([]byte("GET /x HTTP/1.1\r\nHost: h\r\n\r\n"))
	}()

	req, err := ReadRequest(conn, netconn.Async)
	if err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	if req.Method != "GET" || req.Path != "/x" {
		t.Fatalf("unexpected request: %+v", req)
	}
}
