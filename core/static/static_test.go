package static

import (
	"bytes"
	"compress/gzip"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/searchktools/wsgiboost/core/httpproto"
	"github.com/searchktools/wsgiboost/core/netconn"
)

func newLoopback(t *testing.T) (client net.Conn, conn *netconn.Connection) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { server.Close(); client.Close() })
	conn = netconn.NewFromNetConn(server, time.Second, time.Second)
	return client, conn
}

func drain(t *testing.T, r net.Conn) []byte {
	t.Helper()
	var buf bytes.Buffer
	tmp := make([]byte, 4096)
	for {
		r.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, err := r.Read(tmp)
		if n > 0 {
			buf.Write(tmp[:n])
		}
		if err != nil {
			return buf.Bytes()
		}
	}
}

func serveAndCapture(t *testing.T, s *Responder, req *httpproto.Request) []byte {
	t.Helper()
	client, conn := newLoopback(t)
	resp := httpproto.NewResponse(conn, "HTTP/1.1", true)

	done := make(chan []byte, 1)
	go func() { done <- drain(t, client) }()

	if err := s.Serve(req, resp, conn, req.Path, netconn.Async); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	client.Close()
	return <-done
}

func getReq(path string, headers map[string]string) *httpproto.Request {
	req := &httpproto.Request{Method: "GET", Path: path, Proto: "HTTP/1.1", ContentLength: -1, KeepAlive: true}
	for k, v := range headers {
		req.Headers.Set(k, v)
	}
	return req
}

func newTestResponder(t *testing.T, root string, useGzip bool) *Responder {
	t.Helper()
	s, err := NewResponder(Options{Root: root, UseGzip: useGzip})
	if err != nil {
		t.Fatalf("NewResponder: %v", err)
	}
	return s
}

func TestServe_TraversalIsClampedToRoot(t *testing.T) {
	dir := t.TempDir()
	s := newTestResponder(t, dir, false)

	// filepath.Clean("/" + decoded) normalizes a leading "../" chain away
	// before it ever reaches Join, so the resolved path can only ever
	// land under root; since nothing exists at root/etc/passwd this
	// reports 404, never the real /etc/passwd contents.
	out := serveAndCapture(t, s, getReq("/../../../etc/passwd", nil))
	if !bytes.Contains(out, []byte("404 Not Found")) {
		t.Fatalf("expected 404 (clamped into root), got %q", out)
	}
}

func TestServe_MissingFileIs404(t *testing.T) {
	dir := t.TempDir()
	s := newTestResponder(t, dir, false)

	out := serveAndCapture(t, s, getReq("/nope.txt", nil))
	if !bytes.Contains(out, []byte("404 Not Found")) {
		t.Fatalf("expected 404, got %q", out)
	}
}

func TestServe_MethodNotAllowed(t *testing.T) {
	dir := t.TempDir()
	mustWriteFile(t, filepath.Join(dir, "a.txt"), "hi")
	s := newTestResponder(t, dir, false)

	req := getReq("/a.txt", nil)
	req.Method = "POST"
	out := serveAndCapture(t, s, req)
	if !bytes.Contains(out, []byte("405 Method Not Allowed")) {
		t.Fatalf("expected 405, got %q", out)
	}
	if !bytes.Contains(out, []byte("Allow: GET, HEAD")) {
		t.Fatalf("expected Allow header, got %q", out)
	}
}

func TestServe_WholeFile(t *testing.T) {
	dir := t.TempDir()
	mustWriteFile(t, filepath.Join(dir, "a.txt"), "hello static world")
	s := newTestResponder(t, dir, false)

	out := serveAndCapture(t, s, getReq("/a.txt", nil))
	if !bytes.Contains(out, []byte("200 OK")) {
		t.Fatalf("expected 200, got %q", out)
	}
	if !bytes.HasSuffix(out, []byte("hello static world")) {
		t.Fatalf("body not served whole: %q", out)
	}
}

func TestServe_ConditionalGetReturns304(t *testing.T) {
	dir := t.TempDir()
	mustWriteFile(t, filepath.Join(dir, "a.txt"), "hello")
	s := newTestResponder(t, dir, false)

	first := serveAndCapture(t, s, getReq("/a.txt", nil))
	etag := extractHeader(first, "ETag")
	if etag == "" {
		t.Fatalf("no ETag in first response: %q", first)
	}

	second := serveAndCapture(t, s, getReq("/a.txt", map[string]string{"If-None-Match": etag}))
	if !bytes.Contains(second, []byte("304 Not Modified")) {
		t.Fatalf("expected 304, got %q", second)
	}
	if !bytes.Contains(second, []byte("Content-Length: 0\r\n")) {
		t.Fatalf("expected explicit zero length on 304: %q", second)
	}
}

func TestServe_RangeRequest(t *testing.T) {
	dir := t.TempDir()
	mustWriteFile(t, filepath.Join(dir, "a.txt"), "0123456789")
	s := newTestResponder(t, dir, false)

	out := serveAndCapture(t, s, getReq("/a.txt", map[string]string{"Range": "bytes=2-5"}))
	if !bytes.Contains(out, []byte("206")) {
		t.Fatalf("expected 206, got %q", out)
	}
	if !bytes.Contains(out, []byte("Content-Range: bytes 2-5/10\r\n")) {
		t.Fatalf("expected Content-Range header, got %q", out)
	}
	if !bytes.HasSuffix(out, []byte("2345")) {
		t.Fatalf("expected body \"2345\", got %q", out)
	}
}

func TestServe_RangeNotSatisfiable(t *testing.T) {
	dir := t.TempDir()
	mustWriteFile(t, filepath.Join(dir, "a.txt"), "0123456789")
	s := newTestResponder(t, dir, false)

	out := serveAndCapture(t, s, getReq("/a.txt", map[string]string{"Range": "bytes=50-60"}))
	if !bytes.Contains(out, []byte("416 Range Not Satisfiable")) {
		t.Fatalf("expected 416, got %q", out)
	}
	if !bytes.Contains(out, []byte("Content-Range: bytes */10\r\n")) {
		t.Fatalf("expected unsatisfiable Content-Range, got %q", out)
	}
}

func TestServe_MalformedRangeIsIgnored(t *testing.T) {
	dir := t.TempDir()
	mustWriteFile(t, filepath.Join(dir, "a.txt"), "0123456789")
	s := newTestResponder(t, dir, false)

	out := serveAndCapture(t, s, getReq("/a.txt", map[string]string{"Range": "items=0-1"}))
	if !bytes.Contains(out, []byte("200 OK")) {
		t.Fatalf("expected malformed Range to be ignored and served as 200, got %q", out)
	}
	if !bytes.HasSuffix(out, []byte("0123456789")) {
		t.Fatalf("expected whole-file body, got %q", out)
	}
}

func TestServe_GzipsCompressibleExtensionWhenAccepted(t *testing.T) {
	dir := t.TempDir()
	body := bytes.Repeat([]byte("compress me please "), 50)
	mustWriteFile(t, filepath.Join(dir, "a.txt"), string(body))
	s := newTestResponder(t, dir, true)

	out := serveAndCapture(t, s, getReq("/a.txt", map[string]string{"Accept-Encoding": "gzip"}))
	if !bytes.Contains(out, []byte("Content-Encoding: gzip\r\n")) {
		t.Fatalf("expected gzip encoding header, got %q", out)
	}
	idx := bytes.Index(out, []byte("\r\n\r\n"))
	if idx < 0 {
		t.Fatalf("no header terminator: %q", out)
	}
	gz, err := gzip.NewReader(bytes.NewReader(out[idx+4:]))
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	got, err := io.ReadAll(gz)
	if err != nil {
		t.Fatalf("gzip read: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Fatalf("decompressed body mismatch")
	}
}

func mustWriteFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func extractHeader(resp []byte, name string) string {
	lines := bytes.Split(resp, []byte("\r\n"))
	prefix := []byte(name + ": ")
	for _, l := range lines {
		if bytes.HasPrefix(l, prefix) {
			return string(l[len(prefix):])
		}
	}
	return ""
}
