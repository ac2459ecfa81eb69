package server

import (
	"bufio"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/searchktools/wsgiboost/core/httpproto"
	"github.com/searchktools/wsgiboost/core/wsgi"
)

func waitForAccept(t *testing.T, addr string) net.Conn {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			return conn
		}
		if time.Now().After(deadline) {
			t.Fatalf("dial %s: %v", addr, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// TestServer_StaticScenarios drives spec.md §8 seed scenarios 3, 4 and
// 6 against a real listener with a catch-all static route.
func TestServer_StaticScenarios(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>hi</html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	binPath := filepath.Join(dir, "f.bin")
	body := make([]byte, 100)
	for i := range body {
		body[i] = byte(i)
	}
	if err := os.WriteFile(binPath, body, 0o644); err != nil {
		t.Fatal(err)
	}

	const addr = "127.0.0.1:18781"
	s := New(Options{Addr: addr, Executors: 1, ReuseAddress: true})
	// "/assets/" must be registered ahead of the "/" catch-all: route
	// matching is first-match-wins, and "/" would otherwise also match
	// every "/assets/..." path.
	if err := s.AddStaticRoute("/assets/", dir); err != nil {
		t.Fatalf("AddStaticRoute: %v", err)
	}
	if err := s.AddStaticRoute("/", dir); err != nil {
		t.Fatalf("AddStaticRoute: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	t.Run("conditional GET returns 304", func(t *testing.T) {
		fi, err := os.Stat(filepath.Join(dir, "index.html"))
		if err != nil {
			t.Fatal(err)
		}
		conn := waitForAccept(t, addr)
		defer conn.Close()

		req := "GET /index.html HTTP/1.1\r\nHost: x\r\nIf-Modified-Since: " +
			fi.ModTime().UTC().Format(httpproto.DateFormat) + "\r\n\r\n"
		if _, err := conn.Write([]byte(req)); err != nil {
			t.Fatal(err)
		}
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
		if err != nil {
			t.Fatalf("ReadResponse: %v", err)
		}
		if resp.StatusCode != 304 {
			t.Fatalf("status = %d, want 304", resp.StatusCode)
		}
		if resp.ContentLength != 0 {
			t.Fatalf("Content-Length = %d, want 0", resp.ContentLength)
		}
	})

	t.Run("range request returns 206", func(t *testing.T) {
		conn := waitForAccept(t, addr)
		defer conn.Close()

		req := "GET /f.bin HTTP/1.1\r\nHost: x\r\nRange: bytes=10-19\r\n\r\n"
		if _, err := conn.Write([]byte(req)); err != nil {
			t.Fatal(err)
		}
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
		if err != nil {
			t.Fatalf("ReadResponse: %v", err)
		}
		if resp.StatusCode != 206 {
			t.Fatalf("status = %d, want 206", resp.StatusCode)
		}
		if got := resp.Header.Get("Content-Range"); got != "bytes 10-19/100" {
			t.Fatalf("Content-Range = %q", got)
		}
		if resp.ContentLength != 10 {
			t.Fatalf("Content-Length = %d, want 10", resp.ContentLength)
		}
		got, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != string(body[10:20]) {
			t.Fatalf("range body mismatch: %v", got)
		}
	})

	t.Run("non-root route prefix is stripped before resolving under root", func(t *testing.T) {
		conn := waitForAccept(t, addr)
		defer conn.Close()

		if _, err := conn.Write([]byte("GET /assets/index.html HTTP/1.1\r\nHost: x\r\n\r\n")); err != nil {
			t.Fatal(err)
		}
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
		if err != nil {
			t.Fatalf("ReadResponse: %v", err)
		}
		if resp.StatusCode != 200 {
			t.Fatalf("status = %d, want 200 (route prefix must not be joined onto root)", resp.StatusCode)
		}
		got, _ := io.ReadAll(resp.Body)
		if string(got) != "<html>hi</html>" {
			t.Fatalf("body = %q", got)
		}
	})

	t.Run("unsupported method is 405 and closes the connection", func(t *testing.T) {
		conn := waitForAccept(t, addr)
		defer conn.Close()

		if _, err := conn.Write([]byte("DELETE / HTTP/1.0\r\n\r\n")); err != nil {
			t.Fatal(err)
		}
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		br := bufio.NewReader(conn)
		resp, err := http.ReadResponse(br, nil)
		if err != nil {
			t.Fatalf("ReadResponse: %v", err)
		}
		if resp.StatusCode != 405 {
			t.Fatalf("status = %d, want 405", resp.StatusCode)
		}
		io.Copy(io.Discard, resp.Body)

		// HTTP/1.0 with no Connection: keep-alive must not be reused; the
		// server closes the socket once the response is written.
		conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		one := make([]byte, 1)
		if n, err := conn.Read(one); err == nil && n > 0 {
			t.Fatalf("expected connection to be closed, got %d more bytes", n)
		}
	})
}

// TestServer_AppScenarios drives spec.md §8 seed scenarios 1, 2 and 5
// against a real listener with an installed application.
func TestServer_AppScenarios(t *testing.T) {
	const addr = "127.0.0.1:18782"
	s := New(Options{Addr: addr, Executors: 1, ReuseAddress: true})
	s.SetApp(wsgi.AppFunc(func(env wsgi.Environ, start wsgi.StartResponse) wsgi.ChunkIterator {
		switch env["PATH_INFO"] {
		case "/hello":
			start(200, "OK", []httpproto.HeaderField{{Name: "Content-Length", Value: "12"}}, nil)
			return wsgi.NewSliceIterator([]byte("Hello World!"))
		case "/chunks":
			start(200, "OK", nil, nil)
			return wsgi.NewSliceIterator([]byte("aaa"), []byte(""), []byte("bbbb"))
		case "/echo":
			body, _ := io.ReadAll(env["wsgi.input"].(io.Reader))
			start(200, "OK", []httpproto.HeaderField{
				{Name: "Content-Length", Value: strconv.Itoa(len(body))},
			}, nil)
			return wsgi.NewSliceIterator(body)
		default:
			start(404, "Not Found", nil, nil)
			return wsgi.NewSliceIterator()
		}
	}))
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	t.Run("declared Content-Length body is not chunked", func(t *testing.T) {
		conn := waitForAccept(t, addr)
		defer conn.Close()

		if _, err := conn.Write([]byte("GET /hello HTTP/1.1\r\nHost: x\r\n\r\n")); err != nil {
			t.Fatal(err)
		}
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
		if err != nil {
			t.Fatalf("ReadResponse: %v", err)
		}
		if resp.StatusCode != 200 || resp.ContentLength != 12 {
			t.Fatalf("status=%d len=%d", resp.StatusCode, resp.ContentLength)
		}
		got, _ := io.ReadAll(resp.Body)
		if string(got) != "Hello World!" {
			t.Fatalf("body = %q", got)
		}
	})

	t.Run("undeclared length is chunked", func(t *testing.T) {
		conn := waitForAccept(t, addr)
		defer conn.Close()

		if _, err := conn.Write([]byte("GET /chunks HTTP/1.1\r\nHost: x\r\n\r\n")); err != nil {
			t.Fatal(err)
		}
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
		if err != nil {
			t.Fatalf("ReadResponse: %v", err)
		}
		if resp.TransferEncoding == nil || resp.TransferEncoding[0] != "chunked" {
			t.Fatalf("expected chunked Transfer-Encoding, got %v", resp.TransferEncoding)
		}
		got, _ := io.ReadAll(resp.Body)
		if string(got) != "aaabbbb" {
			t.Fatalf("dechunked body = %q, want %q", got, "aaabbbb")
		}
	})

	t.Run("100-continue handshake precedes the app response", func(t *testing.T) {
		conn := waitForAccept(t, addr)
		defer conn.Close()

		req := "POST /echo HTTP/1.1\r\nHost: x\r\nContent-Length: 5\r\nExpect: 100-continue\r\n\r\nhello"
		if _, err := conn.Write([]byte(req)); err != nil {
			t.Fatal(err)
		}
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		br := bufio.NewReader(conn)

		interim, err := http.ReadResponse(br, nil)
		if err != nil {
			t.Fatalf("ReadResponse (interim): %v", err)
		}
		if interim.StatusCode != 100 {
			t.Fatalf("interim status = %d, want 100", interim.StatusCode)
		}

		final, err := http.ReadResponse(br, nil)
		if err != nil {
			t.Fatalf("ReadResponse (final): %v", err)
		}
		if final.StatusCode != 200 {
			t.Fatalf("final status = %d, want 200", final.StatusCode)
		}
		got, _ := io.ReadAll(final.Body)
		if string(got) != "hello" {
			t.Fatalf("echoed body = %q, want %q", got, "hello")
		}
	})
}
