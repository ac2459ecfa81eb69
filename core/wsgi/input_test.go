package wsgi

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"

	"github.com/searchktools/wsgiboost/core/netconn"
)

func newInputLoopback(t *testing.T) (client net.Conn, conn *netconn.Connection) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { server.Close(); client.Close() })
	conn = netconn.NewFromNetConn(server, time.Second, time.Second)
	return client, conn
}

func TestInput_ReadLineAndReadLines(t *testing.T) {
	client, conn := newInputLoopback(t)
	go func() { client.Write([]byte("one\ntwo\nthree")) }()

	body := "one\ntwo\nthree"
	conn.SetPostContentLength(int64(len(body)))
	in := NewInput(conn, int64(len(body)))

	line, err := in.ReadLine(-1)
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if string(line) != "one\n" {
		t.Fatalf("ReadLine = %q, want %q", line, "one\n")
	}

	rest, err := in.ReadLines(-1)
	if err != nil {
		t.Fatalf("ReadLines: %v", err)
	}
	if len(rest) != 2 || string(rest[0]) != "two\n" || string(rest[1]) != "three" {
		t.Fatalf("ReadLines = %q", rest)
	}
}

func TestInput_NextIteratesLines(t *testing.T) {
	client, conn := newInputLoopback(t)
	go func() { client.Write([]byte("a\nb\n")) }()

	conn.SetPostContentLength(4)
	in := NewInput(conn, 4)

	var got [][]byte
	for {
		line, err := in.Next()
		if err != nil {
			if err != io.EOF {
				t.Fatalf("Next: %v", err)
			}
			break
		}
		got = append(got, line)
	}
	if len(got) != 2 || string(got[0]) != "a\n" || string(got[1]) != "b\n" {
		t.Fatalf("Next iteration = %q", got)
	}
}

type closeTrackingReader struct {
	r      *bytes.Reader
	closed bool
}

func (c *closeTrackingReader) Read(p []byte) (int, error) { return c.r.Read(p) }

func (c *closeTrackingReader) Close() error {
	c.closed = true
	return nil
}

func TestFileWrapper_ClosesUnderlyingFileOnIterationEnd(t *testing.T) {
	src := &closeTrackingReader{r: bytes.NewReader([]byte("hello"))}
	it := FileWrapper(src, 0)

	chunk, err := it.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if string(chunk) != "hello" {
		t.Fatalf("chunk = %q", chunk)
	}
	if src.closed {
		t.Fatalf("closed before iteration end")
	}

	if _, err := it.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF at iteration end, got %v", err)
	}
	if !src.closed {
		t.Fatalf("expected underlying reader closed on iteration end")
	}
}

func TestFileWrapper_DefaultBlockSizeIs8192(t *testing.T) {
	src := bytes.NewReader(bytes.Repeat([]byte("x"), 10000))
	it := FileWrapper(src, 0)

	chunk, err := it.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(chunk) != 8192 {
		t.Fatalf("first chunk = %d bytes, want 8192", len(chunk))
	}
}
