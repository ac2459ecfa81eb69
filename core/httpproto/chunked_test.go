package httpproto

import (
	"bytes"
	"testing"

	"github.com/searchktools/wsgiboost/core/netconn"
)

func TestFrameChunk(t *testing.T) {
	got := frameChunk([]byte("bbbb"))
	want := []byte("4\r\nbbbb\r\n")
	if !bytes.Equal(got, want) {
		t.Fatalf("frameChunk = %q, want %q", got, want)
	}
}

func TestReadChunkedBody(t *testing.T) {
	client, conn := newLoopbackPair(t)

	go func() {
		client.Write([]byte("3\r\nfoo\r\n4\r\nbarz\r\n0\r\n\r\n"))
	}()

	body, err := ReadChunkedBody(conn, netconn.Async)
	if err != nil {
		t.Fatalf("ReadChunkedBody: %v", err)
	}
	if string(body) != "foobarz" {
		t.Fatalf("body = %q, want %q", body, "foobarz")
	}
}
