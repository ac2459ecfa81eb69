package httpproto

import (
	"bytes"
	"strconv"

	"github.com/searchktools/wsgiboost/core/netconn"
)

// chunkTerminator is the zero-length chunk plus the trailing CRLF that
// ends a chunked body (no trailer fields are ever emitted).
var chunkTerminator = []byte("0\r\n\r\n")

// frameChunk wraps data in one chunked-transfer-coding segment: its
// hex length, CRLF, the data itself, then CRLF.
func frameChunk(data []byte) []byte {
	buf := make([]byte, 0, len(data)+16)
	buf = append(buf, strconv.FormatInt(int64(len(data)), 16)...)
	buf = append(buf, "\r\n"...)
	buf = append(buf, data...)
	buf = append(buf, "\r\n"...)
	return buf
}

// ReadChunkedBody decodes a client-supplied chunked request body. No
// request path in this module calls it: the parser answers a POST, PUT
// or PATCH without Content-Length with 411, and the static responder
// accepts only GET and HEAD. It stops at the zero-length terminator
// chunk and does not surface trailer headers.
func ReadChunkedBody(conn *netconn.Connection, mode netconn.IOMode) ([]byte, error) {
	var body []byte
	for {
		sizeLine, err := conn.ReadLine(mode)
		if err != nil {
			return nil, err
		}
		sizeLine = bytes.TrimRight(sizeLine, "\r\n")
		if idx := bytes.IndexByte(sizeLine, ';'); idx >= 0 {
			sizeLine = sizeLine[:idx]
		}
		size, err := strconv.ParseInt(string(sizeLine), 16, 64)
		if err != nil {
			return nil, badRequest("malformed chunk size")
		}
		if size == 0 {
			// Trailer section, if any, up to the blank line; we do not
			// surface trailers to the caller.
			for {
				line, err := conn.ReadLine(mode)
				if err != nil {
					return nil, err
				}
				if len(bytes.TrimRight(line, "\r\n")) == 0 {
					break
				}
			}
			return body, nil
		}
		chunk := make([]byte, size)
		if _, err := conn.ReadBytes(chunk, mode); err != nil {
			return nil, err
		}
		body = append(body, chunk...)
		// Consume the trailing CRLF after the chunk data.
		if _, err := conn.ReadLine(mode); err != nil {
			return nil, err
		}
	}
}
