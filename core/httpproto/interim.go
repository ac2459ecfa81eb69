package httpproto

import "github.com/searchktools/wsgiboost/core/netconn"

// WriteContinue emits the "100 Continue" interim status line used by
// the 100-continue handshake of spec.md §9 (honored only when the
// request declares a body length greater than zero). It bypasses
// Response entirely since the interim line carries no headers and
// must not set HeaderSent.
func WriteContinue(conn *netconn.Connection, proto string, mode netconn.IOMode) error {
	conn.BufferOutput([]byte(proto + " 100 Continue\r\n\r\n"))
	return conn.Flush(mode)
}
