package httpproto

import (
	"net"
	"testing"
	"time"

	"github.com/searchktools/wsgiboost/core/netconn"
)

// newLoopbackConnection builds a netconn.Connection backed by an
// in-memory net.Pipe, for tests that need to exercise ReadRequest/
// Response against a real Connection without a raw fd or poller.
func newLoopbackConnection(t *testing.T) (client net.Conn, conn *netconn.Connection) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { server.Close() })
	conn = netconn.NewFromNetConn(server, 5*time.Second, 5*time.Second)
	return client, conn
}
