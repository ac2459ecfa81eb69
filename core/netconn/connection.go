// Package netconn implements component B of the spec: a Connection owns
// exactly one socket, its input/output byte buffers, and a deadline timer,
// and exposes the read/write primitives the request parser, response
// emitter, static responder and app bridge are all built on top of.
package netconn

import (
	"bytes"
	"errors"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/searchktools/wsgiboost/core/pools"
)

// initialBufSize is the tier of core/pools.BytePool each Connection's
// input/output buffer is drawn from at construction; both buffers grow
// past this with plain append if a request or response needs more, and
// only the original tier-sized backing array is ever handed back.
const initialBufSize = 8192

// ErrTimeout is returned (wrapped) when a read/write is abandoned because
// the deadline timer fired and closed the socket.
var ErrTimeout = errors.New("netconn: deadline exceeded")

// ErrClosed is returned when an operation is attempted on a Connection
// that has already been closed.
var ErrClosed = errors.New("netconn: connection closed")

// ErrUnsupported is returned by operations that need the raw fd (the
// zero-copy sendfile path) on a net.Conn-backed Connection (TLS).
var ErrUnsupported = errors.New("netconn: unsupported on this backend")

// Waiter is implemented by the reactor executor that owns a Connection's
// file descriptor. It is the only cross-goroutine synchronization point a
// Connection uses in Async mode (spec.md §4.A handoff note).
type Waiter interface {
	WaitReadable(fd int) error
	// WaitWritable arms write-readiness watching for fd (if not already
	// armed) and blocks until the socket is writable or an error occurs.
	WaitWritable(fd int) error
}

// readLineGrowth is the growth increment for ReadLine, matching spec.md §4.B.
const readLineGrowth = 128

// Connection is the per-socket state machine of spec.md §3/§4.B. A given
// Connection is only ever touched by the single goroutine processing it;
// the Waiter is the sole exception, and even it is only ever woken by
// that Connection's own owning executor.
type Connection struct {
	fd      int    // raw fd, -1 when backed by a plain net.Conn (TLS, see core/tls)
	netConn net.Conn // non-nil only for the TLS/no-raw-fd backend

	waiter Waiter

	in       []byte // unconsumed input bytes live at in[inPos:]
	inPos    int
	out      []byte // buffered output, flushed in one Flush call
	bytesLeft int64 // remaining unread request-body bytes; -1 = no length set, reads are not bounded

	headerTimeout  time.Duration
	contentTimeout time.Duration
	deadline       *DeadlineTimer

	keepAlive bool
	closed    bool

	remoteAddr string
}

// New constructs a Connection around an already-nonblocking raw fd,
// registered with the given Waiter (reactor executor).
func New(fd int, waiter Waiter, remoteAddr string, headerTimeout, contentTimeout time.Duration) *Connection {
	c := &Connection{
		fd:             fd,
		waiter:         waiter,
		in:             pools.GetBytes(initialBufSize)[:0],
		out:            pools.GetBytes(initialBufSize)[:0],
		bytesLeft:      -1,
		headerTimeout:  headerTimeout,
		contentTimeout: contentTimeout,
		remoteAddr:     remoteAddr,
		keepAlive:      true,
	}
	c.deadline = NewDeadlineTimer(c.onDeadlineExpired)
	return c
}

// NewFromNetConn builds a Connection over a blocking net.Conn (used by the
// TLS accept stub, core/tls, where the stdlib handshake needs a real
// net.Conn and raw-fd registration in our poller is not available).
func NewFromNetConn(nc net.Conn, headerTimeout, contentTimeout time.Duration) *Connection {
	c := &Connection{
		fd:             -1,
		netConn:        nc,
		in:             pools.GetBytes(initialBufSize)[:0],
		out:            pools.GetBytes(initialBufSize)[:0],
		bytesLeft:      -1,
		headerTimeout:  headerTimeout,
		contentTimeout: contentTimeout,
		remoteAddr:     nc.RemoteAddr().String(),
		keepAlive:      true,
	}
	c.deadline = NewDeadlineTimer(c.onDeadlineExpired)
	return c
}

// Fd returns the raw file descriptor, or -1 for a net.Conn-backed
// Connection (TLS).
func (c *Connection) Fd() int { return c.fd }

// RemoteAddr returns the peer address captured at accept time.
func (c *Connection) RemoteAddr() string { return c.remoteAddr }

// KeepAlive reports whether the connection should be reused for another
// request after the current response completes.
func (c *Connection) KeepAlive() bool { return c.keepAlive }

// SetKeepAlive is called by the response emitter (§3 Response invariant
// iii: keep-alive is forced false after any write error or post-header
// app failure) and by the request parser's persistence policy (§4.C.4).
func (c *Connection) SetKeepAlive(v bool) { c.keepAlive = v }

func (c *Connection) onDeadlineExpired() {
	c.shutdownAndClose()
}

func (c *Connection) shutdownAndClose() {
	if c.closed {
		return
	}
	c.closed = true
	if c.netConn != nil {
		c.netConn.Close()
		return
	}
	syscall.Shutdown(c.fd, syscall.SHUT_RDWR)
	syscall.Close(c.fd)
}

// Close releases the socket, cancels the timer, and drops both buffers
// (spec.md §5 "Resource release").
func (c *Connection) Close() {
	c.deadline.Cancel()
	c.shutdownAndClose()
	if cap(c.in) == initialBufSize {
		pools.PutBytes(c.in[:cap(c.in)])
	}
	if cap(c.out) == initialBufSize {
		pools.PutBytes(c.out[:cap(c.out)])
	}
	c.in = nil
	c.out = nil
}

// SetPostContentLength initializes bytesLeft for the request body. n is
// the declared Content-Length; -1 means "no body declared" — subsequent
// reads return io.EOF immediately. ReadHeader may already have pulled
// some of the body off the wire in the same read as the header block, so
// bytesLeft is seeded net of whatever is already sitting unconsumed in
// the input buffer: it tracks bytes still to be fetched from the socket,
// not bytes still to be delivered to the caller (see available() for the
// latter).
func (c *Connection) SetPostContentLength(n int64) {
	if n <= 0 {
		c.bytesLeft = 0
		return
	}
	buffered := int64(c.available())
	if buffered > n {
		buffered = n
	}
	c.bytesLeft = n - buffered
}

// BytesLeft returns the remaining unread request-body byte count.
func (c *Connection) BytesLeft() int64 { return c.bytesLeft }

func (c *Connection) compact() {
	if c.inPos == 0 {
		return
	}
	n := copy(c.in, c.in[c.inPos:])
	c.in = c.in[:n]
	c.inPos = 0
}

// rawRead performs one non-blocking (or blocking net.Conn) read attempt.
func (c *Connection) rawRead(buf []byte) (int, error) {
	if c.netConn != nil {
		return c.netConn.Read(buf)
	}
	n, err := syscall.Read(c.fd, buf)
	if n < 0 {
		n = 0
	}
	return n, err
}

func (c *Connection) rawWrite(buf []byte) (int, error) {
	if c.netConn != nil {
		return c.netConn.Write(buf)
	}
	n, err := syscall.Write(c.fd, buf)
	if n < 0 {
		n = 0
	}
	return n, err
}

func isWouldBlock(err error) bool {
	return errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK)
}

// fillOnce appends at least one byte to c.in unless the peer is gone
// (n==0, io.EOF) or an unrecoverable error happens. For Async mode it
// suspends on the Waiter when the socket would block; for Blocking mode
// it spins in place, matching spec.md §5 item 3 (no soft yield may occur
// while the interpreter token is held).
func (c *Connection) fillOnce(mode IOMode) error {
	if c.closed {
		return ErrClosed
	}
	scratch := make([]byte, 4096)
	for {
		n, err := c.rawRead(scratch)
		if n > 0 {
			c.in = append(c.in, scratch[:n]...)
			return nil
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		if !isWouldBlock(err) && c.netConn == nil {
			return err
		}
		if c.netConn != nil && !isWouldBlock(err) {
			return err
		}
		// Would block: wait for readiness (async) or spin (blocking).
		if mode == Blocking || c.waiter == nil {
			time.Sleep(50 * time.Microsecond)
			if c.closed {
				return ErrClosed
			}
			continue
		}
		if werr := c.waiter.WaitReadable(c.fd); werr != nil {
			return werr
		}
		if c.closed {
			return ErrClosed
		}
	}
}

// ReadHeader arms the header-phase timer, reads until the blank-line
// terminator, consumes those bytes (header block plus terminator) from the
// input buffer, cancels the timer, and returns the header block without
// its trailing CRLFCRLF.
func (c *Connection) ReadHeader(mode IOMode) ([]byte, error) {
	c.deadline.Arm(c.headerTimeout)
	defer c.deadline.Cancel()

	for {
		c.compact()
		if idx := bytes.Index(c.in, []byte("\r\n\r\n")); idx >= 0 {
			header := append([]byte(nil), c.in[:idx]...)
			c.inPos = idx + 4
			return header, nil
		}
		if err := c.fillOnce(mode); err != nil {
			return nil, err
		}
	}
}

// ReadIntoBuffer ensures the input buffer holds at least n unconsumed
// body bytes, reading from the socket as needed, but never waits on the
// wire for bytes beyond the declared body: once bytesLeft reaches 0, all
// of the body has already been pulled off the socket (whether just now
// or earlier, alongside the header), and any shortfall against n is
// reported back to the caller rather than blocked on. Each byte newly
// read from the wire decrements bytesLeft exactly once (spec.md §9's
// resolved open question).
func (c *Connection) ReadIntoBuffer(n int, mode IOMode) error {
	if c.available() >= n || c.bytesLeft == 0 {
		return nil
	}
	c.deadline.Arm(c.contentTimeout)
	defer c.deadline.Cancel()

	for c.available() < n && c.bytesLeft != 0 {
		before := len(c.in)
		if err := c.fillOnce(mode); err != nil {
			return err
		}
		gained := int64(len(c.in) - before)
		if c.bytesLeft >= 0 {
			if gained > c.bytesLeft {
				gained = c.bytesLeft
			}
			c.bytesLeft -= gained
		}
	}
	return nil
}

func (c *Connection) available() int { return len(c.in) - c.inPos }

// ReadBytes reads exactly n body bytes into out (sized n), or fewer if
// the body is exhausted first, built on ReadIntoBuffer.
func (c *Connection) ReadBytes(out []byte, mode IOMode) (int, error) {
	n := len(out)
	if c.bytesLeft == 0 && c.available() == 0 {
		return 0, io.EOF
	}
	if err := c.ReadIntoBuffer(n, mode); err != nil && c.available() == 0 {
		return 0, err
	}
	got := c.available()
	if got > n {
		got = n
	}
	copy(out[:got], c.in[c.inPos:c.inPos+got])
	c.inPos += got
	c.compact()
	return got, nil
}

// ReadLine accumulates body bytes until LF is seen or the body is
// exhausted, growing the search window in 128-byte increments.
func (c *Connection) ReadLine(mode IOMode) ([]byte, error) {
	want := readLineGrowth
	for {
		if err := c.ReadIntoBuffer(want, mode); err != nil && c.available() == 0 {
			return nil, err
		}
		if idx := bytes.IndexByte(c.in[c.inPos:c.inPos+c.available()], '\n'); idx >= 0 {
			line := append([]byte(nil), c.in[c.inPos:c.inPos+idx+1]...)
			c.inPos += idx + 1
			c.compact()
			return line, nil
		}
		if c.bytesLeft == 0 && c.available() < want {
			line := append([]byte(nil), c.in[c.inPos:c.inPos+c.available()]...)
			c.inPos += c.available()
			c.compact()
			if len(line) == 0 {
				return nil, io.EOF
			}
			return line, nil
		}
		want += readLineGrowth
	}
}

// BufferOutput appends bytes to the output buffer without touching the
// socket.
func (c *Connection) BufferOutput(b []byte) {
	c.out = append(c.out, b...)
}

// OutputLen reports how many buffered-but-unflushed bytes are pending.
func (c *Connection) OutputLen() int { return len(c.out) }

// Flush writes the entire output buffer to the socket, arming the
// content-phase timer for the duration of the write. On success the
// output buffer is emptied; per the Response invariant, it must never be
// partially flushed across a keep-alive boundary, so Flush always drains
// fully or reports an error.
func (c *Connection) Flush(mode IOMode) error {
	if len(c.out) == 0 {
		return nil
	}
	c.deadline.Arm(c.contentTimeout)
	defer c.deadline.Cancel()

	written := 0
	for written < len(c.out) {
		n, err := c.rawWrite(c.out[written:])
		if n > 0 {
			written += n
			continue
		}
		if err == nil {
			continue
		}
		if isWouldBlock(err) {
			if mode == Blocking || c.waiter == nil {
				time.Sleep(50 * time.Microsecond)
				if c.closed {
					return ErrClosed
				}
				continue
			}
			if werr := c.waiter.WaitWritable(c.fd); werr != nil {
				c.SetKeepAlive(false)
				return werr
			}
			continue
		}
		c.SetKeepAlive(false)
		return err
	}
	c.out = c.out[:0]
	return nil
}

// SendFile writes count bytes from f starting at offset directly to the
// socket via the zero-copy sendfile syscall (spec.md §4.E's fast path
// for an identity, non-range, non-gzip response). It is only available
// on a raw-fd-backed Connection; TLS connections (core/tls) must fall
// back to buffered transfer.
func (c *Connection) SendFile(f *os.File, offset, count int64) (int64, error) {
	if c.netConn != nil {
		return 0, ErrUnsupported
	}
	c.deadline.Arm(c.contentTimeout)
	defer c.deadline.Cancel()

	var written int64
	for written < count {
		n, err := syscall.Sendfile(c.fd, int(f.Fd()), &offset, int(count-written))
		if n > 0 {
			written += int64(n)
			continue
		}
		if err == nil {
			if n == 0 {
				break
			}
			continue
		}
		if isWouldBlock(err) {
			if c.waiter == nil {
				time.Sleep(50 * time.Microsecond)
				if c.closed {
					return written, ErrClosed
				}
				continue
			}
			if werr := c.waiter.WaitWritable(c.fd); werr != nil {
				c.SetKeepAlive(false)
				return written, werr
			}
			continue
		}
		c.SetKeepAlive(false)
		return written, err
	}
	return written, nil
}
