package wsgi

import (
	"io"
	"net"
	"strconv"
	"strings"

	"golang.org/x/net/idna"

	"github.com/searchktools/wsgiboost/core/httpproto"
	"github.com/searchktools/wsgiboost/core/netconn"
)

// EnvironParams carries the server-level values that are the same for
// every request (spec.md §4.F groups these under SERVER_* and wsgi.*).
type EnvironParams struct {
	ScriptName  string
	ServerName  string
	ServerPort  string
	URLScheme   string // "http" or "https"
	Multithread bool
}

// BuildEnviron assembles the per-request environment mapping of
// spec.md §4.F: CGI variables, HTTP_* headers, and the wsgi.*
// extension keys, with wsgi.input reading the request body off conn
// (bounded by req.ContentLength) and wsgi.errors writing to errOut.
func BuildEnviron(req *httpproto.Request, conn *netconn.Connection, errOut io.Writer, p EnvironParams) Environ {
	remoteAddr, remotePort := splitHostPort(conn.RemoteAddr())
	serverName, serverPort := p.ServerName, p.ServerPort
	if host, ok := req.Header("Host"); ok {
		serverName, serverPort = hostHeaderToServerName(host, serverName, serverPort)
	}

	env := Environ{
		"REQUEST_METHOD":    req.Method,
		"SCRIPT_NAME":       p.ScriptName,
		"PATH_INFO":         strings.TrimPrefix(req.Path, p.ScriptName),
		"QUERY_STRING":      req.Query,
		"SERVER_NAME":       serverName,
		"SERVER_PORT":       serverPort,
		"SERVER_PROTOCOL":   req.Proto,
		"REMOTE_ADDR":       remoteAddr,
		"REMOTE_HOST":       remoteAddr,
		"REMOTE_PORT":       remotePort,

		"wsgi.version":      [2]int{1, 0},
		"wsgi.url_scheme":   p.URLScheme,
		"wsgi.input":        NewInput(conn, req.ContentLength),
		"wsgi.errors":       errOut,
		"wsgi.multithread":  p.Multithread,
		"wsgi.multiprocess": false,
		"wsgi.run_once":     false,
		"wsgi.file_wrapper": FileWrapper,
	}

	if ct, ok := req.Header("Content-Type"); ok {
		env["CONTENT_TYPE"] = ct
	}
	if req.ContentLength >= 0 {
		env["CONTENT_LENGTH"] = strconv.FormatInt(req.ContentLength, 10)
	}

	for _, f := range req.Headers.All() {
		key := strings.ToLower(f.Name)
		if key == "content-type" || key == "content-length" {
			continue
		}
		env["HTTP_"+strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))] = f.Value
	}

	return env
}

// hostHeaderToServerName derives SERVER_NAME/SERVER_PORT from the
// client-supplied Host header, IDNA-normalizing an internationalized
// hostname to its ASCII (punycode) form the way a name-based virtual
// host lookup would need it. Falls back to the configured defaults if
// the header is empty or fails to normalize.
func hostHeaderToServerName(host, fallbackName, fallbackPort string) (name, port string) {
	h, p, err := net.SplitHostPort(host)
	if err != nil {
		h, p = host, fallbackPort
	}
	if h == "" {
		return fallbackName, fallbackPort
	}
	ascii, err := idna.Lookup.ToASCII(h)
	if err != nil {
		return fallbackName, fallbackPort
	}
	return ascii, p
}

func splitHostPort(addr string) (host, port string) {
	h, p, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, ""
	}
	return h, p
}

// defaultFileWrapperBlockSize is wsgi.file_wrapper's documented default
// block_size (spec.md §6: "__call__(file, block_size=8192)").
const defaultFileWrapperBlockSize = 8192

// FileWrapper is the wsgi.file_wrapper extension: a generic block
// iterator over any readable, since the static responder already takes
// the sendfile fast path itself and applications have no occasion to
// hand this server a raw *os.File for that case. It still honors the
// interface's "closes the underlying file on iteration end" contract
// (spec.md §6) for applications that wrap their own file handles.
func FileWrapper(f io.Reader, blockSize int) ChunkIterator {
	return &readerIterator{r: f, blockSize: blockSize}
}

type readerIterator struct {
	r         io.Reader
	blockSize int
	closed    bool
}

func (it *readerIterator) Next() ([]byte, error) {
	size := it.blockSize
	if size <= 0 {
		size = defaultFileWrapperBlockSize
	}
	buf := make([]byte, size)
	n, err := it.r.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err == nil {
		err = io.EOF
	}
	it.close()
	return nil, err
}

// Close implements io.Closer, so the bridge's closeIfCloser also
// releases the underlying readable if iteration is abandoned before
// EOF (e.g. a write error cuts the response short).
func (it *readerIterator) Close() error {
	it.close()
	return nil
}

// close releases the underlying readable once, on the first Next call
// that observes EOF or a read error (iteration end), or on an earlier
// explicit Close.
func (it *readerIterator) close() {
	if it.closed {
		return
	}
	it.closed = true
	if c, ok := it.r.(io.Closer); ok {
		c.Close()
	}
}
