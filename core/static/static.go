// Package static implements component E of the spec: a static-file
// responder serving a content root with conditional GET, single-range
// support, and gzip-on-compressible-extension, using
// netconn.Connection.SendFile as the zero-copy fast path (core/sendfile
// supplies the content-type table).
package static

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/searchktools/wsgiboost/config"
	"github.com/searchktools/wsgiboost/core/httpproto"
	"github.com/searchktools/wsgiboost/core/netconn"
	"github.com/searchktools/wsgiboost/core/optimize"
	"github.com/searchktools/wsgiboost/core/pools"
	"github.com/searchktools/wsgiboost/core/sendfile"
)

// transferWindow is the buffered-copy chunk size for whole and range
// bodies on a Connection without a raw fd (TLS), where the zero-copy
// sendfile path is unavailable. Gzip responses are written as one
// in-memory body instead.
const transferWindow = 128 * 1024

// compressibleExt is carried from the original implementation's
// extension table (spec.md §9 "Supplemented from original_source").
var compressibleExt = map[string]bool{
	".html": true, ".htm": true, ".css": true, ".js": true,
	".json": true, ".xml": true, ".svg": true, ".txt": true,
	".ttf": true,
}

// Options configures a Responder.
type Options struct {
	Root         string
	IndexFile    string // default "index.html"
	CacheControl string // default "public, max-age=3600"
	UseGzip      bool
	WorkerPool   *pools.WorkerPool // optional; nil compresses inline
	Logger       *logrus.Logger

	// Manager, when set, is consulted on every request for the
	// "use_gzip" and "static_cache_control" toggles ahead of the
	// Options values above, letting an operator flip compression or
	// caching without restarting the listener.
	Manager *config.Manager
}

// Responder serves files rooted at a single directory.
type Responder struct {
	root         string
	indexFile    string
	cacheControl string
	useGzip      bool
	pool         *pools.WorkerPool
	log          *logrus.Logger
	manager      *config.Manager
}

// NewResponder builds a Responder for opts.Root, which must already
// exist and be a directory.
func NewResponder(opts Options) (*Responder, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("static: root %q is not a directory", root)
	}
	index := opts.IndexFile
	if index == "" {
		index = "index.html"
	}
	cc := opts.CacheControl
	if cc == "" {
		cc = "public, max-age=3600"
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Responder{
		root:         root,
		indexFile:    index,
		cacheControl: cc,
		useGzip:      opts.UseGzip,
		pool:         opts.WorkerPool,
		log:          log,
		manager:      opts.Manager,
	}, nil
}

// effectiveToggles resolves the live use_gzip/static_cache_control
// settings, preferring the Manager's current value when one is
// configured.
func (s *Responder) effectiveToggles() (useGzip bool, cacheControl string) {
	if s.manager == nil {
		return s.useGzip, s.cacheControl
	}
	return s.manager.GetBool("use_gzip", s.useGzip), s.manager.GetString("static_cache_control", s.cacheControl)
}

// Serve implements the unchanged 8-step algorithm of spec.md §4.E:
// reject unsupported methods, resolve the path under root, reject
// traversal, stat (following to index file for a directory), evaluate
// conditional-GET, pick content type, optionally gzip in memory, then
// transfer the body (whole, ranged, sendfile, or buffered) honoring
// HEAD. routedPath is req.Path with the matched route prefix already
// stripped, so a responder mounted below "/" resolves files relative to
// its own route rather than the full request path.
func (s *Responder) Serve(req *httpproto.Request, resp *httpproto.Response, conn *netconn.Connection, routedPath string, mode netconn.IOMode) error {
	if req.Method != "GET" && req.Method != "HEAD" {
		resp.Headers().Set("Allow", "GET, HEAD")
		return resp.SendHTML(405, "405 Method Not Allowed", "Method Not Allowed",
			"This resource only supports GET and HEAD.", mode)
	}

	fsPath, err := s.resolvePath(routedPath)
	if err != nil {
		return resp.SendHTML(403, "403 Forbidden", "Forbidden", "Access denied.", mode)
	}

	fi, err := os.Stat(fsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return resp.SendHTML(404, "404 Not Found", "Not Found", "The requested resource was not found.", mode)
		}
		return resp.SendHTML(500, "500 Internal Server Error", "Internal Server Error", "", mode)
	}
	if fi.IsDir() {
		fsPath = filepath.Join(fsPath, s.indexFile)
		fi, err = os.Stat(fsPath)
		if err != nil {
			return resp.SendHTML(404, "404 Not Found", "Not Found", "No index file in this directory.", mode)
		}
	}

	modTime := fi.ModTime().UTC()
	etag := fmt.Sprintf(`"%x-%x"`, modTime.Unix(), fi.Size())

	if inm, ok := req.Header("If-None-Match"); ok && optimize.FastEqual(inm, etag) {
		resp.Headers().Set("ETag", etag)
		resp.Headers().Set("Last-Modified", modTime.Format(httpproto.DateFormat))
		return resp.Finish304(mode)
	}
	if ims, ok := req.Header("If-Modified-Since"); ok {
		// The header carries whole seconds, so compare at that precision.
		if t, err := time.Parse(httpproto.DateFormat, ims); err == nil && !modTime.Truncate(time.Second).After(t) {
			resp.Headers().Set("ETag", etag)
			resp.Headers().Set("Last-Modified", modTime.Format(httpproto.DateFormat))
			return resp.Finish304(mode)
		}
	}

	useGzip, cacheControl := s.effectiveToggles()

	contentType := sendfile.GetContentType(fsPath)
	resp.Headers().Set("Content-Type", contentType)
	resp.Headers().Set("ETag", etag)
	resp.Headers().Set("Last-Modified", modTime.Format(httpproto.DateFormat))
	resp.Headers().Set("Cache-Control", cacheControl)

	ext := strings.ToLower(filepath.Ext(fsPath))
	acceptsGzip := strings.Contains(strings.ToLower(headerOrEmpty(req, "Accept-Encoding")), "gzip")
	if useGzip && compressibleExt[ext] && acceptsGzip {
		return s.serveCompressed(fsPath, fi, resp, conn, req.Method == "HEAD", mode)
	}

	resp.Headers().Set("Accept-Ranges", "bytes")

	if rangeHdr, ok := req.Header("Range"); ok {
		start, end, status := parseRange(rangeHdr, fi.Size())
		switch status {
		case rangeOK:
			return s.serveRange(fsPath, fi, start, end, resp, conn, req.Method == "HEAD", mode)
		case rangeUnsatisfiable:
			resp.Headers().Set("Content-Range", fmt.Sprintf("bytes */%d", fi.Size()))
			return resp.SendHTML(416, "416 Range Not Satisfiable", "Range Not Satisfiable", "", mode)
		}
		// rangeMalformed: ignore the header and serve the whole file.
	}

	return s.serveWhole(fsPath, fi, resp, conn, req.Method == "HEAD", mode)
}

func headerOrEmpty(req *httpproto.Request, name string) string {
	v, _ := req.Header(name)
	return v
}

// resolvePath joins root with the URL-decoded request path and
// rejects any result that escapes root (traversal defense).
func (s *Responder) resolvePath(reqPath string) (string, error) {
	decoded, err := url.PathUnescape(reqPath)
	if err != nil {
		return "", err
	}
	cleaned := filepath.Clean("/" + decoded)
	full := filepath.Join(s.root, cleaned)
	if full != s.root && !strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("static: path escapes root")
	}
	return full, nil
}

func (s *Responder) serveWhole(path string, fi os.FileInfo, resp *httpproto.Response, conn *netconn.Connection, headOnly bool, mode netconn.IOMode) error {
	size := fi.Size()
	if err := resp.SetContentLength(size); err != nil {
		return err
	}
	if headOnly {
		return resp.Finish(mode)
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if conn.Fd() >= 0 {
		if err := resp.FlushHeaders(mode); err != nil {
			return err
		}
		_, err := conn.SendFile(f, 0, size)
		return err
	}
	return s.bufferedCopy(f, 0, size, resp, mode)
}

func (s *Responder) serveRange(path string, fi os.FileInfo, start, end int64, resp *httpproto.Response, conn *netconn.Connection, headOnly bool, mode netconn.IOMode) error {
	length := end - start + 1
	if err := resp.SetStatus(206, ""); err != nil {
		return err
	}
	resp.Headers().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, fi.Size()))
	if err := resp.SetContentLength(length); err != nil {
		return err
	}
	if headOnly {
		return resp.Finish(mode)
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if conn.Fd() >= 0 {
		if err := resp.FlushHeaders(mode); err != nil {
			return err
		}
		_, err := conn.SendFile(f, start, length)
		return err
	}
	return s.bufferedCopy(f, start, length, resp, mode)
}

func (s *Responder) bufferedCopy(f *os.File, offset, length int64, resp *httpproto.Response, mode netconn.IOMode) error {
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	buf := make([]byte, transferWindow)
	remaining := length
	for remaining > 0 {
		want := int64(len(buf))
		if remaining < want {
			want = remaining
		}
		n, err := f.Read(buf[:want])
		if n > 0 {
			if werr := resp.Write(buf[:n], mode); werr != nil {
				return werr
			}
			remaining -= int64(n)
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
	}
	return resp.Finish(mode)
}

// serveCompressed gzips the whole file in memory (via the worker pool
// when configured) and serves it as a single buffered body; range
// requests are not honored against compressed output.
func (s *Responder) serveCompressed(path string, fi os.FileInfo, resp *httpproto.Response, conn *netconn.Connection, headOnly bool, mode netconn.IOMode) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	compressed, err := s.gzipCompress(raw)
	if err != nil {
		s.log.WithError(err).Warn("static: gzip compression failed, serving identity body")
		if err := resp.SetContentLength(fi.Size()); err != nil {
			return err
		}
		if headOnly {
			return resp.Finish(mode)
		}
		if err := resp.Write(raw, mode); err != nil {
			return err
		}
		return resp.Finish(mode)
	}

	resp.Headers().Set("Content-Encoding", "gzip")
	if err := resp.SetContentLength(int64(len(compressed))); err != nil {
		return err
	}
	if headOnly {
		return resp.Finish(mode)
	}
	if err := resp.Write(compressed, mode); err != nil {
		return err
	}
	return resp.Finish(mode)
}

func (s *Responder) gzipCompress(data []byte) ([]byte, error) {
	type result struct {
		buf []byte
		err error
	}
	done := make(chan result, 1)
	task := func() {
		var b bytes.Buffer
		gw := gzip.NewWriter(&b)
		_, werr := gw.Write(data)
		if werr == nil {
			werr = gw.Close()
		}
		done <- result{buf: b.Bytes(), err: werr}
	}
	if s.pool != nil && s.pool.Submit(task) {
		r := <-done
		return r.buf, r.err
	}
	task()
	r := <-done
	return r.buf, r.err
}

// rangeStatus distinguishes a Range header this server cannot even parse
// (spec.md §4.E.7: ignore it and serve 200) from one that parses but
// names an inconsistent or out-of-bounds range (→ 416).
type rangeStatus int

const (
	rangeMalformed rangeStatus = iota
	rangeUnsatisfiable
	rangeOK
)

// parseRange parses a single "bytes=start-end" Range header against a
// resource of the given size. Multi-range headers are reported malformed
// (this server only understands single-range requests); a
// syntactically valid range that is inconsistent (end before start) or
// out of bounds (start at or past size) is reported unsatisfiable.
func parseRange(header string, size int64) (start, end int64, status rangeStatus) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return 0, 0, rangeMalformed
	}
	spec := header[len(prefix):]
	if strings.Contains(spec, ",") {
		return 0, 0, rangeMalformed // multi-range not supported
	}
	dash := strings.IndexByte(spec, '-')
	if dash < 0 {
		return 0, 0, rangeMalformed
	}
	startStr, endStr := spec[:dash], spec[dash+1:]

	if startStr == "" {
		// suffix range: last N bytes
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return 0, 0, rangeMalformed
		}
		if n > size {
			n = size
		}
		return size - n, size - 1, rangeOK
	}

	s, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil {
		return 0, 0, rangeMalformed
	}
	if s < 0 || s >= size {
		return 0, 0, rangeUnsatisfiable
	}
	if endStr == "" {
		return s, size - 1, rangeOK
	}
	e, err := strconv.ParseInt(endStr, 10, 64)
	if err != nil {
		return 0, 0, rangeMalformed
	}
	if e < s {
		return 0, 0, rangeUnsatisfiable
	}
	if e >= size {
		e = size - 1
	}
	return s, e, rangeOK
}
