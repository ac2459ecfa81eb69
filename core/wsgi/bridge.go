package wsgi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/searchktools/wsgiboost/core/httpproto"
	"github.com/searchktools/wsgiboost/core/netconn"
)

// Bridge is the app bridge of component F: it holds the single
// currently-installed App and drives one request through it, honoring
// the interpreter-token discipline of spec.md §5/§9.
type Bridge struct {
	app    atomic.Pointer[App]
	params EnvironParams
	log    *logrus.Logger
}

// NewBridge builds a Bridge with no app installed; requests arriving
// before SetApp is called get a 503.
func NewBridge(params EnvironParams, log *logrus.Logger) *Bridge {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Bridge{params: params, log: log}
}

// SetApp installs or replaces the hosted application. The caller is
// responsible for only calling this while the server is not running
// (spec.md §3's AppHandle note); Bridge itself does not enforce that.
func (b *Bridge) SetApp(app App) {
	b.app.Store(&app)
}

// HasApp reports whether an application is currently installed.
func (b *Bridge) HasApp() bool {
	return b.app.Load() != nil
}

// Dispatch runs one request through the installed application,
// writing its response through resp. It acquires the interpreter
// token for the full duration of the app call (Handle plus every
// Next/start_response invocation) and releases it before returning,
// mirroring a GIL held by exactly one running interpreter thread.
func (b *Bridge) Dispatch(req *httpproto.Request, resp *httpproto.Response, conn *netconn.Connection) error {
	appPtr := b.app.Load()
	if appPtr == nil {
		return resp.SendHTML(503, "503 Service Unavailable", "Service Unavailable",
			"No application is currently installed.", netconn.Async)
	}
	app := *appPtr

	conn.SetPostContentLength(req.ContentLength)

	tok, err := Acquire(context.Background())
	if err != nil {
		return err
	}
	defer tok.Release()

	env := BuildEnviron(req, conn, errWriter{b.log}, b.params)

	var headersAnnounced bool
	var announcedStatus int
	var announcedText string
	var announcedHeaders []httpproto.HeaderField

	start := func(status int, statusText string, headers []httpproto.HeaderField, excInfo error) (WriteFunc, error) {
		if excInfo != nil && resp.HeaderSent() {
			return nil, excInfo
		}
		announcedStatus = status
		announcedText = statusText
		announcedHeaders = headers
		headersAnnounced = true
		return func(chunk []byte) (int, error) {
			if err := b.commitHeaders(resp, &headersAnnounced, announcedStatus, announcedText, announcedHeaders); err != nil {
				return 0, err
			}
			if err := resp.Write(chunk, netconn.Blocking); err != nil {
				return 0, err
			}
			return len(chunk), nil
		}, nil
	}

	iter := app.Handle(env, start)
	defer closeIfCloser(iter)

	for {
		chunk, err := iter.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			conn.SetKeepAlive(false)
			b.log.WithError(err).Error("wsgi: application error mid-iteration")
			if !resp.HeaderSent() {
				return resp.SendHTML(500, "500 Internal Server Error", "Internal Server Error", "", netconn.Blocking)
			}
			return err
		}
		if err := b.commitHeaders(resp, &headersAnnounced, announcedStatus, announcedText, announcedHeaders); err != nil {
			return err
		}
		if len(chunk) == 0 {
			continue
		}
		if err := resp.Write(chunk, netconn.Blocking); err != nil {
			return err
		}
	}

	if err := b.commitHeaders(resp, &headersAnnounced, announcedStatus, announcedText, announcedHeaders); err != nil {
		return err
	}
	return resp.Finish(netconn.Blocking)
}

// commitHeaders applies the most recent start_response announcement to
// resp, replacing whatever an earlier call applied, until the headers
// have actually gone out (spec.md §4.F: headers go out lazily, on first
// write or first non-empty iterable chunk).
func (b *Bridge) commitHeaders(resp *httpproto.Response, announced *bool, status int, text string, headers []httpproto.HeaderField) error {
	if resp.HeaderSent() {
		return nil
	}
	if !*announced {
		return errors.New("wsgi: application produced output before calling start_response")
	}
	if err := resp.SetStatus(status, text); err != nil {
		return err
	}
	*resp.Headers() = httpproto.Headers{}
	if err := resp.SetContentLength(-1); err != nil {
		return err
	}
	for _, h := range headers {
		if strings.EqualFold(h.Name, "Content-Length") {
			n, err := strconv.ParseInt(h.Value, 10, 64)
			if err != nil {
				return fmt.Errorf("wsgi: invalid Content-Length header %q: %w", h.Value, err)
			}
			if err := resp.SetContentLength(n); err != nil {
				return err
			}
			continue
		}
		if err := resp.SetHeader(h.Name, h.Value); err != nil {
			return err
		}
	}
	return nil
}

func closeIfCloser(it ChunkIterator) {
	if c, ok := it.(io.Closer); ok {
		c.Close()
	}
}

type errWriter struct{ log *logrus.Logger }

func (w errWriter) Write(p []byte) (int, error) {
	w.log.Error(string(p))
	return len(p), nil
}
