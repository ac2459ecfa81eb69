// Package server implements component G: the façade that binds a
// listener, wires the reactor pool to the request parser, response
// emitter, static responder and app bridge, and owns the process
// lifecycle (start, signal-triggered stop, graceful teardown).
package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/searchktools/wsgiboost/config"
	"github.com/searchktools/wsgiboost/core/httpproto"
	"github.com/searchktools/wsgiboost/core/netconn"
	"github.com/searchktools/wsgiboost/core/observability"
	"github.com/searchktools/wsgiboost/core/pools"
	"github.com/searchktools/wsgiboost/core/reactor"
	"github.com/searchktools/wsgiboost/core/static"
	"github.com/searchktools/wsgiboost/core/tls"
	"github.com/searchktools/wsgiboost/core/wsgi"
)

// Options configures a Server. Zero values pick the teacher-derived
// defaults (NumCPU executors, 5s header timeout, 300s content timeout).
// UseGzip has no default: its zero value leaves gzip off.
type Options struct {
	Addr string

	Executors      int
	ReuseAddress   bool
	HeaderTimeout  time.Duration
	ContentTimeout time.Duration

	HostName  string
	URLScheme string

	UseGzip            bool
	StaticCacheControl string

	// Manager, when set, backs the live-toggle reads static routes make
	// on every request (use_gzip, static_cache_control). Nil gets a
	// fresh Manager seeded from the UseGzip/StaticCacheControl fields
	// above.
	Manager *config.Manager

	Logger  *logrus.Logger
	Metrics *observability.Metrics

	// CompressWorkers, when > 0, sizes a work-stealing pool (core/pools
	// WorkerPool) that the static responder offloads in-memory gzip
	// compression to, keeping that CPU-bound work off the executor
	// goroutine that owns the connection. 0 disables offload: gzip runs
	// inline on the serving goroutine.
	CompressWorkers int

	// TuneGC applies the teacher's high-throughput GC profile
	// (core/pools.OptimizeForHighThroughput) process-wide at Start.
	TuneGC bool
}

// continuePrebufferCap bounds the asynchronous body pre-buffer issued
// after a 100-continue handshake, per spec.md §4.F.
const continuePrebufferCap = 128 * 1024

func (o *Options) setDefaults() {
	if o.HeaderTimeout == 0 {
		o.HeaderTimeout = 5 * time.Second
	}
	if o.ContentTimeout == 0 {
		o.ContentTimeout = 300 * time.Second
	}
	if o.URLScheme == "" {
		o.URLScheme = "http"
	}
	if o.StaticCacheControl == "" {
		o.StaticCacheControl = "public, max-age=3600"
	}
	if o.Logger == nil {
		o.Logger = observability.NewLogger(logrus.InfoLevel)
	}
	if o.Metrics == nil {
		o.Metrics = observability.NewMetrics()
	}
	if o.Manager == nil {
		o.Manager = config.NewManager()
		o.Manager.Set("use_gzip", o.UseGzip)
		o.Manager.Set("static_cache_control", o.StaticCacheControl)
	}
}

// Server is the embeddable host process of spec.md §1: bind one
// address, dispatch each request to either a static route or the
// installed application.
type Server struct {
	opts Options

	routesMu sync.RWMutex
	routes   []Route

	bridge      *wsgi.Bridge
	pool        *reactor.Pool
	tlsListener *tls.Listener
	compressors *pools.WorkerPool

	log     *logrus.Logger
	metrics *observability.Metrics

	running atomic.Bool
}

// New builds a Server; call AddStaticRoute/SetApp to configure routes
// and the hosted application before Start.
func New(opts Options) *Server {
	opts.setDefaults()

	host, port := splitAddr(opts.Addr)
	if opts.HostName != "" {
		host = opts.HostName
	}

	// The reactor pool resolves Executors <= 0 to runtime.NumCPU().
	executors := opts.Executors
	if executors <= 0 {
		executors = runtime.NumCPU()
	}

	s := &Server{
		opts:    opts,
		log:     opts.Logger,
		metrics: opts.Metrics,
	}
	s.bridge = wsgi.NewBridge(wsgi.EnvironParams{
		ServerName:  host,
		ServerPort:  port,
		URLScheme:   opts.URLScheme,
		Multithread: executors > 1,
	}, s.log)
	if opts.CompressWorkers > 0 {
		s.compressors = pools.NewWorkerPool(opts.CompressWorkers)
	}
	return s
}

func splitAddr(addr string) (host, port string) {
	h, p, err := net.SplitHostPort(addr)
	if err != nil {
		return "", addr
	}
	if h == "" {
		h = "0.0.0.0"
	}
	return h, p
}

// SetApp installs the hosted application. Rejected once the server is
// running (spec.md §3 AppHandle note).
func (s *Server) SetApp(app wsgi.App) error {
	if s.running.Load() {
		return errors.New("server: cannot SetApp while running")
	}
	s.bridge.SetApp(app)
	return nil
}

// AddStaticRoute appends a (prefix, root) pair to the ordered route
// table. Rejected once the server is running.
func (s *Server) AddStaticRoute(prefix, root string) error {
	if s.running.Load() {
		return errors.New("server: cannot AddStaticRoute while running")
	}
	route, err := compileRoute(prefix, static.Options{
		Root:         root,
		UseGzip:      s.opts.UseGzip,
		CacheControl: s.opts.StaticCacheControl,
		WorkerPool:   s.compressors,
		Manager:      s.opts.Manager,
		Logger:       s.log,
	})
	if err != nil {
		return fmt.Errorf("server: static route %q: %w", prefix, err)
	}

	s.routesMu.Lock()
	s.routes = append(s.routes, route)
	s.routesMu.Unlock()
	return nil
}

// Snapshot returns a point-in-time read of the server's metrics.
func (s *Server) Snapshot() observability.Snapshot {
	return s.metrics.Snapshot()
}

// Manager returns the live-toggle store backing static routes, so an
// embedder can flip use_gzip/static_cache_control (e.g. from an admin
// endpoint) without restarting the listener.
func (s *Server) Manager() *config.Manager {
	return s.opts.Manager
}

// Start binds the listener, launches the reactor pool, and installs a
// signal handler that calls Stop on SIGINT/SIGTERM/SIGQUIT. It returns
// once the listener is bound; it does not block.
func (s *Server) Start() error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("server: already running")
	}

	if s.opts.TuneGC {
		pools.OptimizeForHighThroughput()
	}

	pool, err := reactor.NewPool(s.handleConnection, reactor.Options{
		Size:           s.opts.Executors,
		ReuseAddress:   s.opts.ReuseAddress,
		HeaderTimeout:  s.opts.HeaderTimeout,
		ContentTimeout: s.opts.ContentTimeout,
	})
	if err != nil {
		s.running.Store(false)
		return err
	}
	s.pool = pool

	if err := pool.Start(s.opts.Addr); err != nil {
		s.running.Store(false)
		return err
	}

	s.log.WithFields(logrus.Fields{
		"addr":      s.opts.Addr,
		"executors": pool.Size(),
	}).Info("server: listening")

	go s.awaitSignal()
	return nil
}

// StartTLS additionally binds tlsAddr for HTTPS, layered on the same
// dispatch loop as the plain-TCP reactor path (component H). Call
// after Start. certFile/keyFile are PEM files; passphrase decrypts an
// encrypted private key, and may be empty.
func (s *Server) StartTLS(tlsAddr, certFile, keyFile, passphrase string) error {
	if !s.running.Load() {
		return errors.New("server: Start must be called before StartTLS")
	}
	cfg, err := tls.LoadConfig(certFile, keyFile, passphrase)
	if err != nil {
		return err
	}
	ln, err := tls.Listen(tlsAddr, cfg, s.handleConnection, s.opts.HeaderTimeout, s.opts.ContentTimeout, s.log)
	if err != nil {
		return err
	}
	s.tlsListener = ln

	s.log.WithField("addr", tlsAddr).Info("server: listening (tls)")
	return nil
}

func (s *Server) awaitSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	sig := <-quit
	s.log.WithField("signal", sig).Info("server: signal received, shutting down")
	s.Stop()
}

// Stop tears down the reactor pool and marks the server not running,
// allowing SetApp/AddStaticRoute to be called again.
func (s *Server) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	if s.pool != nil {
		s.pool.Stop()
	}
	if s.tlsListener != nil {
		s.tlsListener.Stop()
	}
}

// handleConnection is the reactor.Handler: the per-connection
// keep-alive loop of spec.md §4.G, parsing one request at a time off
// conn until the connection is not eligible for reuse.
func (s *Server) handleConnection(conn *netconn.Connection) {
	s.metrics.ConnectionOpened()
	defer s.metrics.ConnectionClosed()
	defer conn.Close()

	for {
		req, err := httpproto.ReadRequest(conn, netconn.Async)
		if err != nil {
			s.handleParseError(conn, err)
			return
		}

		if expect, ok := req.Header("Expect"); ok && expect == "100-continue" && req.ContentLength > 0 {
			if err := httpproto.WriteContinue(conn, req.Proto, netconn.Async); err != nil {
				return
			}
			conn.SetPostContentLength(req.ContentLength)
			prebuffer := req.ContentLength
			if prebuffer > continuePrebufferCap {
				prebuffer = continuePrebufferCap
			}
			if err := conn.ReadIntoBuffer(int(prebuffer), netconn.Async); err != nil {
				conn.SetKeepAlive(false)
			}
		}

		resp := httpproto.NewResponse(conn, req.Proto, req.KeepAlive)
		s.dispatch(req, resp, conn)

		if !req.KeepAlive || !conn.KeepAlive() {
			return
		}
	}
}

func (s *Server) handleParseError(conn *netconn.Connection, err error) {
	var perr *httpproto.ParseError
	if !errors.As(err, &perr) {
		// Transport error (timeout, peer closed, EOF): nothing left to
		// answer on this socket.
		if !errors.Is(err, io.EOF) {
			s.metrics.TransportError()
		}
		return
	}
	resp := httpproto.NewResponse(conn, "HTTP/1.1", false)
	if sendErr := resp.SendHTML(perr.Status, strconv.Itoa(perr.Status)+" "+httpproto.StatusText(perr.Status),
		httpproto.StatusText(perr.Status), perr.Msg, netconn.Async); sendErr != nil {
		s.metrics.TransportError()
	}
}

func (s *Server) dispatch(req *httpproto.Request, resp *httpproto.Response, conn *netconn.Connection) {
	s.routesMu.RLock()
	route, routedPath, ok := match(s.routes, req.Path)
	s.routesMu.RUnlock()

	if ok {
		s.metrics.RequestServed(true)
		if err := route.Responder.Serve(req, resp, conn, routedPath, netconn.Async); err != nil {
			s.log.WithError(err).Warn("server: static responder error")
			conn.SetKeepAlive(false)
		}
		return
	}

	s.metrics.RequestServed(false)
	if err := s.bridge.Dispatch(req, resp, conn); err != nil {
		s.metrics.AppError()
		s.log.WithError(err).Error("server: app dispatch error")
		conn.SetKeepAlive(false)
	}
}
