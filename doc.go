/*
Package wsgiboost is an embeddable HTTP host process: it dispatches
each request to either a static-file responder or a single hosted
application callable, the Go-native equivalent of a PEP-3333 (WSGI)
server.

Features

  - Non-blocking reactor: N executors, each owning one epoll/kqueue
    poller and a single run loop, with round-robin connection handoff
  - Per-phase deadline timers: separate header-phase and content-phase
    timeouts armed around every I/O operation
  - HTTP/1.1 persistent connections, chunked transfer encoding, the
    100-continue handshake, conditional GET, and single-range requests
  - A static responder with zero-copy sendfile on the identity path
  - A Go-shaped WSGI-style app bridge: an Environ map, a
    start_response callable, and a ChunkIterator the application
    streams its body through
  - A single process-wide interpreter-lock token gating hosted
    application code, so blocking application work never shares an
    executor's readiness channel with other connections

Quick Start

	package main

	import (
	    "github.com/searchktools/wsgiboost/app"
	    "github.com/searchktools/wsgiboost/config"
	)

	func main() {
	    cfg := config.New()
	    a := app.New(cfg)

	    a.AddStaticRoute("/static/", "./public")
	    a.SetApp(myApp)

	    if err := a.Run(); err != nil {
	        panic(err)
	    }
	}

Modules

The project is organized into several packages:

  - app: example embedding facade
  - config: configuration loading (flags + env overrides) and live toggles
  - core/reactor: executor pool, poller-driven readiness, round-robin accept handoff
  - core/netconn: per-connection buffers, deadline timer, I/O primitives
  - core/httpproto: request parser, response emitter, chunked codec
  - core/static: static-file responder (conditional GET, range, gzip)
  - core/wsgi: the application bridge (environ, start_response, iterables)
  - core/server: the façade tying the above together, plus lifecycle
  - core/tls: a TLS accept stub layered on the same dispatch loop
  - core/pools: tiered byte-slice pool, gzip worker pool, and GC tuning
  - core/observability: structured logging and request/connection metrics

For more information, see https://github.com/searchktools/wsgiboost
*/
package wsgiboost
