package netconn

import (
	"sync"
	"time"
)

// DeadlineTimer is the per-Connection deadline timer of spec.md §3: it is
// re-armed with a fresh expiry before every outstanding I/O operation and
// cancelled on completion. On expiry it shuts the socket down in both
// directions, which unwinds any pending operation with a cancellation
// error — the only mechanism that can break a connection that is blocked
// under the interpreter token (spec.md §5).
type DeadlineTimer struct {
	mu       sync.Mutex
	timer    *time.Timer
	onExpire func()
	armed    bool
}

// NewDeadlineTimer builds a timer that calls onExpire when it fires
// without having been cancelled first.
func NewDeadlineTimer(onExpire func()) *DeadlineTimer {
	return &DeadlineTimer{onExpire: onExpire}
}

// Arm (re-)arms the timer for d from now, replacing any previous expiry.
func (d *DeadlineTimer) Arm(duration time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.armed = true
	d.timer = time.AfterFunc(duration, func() {
		d.mu.Lock()
		fired := d.armed
		d.armed = false
		d.mu.Unlock()
		if fired && d.onExpire != nil {
			d.onExpire()
		}
	})
}

// Cancel disarms the timer. Safe to call even if never armed.
func (d *DeadlineTimer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.armed = false
	if d.timer != nil {
		d.timer.Stop()
	}
}
