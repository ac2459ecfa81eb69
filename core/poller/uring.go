//go:build linux
// +build linux

package poller

// io_uring support (Linux 5.1+) is not implemented; NewUringPoller exists
// as the extension point NewAutoPoller probes before falling back to
// epoll, so enabling it later is a one-function change.

// NewUringPoller creates an io_uring poller. Currently unimplemented,
// returns nil, nil so the caller falls back to NewPoller (epoll).
func NewUringPoller() (Poller, error) {
	return nil, nil
}
