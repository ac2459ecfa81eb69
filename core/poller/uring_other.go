//go:build !linux
// +build !linux

package poller

// NewUringPoller is only meaningful on Linux; elsewhere it always defers
// to NewAutoPoller's epoll/kqueue fallback.
func NewUringPoller() (Poller, error) {
	return nil, nil
}
