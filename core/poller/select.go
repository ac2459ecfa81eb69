package poller

// NewAutoPoller selects the best available poller. When preferUring is
// set it probes NewUringPoller first (a no-op today on every platform,
// see uring.go) and falls back to the platform's NewPoller (epoll or
// kqueue) otherwise.
func NewAutoPoller(preferUring bool) (Poller, error) {
	if preferUring {
		if p, err := NewUringPoller(); err == nil && p != nil {
			return p, nil
		}
	}
	return NewPoller()
}
