//go:build linux
// +build linux

package poller

import (
	"syscall"
)

// EpollPoller is an epoll-based I/O multiplexer.
type EpollPoller struct {
	epfd   int
	events []syscall.EpollEvent
	// watching tracks whether write-readiness is currently armed for fd,
	// since EpollCtl requires the full event mask on every Mod call.
	watching map[int]bool
}

// NewPoller creates a new Poller (Linux).
func NewPoller() (Poller, error) {
	epfd, err := syscall.EpollCreate1(0)
	if err != nil {
		return nil, err
	}

	return &EpollPoller{
		epfd:     epfd,
		events:   make([]syscall.EpollEvent, 1024),
		watching: make(map[int]bool, 1024),
	}, nil
}

// Add registers fd for read readiness.
func (p *EpollPoller) Add(fd int) error {
	ev := syscall.EpollEvent{
		// EPOLLIN: readable. EPOLLRDHUP (0x2000): peer half-close.
		// Level-triggered (no EPOLLET) so a partially-drained buffer
		// keeps firing until fully consumed.
		Events: uint32(syscall.EPOLLIN) | uint32(0x2000),
		Fd:     int32(fd),
	}
	if err := syscall.EpollCtl(p.epfd, syscall.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return err
	}
	p.watching[fd] = false
	return nil
}

// AddWrite additionally arms write readiness for fd.
func (p *EpollPoller) AddWrite(fd int) error {
	ev := syscall.EpollEvent{
		Events: uint32(syscall.EPOLLIN) | uint32(syscall.EPOLLOUT) | uint32(0x2000),
		Fd:     int32(fd),
	}
	if err := syscall.EpollCtl(p.epfd, syscall.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return err
	}
	p.watching[fd] = true
	return nil
}

// RemoveWrite disarms write readiness, keeping read readiness.
func (p *EpollPoller) RemoveWrite(fd int) error {
	ev := syscall.EpollEvent{
		Events: uint32(syscall.EPOLLIN) | uint32(0x2000),
		Fd:     int32(fd),
	}
	if err := syscall.EpollCtl(p.epfd, syscall.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return err
	}
	p.watching[fd] = false
	return nil
}

// Remove fully deregisters fd.
func (p *EpollPoller) Remove(fd int) error {
	delete(p.watching, fd)
	return syscall.EpollCtl(p.epfd, syscall.EPOLL_CTL_DEL, fd, nil)
}

// Wait waits for I/O events.
func (p *EpollPoller) Wait(timeout int) ([]Event, error) {
	n, err := syscall.EpollWait(p.epfd, p.events, timeout)
	if err != nil && err != syscall.EINTR {
		return nil, err
	}

	if n <= 0 {
		return nil, nil
	}

	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		raw := p.events[i].Events
		out = append(out, Event{
			Fd:    int(p.events[i].Fd),
			Read:  raw&(uint32(syscall.EPOLLIN)|uint32(0x2000)) != 0,
			Write: raw&uint32(syscall.EPOLLOUT) != 0,
		})
	}

	return out, nil
}

// Close closes the Poller.
func (p *EpollPoller) Close() error {
	return syscall.Close(p.epfd)
}

// SetNonblock sets non-blocking mode.
func SetNonblock(fd int) error {
	return syscall.SetNonblock(fd, true)
}
