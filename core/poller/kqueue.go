//go:build darwin
// +build darwin

package poller

import (
	"syscall"
)

// KqueuePoller is a kqueue-based I/O multiplexer.
type KqueuePoller struct {
	kqfd   int
	events []syscall.Kevent_t
	// writing tracks fds with an active EVFILT_WRITE registration, since
	// kqueue filters are registered/removed independently.
	writing map[int]bool
}

// NewPoller creates a new Poller (this file builds on darwin only).
func NewPoller() (Poller, error) {
	kqfd, err := syscall.Kqueue()
	if err != nil {
		return nil, err
	}

	return &KqueuePoller{
		kqfd:    kqfd,
		events:  make([]syscall.Kevent_t, 1024),
		writing: make(map[int]bool, 1024),
	}, nil
}

// Add registers fd for read readiness.
func (p *KqueuePoller) Add(fd int) error {
	ev := syscall.Kevent_t{
		Ident:  uint64(fd),
		Filter: syscall.EVFILT_READ,
		// Level-triggered (default); EV_CLEAR (edge-triggered) can miss
		// events if not drained fully on every wakeup.
		Flags: syscall.EV_ADD | syscall.EV_ENABLE,
	}

	_, err := syscall.Kevent(p.kqfd, []syscall.Kevent_t{ev}, nil, nil)
	return err
}

// AddWrite additionally arms write readiness for fd.
func (p *KqueuePoller) AddWrite(fd int) error {
	ev := syscall.Kevent_t{
		Ident:  uint64(fd),
		Filter: syscall.EVFILT_WRITE,
		Flags:  syscall.EV_ADD | syscall.EV_ENABLE,
	}
	if _, err := syscall.Kevent(p.kqfd, []syscall.Kevent_t{ev}, nil, nil); err != nil {
		return err
	}
	p.writing[fd] = true
	return nil
}

// RemoveWrite disarms write readiness, keeping read readiness.
func (p *KqueuePoller) RemoveWrite(fd int) error {
	if !p.writing[fd] {
		return nil
	}
	ev := syscall.Kevent_t{
		Ident:  uint64(fd),
		Filter: syscall.EVFILT_WRITE,
		Flags:  syscall.EV_DELETE,
	}
	_, err := syscall.Kevent(p.kqfd, []syscall.Kevent_t{ev}, nil, nil)
	delete(p.writing, fd)
	return err
}

// Remove fully deregisters fd.
func (p *KqueuePoller) Remove(fd int) error {
	events := []syscall.Kevent_t{{
		Ident:  uint64(fd),
		Filter: syscall.EVFILT_READ,
		Flags:  syscall.EV_DELETE,
	}}
	if p.writing[fd] {
		events = append(events, syscall.Kevent_t{
			Ident:  uint64(fd),
			Filter: syscall.EVFILT_WRITE,
			Flags:  syscall.EV_DELETE,
		})
		delete(p.writing, fd)
	}
	_, err := syscall.Kevent(p.kqfd, events, nil, nil)
	return err
}

// Wait waits for I/O events.
func (p *KqueuePoller) Wait(timeout int) ([]Event, error) {
	var ts *syscall.Timespec
	if timeout >= 0 {
		ts = &syscall.Timespec{
			Sec:  int64(timeout / 1000),
			Nsec: int64((timeout % 1000) * 1000000),
		}
	}

	n, err := syscall.Kevent(p.kqfd, nil, p.events, ts)
	if err != nil && err != syscall.EINTR {
		return nil, err
	}

	if n <= 0 {
		return nil, nil
	}

	merged := make(map[int]*Event, n)
	order := make([]int, 0, n)
	for i := 0; i < n; i++ {
		fd := int(p.events[i].Ident)
		ev, ok := merged[fd]
		if !ok {
			ev = &Event{Fd: fd}
			merged[fd] = ev
			order = append(order, fd)
		}
		switch p.events[i].Filter {
		case syscall.EVFILT_READ:
			ev.Read = true
		case syscall.EVFILT_WRITE:
			ev.Write = true
		}
	}

	out := make([]Event, 0, len(order))
	for _, fd := range order {
		out = append(out, *merged[fd])
	}

	return out, nil
}

// Close closes the Poller.
func (p *KqueuePoller) Close() error {
	return syscall.Close(p.kqfd)
}

// SetNonblock sets non-blocking mode.
func SetNonblock(fd int) error {
	return syscall.SetNonblock(fd, true)
}
