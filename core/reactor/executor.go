// Package reactor implements component A of the spec: a pool of N
// executors, one acceptor, and round-robin handoff of accepted
// connections. Each Executor is a goroutine pinned to one poller.Poller
// instance — the Go-native analogue of "one OS thread, one cooperative
// run loop" — and is the only goroutine that ever calls Wait on its
// poller or mutates its own connection map.
package reactor

import (
	"sync"

	"github.com/searchktools/wsgiboost/core/netconn"
	"github.com/searchktools/wsgiboost/core/poller"
)

// Handler processes one accepted Connection for as long as it stays open
// (including keep-alive reuse). It is supplied by the server façade.
type Handler func(c *netconn.Connection)

// waitSlot is the per-fd rendezvous an Executor uses to wake a suspended
// goroutine; it is only ever written by the owning Executor's run loop
// and only ever read by the single goroutine that registered it.
type waitSlot struct {
	ch chan struct{}
}

// Executor owns one poller instance and runs a single goroutine loop
// that demultiplexes readiness to whichever goroutine is waiting on a
// given fd.
type Executor struct {
	id     int
	poll   poller.Poller
	handle Handler

	mu        sync.Mutex
	readWait  map[int]*waitSlot
	writeWait map[int]*waitSlot
	writeArmed map[int]bool

	newConns chan *netconn.Connection
	done     chan struct{}
}

// NewExecutor creates an Executor with its own poller instance.
func NewExecutor(id int, handle Handler, preferUring bool) (*Executor, error) {
	p, err := poller.NewAutoPoller(preferUring)
	if err != nil {
		return nil, err
	}
	return &Executor{
		id:         id,
		poll:       p,
		handle:     handle,
		readWait:   make(map[int]*waitSlot),
		writeWait:  make(map[int]*waitSlot),
		writeArmed: make(map[int]bool),
		newConns:   make(chan *netconn.Connection, 256),
		done:       make(chan struct{}),
	}, nil
}

// Submit hands an accepted Connection to this executor (the round-robin
// handoff of spec.md §4.A). The Connection must not yet be registered
// with any poller.
func (e *Executor) Submit(c *netconn.Connection) {
	select {
	case e.newConns <- c:
	case <-e.done:
	}
}

// Run is the executor's event loop. It blocks until Stop is called.
func (e *Executor) Run() {
	for {
		select {
		case <-e.done:
			e.poll.Close()
			return
		default:
		}

		e.drainNewConns()

		events, err := e.poll.Wait(100)
		if err != nil {
			continue
		}
		for _, ev := range events {
			if ev.Read {
				e.wake(e.readWait, ev.Fd)
			}
			if ev.Write {
				e.wake(e.writeWait, ev.Fd)
			}
		}
	}
}

func (e *Executor) drainNewConns() {
	for {
		select {
		case c := <-e.newConns:
			if err := e.poll.Add(c.Fd()); err != nil {
				c.Close()
				continue
			}
			go func(conn *netconn.Connection) {
				e.handle(conn)
				e.forget(conn.Fd())
			}(c)
		default:
			return
		}
	}
}

func (e *Executor) wake(set map[int]*waitSlot, fd int) {
	e.mu.Lock()
	slot, ok := set[fd]
	if ok {
		delete(set, fd)
	}
	e.mu.Unlock()
	if ok {
		close(slot.ch)
	}
}

func (e *Executor) forget(fd int) {
	e.mu.Lock()
	delete(e.readWait, fd)
	delete(e.writeWait, fd)
	delete(e.writeArmed, fd)
	e.mu.Unlock()
	e.poll.Remove(fd)
}

// WaitReadable implements netconn.Waiter: block the calling goroutine
// until fd is readable (or the Connection is closed from under it,
// surfaced as an error by the next syscall on a closed fd).
func (e *Executor) WaitReadable(fd int) error {
	slot := &waitSlot{ch: make(chan struct{})}
	e.mu.Lock()
	e.readWait[fd] = slot
	e.mu.Unlock()

	select {
	case <-slot.ch:
		return nil
	case <-e.done:
		return errExecutorStopped
	}
}

// WaitWritable implements netconn.Waiter: arm write-readiness for fd if
// not already armed, then block until writable.
func (e *Executor) WaitWritable(fd int) error {
	e.mu.Lock()
	if !e.writeArmed[fd] {
		e.writeArmed[fd] = true
		e.mu.Unlock()
		if err := e.poll.AddWrite(fd); err != nil {
			return err
		}
	} else {
		e.mu.Unlock()
	}

	slot := &waitSlot{ch: make(chan struct{})}
	e.mu.Lock()
	e.writeWait[fd] = slot
	e.mu.Unlock()

	select {
	case <-slot.ch:
		e.mu.Lock()
		delete(e.writeArmed, fd)
		e.mu.Unlock()
		e.poll.RemoveWrite(fd)
		return nil
	case <-e.done:
		return errExecutorStopped
	}
}

// Stop tears down the executor's run loop; any goroutines blocked in
// WaitReadable/WaitWritable observe errExecutorStopped.
func (e *Executor) Stop() {
	select {
	case <-e.done:
	default:
		close(e.done)
	}
}

var errExecutorStopped = &stoppedError{}

type stoppedError struct{}

func (*stoppedError) Error() string { return "reactor: executor stopped" }
