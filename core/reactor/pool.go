package reactor

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/searchktools/wsgiboost/core/netconn"
	"github.com/searchktools/wsgiboost/core/poller"
)

// Pool is the reactor pool of spec.md §4.A: N executors and one
// acceptor goroutine that hands accepted connections to the executors
// round-robin. The acceptor watches the listener with a poller of its
// own; the listener is not registered with any executor. A keep-alive work item (the listener goroutine itself) keeps
// the pool from exiting while running.
type Pool struct {
	executors []*Executor
	next      uint64
	nextMu    sync.Mutex

	listener net.Listener
	listenFd int

	headerTimeout  time.Duration
	contentTimeout time.Duration
	reuseAddress   bool

	wg      sync.WaitGroup
	stopped chan struct{}
}

// Options configures a Pool.
type Options struct {
	Size           int // 0 = runtime.NumCPU()
	ReuseAddress   bool
	PreferIOUring  bool
	HeaderTimeout  time.Duration
	ContentTimeout time.Duration
}

// NewPool builds a Pool with N idle executors; call Start to bind a
// listener and begin accepting.
func NewPool(handle Handler, opts Options) (*Pool, error) {
	n := opts.Size
	if n <= 0 {
		n = runtime.NumCPU()
	}

	p := &Pool{
		headerTimeout:  opts.HeaderTimeout,
		contentTimeout: opts.ContentTimeout,
		reuseAddress:   opts.ReuseAddress,
		stopped:        make(chan struct{}),
	}

	for i := 0; i < n; i++ {
		ex, err := NewExecutor(i, handle, opts.PreferIOUring)
		if err != nil {
			return nil, fmt.Errorf("reactor: starting executor %d: %w", i, err)
		}
		p.executors = append(p.executors, ex)
	}

	return p, nil
}

// Size reports the executor count; wsgi.multithread is Size() > 1.
func (p *Pool) Size() int { return len(p.executors) }

// Start binds addr, arms SO_REUSEADDR/TCP_NODELAY/SO_KEEPALIVE per
// teacher convention, launches every executor's run loop, and begins
// accepting connections. It returns once the listener is bound; the
// executors and the acceptor keep running until Stop is called.
func (p *Pool) Start(addr string) error {
	laddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return err
	}

	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			if !p.reuseAddress {
				return nil
			}
			var ctrlErr error
			err := c.Control(func(fd uintptr) {
				ctrlErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return ctrlErr
		},
	}

	ln, err := lc.Listen(context.Background(), "tcp", laddr.String())
	if err != nil {
		return err
	}
	p.listener = ln

	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		ln.Close()
		return fmt.Errorf("reactor: expected *net.TCPListener, got %T", ln)
	}
	lnFile, err := tcpLn.File()
	if err != nil {
		ln.Close()
		return err
	}
	p.listenFd = int(lnFile.Fd())
	if err := syscall.SetNonblock(p.listenFd, true); err != nil {
		return err
	}

	for _, ex := range p.executors {
		p.wg.Add(1)
		go func(e *Executor) {
			defer p.wg.Done()
			e.Run()
		}(ex)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.acceptLoop()
	}()

	return nil
}

func (p *Pool) acceptLoop() {
	ap, err := poller.NewAutoPoller(false)
	if err != nil {
		return
	}
	defer ap.Close()
	if err := ap.Add(p.listenFd); err != nil {
		return
	}

	for {
		select {
		case <-p.stopped:
			return
		default:
		}

		events, err := ap.Wait(200)
		if err != nil {
			continue
		}
		if len(events) == 0 {
			continue
		}
		p.acceptAll()
	}
}

func (p *Pool) acceptAll() {
	for {
		nfd, _, err := syscall.Accept(p.listenFd)
		if err != nil {
			if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
				return
			}
			return
		}

		syscall.SetNonblock(nfd, true)
		syscall.SetsockoptInt(nfd, syscall.IPPROTO_TCP, syscall.TCP_NODELAY, 1)
		syscall.SetsockoptInt(nfd, syscall.SOL_SOCKET, syscall.SO_KEEPALIVE, 1)

		var sa syscall.Sockaddr
		sa, _ = syscall.Getpeername(nfd)
		remote := sockaddrString(sa)

		ex := p.nextExecutor()
		c := netconn.New(nfd, ex, remote, p.headerTimeout, p.contentTimeout)
		ex.Submit(c)
	}
}

func sockaddrString(sa syscall.Sockaddr) string {
	switch v := sa.(type) {
	case *syscall.SockaddrInet4:
		return fmt.Sprintf("%d.%d.%d.%d:%d", v.Addr[0], v.Addr[1], v.Addr[2], v.Addr[3], v.Port)
	case *syscall.SockaddrInet6:
		return fmt.Sprintf("[%x]:%d", v.Addr, v.Port)
	default:
		return ""
	}
}

func (p *Pool) nextExecutor() *Executor {
	p.nextMu.Lock()
	idx := p.next % uint64(len(p.executors))
	p.next++
	p.nextMu.Unlock()
	return p.executors[idx]
}

// Stop cancels the acceptor and every executor, then waits for all
// goroutines to unwind.
func (p *Pool) Stop() {
	select {
	case <-p.stopped:
	default:
		close(p.stopped)
	}
	if p.listener != nil {
		p.listener.Close()
	}
	for _, ex := range p.executors {
		ex.Stop()
	}
	p.wg.Wait()
}
