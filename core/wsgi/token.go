package wsgi

import (
	"context"
	"sync"
)

// gil is the process-wide interpreter-lock stand-in of spec.md §5/§9:
// exactly one goroutine may be running hosted application code at a
// time, mirroring a CPython-style global interpreter lock even though
// nothing here actually hosts CPython bytecode.
var gil sync.Mutex

// Token is proof a goroutine currently holds the interpreter lock. Any
// Connection I/O performed while holding one must use netconn.Blocking
// (spin-retry) rather than suspending on the owning executor's
// readiness channel — the executor loop that would service that
// suspension may itself be waiting on this same token elsewhere,
// which would deadlock the pool (spec.md §9 "App-lock bridge").
type Token struct{}

// Acquire returns ctx.Err() if ctx is already done; otherwise it blocks
// until the token is available. A cancellation that happens while it is
// waiting is not observed.
func Acquire(ctx context.Context) (*Token, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	gil.Lock()
	return &Token{}, nil
}

// Release gives up the token. It does not check the receiver: it
// unlocks the process-wide lock whatever Token it is called on, and
// calling it while the lock is not held is a fatal error, the same as
// unlocking an already-unlocked mutex.
func (t *Token) Release() {
	gil.Unlock()
}
