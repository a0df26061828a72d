package queue

import (
	"sync"
	"time"
)

// waitTimeout blocks on cond for up to timeout, returning false if the timer
// fired first. The caller must hold cond.L, and re-check its own predicate
// after waitTimeout returns regardless of the result: a Broadcast from the
// timer and a Broadcast from a genuine state change are indistinguishable
// from inside the condition variable.
func waitTimeout(cond *sync.Cond, timeout time.Duration) (woken bool) {
	done := make(chan struct{})
	timer := time.AfterFunc(timeout, func() {
		close(done)
		cond.Broadcast()
	})
	defer timer.Stop()

	cond.Wait()

	select {
	case <-done:
		return false
	default:
		return true
	}
}
