/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"fmt"
	"sync"
	"time"
)

// Holdoff manages a single point-in-time deadline, set some time in the future.
//
// A freshly constructed Holdoff has its deadline set to the current moment,
// so Passed reports true right away:
//
//	h := NewHoldoff()
//
//	// arm a deadline 500ms from now
//	h.Reset(500 * time.Millisecond)
//
//	fmt.Println(h.Remaining()) // slightly less than 500ms
//	fmt.Println(h.Passed())    // false
//	time.Sleep(time.Second)
//	fmt.Println(h.Passed())    // true
//
// Holdoff is safe for concurrent use.
type Holdoff struct {
	mu       sync.Mutex
	deadline time.Time
}

// NewHoldoff creates a new Holdoff with the deadline set to now.
func NewHoldoff() *Holdoff {
	return &Holdoff{deadline: time.Now()}
}

// Reset arms the deadline at now plus the given delay.
// A zero delay makes the deadline due immediately.
func (h *Holdoff) Reset(delay time.Duration) {
	h.mu.Lock()
	h.deadline = time.Now().Add(delay)
	h.mu.Unlock()
}

// Deadline returns the current absolute deadline.
func (h *Holdoff) Deadline() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.deadline
}

// Remaining returns the signed duration until the deadline.
// It is negative once the deadline has passed.
func (h *Holdoff) Remaining() time.Duration {
	return time.Until(h.Deadline())
}

// Passed reports whether the deadline has passed.
func (h *Holdoff) Passed() bool {
	return h.Remaining() < 0
}

// String implements fmt.Stringer interface.
func (h *Holdoff) String() string {
	return fmt.Sprintf("Holdoff<deadline=%s, remaining=%s>", h.Deadline().Format(time.RFC3339Nano), h.Remaining())
}

// WaitableHoldoff layers a manual-reset wake signal on top of a Holdoff,
// providing a sleep that can be interrupted early while still reporting
// whether the deadline itself had elapsed at wake time.
type WaitableHoldoff struct {
	Holdoff

	sigMu sync.Mutex
	sig   chan struct{} // closed when signaled, recreated when cleared
}

// NewWaitableHoldoff creates a new WaitableHoldoff with the deadline set to now
// and the wake signal cleared.
func NewWaitableHoldoff() *WaitableHoldoff {
	w := &WaitableHoldoff{sig: make(chan struct{})}
	w.Reset(0)
	return w
}

// Wait blocks until either the deadline elapses or Signal is called.
//
// It returns true if the deadline had already elapsed at call time or elapsed
// before any signal, and true as well if a signal arrived but the deadline had
// already passed by then (the race favors "deadline passed"). It returns false
// only when signaled strictly before the deadline. Returning via the signal
// path clears the signal.
func (w *WaitableHoldoff) Wait() bool {
	rem := w.Remaining()
	if rem < 0 {
		w.clear()
		return true
	}

	w.sigMu.Lock()
	sig := w.sig
	w.sigMu.Unlock()

	timer := time.NewTimer(rem)
	defer timer.Stop()

	select {
	case <-sig:
		w.clear()
		return w.Passed()
	case <-timer.C:
		return true
	}
}

// Signal sets the wake signal, unblocking any in-progress Wait immediately.
// Signal is idempotent.
func (w *WaitableHoldoff) Signal() {
	w.sigMu.Lock()
	select {
	case <-w.sig:
	default:
		close(w.sig)
	}
	w.sigMu.Unlock()
}

func (w *WaitableHoldoff) clear() {
	w.sigMu.Lock()
	select {
	case <-w.sig:
		w.sig = make(chan struct{})
	default:
	}
	w.sigMu.Unlock()
}
