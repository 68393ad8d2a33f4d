// Package sched provides the timers that drive countdowns, question
// deadlines and room retirement. Production code uses Real; tests use Fake
// to move virtual time forward without sleeping.
package sched

import (
	"sync"
	"time"
)

// Timer is a handle to a scheduled callback.
type Timer interface {
	// Stop cancels the callback. It reports whether the call stopped it,
	// false if it already fired (one-shot) or was already stopped.
	Stop() bool
}

// Scheduler schedules callbacks. Callbacks run on their own goroutine and
// must do their own locking.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
	Every(d time.Duration, f func()) Timer
}

// Real is a Scheduler backed by the runtime timers.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func (Real) Every(d time.Duration, f func()) Timer {
	t := &ticker{quit: make(chan struct{})}
	go t.run(d, f)
	return t
}

type ticker struct {
	once sync.Once
	quit chan struct{}
}

func (t *ticker) run(d time.Duration, f func()) {
	tk := time.NewTicker(d)
	defer tk.Stop()
	for {
		select {
		case <-tk.C:
			select {
			case <-t.quit:
				return
			default:
			}
			f()
		case <-t.quit:
			return
		}
	}
}

func (t *ticker) Stop() bool {
	stopped := false
	t.once.Do(func() {
		close(t.quit)
		stopped = true
	})
	return stopped
}
