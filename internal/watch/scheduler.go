package watch

import (
	"time"
)

// Timer is a scheduled countdown that can be stopped before it fires.
type Timer interface {
	// Stop prevents the countdown from firing. It returns false if the
	// countdown already fired or was already stopped.
	Stop() bool
}

// Scheduler arms countdowns. The registry never assumes the callback runs on
// any particular goroutine.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) (Timer, error)
}

// SchedulerFunc adapts a plain function to the Scheduler interface.
type SchedulerFunc func(d time.Duration, f func()) (Timer, error)

// AfterFunc calls fn(d, f).
func (fn SchedulerFunc) AfterFunc(d time.Duration, f func()) (Timer, error) {
	return fn(d, f)
}

// runtimeScheduler schedules countdowns with the Go runtime timer.
type runtimeScheduler struct{}

func (runtimeScheduler) AfterFunc(d time.Duration, f func()) (Timer, error) {
	if d < 0 {
		return nil, ErrInvalidDuration
	}
	return time.AfterFunc(d, f), nil
}

// RuntimeScheduler returns the default Scheduler backed by time.AfterFunc.
func RuntimeScheduler() Scheduler {
	return runtimeScheduler{}
}
