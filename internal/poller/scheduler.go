package poller

import "time"

// Cancel stops a scheduled call. It returns true when the call was
// prevented, false when it already ran or was cancelled before.
type Cancel func() bool

// Scheduler runs f once after d.
type Scheduler interface {
	After(d time.Duration, f func()) Cancel
}

// SchedulerFunc adapts a function to the Scheduler interface.
type SchedulerFunc func(d time.Duration, f func()) Cancel

func (fn SchedulerFunc) After(d time.Duration, f func()) Cancel {
	return fn(d, f)
}

// TimerScheduler is backed by time.AfterFunc.
type TimerScheduler struct{}

func (TimerScheduler) After(d time.Duration, f func()) Cancel {
	t := time.AfterFunc(d, f)
	return t.Stop
}
