package rudp

import "time"

// timer is a cancellable one-shot callback, scheduled the way the teacher
// schedules its pConn empty-map timeout in lib/pconn.go
// (handleCloseConnection): time.AfterFunc plus an explicit Stop. spec.md §1
// calls timers an external collaborator specified only at their boundary
// (scheduled callbacks with cancel) — this is that boundary, backed by the
// standard library because the teacher never reaches for a third-party
// scheduler for this concern either.
type timer struct {
	t *time.Timer
}

// startTimer schedules fn to run once after d, unless stopped first.
func startTimer(d time.Duration, fn func()) *timer {
	return &timer{t: time.AfterFunc(d, fn)}
}

// stop cancels the timer. Safe to call on an already-fired or nil timer.
func (tm *timer) stop() {
	if tm == nil || tm.t == nil {
		return
	}
	tm.t.Stop()
}

// reset reschedules the timer to fire after d from now.
func (tm *timer) reset(d time.Duration) {
	if tm == nil || tm.t == nil {
		return
	}
	tm.t.Reset(d)
}
