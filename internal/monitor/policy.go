package monitor

import (
	"time"

	"github.com/fuomag9/meshwatch/internal/models"
)

// noStatus marks a monitor without any previous heartbeat.
const noStatus = -1

// checkState is what a monitor job remembers between two checks.
type checkState struct {
	lastStatus int // noStatus before the first beat
	retries    int // consecutive failures reported as pending
	downCount  int // down beats since the last alert
}

// outcome is the decision taken after one check.
type outcome struct {
	status    int
	retries   int
	important bool
	notify    bool
	next      time.Duration
	state     checkState
}

// evaluate applies the retry policy to the result of a check.
//
// A failure is reported as PENDING while fewer than MaxRetries consecutive
// failures were seen and retried after RetryInterval; after that the
// monitor is DOWN and checked again on its normal interval. A success is UP
// and resets the retry counter.
func evaluate(m *models.Monitor, prev checkState, checkErr error) outcome {
	out := outcome{next: m.IntervalDuration()}
	next := prev

	switch {
	case checkErr == nil:
		out.status = models.StatusUp
		next.retries = 0
	case prev.retries < m.MaxRetries:
		out.status = models.StatusPending
		next.retries = prev.retries + 1
		out.next = m.RetryIntervalDuration()
	default:
		out.status = models.StatusDown
	}
	out.retries = next.retries

	out.important = isImportant(prev.lastStatus, out.status)
	out.notify = out.important && !(prev.lastStatus == noStatus && out.status == models.StatusUp)

	switch {
	case out.important || out.status != models.StatusDown:
		next.downCount = 0
	case m.ResendInterval > 0:
		// still down: re-alert every ResendInterval beats
		next.downCount = prev.downCount + 1
		if next.downCount >= m.ResendInterval {
			out.notify = true
			next.downCount = 0
		}
	}

	next.lastStatus = out.status
	out.state = next
	return out
}

// isImportant reports whether a transition is worth recording and alerting:
//
//	(none)  -> any     important
//	UP      -> DOWN    important
//	PENDING -> DOWN    important
//	DOWN    -> UP      important
//	UP      -> PENDING not important
//	PENDING -> UP      not important
//	same    -> same    not important
func isImportant(prev, current int) bool {
	if prev == noStatus {
		return true
	}
	switch {
	case prev == models.StatusUp && current == models.StatusDown:
		return true
	case prev == models.StatusPending && current == models.StatusDown:
		return true
	case prev == models.StatusDown && current == models.StatusUp:
		return true
	}
	return false
}
