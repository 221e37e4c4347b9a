package poller

import (
	"github.com/CZERTAINLY/Prospect/internal/model"

	"github.com/google/uuid"
)

type cycleState int

const (
	cycleCreated cycleState = iota
	cyclePolling            // a status request is in flight
	cycleWaiting            // a retry is scheduled
	cycleCompleted
	cycleFailed
	cycleSuperseded
)

func (s cycleState) String() string {
	switch s {
	case cycleCreated:
		return "created"
	case cyclePolling:
		return "polling"
	case cycleWaiting:
		return "waiting"
	case cycleCompleted:
		return "completed"
	case cycleFailed:
		return "failed"
	case cycleSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// cycle is the sequence of status checks of one submitted job. It is owned
// by the controller goroutine and never shared.
type cycle struct {
	id         string
	job        model.JobHandle
	generation uint64
	state      cycleState
	attempts   int
	retry      Cancel
}

func newCycle(job model.JobHandle, generation uint64) *cycle {
	return &cycle{
		id:         uuid.NewString(),
		job:        job,
		generation: generation,
		state:      cycleCreated,
	}
}

func (c *cycle) terminal() bool {
	switch c.state {
	case cycleCompleted, cycleFailed, cycleSuperseded:
		return true
	default:
		return false
	}
}

// canPoll reports if a new status request may be issued: only one can be
// in flight and terminal cycles never poll again.
func (c *cycle) canPoll() bool {
	return c.state == cycleCreated || c.state == cycleWaiting
}

func (c *cycle) startPoll() {
	c.retry = nil
	c.attempts++
	c.state = cyclePolling
}

func (c *cycle) wait(retry Cancel) {
	c.retry = retry
	c.state = cycleWaiting
}

// finish moves the cycle to a terminal state and cancels the pending retry.
// It returns false if the cycle was already terminal.
func (c *cycle) finish(to cycleState) bool {
	if c.terminal() {
		return false
	}
	c.cancelRetry()
	c.state = to
	return true
}

func (c *cycle) cancelRetry() bool {
	if c.retry == nil {
		return false
	}
	stopped := c.retry()
	c.retry = nil
	return stopped
}
