package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/CZERTAINLY/Prospect/internal/log"
	"github.com/CZERTAINLY/Prospect/internal/model"
	"github.com/CZERTAINLY/Prospect/internal/state"
)

var ErrAlreadyRunning = errors.New("controller already running")

// Remote is the job service. Both calls must honor ctx cancellation.
type Remote interface {
	Submit(ctx context.Context) (model.JobHandle, error)
	Status(ctx context.Context, job model.JobHandle) (model.PollStatus, model.Result, error)
}

// SubmitErrorFunc is told about failed submissions. These never reach the
// UI state, so this is the only way to observe them besides the log.
type SubmitErrorFunc func(ctx context.Context, err error)

type Controller struct {
	remote        Remote
	store         *state.Store
	scheduler     Scheduler
	interval      time.Duration
	onSubmitError SubmitErrorFunc

	submit   chan struct{}
	events   chan event
	running  atomic.Bool
	inflight sync.WaitGroup

	// owned by the Do goroutine
	launches   uint64
	generation uint64
	current    *cycle
}

type eventKind int

const (
	eventSubmitted eventKind = iota
	eventPolled
	eventRetry
)

type event struct {
	kind       eventKind
	launch     uint64
	generation uint64
	job        model.JobHandle
	status     model.PollStatus
	result     model.Result
	err        error
}

func NewController(remote Remote, store *state.Store) *Controller {
	return &Controller{
		remote:    remote,
		store:     store,
		scheduler: TimerScheduler{},
		interval:  model.DefaultPollInterval,
		submit:    make(chan struct{}, 1),
		events:    make(chan event),
	}
}

// WithScheduler replaces the timer based scheduler. The scheduler must call
// f from a goroutine other than the caller of After.
func (c *Controller) WithScheduler(s Scheduler) *Controller {
	c.scheduler = s
	return c
}

func (c *Controller) WithInterval(d time.Duration) *Controller {
	if d > 0 {
		c.interval = d
	}
	return c
}

func (c *Controller) WithSubmitErrorFunc(fn SubmitErrorFunc) *Controller {
	c.onSubmitError = fn
	return c
}

// Submit asks the controller to start a new job. It never blocks; a request
// made while another one is still queued is coalesced with it and false is
// returned. Once dequeued, every request is sent; only the response of the
// most recent one may open a poll cycle.
func (c *Controller) Submit() bool {
	select {
	case c.submit <- struct{}{}:
		return true
	default:
		return false
	}
}

// Do runs the controller event loop until ctx is cancelled.
// It multiplexes three concerns:
//  1. Submit requests - the job is started in a separate goroutine.
//  2. Responses of the remote service - submissions open a new poll cycle,
//     status responses drive the cycle.
//  3. Retry timers of pending jobs.
//
// All UI state transitions happen in this goroutine. Every status response
// and retry carries the generation of its cycle and is dropped once a newer
// submission took over.
func (c *Controller) Do(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer c.running.Store(false)
	slog.DebugContext(ctx, "starting a poll controller", "interval", c.interval)

	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		c.inflight.Wait()
	}()

	defer func() {
		c.retire(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.submit:
			c.launch(ctx)
		case ev := <-c.events:
			switch ev.kind {
			case eventSubmitted:
				c.accepted(ctx, ev)
			case eventPolled:
				c.polled(ctx, ev)
			case eventRetry:
				c.retryDue(ctx, ev)
			default:
				slog.WarnContext(ctx, "event not supported: ignoring", "kind", ev.kind)
			}
		}
	}
}

func (c *Controller) launch(ctx context.Context) {
	c.launches++
	launch := c.launches
	slog.DebugContext(ctx, "submitting a job", "launch", launch)
	c.inflight.Go(func() {
		job, err := c.remote.Submit(ctx)
		c.post(ctx, event{kind: eventSubmitted, launch: launch, job: job, err: err})
	})
}

func (c *Controller) accepted(ctx context.Context, ev event) {
	err := ev.err
	if err == nil && ev.job == "" {
		err = model.ErrEmptyJobHandle
	}
	if ev.launch != c.launches {
		// a newer submission was sent meanwhile, its response owns the UI
		slog.InfoContext(ctx, "outdated submission response: ignoring",
			"job", ev.job.String(),
			"launch", ev.launch,
			"current_launch", c.launches,
			"error", err)
		return
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", model.ErrSubmission, err)
		slog.ErrorContext(ctx, "job submission failed", "error", err)
		if c.onSubmitError != nil {
			c.onSubmitError(ctx, err)
		}
		return
	}

	c.retire(ctx)
	c.generation++
	cy := newCycle(ev.job, c.generation)
	c.current = cy

	cctx := c.cycleCtx(ctx, cy)
	slog.InfoContext(cctx, "job accepted")
	c.store.BeginLoading(cctx, cy.job)
	c.poll(ctx, cy)
}

func (c *Controller) poll(ctx context.Context, cy *cycle) {
	if !cy.canPoll() {
		return
	}
	cy.startPoll()
	cctx := c.cycleCtx(ctx, cy)
	slog.DebugContext(cctx, "checking job status", "attempt", cy.attempts)

	job, generation := cy.job, cy.generation
	c.inflight.Go(func() {
		status, result, err := c.remote.Status(cctx, job)
		c.post(ctx, event{
			kind:       eventPolled,
			generation: generation,
			status:     status,
			result:     result,
			err:        err,
		})
	})
}

func (c *Controller) polled(ctx context.Context, ev event) {
	cy := c.live(ev.generation)
	if cy == nil || cy.state != cyclePolling {
		slog.DebugContext(ctx, "stale status response: ignoring",
			"generation", ev.generation,
			"current_generation", c.generation)
		return
	}
	cctx := c.cycleCtx(ctx, cy)

	switch {
	case ev.err != nil:
		c.fail(cctx, cy, ev.err)
	case ev.status == model.StatusPending:
		generation := cy.generation
		cy.wait(c.scheduler.After(c.interval, func() {
			c.post(ctx, event{kind: eventRetry, generation: generation})
		}))
		slog.DebugContext(cctx, "job pending", "attempt", cy.attempts, "next_check", c.interval)
	case ev.status == model.StatusComplete:
		cy.finish(cycleCompleted)
		slog.InfoContext(cctx, "job completed", "attempts", cy.attempts, "entries", len(ev.result))
		c.store.Complete(cctx, ev.result)
	default:
		c.fail(cctx, cy, fmt.Errorf("%w: %q", model.ErrUnexpectedStatus, ev.status))
	}
}

func (c *Controller) retryDue(ctx context.Context, ev event) {
	cy := c.live(ev.generation)
	if cy == nil || cy.state != cycleWaiting {
		slog.DebugContext(ctx, "stale retry: ignoring",
			"generation", ev.generation,
			"current_generation", c.generation)
		return
	}
	c.poll(ctx, cy)
}

func (c *Controller) fail(ctx context.Context, cy *cycle, err error) {
	err = fmt.Errorf("%w: %w", model.ErrPollTransport, err)
	cy.finish(cycleFailed)
	slog.ErrorContext(ctx, "job status check failed", "attempts", cy.attempts, "error", err)
	c.store.Fail(ctx, err)
}

// retire ends the live cycle, if any, so its scheduled retry never fires
// and its late responses are ignored.
func (c *Controller) retire(ctx context.Context) {
	cy := c.current
	if cy == nil || cy.terminal() {
		return
	}
	stopped := cy.cancelRetry()
	cy.finish(cycleSuperseded)
	slog.DebugContext(c.cycleCtx(ctx, cy), "poll cycle superseded", "retry_cancelled", stopped)
}

func (c *Controller) live(generation uint64) *cycle {
	cy := c.current
	if cy == nil || cy.generation != generation || cy.terminal() {
		return nil
	}
	return cy
}

func (c *Controller) post(ctx context.Context, ev event) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}

func (c *Controller) cycleCtx(ctx context.Context, cy *cycle) context.Context {
	return log.ContextAttrs(ctx,
		slog.String("job", cy.job.String()),
		slog.String("cycle", cy.id),
		slog.Uint64("generation", cy.generation),
	)
}
