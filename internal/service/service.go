package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	gocron "github.com/go-co-op/gocron/v2"
	"golang.org/x/sync/errgroup"

	"github.com/CZERTAINLY/Prospect/internal/history"
	"github.com/CZERTAINLY/Prospect/internal/model"
	"github.com/CZERTAINLY/Prospect/internal/poller"
	"github.com/CZERTAINLY/Prospect/internal/state"
)

const outcomesSize = 8

// Service wires the job client, the poll controller and the sinks together
// and drives them in manual (one job) or timer (periodic jobs) mode.
type Service struct {
	oneshot    bool
	scheduler  gocron.Scheduler
	store      *state.Store
	controller *poller.Controller
	sinks      []model.Sink
	history    *history.DB

	outcomes   chan model.UIState
	submitErrs chan error
}

func New(ctx context.Context, cfg model.Config) (*Service, error) {
	if cfg.Version != 0 {
		return nil, fmt.Errorf("config version %d is not supported, expected 0", cfg.Version)
	}
	if cfg.Server.URL.URL == nil {
		return nil, errors.New("server.url is empty")
	}
	client, err := NewJobClient(cfg.Server.URL.String())
	if err != nil {
		return nil, fmt.Errorf("initializing job client: %w", err)
	}
	client.WithTimeout(cfg.Server.RequestTimeout()).WithFilter(cfg.Server.Filter)

	outs, err := sinks(ctx, cfg.Service)
	if err != nil {
		return nil, fmt.Errorf("initializing sinks: %w", err)
	}

	s := &Service{
		oneshot:    cfg.Service.Mode != model.ServiceModeTimer,
		store:      state.NewStore(),
		sinks:      outs,
		outcomes:   make(chan model.UIState, outcomesSize),
		submitErrs: make(chan error, 1),
	}
	s.controller = poller.NewController(client, s.store).
		WithInterval(cfg.Poll.IntervalOrDefault()).
		WithSubmitErrorFunc(s.submitFailed)

	if !s.oneshot {
		s.scheduler, err = newScheduler(ctx, cfg.Service.Schedule, func() { s.controller.Submit() })
		if err != nil {
			closeSinks(ctx, outs)
			return nil, fmt.Errorf("timer mode failed: %w", err)
		}
	}

	if cfg.Service.History != "" {
		s.history, err = history.Open(ctx, cfg.Service.History)
		if err != nil {
			closeSinks(ctx, outs)
			if s.scheduler != nil {
				_ = s.scheduler.Shutdown()
			}
			return nil, fmt.Errorf("opening job history %s: %w", cfg.Service.History, err)
		}
	}
	return s, nil
}

// WithSinks replaces the sinks of an initialized Service.
func (s *Service) WithSinks(ctx context.Context, sinks ...model.Sink) *Service {
	closeSinks(ctx, s.sinks)
	s.sinks = sinks
	return s
}

// State returns a snapshot of the UI state.
func (s *Service) State() model.UIState {
	return s.store.Snapshot()
}

// Do runs the poll controller together with the mode driver.
//
// Modes:
//   - manual: a single job is submitted; Do returns once it completed
//     (after publishing the result), failed or could not be submitted.
//   - timer: a job is submitted on start and on every scheduler tick.
//     Results are published, errors logged; Do returns nil once ctx is
//     cancelled.
func (s *Service) Do(ctx context.Context) error {
	defer closeSinks(ctx, s.sinks)
	if s.history != nil {
		defer func() {
			if err := s.history.Close(); err != nil {
				slog.ErrorContext(ctx, "closing job history", "error", err)
			}
		}()
	}

	unsubscribe := s.store.Subscribe(s.notify)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.controller.Do(ctx)
	})
	g.Go(func() error {
		defer cancel()
		if s.oneshot {
			return s.runOnce(ctx)
		}
		return s.runTimer(ctx)
	})
	return g.Wait()
}

func (s *Service) runOnce(ctx context.Context) error {
	s.controller.Submit()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for job result: %w", ctx.Err())
		case err := <-s.submitErrs:
			return err
		case st := <-s.outcomes:
			s.record(ctx, st)
			switch st.Phase {
			case model.PhaseIdle:
				return publish(ctx, s.sinks, st.Result)
			case model.PhaseError:
				return st.Err
			}
		}
	}
}

func (s *Service) runTimer(ctx context.Context) error {
	s.scheduler.Start()
	defer func() {
		err := s.scheduler.Shutdown()
		if err != nil {
			slog.ErrorContext(ctx, "shutting down gocron has failed", "error", err)
		}
	}()

	s.controller.Submit()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-s.submitErrs:
			slog.WarnContext(ctx, "waiting for the next tick", "error", err)
		case st := <-s.outcomes:
			s.record(ctx, st)
			switch st.Phase {
			case model.PhaseIdle:
				slog.DebugContext(ctx, "job succeeded: publishing", "job", st.Job.String())
				if err := publish(ctx, s.sinks, st.Result); err != nil {
					slog.ErrorContext(ctx, "publishing failed", "error", err)
				}
			case model.PhaseError:
				slog.ErrorContext(ctx, "job failed: waiting for the next tick", "job", st.Job.String(), "error", st.Err)
			}
		}
	}
}

// record stores the transition into the job history, failures are only
// logged.
func (s *Service) record(ctx context.Context, st model.UIState) {
	if s.history == nil {
		return
	}
	if err := s.history.Record(ctx, st); err != nil {
		slog.WarnContext(ctx, "recording job history", "job", st.Job.String(), "phase", st.Phase, "error", err)
	}
}

// notify runs in the controller goroutine and must not block. Loading
// transitions are forwarded only to feed the job history.
func (s *Service) notify(st model.UIState) {
	if st.Phase == model.PhaseLoading && s.history == nil {
		return
	}
	select {
	case s.outcomes <- st:
	default:
		slog.Warn("outcome dropped: consumer is too slow", "job", st.Job.String(), "phase", st.Phase)
	}
}

func (s *Service) submitFailed(ctx context.Context, err error) {
	select {
	case s.submitErrs <- err:
	default:
		slog.DebugContext(ctx, "submission error dropped", "error", err)
	}
}
