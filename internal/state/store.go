// Package state holds the UI state of the job client. All mutations go
// through the transition methods of Store; readers get deep copies.
package state

import (
	"context"
	"log/slog"
	"sync"

	"github.com/CZERTAINLY/Prospect/internal/model"
)

// Listener is called synchronously after every transition, in the
// goroutine that performed it. It must not block.
type Listener func(model.UIState)

type Store struct {
	mx        sync.RWMutex
	state     model.UIState
	nextID    int
	listeners map[int]Listener
}

func NewStore() *Store {
	return &Store{
		state:     model.InitialState(),
		listeners: make(map[int]Listener),
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() model.UIState {
	s.mx.RLock()
	defer s.mx.RUnlock()
	return s.state.Clone()
}

// Subscribe registers a listener and returns the function removing it.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.mx.Lock()
	defer s.mx.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	return func() {
		s.mx.Lock()
		defer s.mx.Unlock()
		delete(s.listeners, id)
	}
}

// BeginLoading is applied when a job was accepted: the previous result is
// cleared and the button switches to the loading label.
func (s *Store) BeginLoading(ctx context.Context, job model.JobHandle) model.UIState {
	return s.transition(ctx, func(st *model.UIState) {
		st.Phase = model.PhaseLoading
		st.Result = nil
		st.ButtonLabel = model.LabelLoading
		st.ErrorVisible = false
		st.Job = job
		st.Err = nil
	})
}

// Complete stores the result of a finished job.
func (s *Store) Complete(ctx context.Context, result model.Result) model.UIState {
	return s.transition(ctx, func(st *model.UIState) {
		st.Phase = model.PhaseIdle
		st.Result = result.Clone()
		st.ButtonLabel = model.LabelRefresh
		st.Err = nil
	})
}

// Fail shows the error banner. The result is left untouched.
func (s *Store) Fail(ctx context.Context, err error) model.UIState {
	return s.transition(ctx, func(st *model.UIState) {
		st.Phase = model.PhaseError
		st.ButtonLabel = model.LabelRefresh
		st.ErrorVisible = true
		st.Err = err
	})
}

func (s *Store) transition(ctx context.Context, apply func(*model.UIState)) model.UIState {
	s.mx.Lock()
	from := s.state.Phase
	apply(&s.state)
	snapshot := s.state.Clone()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mx.Unlock()

	slog.DebugContext(ctx, "ui state changed",
		"from", from,
		"to", snapshot.Phase,
		"entries", len(snapshot.Result))

	for _, l := range listeners {
		l(snapshot.Clone())
	}
	return snapshot
}
