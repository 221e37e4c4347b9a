package model

import (
	"encoding/json"
	"fmt"
)

// JobHandle is an opaque identifier the remote service returns once it
// accepts a job.
type JobHandle string

func (h JobHandle) String() string {
	return string(h)
}

// PollStatus is the outcome of a single status check.
type PollStatus string

const (
	StatusPending  PollStatus = "pending"
	StatusComplete PollStatus = "complete"
)

// Entry is a single (label, value) pair of a completed job.
// On the wire it is a two element array: ["Alice", 5].
type Entry struct {
	Label string
	Value float64
}

func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.Label, e.Value})
}

func (e *Entry) UnmarshalJSON(b []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("%w: expected [label, value] pair, got %d elements", ErrInvalidPayload, len(pair))
	}
	if err := json.Unmarshal(pair[0], &e.Label); err != nil {
		return fmt.Errorf("%w: label: %w", ErrInvalidPayload, err)
	}
	if err := json.Unmarshal(pair[1], &e.Value); err != nil {
		return fmt.Errorf("%w: value: %w", ErrInvalidPayload, err)
	}
	return nil
}

// Result is the ordered data of a completed job.
type Result []Entry

// Clone returns a copy which does not share the backing array.
func (r Result) Clone() Result {
	if r == nil {
		return nil
	}
	ret := make(Result, len(r))
	copy(ret, r)
	return ret
}

// Phase drives the button label and the error banner.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseError   Phase = "error"
)

const (
	LabelRefresh = "Refresh"
	LabelLoading = "Loading..."
)

// UIState is the state shared with whatever displays the job.
//
// Result is set only when Phase is PhaseIdle and the latest poll cycle
// completed. PhaseLoading always comes with a nil Result.
type UIState struct {
	Phase        Phase     `json:"phase"`
	Result       Result    `json:"result,omitempty"`
	ButtonLabel  string    `json:"button_label"`
	ErrorVisible bool      `json:"error_visible"`
	Job          JobHandle `json:"job,omitempty"`
	// Err is the last poll failure, kept for diagnostics only.
	Err error `json:"-"`
}

// InitialState is the state before any job was submitted.
func InitialState() UIState {
	return UIState{
		Phase:       PhaseIdle,
		ButtonLabel: LabelRefresh,
	}
}

// Clone returns a deep copy of the state.
func (s UIState) Clone() UIState {
	s.Result = s.Result.Clone()
	return s
}
