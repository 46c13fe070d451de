package jobs

import (
	"time"

	"splicer/internal/ffmpeg"
)

// State is the lifecycle position of a merge job.
type State string

const (
	StateIdle       State = "idle"
	StateRunning    State = "running"
	StateCancelling State = "cancelling"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// Active reports whether the state occupies the job slot.
func (s State) Active() bool {
	return s == StateRunning || s == StateCancelling
}

// Terminal reports whether the state ends the job.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// EventKind distinguishes stream events.
type EventKind string

const (
	EventProgress  EventKind = "progress"
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
	// EventCancelled acknowledges a cancel request. Nothing follows it.
	EventCancelled EventKind = "cancelled"
)

// Terminal reports whether the event is the last one on its stream.
func (k EventKind) Terminal() bool {
	return k == EventCompleted || k == EventFailed || k == EventCancelled
}

// Event is one entry on a job's stream. Seq starts at 1 and increases by one
// per event within a job.
type Event struct {
	Seq       int64           `json:"seq"`
	JobID     string          `json:"job_id"`
	Kind      EventKind       `json:"kind"`
	Progress  ffmpeg.Progress `json:"progress"`
	Error     string          `json:"error,omitempty"`
	ErrorKind string          `json:"error_kind,omitempty"`
}

// Snapshot is a point-in-time copy of a job for status reporting.
type Snapshot struct {
	ID         string          `json:"id"`
	Inputs     []string        `json:"inputs"`
	OutputPath string          `json:"output_path"`
	State      State           `json:"state"`
	StartedAt  time.Time       `json:"started_at"`
	Progress   ffmpeg.Progress `json:"progress"`
}

// Stream delivers a job's events. The channel is closed after the terminal
// event or the cancel acknowledgement.
type Stream struct {
	jobID  string
	events <-chan Event
}

// JobID returns the identifier of the streamed job.
func (s *Stream) JobID() string {
	return s.jobID
}

// Events returns the event channel.
func (s *Stream) Events() <-chan Event {
	return s.events
}
