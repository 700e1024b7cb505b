package history

import "time"

// Status is the lifecycle state of a recorded run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Run is one recorded transcription.
type Run struct {
	ID            string     `json:"id" yaml:"id"`
	InputPath     string     `json:"input_path" yaml:"input_path"`
	InputName     string     `json:"input_name" yaml:"input_name"`
	InputHash     string     `json:"input_hash,omitempty" yaml:"input_hash,omitempty"`
	OutputPath    string     `json:"output_path,omitempty" yaml:"output_path,omitempty"`
	Status        Status     `json:"status" yaml:"status"`
	Source        string     `json:"source" yaml:"source"`
	Speakers      int        `json:"speakers" yaml:"speakers"`
	Segments      int        `json:"segments" yaml:"segments"`
	SkippedShort  int        `json:"skipped_short" yaml:"skipped_short"`
	SkippedEmpty  int        `json:"skipped_empty" yaml:"skipped_empty"`
	SkippedFailed int        `json:"skipped_failed" yaml:"skipped_failed"`
	Backend       string     `json:"backend,omitempty" yaml:"backend,omitempty"`
	Device        string     `json:"device,omitempty" yaml:"device,omitempty"`
	ErrorKind     string     `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty" yaml:"error_message,omitempty"`
	Report        string     `json:"-" yaml:"-"`
	StartedAt     time.Time  `json:"started_at" yaml:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

// Elapsed returns the run wall time, or zero while it is running.
func (r *Run) Elapsed() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Outcome carries the terminal fields written by Finish.
type Outcome struct {
	Status        Status
	OutputPath    string
	Speakers      int
	Segments      int
	SkippedShort  int
	SkippedEmpty  int
	SkippedFailed int
	Backend       string
	Device        string
	ErrorKind     string
	ErrorMessage  string
	Report        string
}
