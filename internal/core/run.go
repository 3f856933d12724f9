package core

import "time"

// Run represents a single execution of the digest pipeline
type Run struct {
	ID          string         `json:"id" yaml:"id"`
	StartedAt   time.Time      `json:"started_at" yaml:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	Status      RunStatus      `json:"status" yaml:"status"`
	Mode        RunMode        `json:"mode" yaml:"mode"`
	StopReason  string         `json:"stop_reason" yaml:"stop_reason"`
	Pages       int            `json:"pages" yaml:"pages"`
	Discovered  int            `json:"discovered" yaml:"discovered"`
	Outcomes    map[string]int `json:"outcomes,omitempty" yaml:"outcomes,omitempty"`
	Downloaded  int            `json:"downloaded" yaml:"downloaded"`
	Existing    int            `json:"existing" yaml:"existing"`
	Batches     int            `json:"batches" yaml:"batches"`
	Delivered   int            `json:"delivered" yaml:"delivered"`
	SentIDs     []string       `json:"sent_ids,omitempty" yaml:"sent_ids,omitempty"`
	IgnoredIDs  []string       `json:"ignored_ids,omitempty" yaml:"ignored_ids,omitempty"`
	Errors      []ProcessError `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// RunStatus represents the current state of a run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// RunMode distinguishes the digest run from the download-only modes.
type RunMode string

const (
	RunModeDigest   RunMode = "digest"
	RunModeDryRun   RunMode = "dry_run"
	RunModeBackfill RunMode = "backfill"
)

func (r *Run) AddError(stage, itemID string, err error) {
	if r == nil || err == nil {
		return
	}
	r.Errors = append(r.Errors, ProcessError{
		Stage:      stage,
		ItemID:     itemID,
		Error:      err.Error(),
		OccurredAt: time.Now().UTC(),
	})
}

func (r *Run) CountOutcome(kind string) {
	if r.Outcomes == nil {
		r.Outcomes = map[string]int{}
	}
	r.Outcomes[kind]++
}
