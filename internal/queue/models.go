package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// StopReason is the error message set when an in-flight job is failed because
// the processor shut down.
const StopReason = "processor stopped"

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Progress is a structured update describing a sub-step of a job's external
// processing. Step and Message are opaque worker strings; Current/Total are
// present only when the worker reports a countable step.
type Progress struct {
	Step    string `json:"step"`
	Message string `json:"message"`
	Current int    `json:"progress,omitempty"`
	Total   int    `json:"total,omitempty"`
}

// Job is one submitted video awaiting or undergoing external processing.
type Job struct {
	ID           string     `json:"id"`
	SourcePath   string     `json:"source_path"`
	OriginalName string     `json:"original_name"`
	SizeBytes    int64      `json:"size_bytes"`
	Group        string     `json:"group,omitempty"`
	Reprocess    bool       `json:"reprocess,omitempty"`
	Status       Status     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Progress     *Progress  `json:"progress,omitempty"`
	ErrorMessage string     `json:"error,omitempty"`
	ResultRef    string     `json:"result_ref,omitempty"`
}

// State is the persisted queue document.
type State struct {
	Jobs         []Job     `json:"jobs"`
	IsProcessing bool      `json:"is_processing"`
	CurrentJobID string    `json:"current_job_id,omitempty"`
	LastUpdated  time.Time `json:"last_updated"`
}

// Stats returns job counts per status.
func (st *State) Stats() map[Status]int {
	stats := make(map[Status]int, len(allStatuses))
	for i := range st.Jobs {
		stats[st.Jobs[i].Status]++
	}
	return stats
}

// Find returns a pointer into st.Jobs for the given id, or nil.
func (st *State) Find(id string) *Job {
	for i := range st.Jobs {
		if st.Jobs[i].ID == id {
			return &st.Jobs[i]
		}
	}
	return nil
}

// SetFailed marks the job failed with the given message, stamping completion
// and clearing progress.
func (j *Job) SetFailed(message string) {
	now := time.Now().UTC()
	j.Status = StatusFailed
	j.ErrorMessage = message
	j.Progress = nil
	j.CompletedAt = &now
}

// SetCancelled marks the job cancelled, stamping completion and clearing
// progress. Cancellation is a non-error terminal state.
func (j *Job) SetCancelled() {
	now := time.Now().UTC()
	j.Status = StatusCancelled
	j.ErrorMessage = ""
	j.Progress = nil
	j.CompletedAt = &now
}

// SetCompleted marks the job completed with the worker's result reference.
func (j *Job) SetCompleted(resultRef string) {
	now := time.Now().UTC()
	j.Status = StatusCompleted
	j.ErrorMessage = ""
	j.Progress = nil
	j.ResultRef = resultRef
	j.CompletedAt = &now
}

// ResetForRetry returns a failed or cancelled job to pending so the loop can
// pick it up again.
func (j *Job) ResetForRetry() {
	j.Status = StatusPending
	j.ErrorMessage = ""
	j.Progress = nil
	j.StartedAt = nil
	j.CompletedAt = nil
	j.ResultRef = ""
}
