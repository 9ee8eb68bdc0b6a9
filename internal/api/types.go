package api

import "lectern/internal/queue"

// StatusResponse describes daemon and loop state.
type StatusResponse struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	CurrentJobID string         `json:"current_job_id,omitempty"`
	QueuePath    string         `json:"queue_path"`
	LockPath     string         `json:"lock_path"`
	Stats        map[string]int `json:"stats"`
}

// Submission describes one job to enqueue.
type Submission struct {
	SourcePath   string `json:"source_path"`
	OriginalName string `json:"original_name"`
	SizeBytes    int64  `json:"size_bytes"`
	Group        string `json:"group,omitempty"`
	Reprocess    bool   `json:"reprocess,omitempty"`
}

// AddRequest enqueues submissions in order.
type AddRequest struct {
	Submissions []Submission `json:"submissions"`
}

// AddResponse returns the created jobs.
type AddResponse struct {
	Jobs []queue.Job `json:"jobs"`
}

// QueueListResponse contains the full job list in queue order.
type QueueListResponse struct {
	Jobs []queue.Job `json:"jobs"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job queue.Job `json:"job"`
}

// RemoveResponse reports whether a job was deleted.
type RemoveResponse struct {
	Removed bool `json:"removed"`
}

// ClearCompletedResponse reports the swept count.
type ClearCompletedResponse struct {
	Removed int `json:"removed"`
}

// CancelResponse reports whether an in-flight job was signaled.
type CancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// ProcessorResponse reports loop control outcomes.
type ProcessorResponse struct {
	Running bool `json:"running"`
}

// ErrorResponse carries an API error message.
type ErrorResponse struct {
	Error string `json:"error"`
}
