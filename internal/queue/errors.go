package queue

import "errors"

// ErrNotFound is returned when a job id does not exist in the document.
var ErrNotFound = errors.New("queue: job not found")
