package testsupport

import (
	"fmt"
	"testing"

	"lectern/internal/config"
	"lectern/internal/logging"
	"lectern/internal/queue"
)

// MustOpenStore opens a queue.Store for tests.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	return store
}

// SeedJobs adds count pending jobs and returns them in insertion order.
func SeedJobs(t testing.TB, store *queue.Store, count int) []queue.Job {
	t.Helper()

	inputs := make([]queue.NewJob, 0, count)
	for i := 0; i < count; i++ {
		inputs = append(inputs, queue.NewJob{
			SourcePath:   fmt.Sprintf("/tmp/lecture-%d.mp4", i),
			OriginalName: fmt.Sprintf("lecture-%d.mp4", i),
			SizeBytes:    int64(1000 + i),
		})
	}
	jobs, err := store.Add(inputs)
	if err != nil {
		t.Fatalf("store.Add: %v", err)
	}
	return jobs
}
