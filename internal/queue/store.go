package queue

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"lectern/internal/config"
	"lectern/internal/logging"
)

// Store manages queue persistence backed by a single JSON document.
type Store struct {
	path   string
	logger *slog.Logger

	recoverOnce sync.Once
}

// Open initializes a store over the configured queue document.
func Open(cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return &Store{
		path:   cfg.Paths.QueuePath,
		logger: logging.NewComponentLogger(logger, "queue"),
	}, nil
}

// Path returns the location of the persisted document.
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted document. It never fails: a missing or unreadable
// document yields an empty state. The crash recovery rule runs on the first
// successful read of this handle, so a processing status left by a dead
// process is requeued without disturbing a claim made through the same handle.
func (s *Store) Load() *State {
	state := &State{}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("queue document unreadable, starting empty", logging.Error(err))
		}
		return state
	}
	if err := json.Unmarshal(data, state); err != nil {
		s.logger.Warn("queue document corrupt, starting empty",
			logging.String("path", s.path), logging.Error(err))
		return &State{}
	}

	s.recoverOnce.Do(func() { s.recover(state) })
	return state
}

// recover requeues jobs left in processing by an abnormal shutdown. There is
// no legitimate in-flight worker after a reload.
func (s *Store) recover(state *State) {
	for i := range state.Jobs {
		job := &state.Jobs[i]
		if job.Status != StatusProcessing {
			continue
		}
		s.logger.Info("requeueing job interrupted by shutdown",
			logging.String("job_id", job.ID),
			logging.String("name", job.OriginalName))
		job.Status = StatusPending
		job.StartedAt = nil
		job.Progress = nil
	}
	state.IsProcessing = false
	state.CurrentJobID = ""
}

// Save atomically rewrites the document with the given state.
func (s *Store) Save(state *State) error {
	state.LastUpdated = time.Now().UTC()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal queue state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".queue-*.json")
	if err != nil {
		return fmt.Errorf("create temp document: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write queue state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp document: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace queue document: %w", err)
	}
	return nil
}

// NewJob describes a submission before it is assigned an id.
type NewJob struct {
	SourcePath   string
	OriginalName string
	SizeBytes    int64
	Group        string
	Reprocess    bool
}

// Add appends new pending jobs in caller order and persists them.
func (s *Store) Add(inputs []NewJob) ([]Job, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	state := s.Load()
	created := make([]Job, 0, len(inputs))
	now := time.Now().UTC()
	for _, in := range inputs {
		job := Job{
			ID:           uuid.NewString(),
			SourcePath:   in.SourcePath,
			OriginalName: in.OriginalName,
			SizeBytes:    in.SizeBytes,
			Group:        in.Group,
			Reprocess:    in.Reprocess,
			Status:       StatusPending,
			CreatedAt:    now,
		}
		state.Jobs = append(state.Jobs, job)
		created = append(created, job)
	}

	if err := s.Save(state); err != nil {
		return nil, err
	}
	return created, nil
}

// Get returns a copy of the job with the given id.
func (s *Store) Get(id string) (*Job, bool) {
	job := s.Load().Find(id)
	if job == nil {
		return nil, false
	}
	cp := *job
	return &cp, true
}

// Update applies mutate to the job with the given id and persists the result.
// Returns ErrNotFound when the id does not exist.
func (s *Store) Update(id string, mutate func(*Job)) (*Job, error) {
	state := s.Load()
	job := state.Find(id)
	if job == nil {
		return nil, ErrNotFound
	}
	mutate(job)
	if err := s.Save(state); err != nil {
		return nil, err
	}
	cp := *job
	return &cp, nil
}

// Remove deletes the job with the given id. Returns false when absent.
func (s *Store) Remove(id string) (bool, error) {
	state := s.Load()
	for i := range state.Jobs {
		if state.Jobs[i].ID != id {
			continue
		}
		state.Jobs = append(state.Jobs[:i], state.Jobs[i+1:]...)
		if state.CurrentJobID == id {
			state.CurrentJobID = ""
			state.IsProcessing = false
		}
		if err := s.Save(state); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// NextPending returns the earliest-inserted pending job, or nil.
func (s *Store) NextPending() *Job {
	state := s.Load()
	for i := range state.Jobs {
		if state.Jobs[i].Status == StatusPending {
			cp := state.Jobs[i]
			return &cp
		}
	}
	return nil
}

// ClearCompleted removes all completed jobs, preserving the relative order of
// the rest, and returns the removed count.
func (s *Store) ClearCompleted() (int, error) {
	state := s.Load()
	kept := state.Jobs[:0]
	removed := 0
	for i := range state.Jobs {
		if state.Jobs[i].Status == StatusCompleted {
			removed++
			continue
		}
		kept = append(kept, state.Jobs[i])
	}
	if removed == 0 {
		return 0, nil
	}
	state.Jobs = kept
	if err := s.Save(state); err != nil {
		return 0, err
	}
	return removed, nil
}

// Claim transitions a pending job to processing and marks the document busy
// in one rewrite, so the single-active-job invariant holds at every persisted
// state. Returns ErrNotFound when the job is missing or no longer pending.
func (s *Store) Claim(id string) (*Job, error) {
	state := s.Load()
	job := state.Find(id)
	if job == nil || job.Status != StatusPending {
		return nil, ErrNotFound
	}
	now := time.Now().UTC()
	job.Status = StatusProcessing
	job.StartedAt = &now
	job.ErrorMessage = ""
	job.CompletedAt = nil
	job.ResultRef = ""
	state.IsProcessing = true
	state.CurrentJobID = job.ID
	if err := s.Save(state); err != nil {
		return nil, err
	}
	cp := *job
	return &cp, nil
}

// Finish applies a terminal mutation to the job and clears the processing
// flag in the same rewrite.
func (s *Store) Finish(id string, mutate func(*Job)) (*Job, error) {
	state := s.Load()
	job := state.Find(id)
	if job == nil {
		return nil, ErrNotFound
	}
	mutate(job)
	if state.CurrentJobID == id {
		state.IsProcessing = false
		state.CurrentJobID = ""
	}
	if err := s.Save(state); err != nil {
		return nil, err
	}
	cp := *job
	return &cp, nil
}

// SetProcessing records whether the loop is busy and with which job.
func (s *Store) SetProcessing(active bool, jobID string) error {
	state := s.Load()
	state.IsProcessing = active
	if active {
		state.CurrentJobID = jobID
	} else {
		state.CurrentJobID = ""
	}
	return s.Save(state)
}
