package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"log/slog"

	"github.com/gofrs/flock"

	"lectern/internal/config"
	"lectern/internal/events"
	"lectern/internal/logging"
	"lectern/internal/notifications"
	"lectern/internal/processing"
	"lectern/internal/queue"
)

// Daemon coordinates the processing loop and the HTTP API, and enforces
// single-instance execution via a lock file.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *queue.Store
	bus    *events.Bus
	loop   *processing.Loop

	logPath  string
	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	CurrentJobID string
	QueuePath    string
	LockFilePath string
	Stats        map[queue.Status]int
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, bus *events.Bus, loop *processing.Loop, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || bus == nil || loop == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, bus, loop, and logger")
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "lecternd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		bus:      bus,
		loop:     loop,
		logPath:  filepath.Join(cfg.Paths.LogDir, "lectern.log"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}

	srv, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = srv
	return d, nil
}

// Start acquires the daemon lock, launches the processing loop, and brings up
// the API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another lectern daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.loop.Start(d.ctx)
	if d.api != nil {
		if err := d.api.start(d.ctx); err != nil {
			d.loop.Stop()
			d.cancel()
			d.ctx = nil
			d.cancel = nil
			_ = d.lock.Unlock()
			return err
		}
	}

	d.running.Store(true)
	d.logger.Info("lectern daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop shuts down the loop and the API server and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.api != nil {
		d.api.stop()
	}
	d.loop.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("lectern daemon stopped")
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		CurrentJobID: d.loop.CurrentJobID(),
		QueuePath:    d.store.Path(),
		LockFilePath: d.lockPath,
		Stats:        d.store.Load().Stats(),
	}
}

// ListQueue returns all jobs in insertion order.
func (d *Daemon) ListQueue() []queue.Job {
	return d.store.Load().Jobs
}

// AddSubmissions enqueues new jobs and announces the updated queue.
func (d *Daemon) AddSubmissions(inputs []queue.NewJob) ([]queue.Job, error) {
	for _, in := range inputs {
		if strings.TrimSpace(in.SourcePath) == "" {
			return nil, errors.New("source path is required")
		}
	}
	jobs, err := d.store.Add(inputs)
	if err != nil {
		return nil, fmt.Errorf("enqueue jobs: %w", err)
	}
	d.logger.Info("jobs queued", logging.Int("count", len(jobs)))
	d.bus.BroadcastState()
	return jobs, nil
}

// RemoveJob deletes a job if it is not the one being processed.
func (d *Daemon) RemoveJob(id string) (bool, error) {
	if d.loop.CurrentJobID() == id {
		return false, errors.New("job is currently processing; cancel it first")
	}
	removed, err := d.store.Remove(id)
	if err != nil {
		return false, err
	}
	if removed {
		d.bus.BroadcastState()
	}
	return removed, nil
}

// RetryJob requeues a failed or cancelled job.
func (d *Daemon) RetryJob(id string) (*queue.Job, error) {
	current, ok := d.store.Get(id)
	if !ok {
		return nil, queue.ErrNotFound
	}
	if current.Status != queue.StatusFailed && current.Status != queue.StatusCancelled {
		return nil, fmt.Errorf("job %s is %s; only failed or cancelled jobs can be retried", id, current.Status)
	}
	job, err := d.store.Update(id, func(j *queue.Job) { j.ResetForRetry() })
	if err != nil {
		return nil, err
	}
	d.bus.BroadcastState()
	return job, nil
}

// ClearCompleted sweeps completed jobs from the queue.
func (d *Daemon) ClearCompleted() (int, error) {
	removed, err := d.store.ClearCompleted()
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		d.bus.BroadcastState()
	}
	return removed, nil
}

// CancelCurrent signals the in-flight job to stop.
func (d *Daemon) CancelCurrent() bool {
	return d.loop.CancelCurrent()
}

// StartProcessor resumes the loop if it was stopped.
func (d *Daemon) StartProcessor() {
	if d.ctx == nil {
		return
	}
	d.loop.Start(d.ctx)
}

// StopProcessor stops the loop, failing any in-flight job.
func (d *Daemon) StopProcessor() {
	d.loop.Stop()
}

// ProcessorRunning reports whether the loop is active.
func (d *Daemon) ProcessorRunning() bool {
	return d.loop.Running()
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	notifier := notifications.NewService(d.cfg)
	if err := notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}
