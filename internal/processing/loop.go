package processing

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"lectern/internal/config"
	"lectern/internal/events"
	"lectern/internal/logging"
	"lectern/internal/notifications"
	"lectern/internal/queue"
	"lectern/internal/worker"
)

// Runner is the subprocess surface the loop drives. Satisfied by
// *worker.Runner; narrowed to an interface so tests can substitute outcomes.
type Runner interface {
	Process(ctx context.Context, job *queue.Job, onProgress worker.ProgressFunc) (string, error)
}

// Loop sequentially claims and executes jobs.
type Loop struct {
	store        *queue.Store
	bus          *events.Bus
	runner       Runner
	notifier     notifications.Service
	logger       *slog.Logger
	pollInterval time.Duration

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	current   string
	cancelJob context.CancelFunc
	userStop  bool

	batchActive bool
	batchStart  time.Time
	processed   int
	failed      int
}

// New constructs a loop. Production code should use Init/Shared; New exists
// for dependency-injected tests.
func New(cfg *config.Config, store *queue.Store, bus *events.Bus, runner Runner, notifier notifications.Service, logger *slog.Logger) *Loop {
	interval := time.Duration(cfg.Workflow.QueuePollInterval) * time.Second
	if interval <= 0 {
		interval = time.Second
	}
	return &Loop{
		store:        store,
		bus:          bus,
		runner:       runner,
		notifier:     notifier,
		logger:       logging.NewComponentLogger(logger, "processing"),
		pollInterval: interval,
	}
}

var (
	sharedOnce sync.Once
	shared     *Loop
)

// Init constructs the process-wide loop exactly once and returns it.
// Subsequent calls return the original instance regardless of arguments.
func Init(cfg *config.Config, store *queue.Store, bus *events.Bus, runner Runner, notifier notifications.Service, logger *slog.Logger) *Loop {
	sharedOnce.Do(func() {
		shared = New(cfg, store, bus, runner, notifier, logger)
	})
	return shared
}

// Shared returns the process-wide loop, or nil before Init.
func Shared() *Loop {
	return shared
}

// Start launches the polling goroutine. It is idempotent: when a loop is
// already active the call is a no-op, so no job can be claimed twice and no
// duplicate subprocess can be spawned.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.running = true
	l.wg.Add(1)
	go l.run(runCtx)

	l.logger.Info("processing loop started")
}

// Stop signals the loop to end and waits for the in-flight iteration to
// finish, so no job is left half-updated. A running subprocess is terminated
// and its job marked failed.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	cancel := l.cancel
	l.running = false
	l.cancel = nil
	l.mu.Unlock()

	cancel()
	l.wg.Wait()
	l.logger.Info("processing loop stopped")
}

// Running reports whether the loop is active.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// CurrentJobID returns the id of the job being processed, or "".
func (l *Loop) CurrentJobID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// CancelCurrent signals the active subprocess to terminate. The affected job
// ends cancelled and the loop proceeds to the next pending job on its own.
// Returns false when nothing is processing.
func (l *Loop) CancelCurrent() bool {
	l.mu.Lock()
	if l.current == "" || l.cancelJob == nil {
		l.mu.Unlock()
		return false
	}
	l.userStop = true
	cancelJob := l.cancelJob
	id := l.current
	l.mu.Unlock()

	l.logger.Info("cancelling current job", logging.String("job_id", id))
	cancelJob()
	return true
}

func (l *Loop) run(ctx context.Context) {
	defer l.wg.Done()
	// The document must not claim a busy loop once this goroutine is gone,
	// even when a job's terminal rewrite could not be persisted.
	defer func() {
		if err := l.store.SetProcessing(false, ""); err != nil {
			l.logger.Warn("clear busy flag failed", logging.Error(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		next := l.store.NextPending()
		if next == nil {
			l.finishBatch(ctx)
			select {
			case <-ctx.Done():
				return
			case <-time.After(l.pollInterval):
			}
			continue
		}

		l.startBatch()
		if !l.processJob(ctx, next.ID) {
			// Claim failed; retrying immediately would spin against a store
			// that keeps returning the same job. Wait out a poll interval.
			select {
			case <-ctx.Done():
				return
			case <-time.After(l.pollInterval):
			}
		}
	}
}

// processJob claims and runs one job, reporting whether the claim succeeded.
func (l *Loop) processJob(ctx context.Context, id string) bool {
	claimed, err := l.store.Claim(id)
	if err != nil {
		// The job vanished, changed status between poll and claim, or the
		// document could not be rewritten.
		l.logger.Warn("claim failed", logging.String("job_id", id), logging.Error(err))
		return false
	}
	logger := l.logger.With(logging.String("job_id", claimed.ID),
		logging.String("name", claimed.OriginalName))
	logger.Info("job claimed")
	l.bus.BroadcastState()

	jobCtx, cancelJob := context.WithCancel(ctx)
	defer cancelJob()

	l.mu.Lock()
	l.current = claimed.ID
	l.cancelJob = cancelJob
	l.userStop = false
	l.mu.Unlock()

	resultRef, runErr := l.runner.Process(jobCtx, claimed, func(frame queue.Progress) {
		l.publishProgress(claimed.ID, frame)
	})

	l.mu.Lock()
	l.current = ""
	l.cancelJob = nil
	userStop := l.userStop
	l.userStop = false
	l.mu.Unlock()

	switch {
	case runErr == nil:
		job, err := l.store.Finish(claimed.ID, func(j *queue.Job) { j.SetCompleted(resultRef) })
		if err != nil {
			logger.Error("persist completion failed", logging.Error(err))
			break
		}
		l.processed++
		logger.Info("job completed", logging.String("result_ref", resultRef))
		l.bus.Emit(events.Event{Kind: events.KindJobComplete, Job: job})
		_ = l.notifier.NotifyJobCompleted(context.WithoutCancel(ctx), job)

	case errors.Is(runErr, context.Canceled) && userStop:
		job, err := l.store.Finish(claimed.ID, func(j *queue.Job) { j.SetCancelled() })
		if err != nil {
			logger.Error("persist cancellation failed", logging.Error(err))
			break
		}
		logger.Info("job cancelled")
		l.bus.Emit(events.Event{Kind: events.KindJobCancelled, Job: job})

	case errors.Is(runErr, context.Canceled):
		// Loop shutdown while the job was in flight.
		job, err := l.store.Finish(claimed.ID, func(j *queue.Job) { j.SetFailed(queue.StopReason) })
		if err != nil {
			logger.Error("persist stop failure failed", logging.Error(err))
			break
		}
		logger.Warn("job aborted by shutdown")
		l.bus.Emit(events.Event{Kind: events.KindJobFailed, Job: job, Error: queue.StopReason})

	default:
		message := runErr.Error()
		job, err := l.store.Finish(claimed.ID, func(j *queue.Job) { j.SetFailed(message) })
		if err != nil {
			logger.Error("persist failure failed", logging.Error(err))
			break
		}
		l.failed++
		logger.Warn("job failed", logging.String("reason", message))
		l.bus.Emit(events.Event{Kind: events.KindJobFailed, Job: job, Error: message})
		_ = l.notifier.NotifyJobFailed(context.WithoutCancel(ctx), job, message)
	}

	l.bus.BroadcastState()
	return true
}

func (l *Loop) publishProgress(id string, frame queue.Progress) {
	job, err := l.store.Update(id, func(j *queue.Job) {
		cp := frame
		j.Progress = &cp
	})
	if err != nil {
		l.logger.Warn("persist progress failed", logging.String("job_id", id), logging.Error(err))
		return
	}
	cp := frame
	l.bus.Emit(events.Event{Kind: events.KindProgress, Job: job, Progress: &cp})
}

func (l *Loop) startBatch() {
	if !l.batchActive {
		l.batchActive = true
		l.batchStart = time.Now()
		l.processed = 0
		l.failed = 0
	}
}

// finishBatch reports a drained queue once per busy period.
func (l *Loop) finishBatch(ctx context.Context) {
	if !l.batchActive {
		return
	}
	l.batchActive = false
	if l.processed+l.failed == 0 {
		return
	}
	_ = l.notifier.NotifyQueueDrained(context.WithoutCancel(ctx), l.processed, l.failed, time.Since(l.batchStart))
}
