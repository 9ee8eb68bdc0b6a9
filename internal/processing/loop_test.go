package processing_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lectern/internal/events"
	"lectern/internal/logging"
	"lectern/internal/notifications"
	"lectern/internal/processing"
	"lectern/internal/queue"
	"lectern/internal/testsupport"
	"lectern/internal/worker"
)

type fakeRunner struct {
	mu      sync.Mutex
	calls   []string
	handler func(ctx context.Context, job *queue.Job, onProgress worker.ProgressFunc) (string, error)
}

func (f *fakeRunner) Process(ctx context.Context, job *queue.Job, onProgress worker.ProgressFunc) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, job.ID)
	f.mu.Unlock()
	if f.handler != nil {
		return f.handler(ctx, job, onProgress)
	}
	return "ref-" + job.ID, nil
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fixture struct {
	store  *queue.Store
	bus    *events.Bus
	loop   *processing.Loop
	runner *fakeRunner
	events chan events.Event
}

func newFixture(t *testing.T, runner *fakeRunner) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	bus := events.NewBus(store)

	ch := make(chan events.Event, 128)
	t.Cleanup(bus.Subscribe(func(e events.Event) {
		select {
		case ch <- e:
		default:
		}
	}))

	loop := processing.New(cfg, store, bus, runner, notifications.NewService(cfg), logging.NewNop())
	t.Cleanup(loop.Stop)
	return &fixture{store: store, bus: bus, loop: loop, runner: runner, events: ch}
}

func (f *fixture) waitFor(t *testing.T, kind events.Kind) events.Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case e := <-f.events:
			if e.Kind == kind {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestLoopProcessesJobsInOrder(t *testing.T) {
	runner := &fakeRunner{}
	f := newFixture(t, runner)
	jobs := testsupport.SeedJobs(t, f.store, 2)

	f.loop.Start(context.Background())

	f.waitFor(t, events.KindJobComplete)
	f.waitFor(t, events.KindJobComplete)

	runner.mu.Lock()
	order := append([]string(nil), runner.calls...)
	runner.mu.Unlock()
	if len(order) != 2 || order[0] != jobs[0].ID || order[1] != jobs[1].ID {
		t.Fatalf("jobs not processed in insertion order: %#v", order)
	}

	state := f.store.Load()
	for _, job := range state.Jobs {
		if job.Status != queue.StatusCompleted {
			t.Fatalf("expected all jobs completed, got %#v", job)
		}
		if job.ResultRef != "ref-"+job.ID {
			t.Fatalf("result ref not recorded: %#v", job)
		}
	}
	if state.IsProcessing || state.CurrentJobID != "" {
		t.Fatalf("processing flag not cleared: %#v", state)
	}
}

func TestLoopDiscoversNewWorkWhilePolling(t *testing.T) {
	runner := &fakeRunner{}
	f := newFixture(t, runner)

	f.loop.Start(context.Background())
	time.Sleep(50 * time.Millisecond) // loop is idle-polling now

	testsupport.SeedJobs(t, f.store, 1)
	e := f.waitFor(t, events.KindJobComplete)
	if e.Job == nil || e.Job.Status != queue.StatusCompleted {
		t.Fatalf("unexpected completion event: %#v", e)
	}
}

func TestFailureIsolation(t *testing.T) {
	runner := &fakeRunner{}
	runner.handler = func(ctx context.Context, job *queue.Job, _ worker.ProgressFunc) (string, error) {
		if job.OriginalName == "lecture-0.mp4" {
			return "", errors.New("bad codec")
		}
		return "ok", nil
	}
	f := newFixture(t, runner)
	jobs := testsupport.SeedJobs(t, f.store, 2)

	f.loop.Start(context.Background())

	failed := f.waitFor(t, events.KindJobFailed)
	if failed.Error != "bad codec" {
		t.Fatalf("expected error message carried on event, got %q", failed.Error)
	}
	f.waitFor(t, events.KindJobComplete)

	first, _ := f.store.Get(jobs[0].ID)
	if first.Status != queue.StatusFailed || first.ErrorMessage != "bad codec" {
		t.Fatalf("expected first job failed with message, got %#v", first)
	}
	second, _ := f.store.Get(jobs[1].ID)
	if second.Status != queue.StatusCompleted {
		t.Fatalf("loop did not continue after failure: %#v", second)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	block := make(chan struct{})
	runner := &fakeRunner{}
	runner.handler = func(ctx context.Context, job *queue.Job, _ worker.ProgressFunc) (string, error) {
		<-block
		return "ok", nil
	}
	f := newFixture(t, runner)
	testsupport.SeedJobs(t, f.store, 1)

	ctx := context.Background()
	f.loop.Start(ctx)
	f.loop.Start(ctx)
	f.loop.Start(ctx)

	waitUntil(t, "first claim", func() bool { return runner.callCount() >= 1 })
	// With a second loop the single job would be claimed once but a second
	// poller would race the store; give it a moment to misbehave.
	time.Sleep(100 * time.Millisecond)
	if got := runner.callCount(); got != 1 {
		t.Fatalf("job claimed %d times, want 1", got)
	}
	close(block)
	f.waitFor(t, events.KindJobComplete)
}

func TestCancelCurrent(t *testing.T) {
	started := make(chan struct{})
	runner := &fakeRunner{}
	runner.handler = func(ctx context.Context, job *queue.Job, _ worker.ProgressFunc) (string, error) {
		if job.OriginalName == "lecture-0.mp4" {
			close(started)
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "ok", nil
	}
	f := newFixture(t, runner)
	jobs := testsupport.SeedJobs(t, f.store, 2)

	f.loop.Start(context.Background())
	<-started

	if id := f.loop.CurrentJobID(); id != jobs[0].ID {
		t.Fatalf("CurrentJobID = %q, want %q", id, jobs[0].ID)
	}
	if !f.loop.CancelCurrent() {
		t.Fatal("CancelCurrent reported nothing processing")
	}

	cancelled := f.waitFor(t, events.KindJobCancelled)
	if cancelled.Job == nil || cancelled.Job.ID != jobs[0].ID {
		t.Fatalf("wrong job cancelled: %#v", cancelled.Job)
	}

	// The loop proceeds to the next pending job without any external nudge.
	f.waitFor(t, events.KindJobComplete)

	first, _ := f.store.Get(jobs[0].ID)
	if first.Status != queue.StatusCancelled || first.CompletedAt == nil {
		t.Fatalf("expected cancelled with completedAt, got %#v", first)
	}
	if first.ErrorMessage != "" {
		t.Fatalf("cancellation is not an error state: %#v", first)
	}
	waitUntil(t, "current job cleared", func() bool { return f.loop.CurrentJobID() == "" })

	if f.loop.CancelCurrent() {
		t.Fatal("CancelCurrent with nothing processing should return false")
	}
}

func TestStopFailsInFlightJob(t *testing.T) {
	started := make(chan struct{})
	runner := &fakeRunner{}
	runner.handler = func(ctx context.Context, job *queue.Job, _ worker.ProgressFunc) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	}
	f := newFixture(t, runner)
	jobs := testsupport.SeedJobs(t, f.store, 1)

	f.loop.Start(context.Background())
	<-started
	f.loop.Stop()

	job, _ := f.store.Get(jobs[0].ID)
	if job.Status != queue.StatusFailed || job.ErrorMessage != queue.StopReason {
		t.Fatalf("expected failed with stop reason after Stop, got %#v", job)
	}
	if f.loop.Running() {
		t.Fatal("loop still running after Stop")
	}
}

func TestProgressPersistedAndPublished(t *testing.T) {
	runner := &fakeRunner{}
	runner.handler = func(ctx context.Context, job *queue.Job, onProgress worker.ProgressFunc) (string, error) {
		onProgress(queue.Progress{Step: "transcribing", Message: "chunk 1", Current: 1, Total: 4})
		return "ok", nil
	}
	f := newFixture(t, runner)
	testsupport.SeedJobs(t, f.store, 1)

	f.loop.Start(context.Background())

	e := f.waitFor(t, events.KindProgress)
	if e.Progress == nil || e.Progress.Step != "transcribing" || e.Progress.Total != 4 {
		t.Fatalf("unexpected progress event: %#v", e.Progress)
	}
	if e.Job == nil || e.Job.Progress == nil || e.Job.Progress.Message != "chunk 1" {
		t.Fatalf("progress not persisted on job: %#v", e.Job)
	}

	done := f.waitFor(t, events.KindJobComplete)
	if done.Job.Progress != nil {
		t.Fatalf("progress must be cleared on completion: %#v", done.Job)
	}
}

func TestStateEventsBracketEachJob(t *testing.T) {
	runner := &fakeRunner{}
	f := newFixture(t, runner)
	testsupport.SeedJobs(t, f.store, 1)

	f.loop.Start(context.Background())

	saw := 0
	deadline := time.After(5 * time.Second)
	for saw < 2 {
		select {
		case e := <-f.events:
			if e.Kind == events.KindState {
				saw++
				if e.State == nil {
					t.Fatal("state event without snapshot")
				}
			}
		case <-deadline:
			t.Fatalf("expected claim and terminal state events, saw %d", saw)
		}
	}
}

func TestSharedSingleton(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	bus := events.NewBus(store)
	runner := &fakeRunner{}

	first := processing.Init(cfg, store, bus, runner, notifications.NewService(cfg), logging.NewNop())
	second := processing.Init(cfg, store, bus, runner, notifications.NewService(cfg), logging.NewNop())
	if first != second {
		t.Fatal("Init must return the same instance")
	}
	if processing.Shared() != first {
		t.Fatal("Shared must return the initialized instance")
	}
}
