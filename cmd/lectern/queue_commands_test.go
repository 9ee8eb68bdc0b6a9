package main

import (
	"testing"

	"lectern/internal/queue"
	"lectern/internal/testsupport"
)

func TestQueueListEmpty(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"queue", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "Queue is empty")
}

func TestAddAndListJobs(t *testing.T) {
	env := setupCLITestEnv(t)
	source := testsupport.WriteSourceFile(t, env.cfg, "calculus-week3.mp4")

	out, _, err := runCLI(t, []string{"add", source, "--group", "week-3"}, env.configPath)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	requireContains(t, out, "Queued calculus-week3.mp4")

	out, _, err = runCLI(t, []string{"queue", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "calculus-week3.mp4")
	requireContains(t, out, "week-3")
	requireContains(t, out, "pending")

	jobs := env.store.Load().Jobs
	if len(jobs) != 1 {
		t.Fatalf("expected 1 persisted job, got %d", len(jobs))
	}
	if jobs[0].Group != "week-3" {
		t.Fatalf("unexpected group %q", jobs[0].Group)
	}
}

func TestAddRejectsGroupWithReprocess(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"add", env.baseDir, "--reprocess", "--group", "week-1"}, env.configPath)
	if err == nil {
		t.Fatal("expected --group with --reprocess to fail")
	}
}

func TestAddRejectsUnknownExtension(t *testing.T) {
	env := setupCLITestEnv(t)
	source := testsupport.WriteSourceFile(t, env.cfg, "notes.txt")

	_, _, err := runCLI(t, []string{"add", source}, env.configPath)
	if err == nil {
		t.Fatal("expected unsupported extension to fail")
	}
}

func TestQueueRetryDirect(t *testing.T) {
	env := setupCLITestEnv(t)
	jobs := testsupport.SeedJobs(t, env.store, 2)
	if _, err := env.store.Update(jobs[0].ID, func(j *queue.Job) { j.SetFailed("boom") }); err != nil {
		t.Fatalf("Update: %v", err)
	}

	out, _, err := runCLI(t, []string{"queue", "retry", jobs[0].ID, jobs[1].ID}, env.configPath)
	if err != nil {
		t.Fatalf("queue retry: %v", err)
	}
	requireContains(t, out, "Job "+jobs[0].ID+" requeued")
	requireContains(t, out, "only failed or cancelled")

	updated, ok := env.store.Get(jobs[0].ID)
	if !ok {
		t.Fatal("job disappeared")
	}
	if updated.Status != queue.StatusPending {
		t.Fatalf("expected pending, got %s", updated.Status)
	}
}

func TestQueueRemoveAndClearCompleted(t *testing.T) {
	env := setupCLITestEnv(t)
	jobs := testsupport.SeedJobs(t, env.store, 3)
	if _, err := env.store.Update(jobs[1].ID, func(j *queue.Job) { j.SetCompleted("notes/b") }); err != nil {
		t.Fatalf("Update: %v", err)
	}

	out, _, err := runCLI(t, []string{"queue", "remove", jobs[0].ID, "nonexistent"}, env.configPath)
	if err != nil {
		t.Fatalf("queue remove: %v", err)
	}
	requireContains(t, out, "Job "+jobs[0].ID+" removed")
	requireContains(t, out, "Job nonexistent not found")

	out, _, err = runCLI(t, []string{"queue", "clear-completed"}, env.configPath)
	if err != nil {
		t.Fatalf("queue clear-completed: %v", err)
	}
	requireContains(t, out, "Cleared 1 completed jobs")

	if got := len(env.store.Load().Jobs); got != 1 {
		t.Fatalf("expected 1 remaining job, got %d", got)
	}
}

func TestQueueStatusSummary(t *testing.T) {
	env := setupCLITestEnv(t)
	jobs := testsupport.SeedJobs(t, env.store, 3)
	if _, err := env.store.Update(jobs[2].ID, func(j *queue.Job) { j.SetFailed("boom") }); err != nil {
		t.Fatalf("Update: %v", err)
	}

	out, _, err := runCLI(t, []string{"queue", "status"}, env.configPath)
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	requireContains(t, out, "pending")
	requireContains(t, out, "failed")
}

func TestQueueShow(t *testing.T) {
	env := setupCLITestEnv(t)
	jobs := testsupport.SeedJobs(t, env.store, 1)

	out, _, err := runCLI(t, []string{"queue", "show", jobs[0].ID}, env.configPath)
	if err != nil {
		t.Fatalf("queue show: %v", err)
	}
	requireContains(t, out, jobs[0].ID)
	requireContains(t, out, jobs[0].OriginalName)

	_, _, err = runCLI(t, []string{"queue", "show", "nonexistent"}, env.configPath)
	if err == nil {
		t.Fatal("expected show of unknown job to fail")
	}
}
