package worker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"lectern/internal/config"
	"lectern/internal/logging"
	"lectern/internal/queue"
)

// CredentialEnvVars are inherited by the worker from the daemon environment
// unmodified; the worker refuses to run without them.
var CredentialEnvVars = []string{"OPENAI_API_KEY", "ANTHROPIC_API_KEY"}

// ProgressFunc receives decoded progress frames while the worker runs.
type ProgressFunc func(queue.Progress)

// Command describes one process launch.
type Command struct {
	Path string
	Args []string
	// Grace is how long a signaled process gets before it is killed.
	Grace time.Duration
}

// Executor abstracts command execution for testability. Run returns the
// buffered stdout and the process exit code. A nonzero exit is not an error;
// err is non-nil only when the process could not be started or its output
// could not be consumed.
type Executor interface {
	Run(ctx context.Context, cmd Command, onStderr func(string)) (stdout []byte, exitCode int, err error)
}

// Option configures the runner.
type Option func(*Runner)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(r *Runner) {
		if exec != nil {
			r.exec = exec
		}
	}
}

// Runner invokes the external worker once per claimed job.
type Runner struct {
	command    string
	fixedArgs  []string
	outputRoot string
	grace      time.Duration
	logger     *slog.Logger
	exec       Executor
}

// New constructs a runner from configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Runner {
	runner := &Runner{
		command:    cfg.Worker.Command,
		fixedArgs:  append([]string(nil), cfg.Worker.Args...),
		outputRoot: cfg.Paths.OutputDir,
		grace:      time.Duration(cfg.Workflow.CancelGraceSeconds) * time.Second,
		logger:     logging.NewComponentLogger(logger, "worker"),
		exec:       commandExecutor{},
	}
	for _, opt := range opts {
		opt(runner)
	}
	return runner
}

// buildArgs assembles the per-job argument vector. A reprocess job points at
// an existing notes folder, so it gets no output root and no group.
func (r *Runner) buildArgs(job *queue.Job) []string {
	args := append([]string(nil), r.fixedArgs...)
	args = append(args, job.SourcePath)
	if job.Reprocess {
		return append(args, "--reprocess")
	}
	args = append(args, r.outputRoot)
	if job.Group != "" {
		args = append(args, "--group", job.Group)
	}
	return args
}

type workerResult struct {
	Status    string `json:"status"`
	ResultRef string `json:"resultRef"`
	Message   string `json:"message"`
}

// Process runs the worker for the claimed job and resolves its result
// reference. Progress frames are reported through onProgress as they arrive.
// After the worker has exited the job's source file is deleted, success or
// not, unless the job is a reprocess; deletion failures are swallowed. A
// worker that never started leaves the source in place.
func (r *Runner) Process(ctx context.Context, job *queue.Job, onProgress ProgressFunc) (string, error) {
	for _, name := range CredentialEnvVars {
		if os.Getenv(name) == "" {
			r.logger.Warn("credential variable not set, worker will fail",
				logging.String("var", name))
		}
	}

	logger := r.logger.With(logging.String("job_id", job.ID))
	cmd := Command{Path: r.command, Args: r.buildArgs(job), Grace: r.grace}
	logger.Info("launching worker",
		logging.String("command", cmd.Path),
		logging.Any("args", cmd.Args))

	stdout, exitCode, runErr := r.exec.Run(ctx, cmd, func(line string) {
		if frame, ok := ParseProgressLine(line); ok {
			if onProgress != nil {
				onProgress(frame)
			}
			return
		}
		if strings.TrimSpace(line) != "" {
			logger.Debug("worker stderr", logging.String("line", line))
		}
	})

	if runErr != nil {
		// The process never ran (missing executable, permission denied) or
		// its output could not be consumed. Either way this job failed; the
		// loop stays up. The source is left in place so a retry after the
		// environment is fixed still has its input.
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("run worker: %w", runErr)
	}

	if !job.Reprocess {
		if err := os.Remove(job.SourcePath); err != nil && !os.IsNotExist(err) {
			logger.Warn("source cleanup failed", logging.Error(err))
		}
	}

	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	if exitCode != 0 {
		var decoded workerResult
		if err := json.Unmarshal(bytes.TrimSpace(stdout), &decoded); err == nil &&
			decoded.Status == "error" && decoded.Message != "" {
			return "", fmt.Errorf("%s", decoded.Message)
		}
		return "", fmt.Errorf("worker exited with code %d", exitCode)
	}

	var decoded workerResult
	if err := json.Unmarshal(bytes.TrimSpace(stdout), &decoded); err != nil {
		return "", fmt.Errorf("parse worker result: %w", err)
	}
	if decoded.Status != "success" || decoded.ResultRef == "" {
		return "", fmt.Errorf("unexpected worker result status %q", decoded.Status)
	}
	return decoded.ResultRef, nil
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, cmd Command, onStderr func(string)) ([]byte, int, error) {
	proc := exec.CommandContext(ctx, cmd.Path, cmd.Args...) //nolint:gosec
	// Cancellation is cooperative: signal once, then the grace period applies
	// before the runtime escalates to SIGKILL.
	proc.Cancel = func() error {
		return proc.Process.Signal(syscall.SIGTERM)
	}
	proc.WaitDelay = cmd.Grace

	var stdout bytes.Buffer
	proc.Stdout = &stdout

	stderr, err := proc.StderrPipe()
	if err != nil {
		return nil, -1, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := proc.Start(); err != nil {
		return nil, -1, fmt.Errorf("start command: %w", err)
	}

	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if onStderr != nil {
			onStderr(scanner.Text())
		}
	}
	if scanErr := scanner.Err(); scanErr != nil {
		// A line exceeded the buffer, or the pipe failed mid-read. The rest
		// of the stream is unparseable as progress, but it must still be
		// drained or the child blocks on a full pipe and never exits.
		_, _ = io.Copy(io.Discard, stderr)
	}

	waitErr := proc.Wait()
	exitCode := proc.ProcessState.ExitCode()
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return stdout.Bytes(), exitCode, nil
		}
		return stdout.Bytes(), exitCode, fmt.Errorf("wait command: %w", waitErr)
	}
	return stdout.Bytes(), exitCode, nil
}
