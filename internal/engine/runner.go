package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync/atomic"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/runlet/runlet/internal/events"
	"github.com/runlet/runlet/internal/history"
	"github.com/runlet/runlet/internal/log"
	"github.com/runlet/runlet/internal/script"
)

// terminationGracePeriod is the time we wait after SIGTERM before sending SIGKILL.
const terminationGracePeriod = 2 * time.Second

// Result is the captured outcome of one script run.
type Result struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
	TimedOut bool   `json:"timed_out"`
}

// Options configures a Runner. Events and History are optional.
type Options struct {
	Store           *script.Store
	Registry        *script.Registry
	Cache           *Cache
	Gate            *Gate
	Events          *events.Hub
	History         *history.Store
	Interpreter     string
	InterpreterArgs []string
	RunTimeout      time.Duration
}

// Runner orchestrates one invocation end to end: registry lookup, cache
// probe, admission, subprocess spawn, timed wait, result capture, cache
// population.
type Runner struct {
	store           *script.Store
	registry        *script.Registry
	cache           *Cache
	gate            *Gate
	events          *events.Hub
	history         *history.Store
	interpreter     string
	interpreterArgs []string
	timeout         time.Duration
	logger          *slog.Logger

	spawns atomic.Int64
}

// NewRunner creates a Runner from opts.
func NewRunner(opts Options) *Runner {
	return &Runner{
		store:           opts.Store,
		registry:        opts.Registry,
		cache:           opts.Cache,
		gate:            opts.Gate,
		events:          opts.Events,
		history:         opts.History,
		interpreter:     opts.Interpreter,
		interpreterArgs: opts.InterpreterArgs,
		timeout:         opts.RunTimeout,
		logger:          log.WithComponent("engine"),
	}
}

// Spawns returns the number of subprocesses started since creation.
func (r *Runner) Spawns() int64 {
	return r.spawns.Load()
}

// Run executes the named script with args, delivering input on its stdin.
// Step order is fixed: existence check, cache probe, admission, spawn,
// timeout race, cache store. Unknown scripts never consume a permit; cache
// hits never spawn a subprocess.
func (r *Runner) Run(ctx context.Context, name string, args []string, input []byte) (Result, error) {
	if !r.registry.Contains(name) {
		return Result{}, fmt.Errorf("%w: %s", script.ErrNotFound, name)
	}

	// Best-effort mtime read. Without a current mtime a cached entry cannot
	// be trusted, and the fresh result cannot be cached either.
	mtime, mtimeOK := r.store.Mtime(name)

	key := Fingerprint(name, args, input)
	if res, ok := r.cache.Lookup(key, mtime, mtimeOK); ok {
		cacheHitsTotal.Inc()
		r.logger.Debug("cache hit", "script", name)
		return res, nil
	}
	cacheMissesTotal.Inc()

	if err := r.gate.Acquire(ctx); err != nil {
		return Result{}, fmt.Errorf("acquire permit: %w", err)
	}
	defer r.gate.Release()

	runID := uuid.NewString()
	runLogger := log.WithRun(runID).With("script", name)
	runLogger.Info("executing script", "args", len(args), "input_bytes", len(input))
	r.publish("run.started", map[string]any{"run_id": runID, "script": name})

	activeRuns.Inc()
	started := time.Now()
	res, err := r.spawn(ctx, name, args, input, runLogger)
	duration := time.Since(started)
	activeRuns.Dec()
	runDuration.Observe(duration.Seconds())

	status := statusSucceeded
	switch {
	case errors.Is(err, ErrTimeout):
		status = statusTimedOut
	case err != nil:
		status = statusFailed
	}
	runsTotal.WithLabelValues(status).Inc()

	// Failed runs have no captured result; record the -1 sentinel so history
	// agrees with what the fan-out surface reports for the same run.
	exitCode := res.ExitCode
	if err != nil {
		exitCode = -1
	}
	r.record(ctx, history.Entry{
		ID:          runID,
		Script:      name,
		Status:      status,
		ExitCode:    exitCode,
		DurationMs:  duration.Milliseconds(),
		Stderr:      res.Stderr,
		StartedAt:   started,
		CompletedAt: started.Add(duration),
	})
	r.publish("run.finished", map[string]any{
		"run_id":      runID,
		"script":      name,
		"status":      status,
		"duration_ms": duration.Milliseconds(),
	})

	if err != nil {
		return Result{}, err
	}

	runLogger.Info("script completed", "exit_code", res.ExitCode, "duration_ms", duration.Milliseconds())

	// Cache only successful runs, and only when the mtime observed before
	// execution is known. Last writer wins on concurrent stores.
	if mtimeOK {
		r.cache.Store(key, res, mtime)
	}

	return res, nil
}

// spawn starts the interpreter subprocess, writes input to its stdin, closes
// it, and captures stdout/stderr until exit or deadline.
func (r *Runner) spawn(ctx context.Context, name string, args []string, input []byte, logger *slog.Logger) (Result, error) {
	r.spawns.Add(1)

	argv := append([]string{}, r.interpreterArgs...)
	argv = append(argv, r.store.Path(name))
	argv = append(argv, args...)

	// Don't use CommandContext - termination is managed explicitly below so
	// a timed-out child is always reaped.
	cmd := exec.Command(r.interpreter, argv...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return Result{}, fmt.Errorf("create stdin pipe: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	timeoutTimer := time.NewTimer(r.timeout)
	defer timeoutTimer.Stop()

	logger.Debug("spawning script", "interpreter", r.interpreter, "timeout", r.timeout)

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("start process: %w", err)
	}

	// Write input in a goroutine and close stdin so interpreters that read
	// to end of input terminate correctly.
	writeErr := make(chan error, 1)
	go func() {
		defer stdin.Close()
		if _, err := stdin.Write(input); err != nil {
			writeErr <- fmt.Errorf("write stdin: %w", err)
			return
		}
		writeErr <- nil
	}()

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	select {
	case <-timeoutTimer.C:
		logger.Warn("script run timed out, terminating subprocess")
		r.terminate(cmd, waitErr, logger)
		return Result{}, ErrTimeout

	case <-ctx.Done():
		r.terminate(cmd, waitErr, logger)
		return Result{}, ctx.Err()

	case err := <-waitErr:
		// Wait closes the stdin pipe once the child exits, so a script that
		// never reads its input fails the writer with ErrClosed or EPIPE.
		// That is a normal exit, not a run failure.
		if werr := <-writeErr; werr != nil && !errors.Is(werr, os.ErrClosed) && !errors.Is(werr, syscall.EPIPE) {
			return Result{}, werr
		}

		exitCode := 0
		if err != nil {
			exitErr, ok := err.(*exec.ExitError)
			if !ok {
				return Result{}, fmt.Errorf("wait for process: %w", err)
			}
			// ExitCode is -1 when the process was terminated by a signal.
			exitCode = exitErr.ExitCode()
			logger.Warn("script exited with non-zero status", "exit_code", exitCode)
		}

		if !utf8.Valid(stdout.Bytes()) || !utf8.Valid(stderr.Bytes()) {
			return Result{}, ErrNotText
		}

		return Result{
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			ExitCode: exitCode,
			TimedOut: false,
		}, nil
	}
}

// terminate sends SIGTERM, waits out the grace period, escalates to SIGKILL,
// and reaps the child so no OS process is leaked.
func (r *Runner) terminate(cmd *exec.Cmd, waitErr <-chan error, logger *slog.Logger) {
	if cmd.Process != nil {
		if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
			logger.Error("failed to send SIGTERM", "error", err)
		}
	}

	grace := time.NewTimer(terminationGracePeriod)
	defer grace.Stop()

	select {
	case <-waitErr:
		logger.Info("script exited after SIGTERM")
	case <-grace.C:
		logger.Warn("script did not exit after SIGTERM, sending SIGKILL")
		if cmd.Process != nil {
			if err := cmd.Process.Kill(); err != nil {
				logger.Error("failed to send SIGKILL", "error", err)
			}
		}
		<-waitErr // Wait for process to die
	}
}

func (r *Runner) publish(eventType string, data any) {
	if r.events != nil {
		r.events.Publish(eventType, data)
	}
}

// record writes the run to history. Best-effort: a history failure is logged
// and never fails the run.
func (r *Runner) record(ctx context.Context, e history.Entry) {
	if r.history == nil {
		return
	}
	if err := r.history.Record(ctx, e); err != nil {
		r.logger.Error("failed to record run history", "run_id", e.ID, "error", err)
	}
}
