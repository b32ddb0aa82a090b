package engine

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRunManyPartialFailure(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 4, 5*time.Second, time.Minute)
	env.save(t, "ok.sh", "printf ok")

	results := env.runner.RunMany(context.Background(), []string{"ok.sh", "missing.sh"}, nil, nil)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}

	ok := results["ok.sh"]
	if ok.Stdout != "ok" || ok.ExitCode != 0 {
		t.Fatalf("ok.sh result = %+v", ok)
	}

	missing := results["missing.sh"]
	if missing.ExitCode != -1 {
		t.Fatalf("missing.sh ExitCode = %d, want -1", missing.ExitCode)
	}
	if !strings.HasPrefix(missing.Stderr, "Error: ") {
		t.Fatalf("missing.sh Stderr = %q, want Error: prefix", missing.Stderr)
	}
	if missing.Stdout != "" {
		t.Fatalf("missing.sh Stdout = %q, want empty", missing.Stdout)
	}
}

func TestRunManyEmptyTargetsRunsAll(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 4, 5*time.Second, time.Minute)
	env.save(t, "a.sh", "printf a")
	env.save(t, "b.sh", "printf b")

	results := env.runner.RunMany(context.Background(), nil, nil, nil)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results["a.sh"].Stdout != "a" || results["b.sh"].Stdout != "b" {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestRunManyEmptyRegistry(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 4, 5*time.Second, time.Minute)

	results := env.runner.RunMany(context.Background(), nil, nil, nil)
	if len(results) != 0 {
		t.Fatalf("got %d results, want 0", len(results))
	}
}

func TestRunManyBoundedByGate(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 1, 5*time.Second, time.Minute)
	env.save(t, "s1.sh", "sleep 0.15")
	env.save(t, "s2.sh", "sleep 0.15")

	start := time.Now()
	results := env.runner.RunMany(context.Background(), []string{"s1.sh", "s2.sh"}, nil, nil)
	elapsed := time.Since(start)

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	// Capacity 1 serializes the two sleeps.
	if elapsed < 250*time.Millisecond {
		t.Fatalf("elapsed = %v, want >= 250ms with capacity 1", elapsed)
	}
}

func TestRunManyTimeoutSyntheticResult(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 4, 100*time.Millisecond, time.Minute)
	env.save(t, "slow.sh", "sleep 5")

	results := env.runner.RunMany(context.Background(), []string{"slow.sh"}, nil, nil)
	res := results["slow.sh"]
	// Every error converts to the same synthetic shape; timed_out stays false
	// and the cause is only visible in stderr.
	if res.TimedOut || res.ExitCode != -1 {
		t.Fatalf("slow.sh result = %+v, want exit -1 with timed_out false", res)
	}
	if !strings.Contains(res.Stderr, "timed out") {
		t.Fatalf("slow.sh Stderr = %q, want timeout message", res.Stderr)
	}
}
