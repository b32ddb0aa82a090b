package engine

import (
	"testing"
	"time"
)

func TestFingerprintDeterministic(t *testing.T) {
	t.Parallel()

	a := Fingerprint("s.py", []string{"x", "y"}, []byte(`{"k":1}`))
	b := Fingerprint("s.py", []string{"x", "y"}, []byte(`{"k":1}`))
	if a != b {
		t.Fatalf("identical invocations produced different fingerprints: %s vs %s", a, b)
	}

	if a == Fingerprint("other.py", []string{"x", "y"}, []byte(`{"k":1}`)) {
		t.Fatal("fingerprint must include script identity")
	}
	if a == Fingerprint("s.py", []string{"x", "y"}, []byte(`{"k":2}`)) {
		t.Fatal("fingerprint must include input bytes")
	}
	if a == Fingerprint("s.py", []string{"y", "x"}, []byte(`{"k":1}`)) {
		t.Fatal("fingerprint must be order-sensitive for args")
	}
}

func TestFingerprintArgFraming(t *testing.T) {
	t.Parallel()

	// ["ab"] and ["a","b"] must not collide.
	if Fingerprint("s.py", []string{"ab"}, nil) == Fingerprint("s.py", []string{"a", "b"}, nil) {
		t.Fatal("argument framing is ambiguous")
	}
}

func TestCacheLookupHit(t *testing.T) {
	t.Parallel()

	c := NewCache(time.Minute)
	mtime := time.Now()
	res := Result{Stdout: "out", Stderr: "err", ExitCode: 3}

	c.Store("k", res, mtime)

	got, ok := c.Lookup("k", mtime, true)
	if !ok {
		t.Fatal("expected hit")
	}
	if got != res {
		t.Fatalf("Lookup = %+v, want %+v", got, res)
	}
}

func TestCacheLookupMtimeMismatchEvicts(t *testing.T) {
	t.Parallel()

	c := NewCache(time.Minute)
	mtime := time.Now()
	c.Store("k", Result{Stdout: "out"}, mtime)

	if _, ok := c.Lookup("k", mtime.Add(time.Second), true); ok {
		t.Fatal("expected miss on mtime mismatch")
	}
	if c.Len() != 0 {
		t.Fatal("stale entry must be evicted, not ignored")
	}
}

func TestCacheLookupUnknownMtimeMisses(t *testing.T) {
	t.Parallel()

	c := NewCache(time.Minute)
	mtime := time.Now()
	c.Store("k", Result{Stdout: "out"}, mtime)

	// Without a current mtime the entry cannot be trusted.
	if _, ok := c.Lookup("k", time.Time{}, false); ok {
		t.Fatal("expected miss when metadata is unreadable")
	}
	if c.Len() != 0 {
		t.Fatal("untrustworthy entry must be evicted")
	}
}

func TestCacheLookupTTLExpiryEvicts(t *testing.T) {
	t.Parallel()

	c := NewCache(time.Minute)
	mtime := time.Now()
	c.Store("k", Result{Stdout: "out"}, mtime)

	// Advance the cache clock past the TTL.
	c.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	if _, ok := c.Lookup("k", mtime, true); ok {
		t.Fatal("expected miss after TTL expiry")
	}
	if c.Len() != 0 {
		t.Fatal("expired entry must be evicted")
	}
}

func TestCacheStoreLastWriterWins(t *testing.T) {
	t.Parallel()

	c := NewCache(time.Minute)
	mtime := time.Now()
	c.Store("k", Result{Stdout: "first"}, mtime)
	c.Store("k", Result{Stdout: "second"}, mtime)

	got, ok := c.Lookup("k", mtime, true)
	if !ok || got.Stdout != "second" {
		t.Fatalf("Lookup = %+v ok=%v, want last stored entry", got, ok)
	}
}
