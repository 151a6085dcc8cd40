package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager()
	m.AddQueue("default", 1, 16)
	m.AddQueue("ai", 2, 16)
	m.Start()
	t.Cleanup(m.Stop)
	return m
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestDispatchRunsTask(t *testing.T) {
	m := newTestManager(t)

	var ran int32
	err := m.Dispatch("default", &Task{
		Name: "noop",
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&ran, 1)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&ran) == 1 })
}

func TestDispatchUnknownQueue(t *testing.T) {
	m := newTestManager(t)
	if err := m.Dispatch("missing", &Task{Name: "x", Run: func(ctx context.Context) error { return nil }}); err == nil {
		t.Error("dispatch to unregistered queue succeeded")
	}
}

func TestDispatchAfterStop(t *testing.T) {
	m := NewManager()
	m.AddQueue("default", 1, 16)
	m.Start()
	m.Stop()

	err := m.Dispatch("default", &Task{Name: "late", Run: func(ctx context.Context) error { return nil }})
	if err == nil {
		t.Error("dispatch after Stop succeeded")
	}
}

func TestStopDuringBlockedDispatch(t *testing.T) {
	m := NewManager()
	m.AddQueue("default", 1, 0)
	m.Start()

	release := make(chan struct{})
	m.Dispatch("default", &Task{
		Name: "blocker",
		Run: func(ctx context.Context) error {
			select {
			case <-release:
			case <-ctx.Done():
			}
			return nil
		},
	})

	// this dispatch blocks on the full unbuffered queue; Stop must let
	// it return (either handed off or cancelled), never panic on a
	// closed channel
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Dispatch("default", &Task{Name: "stuck", Run: func(ctx context.Context) error { return nil }})
	}()

	time.Sleep(10 * time.Millisecond)
	close(release)
	m.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("blocked dispatch never returned after Stop")
	}
}

func TestRetryScheduleAndTerminalFailure(t *testing.T) {
	m := newTestManager(t)

	var attempts int32
	var terminal int32
	var terminalErr error
	boom := errors.New("remote unavailable")

	m.Dispatch("default", &Task{
		Name:          "always-fails",
		RetrySchedule: []time.Duration{time.Millisecond, time.Millisecond},
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&attempts, 1)
			return boom
		},
		OnFailure: func(err error) {
			terminalErr = err
			atomic.AddInt32(&terminal, 1)
		},
	})

	waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&terminal) == 1 })
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("attempts = %d, want 3 (one initial plus two retries)", got)
	}
	if !errors.Is(terminalErr, boom) {
		t.Errorf("terminal error = %v", terminalErr)
	}
}

func TestRetryRecovers(t *testing.T) {
	m := newTestManager(t)

	var attempts int32
	var failed int32
	m.Dispatch("default", &Task{
		Name:          "flaky",
		RetrySchedule: []time.Duration{time.Millisecond, time.Millisecond},
		Run: func(ctx context.Context) error {
			if atomic.AddInt32(&attempts, 1) < 2 {
				return errors.New("transient")
			}
			return nil
		},
		OnFailure: func(err error) { atomic.AddInt32(&failed, 1) },
	})

	waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&attempts) == 2 })
	time.Sleep(20 * time.Millisecond)
	if atomic.LoadInt32(&failed) != 0 {
		t.Error("terminal hook fired for a recovered task")
	}
}

func TestTaskTimeout(t *testing.T) {
	m := newTestManager(t)

	var sawDeadline int32
	m.Dispatch("default", &Task{
		Name:    "slow",
		Timeout: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			select {
			case <-ctx.Done():
				atomic.AddInt32(&sawDeadline, 1)
				return ctx.Err()
			case <-time.After(time.Second):
				return nil
			}
		},
	})
	waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&sawDeadline) == 1 })
}

func TestDelayPostponesFirstAttempt(t *testing.T) {
	m := newTestManager(t)

	start := time.Now()
	done := make(chan time.Time, 1)
	m.Dispatch("default", &Task{
		Name:  "delayed",
		Delay: 30 * time.Millisecond,
		Run: func(ctx context.Context) error {
			done <- time.Now()
			return nil
		},
	})

	select {
	case ranAt := <-done:
		if elapsed := ranAt.Sub(start); elapsed < 25*time.Millisecond {
			t.Errorf("task ran after %s, expected the delay to hold it back", elapsed)
		}
	case <-time.After(time.Second):
		t.Fatal("delayed task never ran")
	}
}

func TestQueuesAreIsolated(t *testing.T) {
	m := newTestManager(t)

	blocking := make(chan struct{})
	m.Dispatch("default", &Task{
		Name: "blocker",
		Run: func(ctx context.Context) error {
			select {
			case <-blocking:
			case <-ctx.Done():
			}
			return nil
		},
	})

	var ran int32
	m.Dispatch("ai", &Task{
		Name: "independent",
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&ran, 1)
			return nil
		},
	})

	waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&ran) == 1 })
	close(blocking)
}
