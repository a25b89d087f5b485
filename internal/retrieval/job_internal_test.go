package retrieval

import (
	"errors"
	"testing"
	"time"
)

func TestJobTransitions(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	job := &Job{ID: "a", state: StateRunning}
	if err := job.expire(now); err == nil {
		t.Fatal("running job must not expire directly")
	}
	if expired, err := job.succeed(now, now.Add(time.Hour)); err != nil || expired {
		t.Fatalf("succeed = %v, %v", expired, err)
	}
	if err := job.fail(now, 1, errors.New("late")); err == nil {
		t.Fatal("succeeded job must not fail")
	}
	if err := job.expire(now.Add(time.Hour)); err != nil {
		t.Fatalf("expire returned error: %v", err)
	}
	snap := job.Snapshot()
	if snap.State != StateExpired || !snap.State.Terminal() || !snap.FinishedAt.Equal(now) {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	failed := &Job{ID: "b", state: StateRunning}
	if err := failed.fail(now, 2, errors.New("boom")); err != nil {
		t.Fatalf("fail returned error: %v", err)
	}
	if _, err := failed.succeed(now, now); err == nil {
		t.Fatal("failed job must stay failed")
	}
	if snap := failed.Snapshot(); snap.ExitCode != 2 || snap.Error != "boom" || !snap.State.Terminal() {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if StateSucceeded.Terminal() {
		t.Fatal("succeeded is not terminal until expiry")
	}
}

func TestExpiryRequestedWhileRunning(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	job := &Job{ID: "c", state: StateRunning}

	deferred, err := job.requestExpiry(now)
	if err != nil || !deferred {
		t.Fatalf("requestExpiry = %v, %v; want deferred", deferred, err)
	}
	if job.State() != StateRunning {
		t.Fatalf("state = %s, want running", job.State())
	}

	expired, err := job.succeed(now, now)
	if err != nil || !expired {
		t.Fatalf("succeed = %v, %v; want expired", expired, err)
	}
	if snap := job.Snapshot(); snap.State != StateExpired || !snap.FinishedAt.Equal(now) {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	deferred, err = job.requestExpiry(now)
	if err == nil || deferred {
		t.Fatalf("second requestExpiry = %v, %v; want error", deferred, err)
	}
}
