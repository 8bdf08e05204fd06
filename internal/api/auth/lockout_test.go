package auth

import (
	"testing"
	"time"
)

func TestLockoutTrackerThreshold(t *testing.T) {
	tracker := NewLockoutTracker(3, time.Hour)
	email := "oncall@example.com"

	if tracker.IsLocked(email) {
		t.Error("account should not be locked initially")
	}

	tracker.RecordFailure(email)
	tracker.RecordFailure(email)
	if tracker.IsLocked(email) {
		t.Error("account should not be locked after 2 failures (threshold=3)")
	}

	if locked := tracker.RecordFailure(email); !locked {
		t.Error("third failure should lock the account")
	}
	if !tracker.IsLocked(email) {
		t.Error("account should be locked after 3 failures")
	}
}

func TestLockoutExpires(t *testing.T) {
	tracker := NewLockoutTracker(2, 50*time.Millisecond)
	email := "oncall@example.com"

	tracker.RecordFailure(email)
	tracker.RecordFailure(email)
	if !tracker.IsLocked(email) {
		t.Fatal("account should be locked")
	}

	time.Sleep(60 * time.Millisecond)
	if tracker.IsLocked(email) {
		t.Error("lockout should have expired")
	}
}

func TestLockoutClearedOnSuccess(t *testing.T) {
	tracker := NewLockoutTracker(2, time.Hour)
	email := "oncall@example.com"

	tracker.RecordFailure(email)
	tracker.RecordSuccess(email)

	// Counter restarts: one more failure must not lock.
	tracker.RecordFailure(email)
	if tracker.IsLocked(email) {
		t.Error("account should not be locked after success reset and 1 failure")
	}
	tracker.RecordFailure(email)
	if !tracker.IsLocked(email) {
		t.Error("account should be locked after 2 consecutive failures")
	}
}

func TestLockoutRemainingTime(t *testing.T) {
	lockoutDuration := 100 * time.Millisecond
	tracker := NewLockoutTracker(1, lockoutDuration)
	email := "oncall@example.com"

	if remaining := tracker.RemainingLockoutTime(email); remaining != 0 {
		t.Errorf("remaining = %v, want 0 before any failure", remaining)
	}

	tracker.RecordFailure(email)
	remaining := tracker.RemainingLockoutTime(email)
	if remaining <= 0 || remaining > lockoutDuration {
		t.Errorf("remaining = %v, want within (0, %v]", remaining, lockoutDuration)
	}
}

func TestLockoutAccountsAreIndependent(t *testing.T) {
	tracker := NewLockoutTracker(2, time.Hour)

	tracker.RecordFailure("a@example.com")
	tracker.RecordFailure("a@example.com")

	if !tracker.IsLocked("a@example.com") {
		t.Error("first account should be locked")
	}
	if tracker.IsLocked("b@example.com") {
		t.Error("second account should not be locked")
	}
}
