package models

import (
	"testing"
	"time"
)

func TestAlertStateHysteresis(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	state := InitialAlertState("p1", "r1", "s1", base)

	// First met cycle starts a firing episode.
	state = state.WithConditionMet(base.Add(time.Minute))
	if !state.Firing || state.ConsecutiveFiringCount != 1 {
		t.Fatalf("after first met cycle: firing=%v count=%d", state.Firing, state.ConsecutiveFiringCount)
	}
	if state.FirstTriggerTime == nil || !state.FirstTriggerTime.Equal(base.Add(time.Minute)) {
		t.Fatalf("first trigger time = %v", state.FirstTriggerTime)
	}

	// Subsequent met cycles increment the count and keep the episode start.
	state = state.WithConditionMet(base.Add(2 * time.Minute))
	state = state.WithConditionMet(base.Add(3 * time.Minute))
	if state.ConsecutiveFiringCount != 3 {
		t.Errorf("count = %d, want 3", state.ConsecutiveFiringCount)
	}
	if !state.FirstTriggerTime.Equal(base.Add(time.Minute)) {
		t.Errorf("first trigger time moved: %v", state.FirstTriggerTime)
	}
	if !state.LastEvaluationTime.Equal(base.Add(3 * time.Minute)) {
		t.Errorf("last evaluation = %v", state.LastEvaluationTime)
	}

	// A not-met cycle resets everything.
	state = state.WithConditionNotMet(base.Add(4 * time.Minute))
	if state.Firing || state.ConsecutiveFiringCount != 0 || state.FirstTriggerTime != nil {
		t.Errorf("after reset: firing=%v count=%d first=%v",
			state.Firing, state.ConsecutiveFiringCount, state.FirstTriggerTime)
	}
	if !state.LastEvaluationTime.Equal(base.Add(4 * time.Minute)) {
		t.Errorf("last evaluation not stamped on reset")
	}
}

func TestAlertStateResetIsIdempotent(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	state := InitialAlertState("p1", "r1", "s1", base)

	state = state.WithConditionNotMet(base.Add(time.Minute))
	if state.Firing || state.ConsecutiveFiringCount != 0 {
		t.Errorf("reset of non-firing state changed firing fields")
	}
}
