package models

import (
	"errors"
	"testing"
	"time"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    IncidentStatus
		to      IncidentStatus
		allowed bool
	}{
		{"open to investigating", StatusOpen, StatusInvestigating, true},
		{"open to resolved", StatusOpen, StatusResolved, true},
		{"investigating to resolved", StatusInvestigating, StatusResolved, true},
		{"open self loop", StatusOpen, StatusOpen, true},
		{"investigating self loop", StatusInvestigating, StatusInvestigating, true},
		{"resolved self loop", StatusResolved, StatusResolved, true},
		{"investigating back to open", StatusInvestigating, StatusOpen, false},
		{"resolved to open", StatusResolved, StatusOpen, false},
		{"resolved to investigating", StatusResolved, StatusInvestigating, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.allowed {
				t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
			}
		})
	}
}

func TestIncidentTransitionAt(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	inc := NewIncident("p1", "s1", "r1", SeverityHigh, "cpu high", now)

	if err := inc.TransitionAt(StatusInvestigating, now); err != nil {
		t.Fatalf("transition to investigating: %v", err)
	}
	if inc.Status != StatusInvestigating {
		t.Errorf("status = %s, want investigating", inc.Status)
	}
	if !inc.UpdatedAt.Equal(now) {
		t.Errorf("updated_at not stamped")
	}

	later := now.Add(10 * time.Minute)
	if err := inc.TransitionAt(StatusResolved, later); err != nil {
		t.Fatalf("transition to resolved: %v", err)
	}
	if inc.ResolvedAt == nil || !inc.ResolvedAt.Equal(later) {
		t.Errorf("resolved_at = %v, want %v", inc.ResolvedAt, later)
	}

	// Re-asserting resolved is a no-op that must not move resolved_at.
	evenLater := later.Add(5 * time.Minute)
	if err := inc.TransitionAt(StatusResolved, evenLater); err != nil {
		t.Fatalf("re-assert resolved: %v", err)
	}
	if !inc.ResolvedAt.Equal(later) {
		t.Errorf("resolved_at overwritten on re-assert: %v", inc.ResolvedAt)
	}
}

func TestIncidentIllegalTransitionLeavesUnchanged(t *testing.T) {
	inc := NewIncident("p1", "s1", "r1", SeverityLow, "test", time.Now())
	if err := inc.TransitionTo(StatusResolved); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	before := *inc

	err := inc.TransitionTo(StatusOpen)
	if err == nil {
		t.Fatal("expected transition error for resolved -> open")
	}
	var terr *TransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("error type = %T, want *TransitionError", err)
	}
	if terr.From != StatusResolved || terr.To != StatusOpen {
		t.Errorf("transition error = %v", terr)
	}
	if inc.Status != before.Status || !inc.UpdatedAt.Equal(before.UpdatedAt) {
		t.Error("incident mutated by rejected transition")
	}
}

func TestIncidentIsOpen(t *testing.T) {
	inc := NewIncident("p1", "s1", "", SeverityMedium, "manual", time.Now())
	if !inc.IsOpen() {
		t.Error("new incident should be open")
	}
	if err := inc.TransitionTo(StatusInvestigating); err != nil {
		t.Fatal(err)
	}
	if !inc.IsOpen() {
		t.Error("investigating incident should still count as open")
	}
	if err := inc.TransitionTo(StatusResolved); err != nil {
		t.Fatal(err)
	}
	if inc.IsOpen() {
		t.Error("resolved incident should not be open")
	}
}
