package store

import (
	"testing"

	"campusq/internal/models"
)

func TestValidTransition(t *testing.T) {
	cases := []struct {
		action string
		from   string
		want   bool
	}{
		{"call", models.StatusWaiting, true},
		{"call", models.StatusHold, true},
		{"call", models.StatusCalled, false},
		{"call", models.StatusServed, false},
		{"call", models.StatusOut, false},
		{"serve", models.StatusCalled, true},
		{"serve", models.StatusWaiting, false},
		{"serve", models.StatusServed, false},
		{"serve", models.StatusHold, false},
		{"hold", models.StatusCalled, true},
		{"hold", models.StatusHold, false},
		{"hold", models.StatusOut, false},
		{"unknown", models.StatusWaiting, false},
	}

	for _, tc := range cases {
		if got := ValidTransition(tc.action, tc.from); got != tc.want {
			t.Errorf("ValidTransition(%q, %q) = %v, want %v", tc.action, tc.from, got, tc.want)
		}
	}
}

func TestTerminalStatesHaveNoTransitions(t *testing.T) {
	for action := range transitionMap {
		for _, status := range []string{models.StatusServed, models.StatusOut} {
			if ValidTransition(action, status) {
				t.Errorf("action %q must not start from terminal status %q", action, status)
			}
		}
	}
}

func TestHoldOutcome(t *testing.T) {
	// maxHoldAttempts=2: hold, hold, then out with the counter pinned at 2.
	status, attempts := HoldOutcome(0, 2)
	if status != models.StatusHold || attempts != 1 {
		t.Fatalf("first strike: got (%s, %d)", status, attempts)
	}
	status, attempts = HoldOutcome(1, 2)
	if status != models.StatusHold || attempts != 2 {
		t.Fatalf("second strike: got (%s, %d)", status, attempts)
	}
	status, attempts = HoldOutcome(2, 2)
	if status != models.StatusOut || attempts != 2 {
		t.Fatalf("third strike: got (%s, %d)", status, attempts)
	}
}

func TestHoldOutcomeZeroMaxRetiresImmediately(t *testing.T) {
	status, attempts := HoldOutcome(0, 0)
	if status != models.StatusOut || attempts != 0 {
		t.Fatalf("got (%s, %d), want (out, 0)", status, attempts)
	}
}

func TestIsTerminal(t *testing.T) {
	for status, want := range map[string]bool{
		models.StatusWaiting: false,
		models.StatusCalled:  false,
		models.StatusHold:    false,
		models.StatusServed:  true,
		models.StatusOut:     true,
	} {
		if got := IsTerminal(status); got != want {
			t.Errorf("IsTerminal(%q) = %v, want %v", status, got, want)
		}
	}
}
