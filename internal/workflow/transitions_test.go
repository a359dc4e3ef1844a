package workflow

import "testing"

func TestIsTransitionAllowed(t *testing.T) {
	testCases := []struct {
		name    string
		from    State
		to      State
		allowed bool
	}{
		{"first contact", StateUnknown, StateAwaitingPhone, true},
		{"phone shared", StateAwaitingPhone, StateComplete, true},
		{"skip after expiry", StateUnknown, StateComplete, true},
		{"repeat awaiting phone", StateAwaitingPhone, StateAwaitingPhone, true},
		{"repeat complete", StateComplete, StateComplete, true},
		{"no regression", StateComplete, StateAwaitingPhone, false},
		{"unknown target", StateAwaitingPhone, State("banned"), false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTransitionAllowed(tc.from, tc.to); got != tc.allowed {
				t.Fatalf("IsTransitionAllowed(%q, %q) = %v, want %v", tc.from, tc.to, got, tc.allowed)
			}
		})
	}
}
