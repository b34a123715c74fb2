package consent

import (
	"context"
	"testing"
)

func TestOPAChecker_Allowed(t *testing.T) {
	checker, err := NewOPAChecker(context.Background())
	if err != nil {
		t.Fatalf("NewOPAChecker: %v", err)
	}

	tests := []struct {
		name    string
		account AccountState
		want    bool
	}{
		{"default allows", AccountState{}, true},
		{"opt-out denies", AccountState{MetricsOptOut: true}, false},
		{"locked denies", AccountState{Locked: true}, false},
		{"opt-out and locked denies", AccountState{MetricsOptOut: true, Locked: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := checker.Allowed(context.Background(), tt.account)
			if err != nil {
				t.Fatalf("Allowed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Allowed(%+v) = %v, want %v", tt.account, got, tt.want)
			}
		})
	}
}
