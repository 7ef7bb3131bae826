package services

import (
	"errors"
	"strings"
	"testing"
)

func TestWrapPreservesMarkerAndCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(ErrTransient, "storage", "upload", "push payload", cause)

	if !errors.Is(err, ErrTransient) {
		t.Fatalf("marker lost: %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause lost: %v", err)
	}
	for _, fragment := range []string{"storage", "upload", "push payload", "connection reset"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Fatalf("message missing %q: %v", fragment, err)
		}
	}
}

func TestWrapWithoutCause(t *testing.T) {
	err := Wrap(ErrValidation, "assets", "scan", "missing index 3", nil)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("marker lost: %v", err)
	}
	if !strings.Contains(err.Error(), "missing index 3") {
		t.Fatalf("message lost: %v", err)
	}
}

func TestClassification(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		fatal     bool
		retryable bool
	}{
		{"transient", Wrap(ErrTransient, "c", "o", "m", nil), false, true},
		{"validation", Wrap(ErrValidation, "c", "o", "m", nil), true, false},
		{"configuration", Wrap(ErrConfiguration, "c", "o", "m", nil), true, false},
		{"funds", Wrap(ErrInsufficientFunds, "c", "o", "m", nil), true, false},
		{"permanent", Wrap(ErrPermanent, "c", "o", "m", nil), false, false},
		{"consistency", Wrap(ErrConsistency, "c", "o", "m", nil), false, false},
		{"plain", errors.New("unknown"), false, false},
		{"nil", nil, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsFatal(tc.err); got != tc.fatal {
				t.Fatalf("IsFatal = %v, want %v", got, tc.fatal)
			}
			if got := IsRetryable(tc.err); got != tc.retryable {
				t.Fatalf("IsRetryable = %v, want %v", got, tc.retryable)
			}
		})
	}
}
