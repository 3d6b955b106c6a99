package metrics_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/chopsticks-dev/chopsticks/internal/metrics"
)

type kindedError struct{ kind string }

func (e kindedError) Error() string       { return "kinded: " + e.kind }
func (e kindedError) FailureKind() string { return e.kind }

func TestFailureKind(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"explicit kind", kindedError{kind: "SlowDown"}, "SlowDown"},
		{"wrapped kind", fmt.Errorf("upload: %w", kindedError{kind: "NoSuchKey"}), "NoSuchKey"},
		{"deadline", context.DeadlineExceeded, "timeout"},
		{"wrapped deadline", fmt.Errorf("head: %w", context.DeadlineExceeded), "timeout"},
		{"canceled", context.Canceled, "canceled"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := metrics.FailureKind(tc.err); got != tc.want {
				t.Errorf("FailureKind(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}

func TestFailureKindFallbackIsBounded(t *testing.T) {
	kind := metrics.FailureKind(errors.New("plain"))
	if kind == "" {
		t.Fatal("expected non-empty fallback kind")
	}
	if len(kind) > 30 {
		t.Errorf("fallback kind too long: %q", kind)
	}
}
