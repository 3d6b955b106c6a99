package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// FailureKinder lets callers attach an explicit failure classification to an
// error. Storage drivers wrap provider errors so the original service code
// (e.g. "SlowDown", "NoSuchKey") survives into the aggregated breakdown.
type FailureKinder interface {
	FailureKind() string
}

// FailureKind classifies err into a short stable label for the per-operation
// error breakdown. Unknown errors fall back to the Go type name, trimmed so
// labels stay bounded regardless of package depth.
func FailureKind(err error) string {
	if err == nil {
		return ""
	}

	var fk FailureKinder
	if errors.As(err, &fk) {
		if kind := fk.FailureKind(); kind != "" {
			return kind
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}

	kind := fmt.Sprintf("%T", err)
	if len(kind) > 30 {
		kind = kind[len(kind)-30:]
	}
	return kind
}
