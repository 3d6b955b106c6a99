// Package driver defines the storage-client boundary: the synchronous calls
// a workload makes against an object-storage cluster. Implementations do the
// actual I/O; timing and outcome classification happen in the workload layer.
package driver

import "context"

// Driver executes object-storage operations against one target cluster.
type Driver interface {
	Upload(ctx context.Context, key string, data []byte) error
	Download(ctx context.Context, key string) (int64, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string, max int32) (int, error)
	Head(ctx context.Context, key string) error
}

// OpError carries a storage-service failure classification (for S3, the
// service error code such as "NoSuchKey" or "SlowDown") through to the
// metrics error breakdown.
type OpError struct {
	Kind string
	Err  error
}

func (e *OpError) Error() string {
	if e.Err != nil {
		return e.Kind + ": " + e.Err.Error()
	}
	return e.Kind
}

func (e *OpError) Unwrap() error { return e.Err }

// FailureKind implements the classification hook used by the metrics core.
func (e *OpError) FailureKind() string { return e.Kind }
