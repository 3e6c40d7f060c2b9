package clock

import (
	"context"
	"time"
)

// Clock is the time source for lifecycle decisions. Services take it as a
// dependency so proration, grace windows, and reconciliation scans can run
// against a fixed instant in tests.
type Clock interface {
	// Now returns the current instant.
	Now(ctx context.Context) time.Time
}
