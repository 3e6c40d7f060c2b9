package clock

import (
	"context"
	"time"

	"go.uber.org/fx"
)

type SystemClock struct{}

func (SystemClock) Now(ctx context.Context) time.Time {
	return time.Now().UTC()
}

// Fixed is a clock pinned to a single instant. Test helper.
type Fixed struct {
	T time.Time
}

func (f Fixed) Now(ctx context.Context) time.Time {
	return f.T
}

var Module = fx.Module("clock",
	fx.Provide(func() Clock { return SystemClock{} }),
)
