package domain

import "context"

// SweepConfig controls one enforcement pass. WarningDays are day-offsets
// before expiry at which a warning is emitted.
type SweepConfig struct {
	WarningDays      []int
	EnableAutoCancel bool
}

// SweepResult aggregates one pass. Errors are per-subscription failures;
// the sweep itself never aborts on them.
type SweepResult struct {
	Scanned  int      `json:"scanned"`
	Canceled int      `json:"canceled"`
	Warned   int      `json:"warned"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

type Enforcer interface {
	RunSweep(ctx context.Context, cfg SweepConfig) (SweepResult, error)
}
