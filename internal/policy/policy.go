// Package policy defines the run-level caps enforced over a single
// chatWithTools exchange, grounded on the teacher's RunPolicy shape but
// narrowed to what the agent control plane actually needs.
package policy

import "time"

// RunPolicy bounds one exchange: total tool calls, consecutive failures, and
// wall-clock time. Zero in any field means unlimited for that dimension.
type RunPolicy struct {
	// MaxToolCalls caps the total number of tool invocations per exchange.
	// This is where spec.md §9's "maxToolIterations: per-exchange or
	// per-cycle?" open question is resolved: per-exchange.
	MaxToolCalls int

	// MaxConsecutiveFailedToolCalls aborts the exchange once this many tool
	// calls in a row fail.
	MaxConsecutiveFailedToolCalls int

	// TimeBudget is the wall-clock deadline for the exchange.
	TimeBudget time.Duration
}

// DefaultRunPolicy matches the bridge's own default of 8 tool iterations.
func DefaultRunPolicy() RunPolicy {
	return RunPolicy{MaxToolCalls: 8, MaxConsecutiveFailedToolCalls: 3, TimeBudget: 2 * time.Minute}
}

// Tracker accumulates exchange-scoped counters against a RunPolicy.
type Tracker struct {
	policy            RunPolicy
	totalCalls        int
	consecutiveFailed int
	deadline          time.Time
}

// NewTracker starts a Tracker for one exchange beginning at start.
func NewTracker(p RunPolicy, start time.Time) *Tracker {
	t := &Tracker{policy: p}
	if p.TimeBudget > 0 {
		t.deadline = start.Add(p.TimeBudget)
	}
	return t
}

// RecordToolCall updates counters after one tool call resolves.
func (t *Tracker) RecordToolCall(success bool) {
	t.totalCalls++
	if success {
		t.consecutiveFailed = 0
	} else {
		t.consecutiveFailed++
	}
}

// ShouldStop reports whether any cap has been reached as of now.
func (t *Tracker) ShouldStop(now time.Time) (stop bool, reason string) {
	if t.policy.MaxToolCalls > 0 && t.totalCalls >= t.policy.MaxToolCalls {
		return true, "max tool calls reached"
	}
	if t.policy.MaxConsecutiveFailedToolCalls > 0 && t.consecutiveFailed >= t.policy.MaxConsecutiveFailedToolCalls {
		return true, "too many consecutive tool failures"
	}
	if !t.deadline.IsZero() && !now.Before(t.deadline) {
		return true, "time budget exceeded"
	}
	return false, ""
}
