package moderation

import "time"

// DefaultReapprovalWindow is how long a rejected change can still be approved.
const DefaultReapprovalWindow = 14 * 24 * time.Hour

// EarliestReapprovable returns the cutoff at now: a rejected change submitted
// at or before it can no longer be approved.
func EarliestReapprovable(now time.Time, window time.Duration) time.Time {
	return now.Add(-window)
}

// CanReapprove reports whether a change submitted at submitted and later
// rejected may be approved at now. The window is exclusive, and a zero window
// never allows it.
func CanReapprove(submitted, now time.Time, window time.Duration) bool {
	if window <= 0 {
		return false
	}
	return submitted.After(EarliestReapprovable(now, window))
}
