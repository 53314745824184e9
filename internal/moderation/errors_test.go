package moderation

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestMessageKey(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "moderation-ok"},
		{ErrEntryNotFound, "moderation-edit-not-found"},
		{ErrAlreadyMerged, "moderation-already-merged"},
		{ErrRejectedTooLongAgo, "moderation-rejected-long-ago"},
		{ErrEditConflict, "moderation-edit-conflict"},
		{ErrMissingStashedUpload, "moderation-missing-stashed-image"},
		{ErrNothingToApprove, "moderation-nothing-to-approveall"},
		{ErrNothingToReject, "moderation-nothing-to-rejectall"},
		{fmt.Errorf("wrapped: %w", ErrEntryNotFound), "moderation-edit-not-found"},
		{&CommitError{Err: errors.New("disk full")}, "moderation-commit-failed"},
		{errors.New("boom"), "moderation-unknown-error"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := MessageKey(tt.err); got != tt.want {
				t.Errorf("MessageKey(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestCommitError_Unwrap(t *testing.T) {
	inner := errors.New("validation failed")
	err := error(&CommitError{Err: inner})

	if !errors.Is(err, inner) {
		t.Error("errors.Is() = false, want CommitError to unwrap")
	}
	if err.Error() != "failed to save change: validation failed" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestCanReapprove(t *testing.T) {
	now := time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC)
	window := 7 * 24 * time.Hour

	tests := []struct {
		name      string
		submitted time.Time
		want      bool
	}{
		{"yesterday", now.Add(-24 * time.Hour), true},
		{"just inside window", now.Add(-window + time.Second), true},
		{"exactly at boundary", now.Add(-window), false},
		{"one second too old", now.Add(-window - time.Second), false},
		{"a month ago", now.Add(-30 * 24 * time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanReapprove(tt.submitted, now, window); got != tt.want {
				t.Errorf("CanReapprove() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCanReapprove_ZeroWindow(t *testing.T) {
	now := time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC)

	for _, submitted := range []time.Time{now, now.Add(-time.Second), now.Add(time.Second)} {
		if CanReapprove(submitted, now, 0) {
			t.Errorf("CanReapprove(%v) with zero window = true, want false", submitted)
		}
	}
}

func TestEarliestReapprovable_FollowsClock(t *testing.T) {
	window := time.Hour
	t1 := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(3 * time.Hour)

	if got := EarliestReapprovable(t1, window); !got.Equal(t1.Add(-window)) {
		t.Errorf("EarliestReapprovable(t1) = %v", got)
	}
	if got := EarliestReapprovable(t2, window); !got.Equal(t2.Add(-window)) {
		t.Errorf("EarliestReapprovable(t2) = %v", got)
	}
}
