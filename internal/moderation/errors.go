package moderation

import (
	"errors"
)

// Expected outcomes of moderation actions.
var (
	ErrEntryNotFound        = errors.New("change not found")
	ErrAlreadyMerged        = errors.New("change was already approved")
	ErrRejectedTooLongAgo   = errors.New("change was rejected too long ago to be approved")
	ErrEditConflict         = errors.New("change conflicts with later edits and needs a manual merge")
	ErrMissingStashedUpload = errors.New("stashed upload no longer exists")
	ErrNothingToApprove     = errors.New("nothing to approve")
	ErrNothingToReject      = errors.New("nothing to reject")
	ErrNotConflicted        = errors.New("change has no conflict to resolve")
)

// CommitError wraps a failure of the content store while applying a change.
type CommitError struct {
	Err error
}

func (e *CommitError) Error() string {
	return "failed to save change: " + e.Err.Error()
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

// MessageKey returns the UI message for the outcome of an action.
func MessageKey(err error) string {
	var commitErr *CommitError
	switch {
	case err == nil:
		return "moderation-ok"
	case errors.Is(err, ErrEntryNotFound):
		return "moderation-edit-not-found"
	case errors.Is(err, ErrAlreadyMerged):
		return "moderation-already-merged"
	case errors.Is(err, ErrRejectedTooLongAgo):
		return "moderation-rejected-long-ago"
	case errors.Is(err, ErrEditConflict):
		return "moderation-edit-conflict"
	case errors.Is(err, ErrMissingStashedUpload):
		return "moderation-missing-stashed-image"
	case errors.Is(err, ErrNothingToApprove):
		return "moderation-nothing-to-approveall"
	case errors.Is(err, ErrNothingToReject):
		return "moderation-nothing-to-rejectall"
	case errors.Is(err, ErrNotConflicted):
		return "moderation-merge-not-needed"
	case errors.As(err, &commitErr):
		return "moderation-commit-failed"
	}
	return "moderation-unknown-error"
}

// outcome labels an error for metrics.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrEditConflict):
		return "conflict"
	}
	var commitErr *CommitError
	if errors.As(err, &commitErr) {
		return "error"
	}
	return "rejected"
}
