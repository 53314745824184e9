package db

import "errors"

// Domain-level database error sentinels.
var (
	// User errors
	ErrUserNotFound      = errors.New("user not found")
	ErrDuplicateUsername = errors.New("username already taken")

	// Page errors
	ErrPageNotFound      = errors.New("page not found")
	ErrPageExists        = errors.New("page already exists")
	ErrRevisionNotFound  = errors.New("revision not found")
	ErrStaleBaseRevision = errors.New("page was changed since the base revision")

	// File errors
	ErrFileNotFound = errors.New("file not found")

	// Queue errors
	ErrQueueEntryNotFound = errors.New("queue entry not found")
	ErrEntryLocked        = errors.New("queue entry is being handled by another moderator")
)

const uniqueViolation = "23505"
