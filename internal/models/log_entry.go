package models

import (
	"time"
)

// Moderation log actions.
const (
	LogApprove    = "approve"
	LogApproveAll = "approveall"
	LogReject     = "reject"
	LogRejectAll  = "rejectall"
	LogMerge      = "merge"
)

// LogEntry is one record in the moderation audit log.
type LogEntry struct {
	ID            int64          `json:"id"`
	Action        string         `json:"action"`
	PerformerID   int64          `json:"performer_id"`
	PerformerText string         `json:"performer"`
	Target        Title          `json:"target"`
	Params        map[string]any `json:"params,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}
