package models

import (
	"time"
)

// PayloadKind tells which kind of change a queue entry carries.
type PayloadKind string

const (
	KindEdit   PayloadKind = "edit"
	KindUpload PayloadKind = "upload"
	KindMove   PayloadKind = "move"
)

// Payload is the change held by a queue entry. It is one of *EditPayload,
// *UploadPayload or *MovePayload.
type Payload interface {
	Kind() PayloadKind
}

// EditPayload is a queued text edit. BaseRevID is the latest revision of the
// page when the edit was queued, or 0 if the page did not exist.
type EditPayload struct {
	Text      string `json:"text"`
	BaseRevID int64  `json:"base_rev_id"`
}

func (*EditPayload) Kind() PayloadKind { return KindEdit }

// UploadPayload is a queued upload whose file waits in the upload stash.
type UploadPayload struct {
	StashKey    string `json:"stash_key"`
	Description string `json:"description"`
}

func (*UploadPayload) Kind() PayloadKind { return KindUpload }

// MovePayload is a queued rename of the entry's page to NewTitle.
type MovePayload struct {
	NewTitle Title `json:"new_title"`
}

func (*MovePayload) Kind() PayloadKind { return KindMove }

// DecodePayload picks the payload variant for a stored row. A stash key makes
// the row an upload; the move type makes it a move; anything else is an edit.
func DecodePayload(rowType string, text string, baseRevID int64, stashKey *string, page2 *Title) Payload {
	switch {
	case stashKey != nil && *stashKey != "":
		return &UploadPayload{StashKey: *stashKey, Description: text}
	case rowType == string(KindMove) && page2 != nil:
		return &MovePayload{NewTitle: *page2}
	default:
		return &EditPayload{Text: text, BaseRevID: baseRevID}
	}
}

// Origin is the network identity of whoever submitted a change.
type Origin struct {
	IP        string `json:"ip"`
	XFF       string `json:"xff,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// QueueEntry is one change waiting for a moderator.
type QueueEntry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	UserID    int64     `json:"user_id"` // 0 for anonymous authors
	UserText  string    `json:"user_text"`
	Title     Title     `json:"page"`
	Comment   string    `json:"comment"`
	Minor     bool      `json:"minor"`
	Bot       bool      `json:"bot"`
	Origin    Origin    `json:"-"`
	PreloadID string    `json:"-"`
	Payload   Payload   `json:"payload"`
	Tags      []string  `json:"tags,omitempty"`

	Rejected       bool   `json:"rejected"`
	RejectedByID   int64  `json:"rejected_by_id,omitempty"`
	RejectedByText string `json:"rejected_by,omitempty"`
	RejectedBatch  bool   `json:"rejected_batch"`
	MergedRevID    *int64 `json:"merged_rev_id"`
	Conflict       bool   `json:"conflict"`
	Preloadable    bool   `json:"preloadable"`
}

// IsUpload returns true if the entry carries an upload.
func (e *QueueEntry) IsUpload() bool {
	_, ok := e.Payload.(*UploadPayload)
	return ok
}

// IsMerged returns true once the entry has been committed.
func (e *QueueEntry) IsMerged() bool {
	return e.MergedRevID != nil && *e.MergedRevID != 0
}

// PendingEdit is a not yet reviewed edit that its author may keep working on.
type PendingEdit struct {
	EntryID   int64     `json:"entry_id"`
	Title     Title     `json:"page"`
	Text      string    `json:"text"`
	Comment   string    `json:"comment"`
	Timestamp time.Time `json:"timestamp"`
}
