package models

import (
	"time"
)

// Page is a wiki page and its current revision.
type Page struct {
	ID          int64     `json:"id"`
	Title       Title     `json:"title"`
	LatestRevID int64     `json:"latest_rev_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Revision is one stored version of a page.
type Revision struct {
	ID        int64     `json:"id"`
	PageID    int64     `json:"page_id"`
	ParentID  int64     `json:"parent_id"`
	Text      string    `json:"text"`
	Comment   string    `json:"comment"`
	UserID    int64     `json:"user_id"`
	UserText  string    `json:"user_text"`
	Minor     bool      `json:"minor"`
	Timestamp time.Time `json:"timestamp"`
	Tags      []string  `json:"tags,omitempty"`
}

// EditCommit asks the content store to save new page text. BaseRevID is the
// revision the text was written against; 0 means the page must not exist yet.
type EditCommit struct {
	Title            Title
	Text             string
	Comment          string
	BaseRevID        int64
	Author           *User
	Minor            bool
	Bot              bool
	Tags             []string
	BypassModeration bool
	PreloadID        string // set by the edit surface for changes that may be queued
}

// UploadCommit asks the content store to publish a stashed file.
type UploadCommit struct {
	Title            Title
	StashKey         string
	Comment          string
	Description      string
	Author           *User
	Tags             []string
	BypassModeration bool
	PreloadID        string
}

// MoveCommit asks the content store to rename a page.
type MoveCommit struct {
	From             Title
	To               Title
	Comment          string
	Author           *User
	BypassModeration bool
	PreloadID        string
}
