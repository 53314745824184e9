package models

import (
	"strings"
)

// Namespace numbers of the built-in namespaces.
const (
	NSMain     = 0
	NSTalk     = 1
	NSUser     = 2
	NSUserTalk = 3
	NSProject  = 4
	NSFile     = 6
	NSTemplate = 10
	NSCategory = 14
)

// DefaultNamespaces maps built-in namespace numbers to their canonical names.
var DefaultNamespaces = map[int]string{
	NSMain:     "",
	NSTalk:     "Talk",
	NSUser:     "User",
	NSUserTalk: "User talk",
	NSProject:  "Project",
	NSFile:     "File",
	NSTemplate: "Template",
	NSCategory: "Category",
}

// Title identifies a wiki page. DBKey uses underscores instead of spaces.
type Title struct {
	Namespace int    `json:"namespace"`
	DBKey     string `json:"title"`
}

// NewTitle builds a title from a namespace and human-readable text.
func NewTitle(ns int, text string) Title {
	return Title{Namespace: ns, DBKey: strings.ReplaceAll(strings.TrimSpace(text), " ", "_")}
}

// Text returns the page name without namespace, with spaces.
func (t Title) Text() string {
	return strings.ReplaceAll(t.DBKey, "_", " ")
}

// String returns the prefixed page name, e.g. "Talk:Foo".
func (t Title) String() string {
	name, ok := DefaultNamespaces[t.Namespace]
	if !ok || name == "" {
		return t.Text()
	}
	return name + ":" + t.Text()
}

// IsZero reports whether the title is unset.
func (t Title) IsZero() bool {
	return t.DBKey == ""
}
