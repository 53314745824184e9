package preload

import (
	"context"
	"strconv"

	"wikimod/internal/models"
)

// NewSection is the section parameter of an editor that appends a section.
const NewSection = "new"

// Draft is what the editor is prefilled with.
type Draft struct {
	EntryID int64  `json:"entry_id"`
	Text    string `json:"text"`
	Comment string `json:"comment"`
}

// LoadDraft returns the pending draft of title for actor, narrowed to section
// when one is given. It returns nil if there is nothing to preload.
func (c *Correlator) LoadDraft(ctx context.Context, actor *models.User, tokens TokenStore, title models.Title, section string) (*Draft, error) {
	if section == NewSection {
		return nil, nil
	}

	pe, err := c.FindPendingEdit(ctx, actor, tokens, title)
	if err != nil || pe == nil {
		return nil, err
	}

	d := &Draft{EntryID: pe.EntryID, Text: pe.Text, Comment: pe.Comment}
	if section == "" {
		return d, nil
	}
	if n, err := strconv.Atoi(section); err == nil {
		if text, ok := ExtractSection(pe.Text, n); ok {
			d.Text = text
		}
	}
	return d, nil
}
