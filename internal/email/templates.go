package email

import (
	"fmt"
	"html"
	"net/url"

	"wikimod/internal/config"
	"wikimod/internal/models"
)

// Templates renders notification emails.
type Templates struct {
	cfg *config.Config
}

// NewTemplates creates a new templates instance.
func NewTemplates(cfg *config.Config) *Templates {
	return &Templates{cfg: cfg}
}

// baseHTML wraps content in the common HTML layout.
func (t *Templates) baseHTML(title, content string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>%s</title>
    <style>
        body { font-family: sans-serif; line-height: 1.6; color: #202122; max-width: 600px; margin: 0 auto; padding: 20px; }
        .content { border: 1px solid #a2a9b1; padding: 20px; }
        .info-box { background: #f8f9fa; border: 1px solid #eaecf0; padding: 12px; margin: 12px 0; }
        .label { font-weight: 600; }
        .footer { font-size: 12px; color: #72777d; padding-top: 12px; }
    </style>
</head>
<body>
    <h1>%s</h1>
    <div class="content">
        %s
    </div>
    <div class="footer">
        <p>%s &middot; <a href="%s">%s</a></p>
    </div>
</body>
</html>`, html.EscapeString(title), html.EscapeString(title), content,
		html.EscapeString(t.cfg.SiteName), t.cfg.BaseURL, t.cfg.BaseURL)
}

// pageURL links to the editor of a page.
func (t *Templates) pageURL(title models.Title) string {
	return fmt.Sprintf("%s/edit/%d/%s", t.cfg.BaseURL, title.Namespace, url.PathEscape(title.DBKey))
}

func (t *Templates) footer() string {
	return fmt.Sprintf("\n--\n%s\n%s", t.cfg.SiteName, t.cfg.BaseURL)
}

// ChangeQueued tells moderators that a change is waiting for review.
func (t *Templates) ChangeQueued(entry *models.QueueEntry) (subject, htmlBody, textBody string) {
	subject = fmt.Sprintf("[%s] New change pending moderation: %s", t.cfg.SiteName, entry.Title)

	content := fmt.Sprintf(`
        <p>A change needs your review.</p>
        <div class="info-box">
            <p><span class="label">Page:</span> %s</p>
            <p><span class="label">Author:</span> %s</p>
            <p><span class="label">Summary:</span> %s</p>
        </div>
        <p><a href="%s/moderation">Open the moderation queue</a></p>
    `,
		html.EscapeString(entry.Title.String()),
		html.EscapeString(entry.UserText),
		html.EscapeString(entry.Comment),
		t.cfg.BaseURL,
	)
	htmlBody = t.baseHTML(subject, content)

	textBody = fmt.Sprintf("A change needs your review.\n\nPage: %s\nAuthor: %s\nSummary: %s\n\nReview at: %s/moderation\n%s",
		entry.Title, entry.UserText, entry.Comment, t.cfg.BaseURL, t.footer())
	return
}

// ChangeApproved tells the author that their change is live.
func (t *Templates) ChangeApproved(entry *models.QueueEntry, revID int64) (subject, htmlBody, textBody string) {
	subject = fmt.Sprintf("[%s] Your change to %s was approved", t.cfg.SiteName, entry.Title)
	link := t.pageURL(entry.Title)

	content := fmt.Sprintf(`
        <p>Your change has been approved and is now visible to everyone.</p>
        <div class="info-box">
            <p><span class="label">Page:</span> <a href="%s">%s</a></p>
            <p><span class="label">Revision:</span> %d</p>
            <p><span class="label">Summary:</span> %s</p>
        </div>
    `,
		link,
		html.EscapeString(entry.Title.String()),
		revID,
		html.EscapeString(entry.Comment),
	)
	htmlBody = t.baseHTML(subject, content)

	textBody = fmt.Sprintf("Your change has been approved.\n\nPage: %s\nRevision: %d\nSummary: %s\n\n%s\n%s",
		entry.Title, revID, entry.Comment, link, t.footer())
	return
}

// ChangeRejected tells the author that a moderator declined their change.
func (t *Templates) ChangeRejected(entry *models.QueueEntry, moderator *models.User) (subject, htmlBody, textBody string) {
	subject = fmt.Sprintf("[%s] Your change to %s was not approved", t.cfg.SiteName, entry.Title)

	content := fmt.Sprintf(`
        <p>A moderator has declined your change.</p>
        <div class="info-box">
            <p><span class="label">Page:</span> %s</p>
            <p><span class="label">Summary:</span> %s</p>
            <p><span class="label">Reviewed by:</span> %s</p>
        </div>
        <p>If you believe this was a mistake, please contact a moderator.</p>
    `,
		html.EscapeString(entry.Title.String()),
		html.EscapeString(entry.Comment),
		html.EscapeString(moderator.Name),
	)
	htmlBody = t.baseHTML(subject, content)

	textBody = fmt.Sprintf("A moderator has declined your change.\n\nPage: %s\nSummary: %s\nReviewed by: %s\n\nIf you believe this was a mistake, please contact a moderator.\n%s",
		entry.Title, entry.Comment, moderator.Name, t.footer())
	return
}
