package email

import (
	"context"
	"log"

	"wikimod/internal/config"
	"wikimod/internal/models"
)

// Recipients looks up who should receive notifications.
type Recipients interface {
	GetModeratorEmails(ctx context.Context) ([]string, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// Notifier sends moderation notifications.
type Notifier struct {
	service   *Service
	templates *Templates
	cfg       *config.Config
	db        Recipients
	send      func(to []string, subject, htmlBody, textBody string)
}

// NewNotifier creates a new email notifier.
func NewNotifier(cfg *config.Config, db Recipients) *Notifier {
	n := &Notifier{
		service:   NewService(cfg),
		templates: NewTemplates(cfg),
		cfg:       cfg,
		db:        db,
	}
	n.send = n.service.SendAsync
	return n
}

// NotifyQueued tells moderators that a change is waiting for them.
func (n *Notifier) NotifyQueued(ctx context.Context, entry *models.QueueEntry) {
	if !n.service.IsEnabled() || !n.cfg.EmailNotifyModeratorsOnSubmit {
		return
	}

	emails, err := n.db.GetModeratorEmails(ctx)
	if err != nil {
		log.Printf("Failed to get moderator emails: %v", err)
		return
	}
	if len(emails) == 0 {
		return
	}

	subject, htmlBody, textBody := n.templates.ChangeQueued(entry)
	n.send(emails, subject, htmlBody, textBody)
}

// NotifyApproved tells the author that their change went live.
func (n *Notifier) NotifyApproved(ctx context.Context, entry *models.QueueEntry, revID int64) {
	if !n.service.IsEnabled() || !n.cfg.EmailNotifyUserOnApproval {
		return
	}

	to := n.authorEmail(ctx, entry)
	if to == "" {
		return
	}

	subject, htmlBody, textBody := n.templates.ChangeApproved(entry, revID)
	n.send([]string{to}, subject, htmlBody, textBody)
}

// NotifyRejected tells the author that their change was declined.
func (n *Notifier) NotifyRejected(ctx context.Context, entry *models.QueueEntry, moderator *models.User) {
	if !n.service.IsEnabled() || !n.cfg.EmailNotifyUserOnRejection {
		return
	}

	to := n.authorEmail(ctx, entry)
	if to == "" {
		return
	}

	subject, htmlBody, textBody := n.templates.ChangeRejected(entry, moderator)
	n.send([]string{to}, subject, htmlBody, textBody)
}

// authorEmail returns the address of a registered author, or "".
func (n *Notifier) authorEmail(ctx context.Context, entry *models.QueueEntry) string {
	if entry.UserID == 0 {
		return ""
	}

	author, err := n.db.GetUserByID(ctx, entry.UserID)
	if err != nil {
		log.Printf("Failed to get author of change %d: %v", entry.ID, err)
		return ""
	}
	return author.Email
}
