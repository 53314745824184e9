package email

import (
	"context"
	"errors"
	"testing"

	"wikimod/internal/config"
	"wikimod/internal/models"
)

type fakeRecipients struct {
	moderators []string
	users      map[int64]*models.User
}

func (f *fakeRecipients) GetModeratorEmails(context.Context) ([]string, error) {
	return f.moderators, nil
}

func (f *fakeRecipients) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return u, nil
}

type sentMail struct {
	to      []string
	subject string
}

func enabledConfig() *config.Config {
	return &config.Config{
		SMTPEnabled:                   true,
		SMTPHost:                      "smtp.example.com",
		SMTPFrom:                      "wiki@example.com",
		SiteName:                      "TestWiki",
		BaseURL:                       "https://wiki.example.com",
		EmailNotifyModeratorsOnSubmit: true,
		EmailNotifyUserOnApproval:     true,
		EmailNotifyUserOnRejection:    true,
	}
}

func newTestNotifier(cfg *config.Config) (*Notifier, *[]sentMail) {
	db := &fakeRecipients{
		moderators: []string{"mod@example.com"},
		users:      map[int64]*models.User{7: {ID: 7, Name: "Alice", Email: "alice@example.com"}},
	}
	n := NewNotifier(cfg, db)
	var sent []sentMail
	n.send = func(to []string, subject, _, _ string) {
		sent = append(sent, sentMail{to: to, subject: subject})
	}
	return n, &sent
}

func TestNotifier_NotifyQueued(t *testing.T) {
	n, sent := newTestNotifier(enabledConfig())

	n.NotifyQueued(context.Background(), testEntry())

	if len(*sent) != 1 {
		t.Fatalf("sent %d mails, want 1", len(*sent))
	}
	if got := (*sent)[0].to; len(got) != 1 || got[0] != "mod@example.com" {
		t.Errorf("recipients = %v", got)
	}
}

func TestNotifier_NotifyApproved(t *testing.T) {
	n, sent := newTestNotifier(enabledConfig())

	n.NotifyApproved(context.Background(), testEntry(), 101)

	if len(*sent) != 1 || (*sent)[0].to[0] != "alice@example.com" {
		t.Fatalf("sent = %v, want one mail to alice", *sent)
	}
}

func TestNotifier_NotifyRejected(t *testing.T) {
	n, sent := newTestNotifier(enabledConfig())

	n.NotifyRejected(context.Background(), testEntry(), &models.User{ID: 1, Name: "Mod"})

	if len(*sent) != 1 || (*sent)[0].to[0] != "alice@example.com" {
		t.Fatalf("sent = %v, want one mail to alice", *sent)
	}
}

func TestNotifier_SkipsWhenNoMailIsDue(t *testing.T) {
	anonymous := testEntry()
	anonymous.UserID = 0
	anonymous.UserText = "192.0.2.7"

	unknown := testEntry()
	unknown.UserID = 99

	tests := []struct {
		name   string
		cfg    func(*config.Config)
		notify func(*Notifier)
	}{
		{
			name:   "email disabled",
			cfg:    func(c *config.Config) { c.SMTPEnabled = false },
			notify: func(n *Notifier) { n.NotifyQueued(context.Background(), testEntry()) },
		},
		{
			name:   "moderator notification off",
			cfg:    func(c *config.Config) { c.EmailNotifyModeratorsOnSubmit = false },
			notify: func(n *Notifier) { n.NotifyQueued(context.Background(), testEntry()) },
		},
		{
			name:   "approval notification off",
			cfg:    func(c *config.Config) { c.EmailNotifyUserOnApproval = false },
			notify: func(n *Notifier) { n.NotifyApproved(context.Background(), testEntry(), 1) },
		},
		{
			name:   "rejection notification off",
			cfg:    func(c *config.Config) { c.EmailNotifyUserOnRejection = false },
			notify: func(n *Notifier) { n.NotifyRejected(context.Background(), testEntry(), &models.User{Name: "Mod"}) },
		},
		{
			name:   "anonymous author",
			cfg:    func(*config.Config) {},
			notify: func(n *Notifier) { n.NotifyApproved(context.Background(), anonymous, 1) },
		},
		{
			name:   "author lookup fails",
			cfg:    func(*config.Config) {},
			notify: func(n *Notifier) { n.NotifyRejected(context.Background(), unknown, &models.User{Name: "Mod"}) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := enabledConfig()
			tt.cfg(cfg)
			n, sent := newTestNotifier(cfg)

			tt.notify(n)

			if len(*sent) != 0 {
				t.Errorf("sent %d mails, want none", len(*sent))
			}
		})
	}
}
