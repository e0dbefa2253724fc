package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/weararcstarz/arcstar/internal/auth"
	"github.com/weararcstarz/arcstar/internal/domain"
	"github.com/weararcstarz/arcstar/internal/email"
)

type Mailer interface {
	Send(ctx context.Context, msg email.Message) error
}

type TemplateRenderer interface {
	Render(name string, vars map[string]any) (email.Rendered, error)
}

// Notifier renders and sends the waitlist emails. A nil Sender means mail is
// not configured.
type Notifier struct {
	Sender      Mailer
	Templates   TemplateRenderer
	FromEmail   string
	FromName    string
	AdminEmail  string
	PublicURL   string
	TokenSecret string
	Now         func() time.Time
}

func (n *Notifier) Configured() bool {
	return n != nil && n.Sender != nil && n.Templates != nil && n.FromEmail != ""
}

// UnsubscribeURL returns an absolute one-click unsubscribe link, or "" when
// there is no public URL or secret to build it from.
func (n *Notifier) UnsubscribeURL(addr string) string {
	base := strings.TrimRight(strings.TrimSpace(n.PublicURL), "/")
	if base == "" || n.TokenSecret == "" {
		return ""
	}
	addr = domain.NormalizeEmail(addr)
	q := url.Values{}
	q.Set("email", addr)
	q.Set("token", auth.SignUnsubscribe(addr, n.TokenSecret))
	return base + "/unsubscribe?" + q.Encode()
}

func (n *Notifier) SendWelcome(ctx context.Context, name, addr string) error {
	vars := map[string]any{"name": name, "email": addr}
	if u := n.UnsubscribeURL(addr); u != "" {
		vars["unsubscribe_url"] = u
	}
	return n.send(ctx, email.TemplateWelcome, addr, vars)
}

func (n *Notifier) SendAdminNotification(ctx context.Context, name, addr string, status domain.AddStatus) error {
	to := n.AdminEmail
	if to == "" {
		to = n.FromEmail
	}
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	return n.send(ctx, email.TemplateAdminNotification, to, map[string]any{
		"name":   name,
		"email":  addr,
		"status": string(status),
		"date":   now().UTC().Format(time.RFC1123),
	})
}

func (n *Notifier) SendBroadcast(ctx context.Context, subject, message string, to domain.Subscriber) error {
	vars := map[string]any{
		"subject": subject,
		"message": message,
		"name":    to.Name,
		"email":   to.Email,
	}
	if u := n.UnsubscribeURL(to.Email); u != "" {
		vars["unsubscribe_url"] = u
	}
	return n.send(ctx, email.TemplateBroadcast, to.Email, vars)
}

func (n *Notifier) send(ctx context.Context, tpl, to string, vars map[string]any) error {
	if !n.Configured() {
		return domain.ErrMailNotConfigured
	}
	out, err := n.Templates.Render(tpl, vars)
	if err != nil {
		return fmt.Errorf("render %s: %w", tpl, err)
	}
	return n.Sender.Send(ctx, email.Message{
		FromName:  n.FromName,
		FromEmail: n.FromEmail,
		ToEmail:   to,
		Subject:   out.Subject,
		TextBody:  out.Text,
		HTMLBody:  out.HTML,
	})
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
