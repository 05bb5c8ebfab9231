package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/abelbrown/vinewatch/internal/logging"
	"github.com/abelbrown/vinewatch/internal/model"
)

// EmailConfig holds SMTP settings for EmailNotifier.
type EmailConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	User string `json:"user"`
	Pass string `json:"pass"`
	From string `json:"from"`
	To   string `json:"to"`
}

// Enabled reports whether enough is configured to send mail.
func (c EmailConfig) Enabled() bool {
	return c.Host != "" && c.From != "" && strings.TrimSpace(c.To) != ""
}

// EmailNotifier sends one mail per notification.
type EmailNotifier struct {
	cfg  EmailConfig
	dial func() (gomail.SendCloser, error)
}

// NewEmailNotifier creates an EmailNotifier for cfg.
func NewEmailNotifier(cfg EmailConfig) *EmailNotifier {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Pass)
	return &EmailNotifier{cfg: cfg, dial: d.Dial}
}

// Notify implements Notifier.
func (n *EmailNotifier) Notify(ctx context.Context, title string, item model.Projection) error {
	if !n.cfg.Enabled() {
		logging.Warn("email config missing, skip notification")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.From)
	m.SetHeader("To", n.cfg.To)
	m.SetHeader("Subject", "[vinewatch] "+title)
	m.SetBody("text/plain", plainBody(title, item))
	m.AddAlternative("text/html", htmlBody(title, item))

	s, err := n.dial()
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	defer s.Close()

	if err := gomail.Send(s, m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	logging.Info("email notification sent", "to", n.cfg.To, "asin", item.ASIN)
	return nil
}

func plainBody(title string, item model.Projection) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", title)
	fmt.Fprintf(&b, "%s\n", item.Title)
	fmt.Fprintf(&b, "ASIN: %s\nQueue: %s\n", item.ASIN, item.Queue)
	if item.SearchPhrase != "" {
		fmt.Fprintf(&b, "Search: %s\n", item.SearchPhrase)
	}
	return b.String()
}

func htmlBody(title string, item model.Projection) string {
	img := ""
	if item.ImageURL != "" {
		img = fmt.Sprintf(`<img src="%s" alt="" style="max-width:240px"/>`, html.EscapeString(item.ImageURL))
	}
	return fmt.Sprintf(`<html><body style="font-family: Arial, sans-serif;">
<h3>%s</h3>
%s
<p>%s</p>
<p style="color:#6b7280">%s &middot; %s</p>
</body></html>`,
		html.EscapeString(title), img, html.EscapeString(item.Title),
		html.EscapeString(item.ASIN), html.EscapeString(string(item.Queue)))
}
