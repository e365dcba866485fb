package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

type MailMessage struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

// Mailer is the outbound notification boundary. Callers treat delivery as
// best-effort: flows never fail a request because mail could not be sent.
type Mailer interface {
	Send(ctx context.Context, msg MailMessage) error
}

// DevMailer logs the message instead of delivering it. Useful in development
// and in tests that need to observe emailed tokens.
type DevMailer struct {
	logger *slog.Logger
}

func NewDevMailer(logger *slog.Logger) *DevMailer {
	return &DevMailer{logger: logger}
}

func (m *DevMailer) Send(ctx context.Context, msg MailMessage) error {
	m.logger.InfoContext(ctx, "outbound email",
		"to", msg.To,
		"subject", msg.Subject,
		"body", msg.TextBody,
	)
	return nil
}

// SMTPMailer delivers via a plain SMTP relay.
type SMTPMailer struct {
	addr string
	auth smtp.Auth
	from string
}

func NewSMTPMailer(host string, port int, username, password, from string) *SMTPMailer {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPMailer{
		addr: fmt.Sprintf("%s:%d", host, port),
		auth: auth,
		from: from,
	}
}

func (m *SMTPMailer) Send(_ context.Context, msg MailMessage) error {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	if msg.HTMLBody != "" {
		b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
		b.WriteString(msg.HTMLBody)
	} else {
		b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
		b.WriteString(msg.TextBody)
	}
	if err := smtp.SendMail(m.addr, m.auth, m.from, []string{msg.To}, []byte(b.String())); err != nil {
		return fmt.Errorf("send mail to %s: %w", msg.To, err)
	}
	return nil
}

func verificationMail(username, verifyURL string) (html, text string) {
	text = fmt.Sprintf(
		"Hi %s,\n\nWelcome aboard. Please verify your email by opening:\n%s\n\nThe link expires shortly. If you did not sign up, ignore this mail.\n",
		username, verifyURL,
	)
	html = fmt.Sprintf(
		"<p>Hi %s,</p><p>Welcome aboard. Please verify your email:</p><p><a href=%q>Verify your account</a></p><p>The link expires shortly. If you did not sign up, ignore this mail.</p>",
		username, verifyURL,
	)
	return html, text
}

func passwordResetMail(username, resetURL string) (html, text string) {
	text = fmt.Sprintf(
		"Hi %s,\n\nYou requested a password reset. Open the link to continue:\n%s\n\nThe link expires shortly. If you did not request this, ignore this mail.\n",
		username, resetURL,
	)
	html = fmt.Sprintf(
		"<p>Hi %s,</p><p>You requested a password reset:</p><p><a href=%q>Reset your password</a></p><p>The link expires shortly. If you did not request this, ignore this mail.</p>",
		username, resetURL,
	)
	return html, text
}
