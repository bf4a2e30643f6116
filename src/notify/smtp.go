package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"

	"membershare/src/services"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier sends HTML mail through an SMTP relay.
type SMTPNotifier struct {
	addr    string
	from    string
	auth    smtp.Auth
	content ContentBuilder
	send    sendFunc
}

func NewSMTPNotifier(addr, username, password, from string, content ContentBuilder) *SMTPNotifier {
	var auth smtp.Auth
	if username != "" {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPNotifier{addr: addr, from: from, auth: auth, content: content, send: smtp.SendMail}
}

func (n *SMTPNotifier) SendInvitation(ctx context.Context, msg services.InvitationMessage) error {
	content, err := n.content.Invitation(msg)
	if err != nil {
		return err
	}
	return n.deliver(ctx, msg.Email, content)
}

func (n *SMTPNotifier) SendReminder(ctx context.Context, msg services.InvitationMessage) error {
	content, err := n.content.Reminder(msg)
	if err != nil {
		return err
	}
	return n.deliver(ctx, msg.Email, content)
}

func (n *SMTPNotifier) deliver(ctx context.Context, to string, content Content) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := n.send(n.addr, n.auth, n.from, []string{to}, buildMessage(n.from, to, content)); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

func buildMessage(from, to string, content Content) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + content.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(content.HTML)
	return []byte(b.String())
}

// LogNotifier writes messages to the log instead of sending them. It is used
// when no SMTP relay is configured.
type LogNotifier struct {
	logger  *slog.Logger
	content ContentBuilder
}

func NewLogNotifier(logger *slog.Logger, content ContentBuilder) *LogNotifier {
	return &LogNotifier{logger: logger, content: content}
}

func (n *LogNotifier) SendInvitation(_ context.Context, msg services.InvitationMessage) error {
	content, err := n.content.Invitation(msg)
	if err != nil {
		return err
	}
	n.logger.Info("invitation email", "to", msg.Email, "subject", content.Subject, "accept_url", msg.AcceptURL)
	return nil
}

func (n *LogNotifier) SendReminder(_ context.Context, msg services.InvitationMessage) error {
	content, err := n.content.Reminder(msg)
	if err != nil {
		return err
	}
	n.logger.Info("reminder email", "to", msg.Email, "subject", content.Subject, "accept_url", msg.AcceptURL)
	return nil
}
