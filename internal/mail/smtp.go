// Package mail delivers transactional notifications. Delivery is always
// best-effort: callers log failures and continue, a lost email never fails
// the decision that triggered it.
package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// Sender delivers a single HTML message.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// SMTP submits mail over authenticated SMTP (STARTTLS ports).
type SMTP struct {
	host string
	port string
	from string
	auth smtp.Auth
}

var _ Sender = (*SMTP)(nil)

// NewSMTP configures a sender. Host is "host:port".
func NewSMTP(addr, username, password, from string) (*SMTP, error) {
	host, port, ok := strings.Cut(strings.TrimSpace(addr), ":")
	if !ok || host == "" || port == "" {
		return nil, fmt.Errorf("mail: invalid smtp address %q", addr)
	}
	if from == "" {
		from = username
	}
	return &SMTP{
		host: host,
		port: port,
		from: from,
		auth: smtp.PlainAuth("", username, password, host),
	}, nil
}

func (s *SMTP) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := strings.Join([]string{
		"From: Notara <" + s.from + ">",
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=\"UTF-8\"",
		"",
		htmlBody,
	}, "\r\n")
	return smtp.SendMail(s.host+":"+s.port, s.auth, s.from, []string{to}, []byte(msg))
}

// Noop discards all messages. Used when SMTP credentials are not configured.
type Noop struct{}

var _ Sender = Noop{}

func (Noop) Send(context.Context, string, string, string) error { return nil }
