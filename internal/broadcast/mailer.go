package broadcast

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"steward.run/internal/host"
)

// Mailer delivers a single message.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPMailer sends through the transport configured in host options. The
// configure_smtp tool rewrites those options at runtime, so settings are read
// per send rather than captured at construction.
type SMTPMailer struct {
	options  host.Options
	siteName string
}

// NewSMTPMailer constructs a mailer reading transport settings from options.
func NewSMTPMailer(options host.Options, siteName string) *SMTPMailer {
	return &SMTPMailer{options: options, siteName: siteName}
}

// Configure persists the SMTP transport settings as host options.
func Configure(ctx context.Context, options host.Options, hostName, port, user, pass string) error {
	if hostName == "" || user == "" || pass == "" {
		return errors.New("smtp host, user and pass are required")
	}
	if port == "" {
		port = "587"
	}
	pairs := map[string]string{
		host.OptionSMTPHost: hostName,
		host.OptionSMTPPort: port,
		host.OptionSMTPUser: user,
		host.OptionSMTPPass: pass,
	}
	for name, value := range pairs {
		if err := options.SetOption(ctx, name, value); err != nil {
			return err
		}
	}
	return nil
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	hostName, _, _ := m.options.GetOption(ctx, host.OptionSMTPHost)
	port, _, _ := m.options.GetOption(ctx, host.OptionSMTPPort)
	user, _, _ := m.options.GetOption(ctx, host.OptionSMTPUser)
	pass, _, _ := m.options.GetOption(ctx, host.OptionSMTPPass)
	if hostName == "" || user == "" || pass == "" {
		return errors.New("smtp transport is not configured")
	}
	if port == "" {
		port = "587"
	}

	msg := strings.Join([]string{
		"From: " + m.siteName + " <" + user + ">",
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%s", hostName, port)
	auth := smtp.PlainAuth("", user, pass, hostName)
	return smtp.SendMail(addr, auth, user, []string{to}, []byte(msg))
}
