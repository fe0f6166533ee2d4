package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// SMTPConfig configures the branch mailbox sink.
type SMTPConfig struct {
	Server       string
	Port         int
	Login        string
	Password     string
	BranchEmails map[string]string
	DefaultEmail string
}

// EmailSink mails booking confirmations and cancellations to the branch's
// staff mailbox. Reminders are client-facing and are not mailed.
type EmailSink struct {
	config SMTPConfig
	logger *zerolog.Logger
}

func NewEmailSink(cfg SMTPConfig, logger *zerolog.Logger) *EmailSink {
	return &EmailSink{config: cfg, logger: logger}
}

func (s *EmailSink) Deliver(ctx context.Context, kind Kind, p Payload) error {
	var subject, intro string
	switch kind {
	case KindBookingConfirmed:
		subject = fmt.Sprintf("Новая запись (%s)", p.Branch)
	case KindBookingCancelled:
		subject = fmt.Sprintf("❌ Отмена записи (%s)", p.Branch)
		intro = "‼️ Отмена записи:\n"
	default:
		return nil
	}

	to := s.config.BranchEmails[p.Branch]
	if to == "" {
		to = s.config.DefaultEmail
	}
	if to == "" {
		return nil
	}

	body := fmt.Sprintf("%sФилиал: %s\nДата: %s\nВремя: %s\nИмя: %s\nТелефон: %s",
		intro, p.Branch, displayDate(p.Date), p.Time, p.Name, p.Phone)

	if err := s.send(to, subject, body); err != nil {
		return fmt.Errorf("email to %s: %w", to, err)
	}
	s.logger.Info().Str("to", to).Str("branch", p.Branch).Msg("Email sent")
	return nil
}

// send speaks SMTP over implicit TLS, the mode the branch mail server accepts.
// The dial is bounded so a hung server cannot stall the delivery goroutine.
func (s *EmailSink) send(to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", s.config.Server, s.config.Port)

	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: s.config.Server})
	if err != nil {
		return err
	}

	client, err := smtp.NewClient(conn, s.config.Server)
	if err != nil {
		conn.Close()
		return err
	}
	defer client.Close()

	auth := smtp.PlainAuth("", s.config.Login, s.config.Password, s.config.Server)
	if err := client.Auth(auth); err != nil {
		return err
	}
	if err := client.Mail(s.config.Login); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}

	w, err := client.Data()
	if err != nil {
		return err
	}

	msg := strings.Join([]string{
		"From: " + s.config.Login,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		`Content-Type: text/plain; charset="utf-8"`,
		"",
		body,
	}, "\r\n")
	if _, err := w.Write([]byte(msg)); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}
