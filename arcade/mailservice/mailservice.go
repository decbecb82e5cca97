// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

// Package mailservice sends transactional account mail through a
// pluggable sender.
package mailservice

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

var mon = monkit.Package()

// Error is the default mailservice error class.
var Error = errs.Class("mailservice")

// Message is one outgoing mail.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a single message.
type Sender interface {
	Send(ctx context.Context, msg *Message) error
}

// Config holds mail configuration.
type Config struct {
	From         string        `help:"sender address" default:"no-reply@tempora.local"`
	SMTPAddr     string        `help:"smtp host:port, empty selects the simulate sender" default:""`
	SMTPUser     string        `help:"smtp auth username" default:""`
	SMTPPassword string        `help:"smtp auth password" default:""`
	Retries      int           `help:"delivery attempts per message" default:"3"`
	RetryBase    time.Duration `help:"delay before the second attempt, doubled per retry" default:"1m" testDefault:"1ms"`
}

// Service formats account mail and retries delivery with exponential
// backoff. It satisfies the auth package's Mailer.
//
// architecture: Service
type Service struct {
	log    *zap.Logger
	sender Sender
	config Config
}

// New returns a mail service over the configured sender. An empty SMTP
// address selects the simulate sender, which only logs.
func New(log *zap.Logger, config Config) *Service {
	var sender Sender
	if config.SMTPAddr == "" {
		sender = &SimulateSender{log: log}
	} else {
		sender = &SMTPSender{config: config}
	}
	return &Service{log: log, sender: sender, config: config}
}

// NewWithSender returns a mail service over a caller-provided sender.
func NewWithSender(log *zap.Logger, sender Sender, config Config) *Service {
	return &Service{log: log, sender: sender, config: config}
}

// SendVerificationCode mails the login second-factor code.
func (s *Service) SendVerificationCode(ctx context.Context, email, code string) (err error) {
	defer mon.Task()(&ctx)(&err)
	return s.send(ctx, &Message{
		To:      email,
		Subject: "Your verification code",
		Body:    fmt.Sprintf("Enter this code to verify your login: %s\n\nIf this was not you, change your password immediately.", code),
	})
}

// SendPasswordResetCode mails the password reset code.
func (s *Service) SendPasswordResetCode(ctx context.Context, email, code string) (err error) {
	defer mon.Task()(&ctx)(&err)
	return s.send(ctx, &Message{
		To:      email,
		Subject: "Password reset",
		Body:    fmt.Sprintf("Your password reset code: %s\n\nThe code expires in ten minutes.", code),
	})
}

// send retries delivery; the delay doubles after each failed attempt.
func (s *Service) send(ctx context.Context, msg *Message) error {
	retries := s.config.Retries
	if retries < 1 {
		retries = 1
	}

	var lastErr error
	delay := s.config.RetryBase
	for attempt := 1; attempt <= retries; attempt++ {
		if attempt > 1 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return errs.Combine(Error.Wrap(ctx.Err()), lastErr)
			}
			delay *= 2
		}
		lastErr = s.sender.Send(ctx, msg)
		if lastErr == nil {
			mon.Event("mail_sent")
			return nil
		}
		s.log.Warn("mail delivery failed",
			zap.String("to", msg.To),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
	}
	mon.Event("mail_failed")
	return Error.Wrap(lastErr)
}

// SimulateSender logs messages instead of delivering them; the default
// in development.
type SimulateSender struct {
	log *zap.Logger
}

// Send implements Sender.
func (s *SimulateSender) Send(ctx context.Context, msg *Message) error {
	s.log.Info("simulated mail",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body))
	return nil
}

// SMTPSender delivers through a plain SMTP relay.
type SMTPSender struct {
	config Config
}

// Send implements Sender.
func (s *SMTPSender) Send(ctx context.Context, msg *Message) error {
	var auth smtp.Auth
	if s.config.SMTPUser != "" {
		host := s.config.SMTPAddr
		if i := strings.IndexByte(host, ':'); i >= 0 {
			host = host[:i]
		}
		auth = smtp.PlainAuth("", s.config.SMTPUser, s.config.SMTPPassword, host)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.config.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(msg.Body)

	err := smtp.SendMail(s.config.SMTPAddr, auth, s.config.From, []string{msg.To}, []byte(b.String()))
	return Error.Wrap(err)
}
