// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package mail delivers the login codes and reset links the identity service sends.

Senders:

  - SMTPSender: go-mail client with opportunistic STARTTLS and PLAIN auth.
  - LogSender: writes messages, body included, to the log. Development only.
  - DisabledSender: refuses every message; used when no relay is configured
    outside development so failures are counted instead of hidden.

Every Send is bound by its context: the dial, the conversation and the body
upload all stop at the context deadline.
*/
package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// ErrNoRelay is returned by [DisabledSender].
var ErrNoRelay = errors.New("mail: no SMTP relay configured")

// Message is a single plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a [Message].
type Sender interface {
	Send(ctx context.Context, message Message) error
}

// # SMTP

// SMTPSettings configures an [SMTPSender].
type SMTPSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender relays mail through an SMTP server.
type SMTPSender struct {
	settings SMTPSettings
	dialer   net.Dialer
	now      func() time.Time
}

// NewSMTPSender builds an [SMTPSender].
func NewSMTPSender(settings SMTPSettings) *SMTPSender {
	return &SMTPSender{settings: settings, now: time.Now}
}

// Send delivers message or returns the first protocol error.
func (sender *SMTPSender) Send(ctx context.Context, message Message) error {
	if strings.ContainsAny(message.To, "\r\n") || strings.ContainsAny(message.Subject, "\r\n") {
		return errors.New("mail: header values must not contain line breaks")
	}

	msg, err := sender.compose(message)
	if err != nil {
		return err
	}

	var (
		mu    sync.Mutex
		stops []func() bool
	)
	defer func() {
		mu.Lock()
		defer mu.Unlock()
		for _, stop := range stops {
			stop()
		}
	}()

	// The dial context go-mail passes in ends with the dial. The connection is
	// tied to the caller's context instead so a stalled server cannot hold it.
	dial := func(dialCtx context.Context, network, address string) (net.Conn, error) {
		connection, err := sender.dialer.DialContext(dialCtx, network, address)
		if err != nil {
			return nil, err
		}
		if deadline, ok := ctx.Deadline(); ok {
			_ = connection.SetDeadline(deadline)
		}
		mu.Lock()
		stops = append(stops, context.AfterFunc(ctx, func() { _ = connection.SetDeadline(time.Now()) }))
		mu.Unlock()
		return connection, nil
	}

	options := []gomail.Option{
		gomail.WithPort(sender.settings.Port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
		gomail.WithDialContextFunc(dial),
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 {
			options = append(options, gomail.WithTimeout(remaining))
		}
	}
	if sender.settings.Username != "" {
		options = append(options,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(sender.settings.Username),
			gomail.WithPassword(sender.settings.Password),
		)
	}

	client, err := gomail.NewClient(sender.settings.Host, options...)
	if err != nil {
		return fmt.Errorf("mail: configure client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("mail: send to %s: %w", message.To, err)
	}
	return nil
}

// compose builds the plain-text UTF-8 message.
func (sender *SMTPSender) compose(message Message) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.From(sender.settings.From); err != nil {
		return nil, fmt.Errorf("mail: sender address: %w", err)
	}
	if err := msg.To(message.To); err != nil {
		return nil, fmt.Errorf("mail: recipient address: %w", err)
	}
	msg.Subject(message.Subject)
	msg.SetDateWithValue(sender.now())
	msg.SetBodyString(gomail.TypeTextPlain, message.Body)
	return msg, nil
}

// # Unconfigured

// DisabledSender reports every message as undeliverable.
type DisabledSender struct{}

// Send always returns [ErrNoRelay].
func (DisabledSender) Send(context.Context, Message) error {
	return ErrNoRelay
}

// # Development

// LogSender writes every message to the log instead of delivering it.
//
// The body carries live login codes and reset links; never use it outside
// development.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender builds a [LogSender].
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs message at INFO level.
func (sender *LogSender) Send(ctx context.Context, message Message) error {
	sender.logger.InfoContext(ctx, "mail_logged",
		slog.String("to", message.To),
		slog.String("subject", message.Subject),
		slog.String("body", message.Body),
	)
	return nil
}
