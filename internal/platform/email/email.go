// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

/*
Package email provides transactional email delivery behind a small interface.

Two implementations exist:

  - PostmarkSender: production delivery through the Postmark API.
  - DevSender: development mode that writes emails to disk instead of sending.

The event email handler is the only caller; delivery failures are always
fail-open there, so neither implementation needs retry logic.
*/
package email

import (
	"context"
	"errors"
	"net/mail"
)

// # Contract

// ErrInvalidMessage is returned when a message fails basic validation.
var ErrInvalidMessage = errors.New("email: invalid message")

// Message is a single transactional email.
type Message struct {
	To       string
	Subject  string
	BodyHTML string
	// Tag groups messages by kind (e.g. "welcome", "password_changed")
	// for delivery analytics and for dev-mode filenames.
	Tag string
}

// Validate checks the minimal required fields.
func (m Message) Validate() error {
	if _, err := mail.ParseAddress(m.To); err != nil {
		return ErrInvalidMessage
	}
	if m.Subject == "" || m.BodyHTML == "" {
		return ErrInvalidMessage
	}
	return nil
}

// Sender delivers transactional emails.
type Sender interface {
	Send(ctx context.Context, message Message) error
}
