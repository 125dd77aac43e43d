// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

package event

import (
	"context"
	"fmt"
	"reflect"

	"github.com/dashtam/dashtam/internal/platform/email"
)

// EmailHandler dispatches transactional notifications for SUCCEEDED events
// that declare requires_email. Delivery failures are returned to the bus
// and logged there; they never block the workflow that published the event.
type EmailHandler struct {
	sender  email.Sender
	baseURL string
}

// NewEmailHandler creates the email sink.
//
// # Parameters
//   - sender: Delivery backend (Postmark in production, file sink in dev).
//   - baseURL: Public origin for links, e.g. "https://app.dashtam.app".
func NewEmailHandler(sender email.Sender, baseURL string) *EmailHandler {
	return &EmailHandler{sender: sender, baseURL: baseURL}
}

// Supports reports whether the handler composes a message for the type.
func (handler *EmailHandler) Supports(eventType reflect.Type) bool {
	zero, ok := reflect.New(eventType).Elem().Interface().(Event)
	if !ok {
		return false
	}
	_, composed := handler.compose(zero)
	return composed
}

// Handle sends the notification for the event, if one is defined.
func (handler *EmailHandler) Handle(ctx context.Context, e Event, _ Publication) error {
	entry, ok := Lookup(e)
	if !ok || !entry.RequiresEmail {
		return fmt.Errorf("event_email_unregistered_type: %T", e)
	}

	message, ok := handler.compose(e)
	if !ok {
		return fmt.Errorf("event_email_unmapped_type: %T", e)
	}

	if err := handler.sender.Send(ctx, message); err != nil {
		return fmt.Errorf("event_email_send_failed: %w", err)
	}

	return nil
}

// compose builds the outbound message for each mail-bearing event.
func (handler *EmailHandler) compose(e Event) (email.Message, bool) {
	switch ev := e.(type) {

	case UserRegistered:
		link := handler.baseURL + "/verify-email?token=" + ev.VerificationToken
		return email.Message{
			To:      ev.Email,
			Subject: "Verify your Dashtam email",
			BodyHTML: "<p>Welcome to Dashtam!</p>" +
				"<p>Confirm your email address within 24 hours:</p>" +
				fmt.Sprintf(`<p><a href="%s">Verify email</a></p>`, link),
			Tag: "email_verification",
		}, true

	case PasswordResetRequested:
		link := handler.baseURL + "/reset-password?token=" + ev.ResetToken
		return email.Message{
			To:      ev.Email,
			Subject: "Reset your Dashtam password",
			BodyHTML: "<p>A password reset was requested for your account.</p>" +
				"<p>The link below expires in 15 minutes. If you did not request this, ignore this email.</p>" +
				fmt.Sprintf(`<p><a href="%s">Reset password</a></p>`, link),
			Tag: "password_reset",
		}, true

	case PasswordResetCompleted:
		return passwordChangedMessage(ev.Email), true

	case PasswordChanged:
		return passwordChangedMessage(ev.Email), true

	case ProviderConnected:
		return email.Message{
			To:      ev.Email,
			Subject: "New institution connected to Dashtam",
			BodyHTML: fmt.Sprintf("<p><strong>%s</strong> was connected to your Dashtam account.</p>", ev.ProviderName) +
				"<p>If this wasn't you, disconnect it and change your password immediately.</p>",
			Tag: "provider_connected",
		}, true

	default:
		return email.Message{}, false
	}
}

// passwordChangedMessage is shared by the change and reset-confirm flows.
func passwordChangedMessage(to string) email.Message {
	return email.Message{
		To:      to,
		Subject: "Your Dashtam password was changed",
		BodyHTML: "<p>The password on your Dashtam account was just changed and all active " +
			"sessions were signed out.</p>" +
			"<p>If this wasn't you, reset your password immediately.</p>",
		Tag: "password_changed",
	}
}
