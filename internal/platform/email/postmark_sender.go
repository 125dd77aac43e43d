// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

package email

import (
	"context"
	"fmt"

	"github.com/mrz1836/postmark"
)

// PostmarkSender implements [Sender] using the Postmark transactional API.
type PostmarkSender struct {
	client *postmark.Client
	from   string
}

// NewPostmarkSender creates a production email sender.
//
// # Parameters
//   - serverToken: Postmark server API token.
//   - from: Verified sender signature address.
func NewPostmarkSender(serverToken, from string) *PostmarkSender {
	return &PostmarkSender{
		client: postmark.NewClient(serverToken, ""),
		from:   from,
	}
}

// Send delivers the message through Postmark.
func (s *PostmarkSender) Send(ctx context.Context, message Message) error {
	if err := message.Validate(); err != nil {
		return err
	}

	response, err := s.client.SendEmail(ctx, postmark.Email{
		From:     s.from,
		To:       message.To,
		Subject:  message.Subject,
		HTMLBody: message.BodyHTML,
		Tag:      message.Tag,
	})
	if err != nil {
		return fmt.Errorf("email: postmark send failed: %w", err)
	}

	// Postmark signals per-message rejection via ErrorCode, not the transport error.
	if response.ErrorCode != 0 {
		return fmt.Errorf("email: postmark rejected message (code %d): %s", response.ErrorCode, response.Message)
	}

	return nil
}
