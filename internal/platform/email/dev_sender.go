// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

package email

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// DevSender implements [Sender] for local development.
// It saves emails as HTML and JSON files to a directory instead of
// sending them through an email service.
type DevSender struct {
	dir string
}

// NewDevSender creates a development email sender that saves emails to disk.
// The directory is created on first send if it doesn't exist.
func NewDevSender(dir string) *DevSender {
	return &DevSender{dir: dir}
}

// devMetadata is the sidecar JSON saved next to each HTML body.
type devMetadata struct {
	Timestamp string `json:"timestamp"`
	SendTo    string `json:"send_to"`
	Subject   string `json:"subject"`
	Tag       string `json:"tag,omitempty"`
}

// Send saves the message as HTML and metadata as JSON to the configured directory.
func (d *DevSender) Send(_ context.Context, message Message) error {
	if err := message.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("email: failed to create dev directory: %w", err)
	}

	// Timestamp-based filename keeps the directory chronologically ordered.
	now := time.Now()
	identifier := message.Tag
	if identifier == "" {
		identifier = message.Subject
	}
	baseFilename := fmt.Sprintf("%s_%s", now.Format("2006_01_02_150405"), sanitizeFilename(identifier))

	htmlPath := filepath.Join(d.dir, baseFilename+".html")
	if err := os.WriteFile(htmlPath, []byte(message.BodyHTML), 0o644); err != nil {
		return fmt.Errorf("email: failed to write HTML file: %w", err)
	}

	metadata, err := json.MarshalIndent(devMetadata{
		Timestamp: now.Format(time.RFC3339),
		SendTo:    message.To,
		Subject:   message.Subject,
		Tag:       message.Tag,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("email: failed to marshal metadata: %w", err)
	}

	jsonPath := filepath.Join(d.dir, baseFilename+".json")
	if err := os.WriteFile(jsonPath, metadata, 0o644); err != nil {
		return fmt.Errorf("email: failed to write JSON file: %w", err)
	}

	return nil
}

// sanitizeRegex removes filesystem-unsafe characters from filenames.
var sanitizeRegex = regexp.MustCompile(`[^a-zA-Z0-9\-_.]`)

// sanitizeFilename converts an arbitrary identifier into a safe filename.
func sanitizeFilename(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = sanitizeRegex.ReplaceAllString(s, "")

	const maxLength = 100
	if len(s) > maxLength {
		s = s[:maxLength]
	}

	if s == "" {
		s = "email"
	}

	return strings.ToLower(s)
}
