package sync

import (
	"strings"
	"time"

	"github.com/wesm/mailtriage/internal/gmail"
	"github.com/wesm/mailtriage/internal/model"
)

// Provider category labels mapped to short category names.
var categoryLabels = map[string]string{
	"CATEGORY_PERSONAL":   "personal",
	"CATEGORY_SOCIAL":     "social",
	"CATEGORY_PROMOTIONS": "promotions",
	"CATEGORY_UPDATES":    "updates",
	"CATEGORY_FORUMS":     "forums",
}

// normalizeMessage converts a full-format API message into an Email record.
func normalizeMessage(msg *gmail.Message) model.Email {
	email := model.Email{
		ID:            msg.ID,
		ThreadID:      msg.ThreadID,
		From:          msg.HeaderValue("From"),
		To:            msg.HeaderValue("To"),
		Subject:       msg.HeaderValue("Subject"),
		Snippet:       msg.Snippet,
		SizeEstimate:  msg.SizeEstimate,
		Labels:        append([]string(nil), msg.LabelIDs...),
		IsRead:        true,
		HasAttachment: hasAttachmentPart(msg.Payload),
	}

	if msg.InternalDate > 0 {
		email.Timestamp = time.UnixMilli(msg.InternalDate).UTC()
	}

	for _, label := range msg.LabelIDs {
		switch {
		case label == model.LabelUnread:
			email.IsRead = false
		case label == model.LabelImportant:
			email.Priority = "high"
		default:
			if cat, ok := categoryLabels[label]; ok {
				email.Category = cat
			}
		}
	}

	return email
}

// hasAttachmentPart walks the part tree looking for image/* or application/*
// content.
func hasAttachmentPart(p gmail.Part) bool {
	for _, child := range p.Parts {
		if isAttachmentType(child.MIMEType) || hasAttachmentPart(child) {
			return true
		}
	}
	return false
}

func isAttachmentType(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/") || strings.HasPrefix(mimeType, "application/")
}

// extractAddress pulls the bare address out of a "Display Name <addr>" header
// value, falling back to the raw string. The result is lowercased for use as
// an aggregation key.
func extractAddress(from string) string {
	if start := strings.LastIndex(from, "<"); start >= 0 {
		if end := strings.Index(from[start:], ">"); end > 1 {
			return strings.ToLower(strings.TrimSpace(from[start+1 : start+end]))
		}
	}
	return strings.ToLower(strings.TrimSpace(from))
}

// extractDisplayName returns the display-name portion of a From header,
// or "" when the header is a bare address.
func extractDisplayName(from string) string {
	if idx := strings.LastIndex(from, "<"); idx > 0 {
		return strings.Trim(strings.TrimSpace(from[:idx]), `"`)
	}
	return ""
}
