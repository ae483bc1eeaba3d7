// Package gmail provides a remote mailbox API client with rate limiting,
// retry logic, and a typed error taxonomy.
package gmail

import (
	"context"
	"strings"
)

// ProfileReader provides read access to the account profile.
type ProfileReader interface {
	// GetProfile returns the authenticated user's profile.
	GetProfile(ctx context.Context) (*Profile, error)
}

// MessageReader provides read access to messages.
type MessageReader interface {
	// ListMessages returns up to maxResults message IDs matching the query.
	// Use pageToken for pagination.
	ListMessages(ctx context.Context, query string, maxResults int, pageToken string) (*MessageList, error)

	// GetMessage fetches a single message in full format (headers, labels,
	// size estimate, internal timestamp, body part metadata).
	GetMessage(ctx context.Context, messageID string) (*Message, error)
}

// MessageWriter provides label mutations on messages.
type MessageWriter interface {
	// ModifyMessage adds and removes labels on a message.
	ModifyMessage(ctx context.Context, messageID string, addLabels, removeLabels []string) error
}

// API defines the full remote mailbox interface.
// This interface enables mocking for tests without hitting the real API.
type API interface {
	ProfileReader
	MessageReader
	MessageWriter

	// Close releases any resources held by the client.
	Close() error
}

// Profile represents a mailbox user profile.
type Profile struct {
	EmailAddress  string
	MessagesTotal int64
	ThreadsTotal  int64
}

// MessageRef is a message reference from list operations.
type MessageRef struct {
	ID       string
	ThreadID string
}

// MessageList contains a page of message references.
type MessageList struct {
	Messages           []MessageRef
	NextPageToken      string
	ResultSizeEstimate int64
}

// Header is a single message header.
type Header struct {
	Name  string
	Value string
}

// Part is a message body part. Only structural metadata is carried; body
// content stays server-side.
type Part struct {
	MIMEType string
	Filename string
	Parts    []Part
}

// Message is a full-format message: headers, label set, size estimate,
// internal timestamp, and body part structure.
type Message struct {
	ID           string
	ThreadID     string
	LabelIDs     []string
	Snippet      string
	InternalDate int64 // Unix milliseconds
	SizeEstimate int64
	Headers      []Header
	Payload      Part
}

// HeaderValue returns the value of the first header matching name,
// case-insensitively. Returns "" if absent.
func (m *Message) HeaderValue(name string) string {
	for _, h := range m.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}
