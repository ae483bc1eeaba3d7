package gmail

import (
	"context"
	"sync"
)

// ModifyCall records one ModifyMessage invocation for assertions.
type ModifyCall struct {
	MessageID    string
	AddLabels    []string
	RemoveLabels []string
}

// MockAPI is an in-memory implementation of the remote mailbox API for tests.
type MockAPI struct {
	mu sync.Mutex

	// Profile to return
	Profile *Profile

	// Messages indexed by ID
	Messages map[string]*Message

	// ListOrder fixes the order ListMessages returns IDs in. When empty,
	// messages are returned in unspecified map order.
	ListOrder []string

	// Error injection
	ProfileError      error
	ListMessagesError error
	GetMessageError   map[string]error // per-message errors
	ModifyError       error

	// Call tracking for assertions
	ProfileCalls      int
	ListMessagesCalls int
	LastQuery         string
	LastMaxResults    int
	GetMessageCalls   []string
	ModifyCalls       []ModifyCall
}

// NewMockAPI creates a new mock API with empty state.
func NewMockAPI() *MockAPI {
	return &MockAPI{
		Messages:        make(map[string]*Message),
		GetMessageError: make(map[string]error),
	}
}

// GetProfile returns the mock profile.
func (m *MockAPI) GetProfile(ctx context.Context) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ProfileCalls++

	if m.ProfileError != nil {
		return nil, m.ProfileError
	}
	if m.Profile == nil {
		return &Profile{
			EmailAddress:  "test@example.com",
			MessagesTotal: int64(len(m.Messages)),
		}, nil
	}
	return m.Profile, nil
}

// ListMessages returns mock message references, truncated to maxResults.
func (m *MockAPI) ListMessages(ctx context.Context, query string, maxResults int, pageToken string) (*MessageList, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListMessagesCalls++
	m.LastQuery = query
	m.LastMaxResults = maxResults

	if m.ListMessagesError != nil {
		return nil, m.ListMessagesError
	}

	ids := m.ListOrder
	if len(ids) == 0 {
		for id := range m.Messages {
			ids = append(ids, id)
		}
	}

	var refs []MessageRef
	for _, id := range ids {
		if maxResults > 0 && len(refs) >= maxResults {
			break
		}
		threadID := "thread_" + id
		if msg, ok := m.Messages[id]; ok && msg.ThreadID != "" {
			threadID = msg.ThreadID
		}
		refs = append(refs, MessageRef{ID: id, ThreadID: threadID})
	}

	return &MessageList{
		Messages:           refs,
		ResultSizeEstimate: int64(len(ids)),
	}, nil
}

// GetMessage returns a mock message.
func (m *MockAPI) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetMessageCalls = append(m.GetMessageCalls, messageID)

	if err, ok := m.GetMessageError[messageID]; ok && err != nil {
		return nil, err
	}

	msg, ok := m.Messages[messageID]
	if !ok {
		return nil, &NotFoundError{Path: "/messages/" + messageID}
	}
	return msg, nil
}

// ModifyMessage records a modify call.
func (m *MockAPI) ModifyMessage(ctx context.Context, messageID string, addLabels, removeLabels []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ModifyError != nil {
		return m.ModifyError
	}
	if _, ok := m.Messages[messageID]; !ok {
		return &NotFoundError{Path: "/messages/" + messageID}
	}

	m.ModifyCalls = append(m.ModifyCalls, ModifyCall{
		MessageID:    messageID,
		AddLabels:    addLabels,
		RemoveLabels: removeLabels,
	})
	return nil
}

// ModifyCallsSnapshot returns a copy of the recorded modify calls. Safe to
// call while other goroutines are still invoking ModifyMessage.
func (m *MockAPI) ModifyCallsSnapshot() []ModifyCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ModifyCall, len(m.ModifyCalls))
	copy(out, m.ModifyCalls)
	return out
}

// Close is a no-op for the mock.
func (m *MockAPI) Close() error {
	return nil
}

// AddMessage adds a message to the mock store with sensible defaults and
// records its position in the list order.
func (m *MockAPI) AddMessage(msg *Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if msg.ThreadID == "" {
		msg.ThreadID = "thread_" + msg.ID
	}
	if msg.InternalDate == 0 {
		msg.InternalDate = 1704067200000 // 2024-01-01 00:00:00 UTC
	}
	if _, exists := m.Messages[msg.ID]; !exists {
		m.ListOrder = append(m.ListOrder, msg.ID)
	}
	m.Messages[msg.ID] = msg
}

// SimpleMessage builds a minimal full-format message for tests.
func SimpleMessage(id, from, subject string, labels ...string) *Message {
	return &Message{
		ID:           id,
		LabelIDs:     labels,
		Snippet:      subject,
		SizeEstimate: 1024,
		Headers: []Header{
			{Name: "From", Value: from},
			{Name: "To", Value: "me@example.com"},
			{Name: "Subject", Value: subject},
		},
		Payload: Part{MIMEType: "text/plain"},
	}
}

// Reset clears all state and call tracking.
func (m *MockAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Messages = make(map[string]*Message)
	m.ListOrder = nil
	m.GetMessageError = make(map[string]error)

	m.ProfileCalls = 0
	m.ListMessagesCalls = 0
	m.LastQuery = ""
	m.LastMaxResults = 0
	m.GetMessageCalls = nil
	m.ModifyCalls = nil
}

// Ensure MockAPI implements API interface.
var _ API = (*MockAPI)(nil)
