// Package model defines the domain types shared across the triage engine:
// normalized emails, per-sender aggregates, and the filter state that drives
// the composed view.
package model

import "time"

// Provider label IDs used by the triage engine. These match the system
// label identifiers returned by the remote mailbox API.
const (
	LabelInbox     = "INBOX"
	LabelUnread    = "UNREAD"
	LabelStarred   = "STARRED"
	LabelImportant = "IMPORTANT"
	LabelSent      = "SENT"
	LabelTrash     = "TRASH"
)

// Profile identifies the authenticated mailbox.
type Profile struct {
	EmailAddress  string `json:"email_address"`
	MessagesTotal int64  `json:"messages_total"`
	ThreadsTotal  int64  `json:"threads_total"`
}

// Email is a normalized message produced by a sync cycle. Instances are
// immutable once built; a fresh sync replaces the whole collection.
type Email struct {
	ID            string    `json:"id"`
	ThreadID      string    `json:"thread_id"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	Subject       string    `json:"subject"`
	Snippet       string    `json:"snippet"`
	Timestamp     time.Time `json:"timestamp"`
	IsRead        bool      `json:"is_read"`
	SizeEstimate  int64     `json:"size_bytes"`
	HasAttachment bool      `json:"has_attachment"`
	Labels        []string  `json:"labels"`
	Category      string    `json:"category,omitempty"`
	Priority      string    `json:"priority,omitempty"`
}

// HasLabel reports whether the provider label set contains the given label ID.
func (e *Email) HasLabel(label string) bool {
	for _, l := range e.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// Sender aggregates statistics for one normalized sender address.
// Sender collections are rebuilt entirely on each sync, never patched.
type Sender struct {
	Email          string    `json:"email"`
	Name           string    `json:"name,omitempty"`
	TotalEmails    int       `json:"total_emails"`
	AverageSize    float64   `json:"average_size_bytes"`
	FirstSeen      time.Time `json:"first_seen"`
	LastSeen       time.Time `json:"last_seen"`
	EngagementRate float64   `json:"engagement_rate"` // percent of messages read
	NoiseScore     float64   `json:"noise_score"`     // 0-10
	IsMarketing    bool      `json:"is_marketing"`
	IsNewsletter   bool      `json:"is_newsletter"`
	CanUnsubscribe bool      `json:"can_unsubscribe"`
}

// Folder is the primary facet of the composed view.
type Folder string

const (
	FolderInbox     Folder = "inbox"
	FolderUnread    Folder = "unread"
	FolderStarred   Folder = "starred"
	FolderImportant Folder = "important"
)

// ActiveFilter is the secondary facet applied on top of the folder.
type ActiveFilter string

const (
	FilterAll      ActiveFilter = "all"
	FilterUnread   ActiveFilter = "unread"
	FilterStarred  ActiveFilter = "starred"
	FilterArchived ActiveFilter = "archived"
	FilterSent     ActiveFilter = "sent"
	FilterTrash    ActiveFilter = "trash"
)

// DetailActionRequired is the folder-detail scope selecting messages that
// need a response (priority flag or urgent-sounding subject).
const DetailActionRequired = "action_required"

// FilterState selects which slice of the mailbox the composed view shows.
type FilterState struct {
	Folder       Folder       `json:"folder"`
	ActiveFilter ActiveFilter `json:"active_filter"`
	SearchQuery  string       `json:"search_query,omitempty"`
	FolderDetail string       `json:"folder_detail,omitempty"` // category name or DetailActionRequired
}

// DefaultFilter returns the filter state for the default inbox view.
func DefaultFilter() FilterState {
	return FilterState{Folder: FolderInbox, ActiveFilter: FilterAll}
}
