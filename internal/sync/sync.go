// Package sync implements the sync aggregator: it fetches a bounded window of
// inbox messages from the remote mailbox API, normalizes them into Email
// records, and derives per-sender statistics.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wesm/mailtriage/internal/gmail"
	"github.com/wesm/mailtriage/internal/model"
)

// Progress reports incremental sync progress to the caller.
type Progress interface {
	// OnStart is called once the message list is known, with the number of
	// messages that will be fetched this cycle.
	OnStart(total int)

	// OnMessage is called after each message fetch.
	OnMessage(current, total int)

	// OnComplete is called when the cycle finishes successfully.
	OnComplete(r *Result)

	// OnError is called when the cycle aborts.
	OnError(err error)
}

// NullProgress is a no-op progress reporter.
type NullProgress struct{}

func (NullProgress) OnStart(total int)            {}
func (NullProgress) OnMessage(current, total int) {}
func (NullProgress) OnComplete(r *Result)         {}
func (NullProgress) OnError(err error)            {}

// Options configures sync behavior.
type Options struct {
	// Query scopes the message listing (default: "in:inbox").
	Query string

	// PageSize bounds the id listing (default: 100).
	PageSize int

	// FetchCap bounds how many full messages are fetched per cycle
	// (default: 50). Exceeding the cap is not an error; the cycle is
	// reported as truncated.
	FetchCap int
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() *Options {
	return &Options{
		Query:    "in:inbox",
		PageSize: 100,
		FetchCap: 50,
	}
}

// Result is the outcome of one sync cycle. Either the cycle fully replaces
// the caller's Email/Sender state or it doesn't; partial results are never
// returned.
type Result struct {
	Profile   model.Profile
	Emails    []model.Email
	Senders   []model.Sender
	Listed    int  // ids returned by the listing
	Fetched   int  // full messages fetched
	Truncated bool // the fetch cap cut the cycle short
	Started   time.Time
	Duration  time.Duration
}

// Reader is the subset of the remote API the aggregator needs.
type Reader interface {
	gmail.ProfileReader
	gmail.MessageReader
}

// Syncer performs mailbox synchronization cycles.
type Syncer struct {
	client   Reader
	logger   *slog.Logger
	progress Progress
	opts     *Options
}

// New creates a new Syncer.
func New(client Reader, opts *Options) *Syncer {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Query == "" {
		opts.Query = "in:inbox"
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	if opts.FetchCap <= 0 {
		opts.FetchCap = 50
	}

	return &Syncer{
		client:   client,
		logger:   slog.Default(),
		progress: NullProgress{},
		opts:     opts,
	}
}

// WithLogger sets the logger.
func (s *Syncer) WithLogger(logger *slog.Logger) *Syncer {
	s.logger = logger
	return s
}

// WithProgress sets the progress reporter.
func (s *Syncer) WithProgress(p Progress) *Syncer {
	s.progress = p
	return s
}

// Sync runs one full cycle: profile, id listing, bounded per-message fetch,
// normalization, and sender aggregation. The first error aborts the cycle.
func (s *Syncer) Sync(ctx context.Context) (*Result, error) {
	started := time.Now()

	profile, err := s.client.GetProfile(ctx)
	if err != nil {
		s.progress.OnError(err)
		return nil, fmt.Errorf("get profile: %w", err)
	}

	list, err := s.client.ListMessages(ctx, s.opts.Query, s.opts.PageSize, "")
	if err != nil {
		s.progress.OnError(err)
		return nil, fmt.Errorf("list messages: %w", err)
	}

	refs := list.Messages
	truncated := false
	if len(refs) > s.opts.FetchCap {
		refs = refs[:s.opts.FetchCap]
		truncated = true
	}

	s.progress.OnStart(len(refs))

	emails := make([]model.Email, 0, len(refs))
	for i, ref := range refs {
		msg, err := s.client.GetMessage(ctx, ref.ID)
		if err != nil {
			s.progress.OnError(err)
			return nil, fmt.Errorf("fetch message %s: %w", ref.ID, err)
		}

		email := normalizeMessage(msg)
		if email.ThreadID == "" {
			email.ThreadID = ref.ThreadID
		}
		emails = append(emails, email)

		s.progress.OnMessage(i+1, len(refs))
	}

	senders := aggregateSenders(emails)

	result := &Result{
		Profile: model.Profile{
			EmailAddress:  profile.EmailAddress,
			MessagesTotal: profile.MessagesTotal,
			ThreadsTotal:  profile.ThreadsTotal,
		},
		Emails:    emails,
		Senders:   senders,
		Listed:    len(list.Messages),
		Fetched:   len(emails),
		Truncated: truncated,
		Started:   started,
		Duration:  time.Since(started),
	}

	s.logger.Info("sync complete",
		"account", profile.EmailAddress,
		"listed", result.Listed,
		"fetched", result.Fetched,
		"senders", len(senders),
		"truncated", truncated,
		"duration", result.Duration)

	s.progress.OnComplete(result)
	return result, nil
}
