// Package session owns one account's in-memory triage state: the latest sync
// result, the staged mutation engine, the selection coordinator, and the
// filter state the view composer runs under.
package session

import (
	"context"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/wesm/mailtriage/internal/gmail"
	"github.com/wesm/mailtriage/internal/model"
	"github.com/wesm/mailtriage/internal/selection"
	"github.com/wesm/mailtriage/internal/staged"
	"github.com/wesm/mailtriage/internal/sync"
	"github.com/wesm/mailtriage/internal/view"
)

// Syncer abstracts the sync aggregator for the session.
type Syncer interface {
	Sync(ctx context.Context) (*sync.Result, error)
}

// Session is the single writer for all triage state. Readers get value
// copies; mutation goes through its methods.
type Session struct {
	mu     stdsync.RWMutex
	logger *slog.Logger

	syncer     Syncer
	engine     *staged.Engine
	selection  *selection.Coordinator
	engineOpts []staged.Option
	remote     gmail.MessageWriter

	profile  model.Profile
	emails   []model.Email
	senders  []model.Sender
	filter   model.FilterState
	lastSync time.Time
	synced   bool

	undoMu stdsync.Mutex
	undo   map[string]*staged.UndoHandle

	subMu stdsync.Mutex
	subs  []chan struct{}
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithGracePeriod overrides the staged engine's undo window.
func WithGracePeriod(d time.Duration) Option {
	return func(s *Session) {
		s.engineOpts = append(s.engineOpts, staged.WithGracePeriod(d))
	}
}

// WithRemoteCommit wires committed staged actions to the remote modify call.
// Archive commits remove the inbox label; delete commits add the trash label.
// Remote failures are logged, never rolled back: local state stays
// authoritative for what the user sees.
func WithRemoteCommit(writer gmail.MessageWriter) Option {
	return func(s *Session) {
		s.remote = writer
	}
}

// New creates a session around a syncer.
func New(syncer Syncer, opts ...Option) *Session {
	s := &Session{
		logger: slog.Default(),
		syncer: syncer,
		filter: model.DefaultFilter(),
		undo:   make(map[string]*staged.UndoHandle),
	}
	for _, opt := range opts {
		opt(s)
	}

	engineOpts := append(s.engineOpts,
		staged.WithLogger(s.logger),
		staged.WithChangeFunc(s.publish),
	)
	if s.remote != nil {
		engineOpts = append(engineOpts, staged.WithCommitFunc(s.pushCommit))
	}
	s.engine = staged.NewEngine(engineOpts...)
	s.selection = selection.NewCoordinator(s.engine, selection.WithLogger(s.logger))
	return s
}

// Refresh runs one sync cycle and, on success, replaces the session's email
// and sender state wholesale. A failed cycle leaves the previous state
// untouched.
func (s *Session) Refresh(ctx context.Context) (*sync.Result, error) {
	result, err := s.syncer.Sync(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "sync cycle failed")
	}

	s.mu.Lock()
	s.profile = result.Profile
	s.emails = result.Emails
	s.senders = result.Senders
	s.lastSync = result.Started
	s.synced = true
	s.mu.Unlock()

	s.publish()
	return result, nil
}

// Synced reports whether at least one sync cycle has completed.
func (s *Session) Synced() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.synced
}

// LastSync returns when the most recent successful cycle started.
func (s *Session) LastSync() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync
}

// Profile returns the synced account profile.
func (s *Session) Profile() model.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// Senders returns the per-sender statistics from the latest cycle, noisiest
// first.
func (s *Session) Senders() []model.Sender {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Sender, len(s.senders))
	copy(out, s.senders)
	return out
}

// Filter returns the current filter state.
func (s *Session) Filter() model.FilterState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter
}

// SetFilter replaces the filter state.
func (s *Session) SetFilter(filter model.FilterState) {
	s.mu.Lock()
	s.filter = filter
	s.mu.Unlock()
	s.publish()
}

// Visible composes the currently visible message list from the latest sync
// results, the staged engine's snapshot, and the filter.
func (s *Session) Visible() []model.Email {
	s.mu.RLock()
	emails := s.emails
	filter := s.filter
	s.mu.RUnlock()

	return view.Compose(emails, s.engine.Snapshot(), filter)
}

// VisibleWith composes a view under an ad hoc filter without touching the
// session's stored filter state.
func (s *Session) VisibleWith(filter model.FilterState) []model.Email {
	s.mu.RLock()
	emails := s.emails
	s.mu.RUnlock()

	return view.Compose(emails, s.engine.Snapshot(), filter)
}

// VisibleIDs returns the visible ids in display order.
func (s *Session) VisibleIDs() []string {
	visible := s.Visible()
	ids := make([]string, len(visible))
	for i, e := range visible {
		ids[i] = e.ID
	}
	return ids
}

// Archive stages an archive for the id and tracks its undo handle.
func (s *Session) Archive(emailID string) *staged.UndoHandle {
	h := s.engine.StageArchive(emailID)
	s.trackUndo(emailID, h)
	return h
}

// Trash stages a delete for the id and tracks its undo handle.
func (s *Session) Trash(emailID string) *staged.UndoHandle {
	h := s.engine.StageDelete(emailID)
	s.trackUndo(emailID, h)
	return h
}

// ToggleStar flips the star for the id.
func (s *Session) ToggleStar(emailID string) bool {
	return s.engine.ToggleStar(emailID)
}

// Undo cancels the most recent staged action for the id, if it is still
// pending.
func (s *Session) Undo(emailID string) bool {
	s.undoMu.Lock()
	h, ok := s.undo[emailID]
	delete(s.undo, emailID)
	s.undoMu.Unlock()

	if !ok {
		return false
	}
	return h.Cancel()
}

// State reports the staged engine's lifecycle state for the id.
func (s *Session) State(emailID string) staged.State {
	return s.engine.StateOf(emailID)
}

// GracePeriod returns the undo window; UI countdowns bind to the handle
// deadline, which uses the same value.
func (s *Session) GracePeriod() time.Duration {
	return s.engine.GracePeriod()
}

// Selection exposes the selection coordinator.
func (s *Session) Selection() *selection.Coordinator {
	return s.selection
}

// SelectAllVisible selects exactly the ids currently visible.
func (s *Session) SelectAllVisible() {
	s.selection.SelectAll(s.VisibleIDs())
	s.publish()
}

// Dispatch applies a bulk command to the selection via the coordinator,
// tracking each staged action's undo handle.
func (s *Session) Dispatch(cmd selection.Command) {
	handles := s.selection.Dispatch(cmd)
	for id, h := range handles {
		s.trackUndo(id, h)
	}
	s.publish()
}

// Reset discards all local overlay state: staged actions, committed sets,
// selection, and tracked undo handles.
func (s *Session) Reset() {
	s.undoMu.Lock()
	s.undo = make(map[string]*staged.UndoHandle)
	s.undoMu.Unlock()

	s.selection.Clear()
	s.engine.Reset()
}

// Subscribe returns a channel that receives a signal after every state
// change. The channel has capacity 1 and notifications coalesce; slow
// consumers never block the session.
func (s *Session) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.subMu.Lock()
	s.subs = append(s.subs, ch)
	s.subMu.Unlock()
	return ch
}

func (s *Session) publish() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *Session) trackUndo(emailID string, h *staged.UndoHandle) {
	s.undoMu.Lock()
	s.undo[emailID] = h
	s.undoMu.Unlock()
}

// pushCommit propagates a committed staged action to the remote mailbox.
func (s *Session) pushCommit(emailID string, kind staged.Kind) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	switch kind {
	case staged.KindArchive:
		err = s.remote.ModifyMessage(ctx, emailID, nil, []string{model.LabelInbox})
	case staged.KindDelete:
		err = s.remote.ModifyMessage(ctx, emailID, []string{model.LabelTrash}, nil)
	}
	if err != nil {
		// Local state stays committed; log for reconciliation.
		s.logger.Error("remote commit failed",
			"id", emailID,
			"kind", kind.String(),
			"error", eris.ToString(eris.Wrap(err, "modify message"), false))
	}
}
