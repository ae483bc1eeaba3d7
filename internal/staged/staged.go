// Package staged implements the staged mutation engine: provisional,
// individually cancellable archive/delete actions that commit after a grace
// period, plus the committed archived/trashed/starred sets.
package staged

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultGracePeriod is how long a staged action can be undone before it
// commits.
const DefaultGracePeriod = 5 * time.Second

// Kind is the kind of a staged action.
type Kind int

const (
	KindArchive Kind = iota + 1
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindArchive:
		return "archive"
	case KindDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// State is the lifecycle state of a message id within the engine.
type State int

const (
	StateActive State = iota
	StatePendingArchive
	StatePendingDelete
	StateArchived
	StateTrashed
)

func (s State) String() string {
	switch s {
	case StatePendingArchive:
		return "pending_archive"
	case StatePendingDelete:
		return "pending_delete"
	case StateArchived:
		return "archived"
	case StateTrashed:
		return "trashed"
	default:
		return "active"
	}
}

// pendingAction is one mid-grace-period action. Each owns exactly one timer,
// keyed by email id in the engine's pending map.
type pendingAction struct {
	emailID        string
	kind           Kind
	createdAt      time.Time
	commitDeadline time.Time
	timer          *time.Timer
}

// UndoHandle cancels a specific staged action. Cancel is idempotent and safe
// to race against the scheduled commit: whichever runs first wins and the
// loser is a no-op.
type UndoHandle struct {
	engine *Engine
	action *pendingAction
}

// Cancel reverts the action's id to Active if the action has not committed
// yet. Returns true if the action was actually cancelled.
func (h *UndoHandle) Cancel() bool {
	if h == nil || h.engine == nil {
		return false
	}
	return h.engine.cancel(h.action)
}

// Deadline returns the moment the action commits unless cancelled. UI
// countdowns must bind to this value so engine and presentation never
// disagree about when the commit fires.
func (h *UndoHandle) Deadline() time.Time {
	return h.action.commitDeadline
}

// Kind returns the staged action's kind.
func (h *UndoHandle) Kind() Kind {
	return h.action.kind
}

// CommitFunc is invoked after a staged action commits, outside the engine
// lock. Deployments use it to propagate the change to the remote mailbox.
type CommitFunc func(emailID string, kind Kind)

// Snapshot is a value copy of the engine's sets, safe to hand to the view
// composer while the engine keeps mutating.
type Snapshot struct {
	Archived       map[string]bool
	Trashed        map[string]bool
	Starred        map[string]bool
	PendingArchive map[string]bool
	PendingDelete  map[string]bool
}

// Engine owns the committed sets and the pending-action map. All mutation
// goes through its methods; consumers only ever see snapshots.
type Engine struct {
	mu       sync.Mutex
	grace    time.Duration
	logger   *slog.Logger
	pending  map[string]*pendingAction
	archived map[string]bool
	trashed  map[string]bool
	starred  map[string]bool

	onCommit CommitFunc
	onChange func()
}

// Option configures an Engine.
type Option func(*Engine)

// WithGracePeriod overrides the undo grace period.
func WithGracePeriod(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.grace = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithCommitFunc registers a hook invoked after each commit.
func WithCommitFunc(fn CommitFunc) Option {
	return func(e *Engine) {
		e.onCommit = fn
	}
}

// WithChangeFunc registers a hook invoked after every state change
// (stage, cancel, commit, star toggle, reset).
func WithChangeFunc(fn func()) Option {
	return func(e *Engine) {
		e.onChange = fn
	}
}

// NewEngine creates an engine with empty sets.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		grace:    DefaultGracePeriod,
		logger:   slog.Default(),
		pending:  make(map[string]*pendingAction),
		archived: make(map[string]bool),
		trashed:  make(map[string]bool),
		starred:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GracePeriod returns the configured undo window.
func (e *Engine) GracePeriod() time.Duration {
	return e.grace
}

// StageArchive provisionally archives the id. Any existing pending action for
// the id is cancelled first, restarting the grace period. The id disappears
// from active-inbox views immediately even though the commit has not fired.
func (e *Engine) StageArchive(emailID string) *UndoHandle {
	return e.stage(emailID, KindArchive)
}

// StageDelete provisionally trashes the id. Symmetric to StageArchive.
func (e *Engine) StageDelete(emailID string) *UndoHandle {
	return e.stage(emailID, KindDelete)
}

func (e *Engine) stage(emailID string, kind Kind) *UndoHandle {
	e.mu.Lock()

	// One pending action per id: replace any existing one.
	if prev, ok := e.pending[emailID]; ok {
		prev.timer.Stop()
		delete(e.pending, emailID)
	}

	// An id never sits in a committed set while the opposite action is
	// staged for it.
	switch kind {
	case KindArchive:
		delete(e.trashed, emailID)
	case KindDelete:
		delete(e.archived, emailID)
	}

	now := time.Now()
	action := &pendingAction{
		emailID:        emailID,
		kind:           kind,
		createdAt:      now,
		commitDeadline: now.Add(e.grace),
	}
	action.timer = time.AfterFunc(e.grace, func() {
		e.commit(action)
	})
	e.pending[emailID] = action

	e.mu.Unlock()

	e.logger.Debug("staged action", "id", emailID, "kind", kind.String(), "deadline", action.commitDeadline)
	e.notify()

	return &UndoHandle{engine: e, action: action}
}

// commit is fired by the action's timer. It only takes effect if the action
// is still the registered pending action for its id; a concurrent cancel or
// restage makes it a no-op.
func (e *Engine) commit(action *pendingAction) {
	e.mu.Lock()

	current, ok := e.pending[action.emailID]
	if !ok || current != action {
		e.mu.Unlock()
		return
	}
	delete(e.pending, action.emailID)

	// An id lives in at most one committed set.
	switch action.kind {
	case KindArchive:
		delete(e.trashed, action.emailID)
		e.archived[action.emailID] = true
	case KindDelete:
		delete(e.archived, action.emailID)
		e.trashed[action.emailID] = true
	}

	onCommit := e.onCommit
	e.mu.Unlock()

	e.logger.Debug("committed action", "id", action.emailID, "kind", action.kind.String())

	if onCommit != nil {
		onCommit(action.emailID, action.kind)
	}
	e.notify()
}

// cancel reverts a specific action. Returns false if the action already
// committed or was replaced.
func (e *Engine) cancel(action *pendingAction) bool {
	e.mu.Lock()

	current, ok := e.pending[action.emailID]
	if !ok || current != action {
		e.mu.Unlock()
		return false
	}
	action.timer.Stop()
	delete(e.pending, action.emailID)

	e.mu.Unlock()

	e.logger.Debug("cancelled action", "id", action.emailID, "kind", action.kind.String())
	e.notify()
	return true
}

// Undo cancels whatever pending action the id currently has.
// Returns false if there is none.
func (e *Engine) Undo(emailID string) bool {
	e.mu.Lock()
	action, ok := e.pending[emailID]
	e.mu.Unlock()
	if !ok {
		return false
	}
	return e.cancel(action)
}

// ToggleStar flips starred membership for the id. No grace period.
func (e *Engine) ToggleStar(emailID string) bool {
	e.mu.Lock()
	if e.starred[emailID] {
		delete(e.starred, emailID)
	} else {
		e.starred[emailID] = true
	}
	starred := e.starred[emailID]
	e.mu.Unlock()

	e.notify()
	return starred
}

// StateOf reports the id's lifecycle state. Ids the engine has never seen
// are Active.
func (e *Engine) StateOf(emailID string) State {
	e.mu.Lock()
	defer e.mu.Unlock()

	if action, ok := e.pending[emailID]; ok {
		if action.kind == KindDelete {
			return StatePendingDelete
		}
		return StatePendingArchive
	}
	if e.trashed[emailID] {
		return StateTrashed
	}
	if e.archived[emailID] {
		return StateArchived
	}
	return StateActive
}

// IsStarred reports starred membership.
func (e *Engine) IsStarred(emailID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.starred[emailID]
}

// PendingCount returns the number of mid-grace-period actions.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Snapshot returns value copies of all sets.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{
		Archived:       copySet(e.archived),
		Trashed:        copySet(e.trashed),
		Starred:        copySet(e.starred),
		PendingArchive: make(map[string]bool),
		PendingDelete:  make(map[string]bool),
	}
	for id, action := range e.pending {
		if action.kind == KindDelete {
			snap.PendingDelete[id] = true
		} else {
			snap.PendingArchive[id] = true
		}
	}
	return snap
}

// Reset cancels all pending actions and clears all committed sets. Used when
// the surrounding session discards its local overlay state.
func (e *Engine) Reset() {
	e.mu.Lock()
	for _, action := range e.pending {
		action.timer.Stop()
	}
	e.pending = make(map[string]*pendingAction)
	e.archived = make(map[string]bool)
	e.trashed = make(map[string]bool)
	e.starred = make(map[string]bool)
	e.mu.Unlock()

	e.notify()
}

func (e *Engine) notify() {
	if e.onChange != nil {
		e.onChange()
	}
}

func copySet(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k := range m {
		out[k] = true
	}
	return out
}
