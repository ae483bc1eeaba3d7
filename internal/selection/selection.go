// Package selection implements multi-select state and bulk-command dispatch
// into the staged mutation engine.
package selection

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/wesm/mailtriage/internal/staged"
)

// Command is a bulk operation over the current selection. The set is closed;
// Dispatch matches exhaustively.
type Command int

const (
	CommandArchive Command = iota + 1
	CommandDelete
	CommandMarkRead
	CommandMove
)

func (c Command) String() string {
	switch c {
	case CommandArchive:
		return "archive"
	case CommandDelete:
		return "delete"
	case CommandMarkRead:
		return "mark_read"
	case CommandMove:
		return "move"
	default:
		return "unknown"
	}
}

// Stager is the slice of the staged engine the coordinator drives.
type Stager interface {
	StageArchive(emailID string) *staged.UndoHandle
	StageDelete(emailID string) *staged.UndoHandle
}

// ExternalFunc handles commands the staged engine does not own (mark-read,
// move). Deployments wire it to the remote modify call; nil means no-op.
type ExternalFunc func(cmd Command, emailIDs []string)

// Coordinator tracks the selected id set. Selection mode is derived: it is
// active exactly while the set is non-empty.
type Coordinator struct {
	mu       sync.Mutex
	engine   Stager
	logger   *slog.Logger
	selected map[string]bool
	order    []string
	external ExternalFunc
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithExternalFunc wires the handler for mark-read and move commands.
func WithExternalFunc(fn ExternalFunc) Option {
	return func(c *Coordinator) {
		c.external = fn
	}
}

// NewCoordinator creates a coordinator with an empty selection.
func NewCoordinator(engine Stager, opts ...Option) *Coordinator {
	c := &Coordinator{
		engine:   engine,
		logger:   slog.Default(),
		selected: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Toggle flips membership for the id. Returns true if the id is selected
// after the call.
func (c *Coordinator) Toggle(emailID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.selected[emailID] {
		delete(c.selected, emailID)
		for i, id := range c.order {
			if id == emailID {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
		return false
	}

	c.selected[emailID] = true
	c.order = append(c.order, emailID)
	return true
}

// SelectAll replaces the selection with the currently visible id set.
func (c *Coordinator) SelectAll(visibleIDs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.selected = make(map[string]bool, len(visibleIDs))
	c.order = make([]string, 0, len(visibleIDs))
	for _, id := range visibleIDs {
		if c.selected[id] {
			continue
		}
		c.selected[id] = true
		c.order = append(c.order, id)
	}
}

// Clear empties the selection, exiting selection mode.
func (c *Coordinator) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = make(map[string]bool)
	c.order = nil
}

// Active reports whether selection mode is on: non-empty set.
func (c *Coordinator) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.selected) > 0
}

// Count returns the number of selected ids.
func (c *Coordinator) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.selected)
}

// IsSelected reports membership.
func (c *Coordinator) IsSelected(emailID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected[emailID]
}

// Selected returns the selected ids in selection order.
func (c *Coordinator) Selected() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Dispatch applies the command to every selected id and clears the selection.
// Archive and delete go through the staged engine per id, the same undoable
// path as single-item actions; the returned handles are keyed by id so the
// caller can surface per-message undo. Mark-read and move are delegated to
// the external handler and return no handles.
func (c *Coordinator) Dispatch(cmd Command) map[string]*staged.UndoHandle {
	c.mu.Lock()
	ids := make([]string, len(c.order))
	copy(ids, c.order)
	c.selected = make(map[string]bool)
	c.order = nil
	c.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}

	c.logger.Info("dispatching bulk command", "command", cmd.String(), "count", len(ids))

	switch cmd {
	case CommandArchive:
		handles := make(map[string]*staged.UndoHandle, len(ids))
		for _, id := range ids {
			handles[id] = c.engine.StageArchive(id)
		}
		return handles
	case CommandDelete:
		handles := make(map[string]*staged.UndoHandle, len(ids))
		for _, id := range ids {
			handles[id] = c.engine.StageDelete(id)
		}
		return handles
	case CommandMarkRead, CommandMove:
		if c.external != nil {
			sort.Strings(ids)
			c.external(cmd, ids)
		}
		return nil
	default:
		c.logger.Warn("unknown bulk command", "command", int(cmd))
		return nil
	}
}
