// Package view implements the view composer: a pure function that turns the
// synced emails, the staged engine's snapshot, and the filter state into the
// ordered list of currently visible messages.
package view

import (
	"sort"
	"strings"

	"github.com/wesm/mailtriage/internal/model"
	"github.com/wesm/mailtriage/internal/staged"
)

// Compose produces the visible message list. Deterministic, no side effects;
// callers rerun it whenever emails, snapshot, or filter change.
//
// Stage order matters: archive exclusion, trash exclusion/inclusion, scope
// narrowing, search, secondary facet, sort.
func Compose(emails []model.Email, snap staged.Snapshot, filter model.FilterState) []model.Email {
	out := make([]model.Email, 0, len(emails))
	for _, e := range emails {
		if !passesArchiveStage(e, snap, filter) {
			continue
		}
		if !passesTrashStage(e, snap, filter) {
			continue
		}
		if !passesScope(e, filter) {
			continue
		}
		if !matchesSearch(e, filter.SearchQuery) {
			continue
		}
		if !passesActiveFilter(e, snap, filter) {
			continue
		}
		out = append(out, e)
	}

	// Newest first. Stable: equal timestamps keep sync order.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})

	return out
}

// VisibleIDs returns just the ids of the composed view, in display order.
// The selection coordinator uses this for select-all.
func VisibleIDs(emails []model.Email, snap staged.Snapshot, filter model.FilterState) []string {
	visible := Compose(emails, snap, filter)
	ids := make([]string, len(visible))
	for i, e := range visible {
		ids[i] = e.ID
	}
	return ids
}

func passesArchiveStage(e model.Email, snap staged.Snapshot, filter model.FilterState) bool {
	if filter.ActiveFilter == model.FilterArchived {
		return true
	}
	return !snap.Archived[e.ID] && !snap.PendingArchive[e.ID]
}

func passesTrashStage(e model.Email, snap staged.Snapshot, filter model.FilterState) bool {
	if filter.ActiveFilter == model.FilterTrash {
		return e.HasLabel(model.LabelTrash) || snap.Trashed[e.ID]
	}
	return !snap.Trashed[e.ID] && !snap.PendingDelete[e.ID] && !e.HasLabel(model.LabelTrash)
}

func passesScope(e model.Email, filter model.FilterState) bool {
	if filter.FolderDetail != "" {
		if filter.FolderDetail == model.DetailActionRequired {
			return isActionRequired(e)
		}
		return e.Category == filter.FolderDetail
	}

	switch filter.Folder {
	case model.FolderUnread:
		return !e.IsRead
	case model.FolderStarred:
		return e.HasLabel(model.LabelStarred)
	case model.FolderImportant:
		return e.HasLabel(model.LabelImportant) || isActionRequired(e)
	default:
		return e.HasLabel(model.LabelInbox)
	}
}

func isActionRequired(e model.Email) bool {
	if e.Priority == "high" {
		return true
	}
	subject := strings.ToLower(e.Subject)
	return strings.Contains(subject, "action required") || strings.Contains(subject, "urgent")
}

func matchesSearch(e model.Email, query string) bool {
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(e.Subject), q) ||
		strings.Contains(strings.ToLower(e.From), q) ||
		strings.Contains(strings.ToLower(e.Snippet), q)
}

func passesActiveFilter(e model.Email, snap staged.Snapshot, filter model.FilterState) bool {
	switch filter.ActiveFilter {
	case model.FilterUnread:
		return !e.IsRead
	case model.FilterStarred:
		return e.HasLabel(model.LabelStarred) || snap.Starred[e.ID]
	case model.FilterArchived:
		return snap.Archived[e.ID]
	case model.FilterSent:
		return e.HasLabel(model.LabelSent)
	case model.FilterTrash:
		return e.HasLabel(model.LabelTrash) || snap.Trashed[e.ID]
	default:
		return true
	}
}
