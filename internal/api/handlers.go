package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wesm/mailtriage/internal/model"
	"github.com/wesm/mailtriage/internal/selection"
)

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, err string, message string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: message})
}

// MessageSummary represents a visible message in list responses.
type MessageSummary struct {
	ID        string   `json:"id"`
	ThreadID  string   `json:"thread_id"`
	From      string   `json:"from"`
	Subject   string   `json:"subject"`
	Snippet   string   `json:"snippet"`
	Timestamp string   `json:"timestamp"`
	Read      bool     `json:"read"`
	HasAttach bool     `json:"has_attachments"`
	SizeBytes int64    `json:"size_bytes"`
	Labels    []string `json:"labels"`
	Category  string   `json:"category,omitempty"`
	State     string   `json:"state"`
}

// SenderSummary represents one sender's statistics.
type SenderSummary struct {
	Email          string  `json:"email"`
	Name           string  `json:"name,omitempty"`
	TotalEmails    int     `json:"total_emails"`
	AverageSize    float64 `json:"average_size"`
	EngagementRate float64 `json:"engagement_rate"`
	NoiseScore     float64 `json:"noise_score"`
	IsMarketing    bool    `json:"is_marketing"`
	IsNewsletter   bool    `json:"is_newsletter"`
	CanUnsubscribe bool    `json:"can_unsubscribe"`
	FirstSeen      string  `json:"first_seen,omitempty"`
	LastSeen       string  `json:"last_seen,omitempty"`
}

// StagedResponse describes a freshly staged action.
type StagedResponse struct {
	ID       string `json:"id"`
	State    string `json:"state"`
	Deadline string `json:"commit_deadline"`
}

// SchedulerStatusResponse represents scheduler status.
type SchedulerStatusResponse struct {
	Running  bool            `json:"running"`
	Accounts []AccountStatus `json:"accounts"`
}

// handleProfile returns the synced account profile.
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	if !s.session.Synced() {
		writeError(w, http.StatusServiceUnavailable, "not_synced", "No sync cycle has completed yet")
		return
	}

	p := s.session.Profile()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"email_address":  p.EmailAddress,
		"messages_total": p.MessagesTotal,
		"threads_total":  p.ThreadsTotal,
		"last_sync":      s.session.LastSync().UTC().Format(time.RFC3339),
	})
}

// filterFromQuery builds a filter state from request query parameters.
func filterFromQuery(r *http.Request) model.FilterState {
	filter := model.DefaultFilter()
	q := r.URL.Query()

	if v := q.Get("folder"); v != "" {
		filter.Folder = model.Folder(v)
	}
	if v := q.Get("filter"); v != "" {
		filter.ActiveFilter = model.ActiveFilter(v)
	}
	filter.SearchQuery = q.Get("q")
	filter.FolderDetail = q.Get("detail")

	return filter
}

// handleListMessages returns the composed visible message list for the
// filter given in query parameters.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	if !s.session.Synced() {
		writeError(w, http.StatusServiceUnavailable, "not_synced", "No sync cycle has completed yet")
		return
	}

	filter := filterFromQuery(r)
	visible := s.session.VisibleWith(filter)

	summaries := make([]MessageSummary, len(visible))
	for i, e := range visible {
		summaries[i] = MessageSummary{
			ID:        e.ID,
			ThreadID:  e.ThreadID,
			From:      e.From,
			Subject:   e.Subject,
			Snippet:   e.Snippet,
			Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
			Read:      e.IsRead,
			HasAttach: e.HasAttachment,
			SizeBytes: e.SizeEstimate,
			Labels:    e.Labels,
			Category:  e.Category,
			State:     s.session.State(e.ID).String(),
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":    len(summaries),
		"messages": summaries,
	})
}

// handleListSenders returns per-sender statistics, noisiest first.
func (s *Server) handleListSenders(w http.ResponseWriter, r *http.Request) {
	if !s.session.Synced() {
		writeError(w, http.StatusServiceUnavailable, "not_synced", "No sync cycle has completed yet")
		return
	}

	senders := s.session.Senders()
	summaries := make([]SenderSummary, len(senders))
	for i, sd := range senders {
		summaries[i] = SenderSummary{
			Email:          sd.Email,
			Name:           sd.Name,
			TotalEmails:    sd.TotalEmails,
			AverageSize:    sd.AverageSize,
			EngagementRate: sd.EngagementRate,
			NoiseScore:     sd.NoiseScore,
			IsMarketing:    sd.IsMarketing,
			IsNewsletter:   sd.IsNewsletter,
			CanUnsubscribe: sd.CanUnsubscribe,
		}
		if !sd.FirstSeen.IsZero() {
			summaries[i].FirstSeen = sd.FirstSeen.UTC().Format(time.RFC3339)
		}
		if !sd.LastSeen.IsZero() {
			summaries[i].LastSeen = sd.LastSeen.UTC().Format(time.RFC3339)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":   len(summaries),
		"senders": summaries,
	})
}

// handleArchive stages an archive for the message.
func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h := s.session.Archive(id)
	writeJSON(w, http.StatusAccepted, StagedResponse{
		ID:       id,
		State:    s.session.State(id).String(),
		Deadline: h.Deadline().UTC().Format(time.RFC3339Nano),
	})
}

// handleTrash stages a delete for the message.
func (s *Server) handleTrash(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h := s.session.Trash(id)
	writeJSON(w, http.StatusAccepted, StagedResponse{
		ID:       id,
		State:    s.session.State(id).String(),
		Deadline: h.Deadline().UTC().Format(time.RFC3339Nano),
	})
}

// handleStar toggles the star for the message.
func (s *Server) handleStar(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	starred := s.session.ToggleStar(id)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":      id,
		"starred": starred,
	})
}

// handleUndo cancels the pending staged action for the message.
func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.session.Undo(id) {
		writeError(w, http.StatusConflict, "nothing_pending", "No pending action to undo; it may have already committed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":    id,
		"state": s.session.State(id).String(),
	})
}

// BulkRequest selects a set of ids and applies one command to them.
type BulkRequest struct {
	Command string   `json:"command"`
	IDs     []string `json:"ids"`
}

var bulkCommands = map[string]selection.Command{
	"archive":   selection.CommandArchive,
	"delete":    selection.CommandDelete,
	"mark_read": selection.CommandMarkRead,
	"move":      selection.CommandMove,
}

// handleBulk applies a bulk command to the given ids through the selection
// coordinator, the same staged path single-item actions use.
func (s *Server) handleBulk(w http.ResponseWriter, r *http.Request) {
	var req BulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "Request body must be JSON")
		return
	}

	cmd, ok := bulkCommands[req.Command]
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_command", "Command must be one of: archive, delete, mark_read, move")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "empty_selection", "At least one id is required")
		return
	}

	s.session.Selection().SelectAll(req.IDs)
	s.session.Dispatch(cmd)

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"command": req.Command,
		"count":   len(req.IDs),
	})
}

// handleRefresh runs one sync cycle synchronously.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	result, err := s.session.Refresh(r.Context())
	if err != nil {
		s.logger.Error("refresh failed", "error", err)
		writeError(w, http.StatusBadGateway, "refresh_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"listed":    result.Listed,
		"fetched":   result.Fetched,
		"senders":   len(result.Senders),
		"truncated": result.Truncated,
		"duration":  result.Duration.String(),
	})
}

// handleTriggerRefresh manually triggers a scheduled account's refresh.
func (s *Server) handleTriggerRefresh(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	if account == "" {
		writeError(w, http.StatusBadRequest, "missing_account", "Account email is required")
		return
	}

	if err := s.scheduler.TriggerRefresh(account); err != nil {
		s.logger.Error("failed to trigger refresh", "account", account, "error", err)
		writeError(w, http.StatusConflict, "refresh_error", err.Error())
		return
	}

	s.logger.Info("refresh triggered via API", "account", account)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "accepted",
		"message": "Refresh started for " + account,
	})
}

// handleSchedulerStatus returns the scheduler status.
func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SchedulerStatusResponse{
		Running:  s.scheduler.IsRunning(),
		Accounts: s.scheduler.Status(),
	})
}
