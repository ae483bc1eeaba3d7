package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wesm/mailtriage/internal/config"
	"github.com/wesm/mailtriage/internal/gmail"
	"github.com/wesm/mailtriage/internal/model"
	"github.com/wesm/mailtriage/internal/session"
	"github.com/wesm/mailtriage/internal/sync"
)

// fakeScheduler implements SyncScheduler for tests.
type fakeScheduler struct {
	scheduled map[string]bool
	triggered []string
	running   bool
}

func (f *fakeScheduler) IsScheduled(email string) bool { return f.scheduled[email] }
func (f *fakeScheduler) TriggerRefresh(email string) error {
	if !f.scheduled[email] {
		return &notScheduledError{email}
	}
	f.triggered = append(f.triggered, email)
	return nil
}
func (f *fakeScheduler) Status() []AccountStatus { return nil }
func (f *fakeScheduler) IsRunning() bool         { return f.running }

type notScheduledError struct{ email string }

func (e *notScheduledError) Error() string { return "account " + e.email + " is not scheduled" }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testServer builds a server over a real session synced from a mock API.
func testServer(t *testing.T, cfg *config.Config) (*Server, *gmail.MockAPI) {
	t.Helper()

	mock := gmail.NewMockAPI()
	msg := gmail.SimpleMessage("m1", "alice@example.com", "Hello", model.LabelInbox)
	mock.AddMessage(msg)
	unread := gmail.SimpleMessage("m2", "promo@shop.com", "Sale", model.LabelInbox, model.LabelUnread)
	mock.AddMessage(unread)

	sess := session.New(
		sync.New(mock, nil),
		session.WithLogger(quietLogger()),
		session.WithGracePeriod(time.Minute),
	)
	if _, err := sess.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if cfg == nil {
		cfg = &config.Config{}
	}
	sched := &fakeScheduler{scheduled: map[string]bool{"a@x.com": true}, running: true}
	return NewServer(cfg, sess, sched, quietLogger()), mock
}

func doRequest(t *testing.T, s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v\nbody: %s", err, rec.Body.String())
	}
	return out
}

func TestHealthNoAuth(t *testing.T) {
	s, _ := testServer(t, &config.Config{Server: config.ServerConfig{APIKey: "secret"}})

	rec := doRequest(t, s, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	s, _ := testServer(t, &config.Config{Server: config.ServerConfig{APIKey: "secret"}})

	rec := doRequest(t, s, http.MethodGet, "/api/v1/messages", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/messages", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec2 := httptest.NewRecorder()
	s.Router().ServeHTTP(rec2, req)
	if rec2.Code != http.StatusOK {
		t.Errorf("status with key = %d, want 200", rec2.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/messages", nil)
	req.Header.Set("X-API-Key", "secret")
	rec3 := httptest.NewRecorder()
	s.Router().ServeHTTP(rec3, req)
	if rec3.Code != http.StatusOK {
		t.Errorf("status with X-API-Key = %d, want 200", rec3.Code)
	}
}

func TestListMessages(t *testing.T) {
	s, _ := testServer(t, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/messages", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	if body["total"].(float64) != 2 {
		t.Errorf("total = %v", body["total"])
	}
}

func TestListMessagesFilterQuery(t *testing.T) {
	s, _ := testServer(t, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/messages?filter=unread", nil)
	body := decodeBody(t, rec)
	if body["total"].(float64) != 1 {
		t.Errorf("unread total = %v", body["total"])
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/messages?q=sale", nil)
	body = decodeBody(t, rec)
	if body["total"].(float64) != 1 {
		t.Errorf("search total = %v", body["total"])
	}
}

func TestListSenders(t *testing.T) {
	s, _ := testServer(t, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/senders", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	body := decodeBody(t, rec)
	if body["total"].(float64) != 2 {
		t.Errorf("total = %v", body["total"])
	}

	senders := body["senders"].([]interface{})
	first := senders[0].(map[string]interface{})
	// promo@shop.com has the unread message, so it sorts first by noise.
	if first["email"] != "promo@shop.com" {
		t.Errorf("first sender = %v", first["email"])
	}
	if first["is_marketing"] != true || first["can_unsubscribe"] != true {
		t.Errorf("marketing flags = %v / %v", first["is_marketing"], first["can_unsubscribe"])
	}
}

func TestArchiveThenUndo(t *testing.T) {
	s, _ := testServer(t, nil)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/messages/m1/archive", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("archive status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["state"] != "pending_archive" {
		t.Errorf("state = %v", body["state"])
	}
	if body["commit_deadline"] == "" {
		t.Error("missing commit_deadline")
	}

	// The archived message disappears from the default view.
	rec = doRequest(t, s, http.MethodGet, "/api/v1/messages", nil)
	if got := decodeBody(t, rec)["total"].(float64); got != 1 {
		t.Errorf("total after archive = %v", got)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/v1/messages/m1/undo", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("undo status = %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/messages", nil)
	if got := decodeBody(t, rec)["total"].(float64); got != 2 {
		t.Errorf("total after undo = %v", got)
	}

	// Second undo has nothing to cancel.
	rec = doRequest(t, s, http.MethodPost, "/api/v1/messages/m1/undo", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("second undo status = %d, want 409", rec.Code)
	}
}

func TestStarToggle(t *testing.T) {
	s, _ := testServer(t, nil)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/messages/m1/star", nil)
	if decodeBody(t, rec)["starred"] != true {
		t.Error("first toggle should star")
	}
	rec = doRequest(t, s, http.MethodPost, "/api/v1/messages/m1/star", nil)
	if decodeBody(t, rec)["starred"] != false {
		t.Error("second toggle should unstar")
	}
}

func TestBulkArchive(t *testing.T) {
	s, _ := testServer(t, nil)

	payload, _ := json.Marshal(BulkRequest{Command: "archive", IDs: []string{"m1", "m2"}})
	rec := doRequest(t, s, http.MethodPost, "/api/v1/bulk", payload)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/messages", nil)
	if got := decodeBody(t, rec)["total"].(float64); got != 0 {
		t.Errorf("total after bulk archive = %v", got)
	}
}

func TestBulkRejectsBadCommand(t *testing.T) {
	s, _ := testServer(t, nil)

	payload, _ := json.Marshal(BulkRequest{Command: "explode", IDs: []string{"m1"}})
	rec := doRequest(t, s, http.MethodPost, "/api/v1/bulk", payload)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	payload, _ = json.Marshal(BulkRequest{Command: "archive"})
	rec = doRequest(t, s, http.MethodPost, "/api/v1/bulk", payload)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty ids status = %d, want 400", rec.Code)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	s, mock := testServer(t, nil)
	mock.AddMessage(gmail.SimpleMessage("m3", "new@x.com", "Fresh", model.LabelInbox))

	rec := doRequest(t, s, http.MethodPost, "/api/v1/refresh", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["fetched"].(float64) != 3 {
		t.Errorf("fetched = %v", body["fetched"])
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/messages", nil)
	if got := decodeBody(t, rec)["total"].(float64); got != 3 {
		t.Errorf("total after refresh = %v", got)
	}
}

func TestRefreshFailureSurfaces(t *testing.T) {
	s, mock := testServer(t, nil)
	mock.ProfileError = &gmail.TransientServiceError{StatusCode: 503}

	rec := doRequest(t, s, http.MethodPost, "/api/v1/refresh", nil)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestTriggerRefreshEndpoint(t *testing.T) {
	s, _ := testServer(t, nil)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/sync/a@x.com", nil)
	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/v1/sync/nobody@x.com", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("unscheduled status = %d, want 409", rec.Code)
	}
}

func TestSchedulerStatusEndpoint(t *testing.T) {
	s, _ := testServer(t, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/scheduler/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if decodeBody(t, rec)["running"] != true {
		t.Error("running should be true")
	}
}

func TestProfileEndpoint(t *testing.T) {
	s, _ := testServer(t, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/profile", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["email_address"] != "test@example.com" {
		t.Errorf("email_address = %v", body["email_address"])
	}
}
