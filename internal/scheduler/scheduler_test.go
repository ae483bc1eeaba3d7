package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wesm/mailtriage/internal/config"
)

// countingRefresh records refresh invocations.
type countingRefresh struct {
	mu     sync.Mutex
	calls  []string
	err    error
	block  chan struct{} // when set, refresh waits until closed
}

func (c *countingRefresh) fn(ctx context.Context, email string) error {
	c.mu.Lock()
	c.calls = append(c.calls, email)
	block := c.block
	err := c.err
	c.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (c *countingRefresh) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func TestAddAccountRejectsInvalidCron(t *testing.T) {
	s := New((&countingRefresh{}).fn)
	if err := s.AddAccount("a@x.com", "not a cron"); err == nil {
		t.Error("expected error for invalid expression")
	}
	if s.IsScheduled("a@x.com") {
		t.Error("invalid schedule should not register")
	}
}

func TestAddAccountReplacesSchedule(t *testing.T) {
	s := New((&countingRefresh{}).fn)
	if err := s.AddAccount("a@x.com", "*/5 * * * *"); err != nil {
		t.Fatal(err)
	}
	if err := s.AddAccount("a@x.com", "0 2 * * *"); err != nil {
		t.Fatal(err)
	}

	status := s.Status()
	if len(status) != 1 {
		t.Fatalf("got %d entries, want 1", len(status))
	}
	if status[0].Schedule != "0 2 * * *" {
		t.Errorf("Schedule = %q", status[0].Schedule)
	}
}

func TestTriggerRefreshRuns(t *testing.T) {
	ref := &countingRefresh{}
	s := New(ref.fn)
	if err := s.AddAccount("a@x.com", "0 2 * * *"); err != nil {
		t.Fatal(err)
	}
	s.Start()
	defer waitStop(t, s)

	if err := s.TriggerRefresh("a@x.com"); err != nil {
		t.Fatalf("TriggerRefresh: %v", err)
	}

	waitFor(t, func() bool { return ref.count() == 1 })

	waitFor(t, func() bool {
		for _, st := range s.Status() {
			if st.Email == "a@x.com" && !st.Running && st.Refreshes == 1 {
				return true
			}
		}
		return false
	})
}

func TestTriggerRefreshRejectsUnknownAccount(t *testing.T) {
	s := New((&countingRefresh{}).fn)
	s.Start()
	defer waitStop(t, s)

	if err := s.TriggerRefresh("nobody@x.com"); err == nil {
		t.Error("expected error for unscheduled account")
	}
}

func TestTriggerRefreshSuppressesOverlap(t *testing.T) {
	ref := &countingRefresh{block: make(chan struct{})}
	s := New(ref.fn)
	if err := s.AddAccount("a@x.com", "0 2 * * *"); err != nil {
		t.Fatal(err)
	}
	s.Start()

	if err := s.TriggerRefresh("a@x.com"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return ref.count() == 1 })

	if err := s.TriggerRefresh("a@x.com"); err == nil {
		t.Error("overlapping refresh should be rejected")
	}

	close(ref.block)
	waitStop(t, s)

	if got := ref.count(); got != 1 {
		t.Errorf("refresh ran %d times, want 1", got)
	}
}

func TestStatusReportsLastError(t *testing.T) {
	ref := &countingRefresh{err: errors.New("boom")}
	s := New(ref.fn)
	if err := s.AddAccount("a@x.com", "0 2 * * *"); err != nil {
		t.Fatal(err)
	}
	s.Start()
	defer waitStop(t, s)

	if err := s.TriggerRefresh("a@x.com"); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool {
		for _, st := range s.Status() {
			if st.Email == "a@x.com" && st.LastError == "boom" {
				return true
			}
		}
		return false
	})
}

func TestStopRejectsNewWork(t *testing.T) {
	s := New((&countingRefresh{}).fn)
	if err := s.AddAccount("a@x.com", "0 2 * * *"); err != nil {
		t.Fatal(err)
	}
	s.Start()
	waitStop(t, s)

	if s.IsRunning() {
		t.Error("IsRunning should be false after Stop")
	}
	if err := s.TriggerRefresh("a@x.com"); err == nil {
		t.Error("stopped scheduler should reject triggers")
	}
}

func TestAddAccountsFromConfig(t *testing.T) {
	cfg := &config.Config{Accounts: []config.AccountSchedule{
		{Email: "a@x.com", Schedule: "*/15 * * * *", Enabled: true},
		{Email: "b@x.com", Schedule: "bad", Enabled: true},
		{Email: "c@x.com", Schedule: "0 2 * * *", Enabled: false},
	}}

	s := New((&countingRefresh{}).fn)
	scheduled, errs := s.AddAccountsFromConfig(cfg)

	if scheduled != 1 {
		t.Errorf("scheduled = %d, want 1", scheduled)
	}
	if len(errs) != 1 {
		t.Errorf("errs = %v, want 1 entry", errs)
	}
	if !s.IsScheduled("a@x.com") || s.IsScheduled("c@x.com") {
		t.Error("wrong accounts scheduled")
	}
}

func TestValidateCronExpr(t *testing.T) {
	if err := ValidateCronExpr("*/5 * * * *"); err != nil {
		t.Errorf("valid expression rejected: %v", err)
	}
	if err := ValidateCronExpr("every day at noon"); err == nil {
		t.Error("invalid expression accepted")
	}
}

func waitStop(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx := s.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop in time")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
