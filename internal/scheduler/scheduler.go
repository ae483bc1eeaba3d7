// Package scheduler provides cron-based scheduling for periodic mailbox
// refresh cycles.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wesm/mailtriage/internal/config"
)

// RefreshFunc is invoked when a scheduled refresh should run for an account.
type RefreshFunc func(ctx context.Context, email string) error

// AccountStatus is the refresh status of one scheduled account.
type AccountStatus struct {
	Email     string    `json:"email"`
	Running   bool      `json:"running"`
	LastRun   time.Time `json:"last_run,omitempty"`
	NextRun   time.Time `json:"next_run"`
	Schedule  string    `json:"schedule"`
	Refreshes int       `json:"refreshes"`
	LastError string    `json:"last_error,omitempty"`
}

// Scheduler runs per-account refresh cycles on cron schedules. A cycle that
// is still running when its next slot fires suppresses the new run; an
// account never refreshes concurrently with itself.
type Scheduler struct {
	cron    *cron.Cron
	refresh RefreshFunc
	logger  *slog.Logger

	mu        sync.RWMutex
	jobs      map[string]cron.EntryID
	schedules map[string]string
	running   map[string]bool
	lastRun   map[string]time.Time
	lastErr   map[string]error
	completed map[string]int

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	stopped bool
}

// New creates a scheduler around a refresh callback.
func New(refresh RefreshFunc) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(cron.WithParser(cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
		))),
		refresh:   refresh,
		logger:    slog.Default(),
		jobs:      make(map[string]cron.EntryID),
		schedules: make(map[string]string),
		running:   make(map[string]bool),
		lastRun:   make(map[string]time.Time),
		lastErr:   make(map[string]error),
		completed: make(map[string]int),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// WithLogger sets the logger.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// AddAccount schedules refreshes for an account using a cron expression.
// Re-adding an account replaces its schedule.
func (s *Scheduler) AddAccount(email, cronExpr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.jobs[email]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, email)
		delete(s.schedules, email)
	}

	entryID, err := s.cron.AddFunc(cronExpr, func() {
		s.mu.Lock()
		if s.stopped || s.running[email] {
			s.mu.Unlock()
			return
		}
		s.running[email] = true
		s.wg.Add(1)
		s.mu.Unlock()
		s.runRefresh(email)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}

	s.jobs[email] = entryID
	s.schedules[email] = cronExpr
	s.logger.Info("scheduled refresh",
		"email", email,
		"schedule", cronExpr,
		"next_run", s.cron.Entry(entryID).Next)

	return nil
}

// AddAccountsFromConfig adds all enabled accounts from the config.
// Returns the number of accounts scheduled and any errors encountered.
func (s *Scheduler) AddAccountsFromConfig(cfg *config.Config) (int, []error) {
	var errs []error
	scheduled := 0

	for _, acc := range cfg.ScheduledAccounts() {
		if err := s.AddAccount(acc.Email, acc.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", acc.Email, err))
		} else {
			scheduled++
		}
	}

	return scheduled, errs
}

// RemoveAccount removes the schedule for an account.
func (s *Scheduler) RemoveAccount(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.jobs[email]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, email)
		delete(s.schedules, email)
		s.logger.Info("removed schedule", "email", email)
	}
}

// Start begins executing scheduled jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.started = true
	s.stopped = false
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.jobs))
}

// IsRunning reports whether the scheduler has been started and not stopped.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started && !s.stopped
}

// Stop stops the scheduler, cancels in-flight refreshes, and returns a
// context that is done once all work has finished.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("scheduler stopping")

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	cronCtx := s.cron.Stop()
	s.cancel()

	done := make(chan struct{})
	go func() {
		<-cronCtx.Done()
		s.wg.Wait()
		close(done)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-done
		cancel()
	}()
	return ctx
}

// runRefresh executes one refresh cycle. The caller must have set
// running[email] and called wg.Add(1).
func (s *Scheduler) runRefresh(email string) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.running[email] = false
		s.mu.Unlock()
	}()

	s.logger.Info("starting scheduled refresh", "email", email)
	start := time.Now()

	err := s.refresh(s.ctx, email)

	s.mu.Lock()
	if err != nil {
		s.lastErr[email] = err
		s.logger.Error("scheduled refresh failed",
			"email", email,
			"duration", time.Since(start),
			"error", err)
	} else {
		s.lastRun[email] = time.Now()
		s.lastErr[email] = nil
		s.completed[email]++
		s.logger.Info("scheduled refresh completed",
			"email", email,
			"duration", time.Since(start))
	}
	s.mu.Unlock()
}

// IsScheduled reports whether the account has been added.
func (s *Scheduler) IsScheduled(email string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.jobs[email]
	return exists
}

// TriggerRefresh manually runs a refresh for an account outside its
// schedule. Fails if one is already running, the account is not scheduled,
// or the scheduler is stopped.
func (s *Scheduler) TriggerRefresh(email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("scheduler is stopped")
	}
	if _, exists := s.jobs[email]; !exists {
		return fmt.Errorf("account %s is not scheduled", email)
	}
	if s.running[email] {
		return fmt.Errorf("refresh already running for %s", email)
	}

	s.running[email] = true
	s.wg.Add(1)
	go s.runRefresh(email)
	return nil
}

// Status returns the current status of all scheduled accounts.
func (s *Scheduler) Status() []AccountStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var statuses []AccountStatus
	for email, entryID := range s.jobs {
		entry := s.cron.Entry(entryID)
		status := AccountStatus{
			Email:     email,
			Running:   s.running[email],
			LastRun:   s.lastRun[email],
			NextRun:   entry.Next,
			Schedule:  s.schedules[email],
			Refreshes: s.completed[email],
		}
		if err := s.lastErr[email]; err != nil {
			status.LastError = err.Error()
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// ValidateCronExpr validates a cron expression without scheduling anything.
func ValidateCronExpr(expr string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}
