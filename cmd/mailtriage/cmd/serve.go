package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wesm/mailtriage/internal/api"
	"github.com/wesm/mailtriage/internal/scheduler"
	"github.com/wesm/mailtriage/internal/session"
)

var serveAccount string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run mailtriage as a daemon with scheduled refresh",
	Long: `Run mailtriage as a long-running daemon:
  - HTTP API server on the configured port (default: 8080)
  - Scheduled refresh cycles per account config

Configure schedules in config.toml:
  [[accounts]]
  email = "you@gmail.com"
  schedule = "*/15 * * * *"   # every 15 minutes (cron format)
  enabled = true

The API serves the triage session of one account; pick it with --account
(defaults to the first scheduled account).

Use Ctrl+C to stop the daemon gracefully.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAccount, "account", "", "account whose session the API serves")
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.Server.ValidateSecure(); err != nil {
		return err
	}

	scheduled := cfg.ScheduledAccounts()
	if len(scheduled) == 0 {
		return errors.New(`no scheduled accounts configured

Add accounts to config.toml:

  [[accounts]]
  email = "you@gmail.com"
  schedule = "*/15 * * * *"
  enabled = true`)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// One session per scheduled account.
	sessions := make(map[string]*session.Session, len(scheduled))
	for _, acc := range scheduled {
		sess, err := newSession(ctx, acc.Email)
		if err != nil {
			return fmt.Errorf("account %s: %w", acc.Email, err)
		}
		sessions[acc.Email] = sess
	}

	primary := serveAccount
	if primary == "" {
		primary = scheduled[0].Email
	}
	primarySession, ok := sessions[primary]
	if !ok {
		return fmt.Errorf("account %s is not scheduled", primary)
	}

	sched := scheduler.New(func(ctx context.Context, email string) error {
		sess, ok := sessions[email]
		if !ok {
			return fmt.Errorf("no session for %s", email)
		}
		_, err := sess.Refresh(ctx)
		return err
	}).WithLogger(logger)

	count, errs := sched.AddAccountsFromConfig(cfg)
	for _, err := range errs {
		logger.Error("failed to schedule account", "error", err)
	}
	if count == 0 {
		return errors.New("no accounts could be scheduled")
	}

	// Initial refresh for every account so the API has data before the
	// first scheduled cycle. Failures are logged; the daemon still starts.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(2)
	for email, sess := range sessions {
		email, sess := email, sess
		g.Go(func() error {
			if _, err := sess.Refresh(gctx); err != nil {
				logger.Error("initial refresh failed", "email", email, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	sched.Start()

	server := api.NewServer(cfg, primarySession, sched, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	logger.Info("daemon running",
		"accounts", count,
		"api_account", primary,
		"port", cfg.Server.APIPort)

	select {
	case err := <-serverErr:
		sched.Stop()
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown error", "error", err)
	}

	stopCtx := sched.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		logger.Warn("scheduler did not stop in time")
	}

	return nil
}
