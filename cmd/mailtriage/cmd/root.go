package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesm/mailtriage/internal/config"
	"github.com/wesm/mailtriage/internal/gmail"
	"github.com/wesm/mailtriage/internal/oauth"
	"github.com/wesm/mailtriage/internal/session"
	"github.com/wesm/mailtriage/internal/sync"
)

var (
	cfgFile string
	verbose bool
	cfg     *config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "mailtriage",
	Short: "Inbox triage engine",
	Long: `mailtriage syncs a bounded window of your inbox, scores senders by how
much they clutter it, and stages archive/delete actions behind an undo
grace period before committing them.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}

		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		return nil
	},
}

// Execute runs the root command with a background context.
// Prefer ExecuteContext for signal-aware execution.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with the given context,
// enabling graceful shutdown when the context is cancelled.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// errOAuthNotConfigured returns a helpful error when client secrets are
// missing from the config.
func errOAuthNotConfigured() error {
	return errors.New(`OAuth client secrets not configured.

Create or edit ~/.mailtriage/config.toml:
  [oauth]
  client_secrets = "/path/to/client_secret.json"`)
}

// newClient builds an authenticated mailbox client for the account.
func newClient(ctx context.Context, email string) (*gmail.Client, error) {
	if cfg.OAuth.ClientSecrets == "" {
		return nil, errOAuthNotConfigured()
	}

	oauthMgr, err := oauth.NewManager(cfg.OAuth.ClientSecrets, cfg.TokensDir(), logger)
	if err != nil {
		return nil, fmt.Errorf("create oauth manager: %w", err)
	}

	tokenSource, err := oauthMgr.TokenSource(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("get token source: %w (provision a token for %s first)", err, email)
	}

	qps := float64(cfg.Sync.RateLimitQPS)
	return gmail.NewClient(tokenSource,
		gmail.WithLogger(logger),
		gmail.WithRateLimiter(gmail.NewRateLimiter(qps)),
	), nil
}

// syncOptions maps config to sync options.
func syncOptions() *sync.Options {
	opts := sync.DefaultOptions()
	if cfg.Sync.Query != "" {
		opts.Query = cfg.Sync.Query
	}
	if cfg.Sync.PageSize > 0 {
		opts.PageSize = cfg.Sync.PageSize
	}
	if cfg.Sync.FetchCap > 0 {
		opts.FetchCap = cfg.Sync.FetchCap
	}
	return opts
}

// newSession builds a triage session for the account.
func newSession(ctx context.Context, email string) (*session.Session, error) {
	client, err := newClient(ctx, email)
	if err != nil {
		return nil, err
	}

	syncer := sync.New(client, syncOptions()).WithLogger(logger)

	opts := []session.Option{session.WithLogger(logger)}
	if cfg.Triage.GraceSeconds > 0 {
		opts = append(opts, session.WithGracePeriod(time.Duration(cfg.Triage.GraceSeconds)*time.Second))
	}
	if cfg.Triage.RemoteCommits {
		opts = append(opts, session.WithRemoteCommit(client))
	}

	return session.New(syncer, opts...), nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.mailtriage/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
