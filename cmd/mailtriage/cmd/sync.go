package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesm/mailtriage/internal/sync"
)

var syncCmd = &cobra.Command{
	Use:   "sync <email>",
	Short: "Run one sync cycle for an account",
	Long: `Fetch a bounded window of inbox messages for the account, normalize
them, and report per-sender statistics.

The fetch is capped per cycle (see fetch_cap in config.toml); a capped
cycle is reported as truncated, not as an error.

Examples:
  mailtriage sync you@gmail.com
  mailtriage sync you@gmail.com --verbose`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email := args[0]
		ctx := cmd.Context()

		client, err := newClient(ctx, email)
		if err != nil {
			return err
		}
		defer client.Close()

		syncer := sync.New(client, syncOptions()).
			WithLogger(logger).
			WithProgress(&cliProgress{})

		result, err := syncer.Sync(ctx)
		if err != nil {
			return fmt.Errorf("sync %s: %w", email, err)
		}

		fmt.Printf("\nSynced %s\n", result.Profile.EmailAddress)
		fmt.Printf("  listed:  %d\n", result.Listed)
		fmt.Printf("  fetched: %d\n", result.Fetched)
		fmt.Printf("  senders: %d\n", len(result.Senders))
		if result.Truncated {
			fmt.Printf("  note: fetch cap reached; %d messages not fetched this cycle\n",
				result.Listed-result.Fetched)
		}
		fmt.Printf("  took:    %s\n", result.Duration.Round(time.Millisecond))
		return nil
	},
}

// cliProgress renders per-message fetch progress on stderr.
type cliProgress struct{}

func (p *cliProgress) OnStart(total int) {
	fmt.Fprintf(os.Stderr, "Fetching %d messages...\n", total)
}

func (p *cliProgress) OnMessage(current, total int) {
	fmt.Fprintf(os.Stderr, "\r  %d/%d", current, total)
	if current == total {
		fmt.Fprintln(os.Stderr)
	}
}

func (p *cliProgress) OnComplete(r *sync.Result) {}

func (p *cliProgress) OnError(err error) {
	fmt.Fprintln(os.Stderr)
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
