package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wesm/mailtriage/internal/sync"
)

var (
	sendersJSON  bool
	sendersLimit int
)

var sendersCmd = &cobra.Command{
	Use:   "senders <email>",
	Short: "Rank senders by noise score",
	Long: `Sync the account and list its senders ranked by noise score: a 0-10
estimate of how much each sender clutters the inbox, derived from
volume, engagement, and unread ratio.

Examples:
  mailtriage senders you@gmail.com
  mailtriage senders you@gmail.com --limit 10
  mailtriage senders you@gmail.com --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email := args[0]
		ctx := cmd.Context()

		client, err := newClient(ctx, email)
		if err != nil {
			return err
		}
		defer client.Close()

		result, err := sync.New(client, syncOptions()).WithLogger(logger).Sync(ctx)
		if err != nil {
			return fmt.Errorf("sync %s: %w", email, err)
		}

		senders := result.Senders
		if sendersLimit > 0 && len(senders) > sendersLimit {
			senders = senders[:sendersLimit]
		}

		if len(senders) == 0 {
			fmt.Println("No senders found.")
			return nil
		}

		if sendersJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(senders)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NOISE\tSENDER\tEMAILS\tUNREAD%\tENGAGED%\tUNSUB")
		for _, s := range senders {
			unsub := ""
			if s.CanUnsubscribe {
				unsub = "yes"
			}
			fmt.Fprintf(w, "%.1f\t%s\t%d\t%.0f\t%.0f\t%s\n",
				s.NoiseScore, s.Email, s.TotalEmails,
				100-s.EngagementRate, s.EngagementRate, unsub)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(sendersCmd)
	sendersCmd.Flags().BoolVar(&sendersJSON, "json", false, "output as JSON")
	sendersCmd.Flags().IntVar(&sendersLimit, "limit", 20, "maximum senders to show (0 = all)")
}
