package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/programmedstyle/livechat/internal/console"
)

func newStatsCmd() *cobra.Command {
	var (
		url   string
		token string
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show message statistics from a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				return fmt.Errorf("--token is required")
			}

			client := console.NewClient(url, token, log)
			stats, err := client.Stats()
			if err != nil {
				return fmt.Errorf("fetching stats: %w", err)
			}

			fmt.Printf("total:   %d\n", stats.Total)
			fmt.Printf("unread:  %d\n", stats.Unread)
			fmt.Printf("replied: %d\n", stats.Replied)
			fmt.Printf("pending: %d\n", stats.Pending)
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "http://127.0.0.1:5000", "server base URL")
	cmd.Flags().StringVar(&token, "token", "", "admin bearer token")

	return cmd
}
