package cli

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/programmedstyle/livechat/internal/console"
)

func newInboxCmd() *cobra.Command {
	var (
		url   string
		token string
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "List conversations from a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				return fmt.Errorf("--token is required")
			}

			client := console.NewClient(url, token, log)
			c := console.New(client, log)
			if err := c.Refresh(); err != nil {
				return fmt.Errorf("fetching messages: %w", err)
			}

			printConversations(c)

			if !watch {
				return nil
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			wsURL := "ws" + strings.TrimPrefix(strings.TrimRight(url, "/"), "http") + "/ws/chat"
			log.Info().Msg("watching for new messages, Ctrl-C to stop")
			err := c.Subscribe(ctx, wsURL)
			if ctx.Err() != nil {
				printConversations(c)
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&url, "url", "http://127.0.0.1:5000", "server base URL")
	cmd.Flags().StringVar(&token, "token", "", "admin bearer token")
	cmd.Flags().BoolVar(&watch, "watch", false, "stay connected and fold in live messages")

	return cmd
}

func printConversations(c *console.Console) {
	convs := c.Projection().Conversations()
	if len(convs) == 0 {
		fmt.Println("no conversations")
		return
	}
	for _, conv := range convs {
		last := conv.Messages[len(conv.Messages)-1]
		fmt.Printf("%s  %s <%s>  unread=%d  last=%q (%s)\n",
			conv.SessionID, conv.Name, conv.Email, conv.UnreadCount,
			last.Body, conv.LastActivity.Local().Format("2006-01-02 15:04:05"))
	}
}
