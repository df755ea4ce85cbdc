package cli

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/programmedstyle/livechat/internal/widget"
)

func newChatCmd() *cobra.Command {
	var (
		url   string
		name  string
		email string
		fresh bool
	)

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Send a visitor message and wait briefly for a reply",
		Long:  "chat drives the visitor widget from the terminal: it keeps its session and transcript under ~/.livechat/widget, so repeated invocations continue the same conversation.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.Join(args, " ")

			if err := paths.EnsureDirs(); err != nil {
				return fmt.Errorf("preparing widget state dir: %w", err)
			}
			statePath := filepath.Join(paths.Widget, "state.json")

			w, err := widget.New(
				widget.NewFileStore(statePath),
				widget.NewHTTPTranscriptSource(url),
				nil,
				log,
			)
			if err != nil {
				return fmt.Errorf("loading widget state: %w", err)
			}

			if fresh {
				if err := w.NewChat(); err != nil {
					return err
				}
			}

			if w.State() == widget.StateCollectingIdentity {
				if name == "" || email == "" {
					return fmt.Errorf("--name and --email are required to start a chat")
				}
				if err := w.Start(name, email); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			wsURL := "ws" + strings.TrimPrefix(strings.TrimRight(url, "/"), "http") + "/ws/chat"
			conn, err := widget.Connect(ctx, w, wsURL)
			if err != nil {
				return err
			}
			defer conn.Close()

			before := len(w.Transcript())
			if err := w.Send(message); err != nil {
				return err
			}

			// Wait for the ack, then linger a moment for an operator reply.
			deadline := time.Now().Add(10 * time.Second)
			for len(w.Transcript()) <= before && time.Now().Before(deadline) {
				if w.LastError() != "" {
					return fmt.Errorf("message rejected: %s", w.LastError())
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(50 * time.Millisecond):
				}
			}

			for _, m := range w.Transcript() {
				author := m.Name
				if m.IsAdmin {
					author = "[" + author + "]"
				}
				fmt.Printf("%s  %s: %s\n", m.Timestamp.Local().Format("15:04:05"), author, m.Body)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "\n[session=%s]\n", w.SessionID())
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "http://127.0.0.1:5000", "server base URL")
	cmd.Flags().StringVar(&name, "name", "", "visitor name (first message only)")
	cmd.Flags().StringVar(&email, "email", "", "visitor email (first message only)")
	cmd.Flags().BoolVar(&fresh, "fresh", false, "abandon the stored session and start a new chat")

	return cmd
}
