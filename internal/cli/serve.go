package cli

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/programmedstyle/livechat/internal/config"
	"github.com/programmedstyle/livechat/internal/gateway"
	"github.com/programmedstyle/livechat/internal/relay"
	"github.com/programmedstyle/livechat/internal/store"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat relay server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			if port != 0 {
				cfg.Server.Port = port
			}
			if bind != "" {
				cfg.Server.Bind = bind
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			if err := paths.EnsureDirs(); err != nil {
				return fmt.Errorf("preparing data directories: %w", err)
			}

			var ms store.MessageStore
			if cfg.Storage.Driver == "memory" {
				ms = store.NewMemoryMessageStore()
				log.Info().Msg("using in-memory message store")
			} else {
				dbPath := cfg.Storage.Path
				if dbPath == "" {
					dbPath = filepath.Join(paths.Data, "livechat.db")
				}
				db, err := store.Open(dbPath, log)
				if err != nil {
					return fmt.Errorf("opening database: %w", err)
				}
				defer db.Close()
				ms = store.NewSQLiteMessageStore(db)
				log.Info().Str("path", dbPath).Msg("using SQLite message store")
			}

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rl := relay.New(ms, log, cfg.Server.AllowedOrigins)
			srv := gateway.New(cfg, ms, rl, log)

			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override server port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (auto, lan, loopback, custom)")

	return cmd
}
