package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/researchdesk/internal/config"
	"github.com/zulandar/researchdesk/internal/db"
	"github.com/zulandar/researchdesk/internal/notify"
	"github.com/zulandar/researchdesk/internal/server"
	"gorm.io/gorm"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
		ephemeral  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the researchdesk API server",
		Long:  "Launches the JSON API with the SSE progress stream and the\nscheduled stale-research sweep.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port, ephemeral)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to researchdesk config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (defaults to config)")
	cmd.Flags().BoolVar(&ephemeral, "ephemeral", false, "use a throwaway in-memory database")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int, ephemeral bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	gormDB, err := openServeDB(cfg, ephemeral)
	if err != nil {
		return err
	}
	if port == 0 {
		port = cfg.Server.Port
	}

	notifier, err := buildNotifier(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	return server.Start(ctx, server.StartOpts{
		DB:            gormDB,
		Port:          port,
		Out:           cmd.OutOrStdout(),
		SweepSchedule: cfg.Server.SweepSchedule,
		StaleMinutes:  cfg.Server.StaleMinutes,
		Notifier:      notifier,
	})
}

// openServeDB picks the server's database handle. Ephemeral mode never
// touches the configured engine, so no on-disk file is created.
func openServeDB(cfg *config.Config, ephemeral bool) (*gorm.DB, error) {
	if ephemeral {
		gormDB, err := db.OpenMemory()
		if err != nil {
			return nil, err
		}
		if err := db.AutoMigrate(gormDB); err != nil {
			return nil, err
		}
		return gormDB, nil
	}
	return db.Open(cfg.Database)
}

// buildNotifier assembles the fan-out notifier from config. Platforms
// without a token configured are skipped.
func buildNotifier(cfg *config.Config) (notify.Notifier, error) {
	var notifiers []notify.Notifier

	if cfg.Notify.Slack.BotToken != "" {
		s, err := notify.NewSlack(notify.SlackOpts{
			BotToken:  cfg.Notify.Slack.BotToken,
			ChannelID: cfg.Notify.Slack.ChannelID,
		})
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, s)
	}
	if cfg.Notify.Discord.BotToken != "" {
		d, err := notify.NewDiscord(notify.DiscordOpts{
			BotToken:  cfg.Notify.Discord.BotToken,
			ChannelID: cfg.Notify.Discord.ChannelID,
		})
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, d)
	}

	if len(notifiers) == 0 {
		return nil, nil
	}
	return notify.NewMulti(notifiers...), nil
}
