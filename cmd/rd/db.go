package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"
	"github.com/zulandar/researchdesk/internal/config"
	"github.com/zulandar/researchdesk/internal/db"
	"gorm.io/gorm"
)

const defaultConfigPath = "researchdesk.yaml"

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBInitCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the researchdesk database",
		Long:  "Opens the configured database and migrates all tables. Safe to re-run.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to researchdesk config file")
	return cmd
}

func runDBInit(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	switch cfg.Database.Driver {
	case "mysql":
		fmt.Fprintf(out, "Initialized %s on %s:%d\n", cfg.Database.Name, cfg.Database.Host, cfg.Database.Port)
	default:
		fmt.Fprintf(out, "Initialized %s\n", cfg.Database.Path)
	}
	return nil
}

// loadConfig reads the config file. A missing file falls back to
// defaults so `rd` works out of the box.
func loadConfig(configPath string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

// connectFromConfig loads config and opens the configured database.
func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	gormDB, err := db.Open(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return cfg, gormDB, nil
}
