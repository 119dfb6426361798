// Package main is the entry point for tareas, a terminal client for the
// tareas task service.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/tgienger/tareas/internal/api"
	"github.com/tgienger/tareas/internal/app"
	"github.com/tgienger/tareas/internal/config"
	"github.com/tgienger/tareas/internal/db"
	"github.com/tgienger/tareas/internal/session"
	"github.com/tgienger/tareas/internal/ui"
)

// Version information set via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	configPath string
	apiURL     string
	dataDir    string
	logLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tareas",
		Short: "Terminal client for the tareas task service",
		Long: `tareas lets you sign in to the tareas service and manage your tasks
from the terminal.

Environment variables:
  TAREAS_CONFIG     - Path to the config file (default: ~/.config/tareas/config.yaml)
  TAREAS_API_URL    - Base URL of the task service
  TAREAS_DATA_DIR   - Directory for the local database and log
  TAREAS_LOG_LEVEL  - debug, info, warn or error`,
		SilenceUsage: true,
		RunE:         runApp,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", getEnvOrDefault("TAREAS_CONFIG", config.DefaultPath()), "Config file path")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", getEnvOrDefault("TAREAS_API_URL", ""), "Task service base URL")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", getEnvOrDefault("TAREAS_DATA_DIR", ""), "Data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", getEnvOrDefault("TAREAS_LOG_LEVEL", ""), "Log level")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "logout",
			Short: "Forget the stored session",
			RunE:  runLogout,
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Printf("tareas %s (commit: %s, built: %s)\n", version, commit, date)
			},
		},
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// env holds what every command needs
type env struct {
	cfg    config.Config
	db     *db.DB
	logger *log.Logger
	store  *session.Store
	close  func()
}

// setup loads the config, opens the database and the log file
func setup() (*env, error) {
	cfg, err := config.LoadFromPath(configPath)
	if err != nil {
		return nil, err
	}
	cfg.Merge(config.Config{APIURL: apiURL, DataDir: dataDir, LogLevel: logLevel})

	database, err := db.New(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// The TUI owns the terminal, so logs go to a file
	logFile, err := os.OpenFile(filepath.Join(cfg.DataDir, "tareas.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("open log file: %w", err)
	}
	logger := log.NewWithOptions(logFile, log.Options{
		Prefix:          "tareas",
		Level:           cfg.Level(),
		ReportTimestamp: true,
	})

	return &env{
		cfg:    cfg,
		db:     database,
		logger: logger,
		store:  session.NewStore(database, cfg.APIURL, logger.WithPrefix("session")),
		close: func() {
			database.Close()
			logFile.Close()
		},
	}, nil
}

func runApp(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	e.logger.Info("starting", "version", version, "api", e.cfg.APIURL, "data_dir", e.cfg.DataDir)

	client := api.New(api.Config{
		BaseURL: e.cfg.APIURL,
		Auth:    e.store,
		Logger:  e.logger.WithPrefix("api"),
	})
	ctrl := app.New(e.store, client, e.db, e.logger.WithPrefix("app"))

	p := tea.NewProgram(ui.NewApp(ctrl), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		e.logger.Error("application error", "error", err)
		return fmt.Errorf("run application: %w", err)
	}
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	e.store.Clear()
	fmt.Println("Sesión cerrada")
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
