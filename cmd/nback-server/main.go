// Package main is the entry point for the N-back trainer server.
// It only handles dependency injection and server initialization.
// NO business logic belongs here.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MRamiBalles/NBackTrainer/server/internal/infra/storage"
	"github.com/MRamiBalles/NBackTrainer/server/internal/platform/config"
	"github.com/MRamiBalles/NBackTrainer/server/internal/platform/logger"
)

var (
	configPath  string
	profileName string
)

var rootCmd = &cobra.Command{
	Use:   "nback-server",
	Short: "Authoritative server for the N-back memory trainer.",
	Long: `nback-server runs N-back sessions and streams every stimulus, score and ` +
		`feedback change to browser clients over a websocket. It keeps the high score ` +
		`and the session history in SQLite.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&profileName, "profile", "default", "config profile (default, dev)")
}

// loadConfig resolves the profile, file and environment layers.
func loadConfig() (*config.Config, error) {
	base, err := config.Profile(profileName)
	if err != nil {
		return nil, err
	}
	return config.Load(base, configPath)
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.NewLogger(logger.Options{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
	})
}

func openStorage(cfg *config.Config) (*storage.Repositories, error) {
	return storage.Open(cfg.Storage.Driver, cfg.Storage.Path, cfg.Storage.MaxOpenConns)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
