package commands

import (
	"log/slog"

	"stackharvest/lib/configutil"
	"stackharvest/lib/scrapers/stackoverflow"
	"stackharvest/lib/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(cleanCmd)
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Removes the on-disk http response cache.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := configutil.ReadConfig[Config]("config.json5")
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		if cfg.CacheDir == "" {
			slog.Info("no cache directory configured, nothing to clean")
			return
		}

		client, err := stackoverflow.NewClient(stackoverflow.ClientOptions{
			CacheDir: cfg.CacheDir,
		})
		if err != nil {
			serviceutil.Fatal("failed to initialize client", err)
		}
		if err := client.CleanCache(); err != nil {
			serviceutil.Fatal("failed to remove cache", err)
		}
		slog.Info("removed response cache", "dir", cfg.CacheDir)
	},
}
