package commands

import (
	"context"
	"fmt"
	"os"

	"stackharvest/lib/mongoutil"

	"github.com/spf13/cobra"
)

type Config struct {
	Mongo    mongoutil.Config `json:"mongo"`
	ApiKey   string           `json:"api_key"`
	CacheDir string           `json:"cache_dir"`
}

var rootCmd = &cobra.Command{
	Use:   "harvester",
	Short: "harvester pulls tagged questions off stackoverflow and stores their code answers.",
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
