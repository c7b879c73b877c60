package commands

import (
	"fmt"
	"log/slog"
	"os"

	"stackharvest/lib/configutil"
	"stackharvest/lib/mongoutil"
	"stackharvest/lib/scrapers/stackoverflow"
	"stackharvest/lib/serviceutil"
	"stackharvest/services/harvest"
	"stackharvest/services/harvest/store"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	harvestDrop         *bool
	harvestKeepLowScore *bool
	harvestNoCache      *bool
	harvestPage         *int
	harvestPageSize     *int
	harvestMaxPages     *int
	harvestTag          *string
)

func init() {
	harvestDrop = harvestCmd.Flags().Bool("drop", false, "Drop both collections before harvesting.")
	harvestKeepLowScore = harvestCmd.Flags().Bool("keep-low-score", false, "Keep questions whose score is not positive.")
	harvestNoCache = harvestCmd.Flags().Bool("no-cache", false, "Disable the http response cache.")
	harvestPage = harvestCmd.Flags().Int("page", 1, "The listing page to start from.")
	harvestPageSize = harvestCmd.Flags().Int("pagesize", 100, "Questions per listing page, at most 100.")
	harvestMaxPages = harvestCmd.Flags().Int("max-pages", 10, "Maximum amount of listing pages to pull.")
	harvestTag = harvestCmd.Flags().String("tag", "c", "The tag questions must carry.")
	rootCmd.AddCommand(harvestCmd)
}

var harvestCmd = &cobra.Command{
	Use:   "harvest [--drop] [--page <n>] [--pagesize <n>] [--max-pages <n>] [--tag <tag>]",
	Short: "Pulls question pages off the API and scrapes code answers for each question.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := configutil.ReadConfig[Config]("config.json5")
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}

		db, cleanup, err := mongoutil.Open(cmd.Context(), cfg.Mongo)
		if err != nil {
			serviceutil.Fatal("failed to connect to mongodb", err)
		}
		defer cleanup()

		client, err := stackoverflow.NewClient(stackoverflow.ClientOptions{
			CacheDir: cfg.CacheDir,
			NoCache:  *harvestNoCache,
		})
		if err != nil {
			serviceutil.Fatal("failed to initialize client", err)
		}

		service := harvest.NewService(client, store.New(db))
		slog.Info(
			"starting harvest",
			"tag", *harvestTag,
			"page", *harvestPage,
			"max_pages", *harvestMaxPages,
		)
		report, err := service.Run(cmd.Context(), harvest.RunOptions{
			Questions: stackoverflow.QuestionsOptions{
				PageSize:  *harvestPageSize,
				StartPage: *harvestPage,
				MaxPages:  *harvestMaxPages,
				Tag:       *harvestTag,
				ApiKey:    cfg.ApiKey,
			},
			Drop:          *harvestDrop,
			KeepLowScore:  *harvestKeepLowScore,
			QuestionDelay: harvest.DefaultQuestionDelay,
		})
		if err != nil {
			serviceutil.Fatal("harvest failed", err)
		}

		renderReport(report)
	},
}

func renderReport(report harvest.RunReport) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"pages pulled", report.Pages},
		{"questions seen", report.QuestionsSeen},
		{"questions filtered", report.QuestionsFiltered},
		{"questions without code answers", report.QuestionsMarked},
		{"questions stored", report.QuestionsStored},
		{"answers stored", report.AnswersStored},
		{"duration", fmt.Sprintf("%.1fs", report.Duration.Seconds())},
	})
	t.SetStyle(table.StyleRounded)
	t.Render()
}
