package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/LJTian/NotifyCast/internal/app"
	"github.com/LJTian/NotifyCast/internal/config"
	"github.com/spf13/cobra"
)

var (
	flagAll    bool
	flagSource string
)

// 手动执行流水线的命令行入口：适合调试来源或临时补发
var rootCmd = &cobra.Command{
	Use:           "collect",
	Short:         "Run the news pipeline by hand",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var postCmd = &cobra.Command{
	Use:   "post",
	Short: "Fetch, extract and post the latest entry of the current source",
	Long:  "Without flags the current rotation source is processed and the cursor advances, exactly like a scheduled trigger.",
	RunE:  runPost,
}

var extractCmd = &cobra.Command{
	Use:   "extract URL",
	Short: "Extract the main text of an article page",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract,
}

var feedCmd = &cobra.Command{
	Use:   "feed SOURCE",
	Short: "Show the latest entry of a source's feed",
	Args:  cobra.ExactArgs(1),
	RunE:  runFeed,
}

func init() {
	postCmd.Flags().BoolVar(&flagAll, "all", false, "process every source once, pausing POST_DELAY between posts")
	postCmd.Flags().StringVar(&flagSource, "source", "", "process only the named source")
	postCmd.MarkFlagsMutuallyExclusive("all", "source")

	rootCmd.AddCommand(postCmd, extractCmd, feedCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Printf("collect: %v", err)
		os.Exit(1)
	}
}

func build() (*app.App, error) {
	return app.Build(config.Load(), os.Stdout)
}

func runPost(cmd *cobra.Command, args []string) error {
	a, err := build()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	switch {
	case flagAll:
		reports, err := a.Orchestrator.RunAll(ctx)
		printJSON(reports)
		return err
	case flagSource != "":
		report, err := a.Orchestrator.RunSource(ctx, flagSource)
		printJSON(report)
		return err
	default:
		report, err := a.Orchestrator.RunOnce(ctx)
		printJSON(report)
		return err
	}
}

func runExtract(cmd *cobra.Command, args []string) error {
	a, err := build()
	if err != nil {
		return err
	}
	defer a.Close()

	var (
		selectors []string
		image     string
	)
	if src, ok := a.Orchestrator.SourceForURL(args[0]); ok {
		selectors, image = src.ContentSelectors, src.ImageSelector
		log.Printf("using selectors of %s", src.Name)
	}
	page, err := a.Extractor.ExtractPage(cmd.Context(), args[0], selectors, image)
	if err != nil {
		return err
	}
	printJSON(page)
	return nil
}

func runFeed(cmd *cobra.Command, args []string) error {
	a, err := build()
	if err != nil {
		return err
	}
	defer a.Close()

	for _, src := range a.Sources {
		if src.Name != args[0] {
			continue
		}
		entry, err := a.Feeds.LatestEntry(cmd.Context(), src)
		if err != nil {
			return err
		}
		printJSON(entry)
		return nil
	}
	return fmt.Errorf("unknown source %q", args[0])
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
