package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/boucer/prospek360-recovery-engine/internal/autopilot/template"
	"github.com/boucer/prospek360-recovery-engine/internal/recovery"
)

var (
	leverLimit    int
	leverStrategy string
	leverEnqueue  bool
)

var leverCmd = &cobra.Command{
	Use:   "lever",
	Short: "Show the finding type to act on next",
	Run:   runLever,
}

func init() {
	leverCmd.Flags().IntVar(&leverLimit, "limit", 10, "number of candidate findings")
	leverCmd.Flags().StringVar(&leverStrategy, "strategy", "COUNT", "ranking strategy: COUNT or VALUE")
	leverCmd.Flags().BoolVar(&leverEnqueue, "enqueue", false, "queue the candidates for the autopilot")
	rootCmd.AddCommand(leverCmd)
}

func runLever(cmd *cobra.Command, args []string) {
	strategy, err := recovery.ParseStrategy(leverStrategy)
	if err != nil {
		fmt.Printf("Invalid strategy: %v\n", err)
		os.Exit(1)
	}

	cfg := loadConfig()
	app := openStoreApp(cfg)
	defer func() {
		_ = app.Close()
	}()

	ctx := context.Background()
	lever, err := app.Service().SelectLever(ctx, leverLimit, strategy)
	if err != nil {
		slog.Error("Failed to select lever", "error", err)
		os.Exit(1)
	}
	if lever == nil {
		fmt.Println("No open findings")
		return
	}

	fmt.Printf("%s: %d findings, %s (%s)\n",
		lever.Type, lever.Count, template.FormatAmount(lever.ValueCents), lever.Strategy)
	fmt.Println(strings.Join(lever.IDs, "\n"))

	if !leverEnqueue {
		return
	}
	res, err := app.Service().Enqueue(ctx, lever.IDs)
	if err != nil {
		slog.Error("Failed to enqueue findings", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Queued %d findings (%s)\n", res.QueuedCount, template.FormatAmount(res.QueuedValueCents))
}
