package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/boucer/prospek360-recovery-engine/internal/autopilot/template"
	"github.com/boucer/prospek360-recovery-engine/internal/core/lifecycle"
	"github.com/boucer/prospek360-recovery-engine/internal/recovery"
)

var confirmedLimit int

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List handled findings that can still be undone",
	Run:   runPending,
}

func init() {
	pendingCmd.Flags().IntVar(&confirmedLimit, "confirmed", 0, "also list this many recently confirmed findings")
	rootCmd.AddCommand(pendingCmd)
}

func runPending(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	app := openStoreApp(cfg)
	defer func() {
		_ = app.Close()
	}()

	ctx := context.Background()
	svc := app.Service()

	items, err := svc.ListPending(ctx)
	if err != nil {
		slog.Error("Failed to list pending findings", "error", err)
		os.Exit(1)
	}
	printHandled(items)

	if confirmedLimit > 0 {
		confirmed, err := svc.ListConfirmed(ctx, confirmedLimit)
		if err != nil {
			slog.Error("Failed to list confirmed findings", "error", err)
			os.Exit(1)
		}
		fmt.Println()
		printHandled(confirmed)
	}
}

func printHandled(items []recovery.HandledItem) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ID\tTYPE\tVALUE\tSTAGE\tHANDLED\tEXPIRES")
	for _, item := range items {
		f := item.Finding
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			f.ID, f.Type, template.FormatAmount(f.ValueCents), lifecycle.StageDescription(item.Stage),
			f.HandledAt.Format(time.RFC3339), item.ExpiresAt.Format(time.RFC3339))
	}
	_ = w.Flush()
}
