package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var resetFindingCmd = &cobra.Command{
	Use:   "reset-finding [finding_id]",
	Short: "Reopen a handled finding, ignoring the undo window",
	Args:  cobra.ExactArgs(1),
	Run:   runResetFinding,
}

func init() {
	rootCmd.AddCommand(resetFindingCmd)
}

func runResetFinding(cmd *cobra.Command, args []string) {
	id := args[0]

	cfg := loadConfig()
	app := openStoreApp(cfg)
	defer func() {
		_ = app.Close()
	}()

	if err := app.Service().Reset(context.Background(), id); err != nil {
		slog.Error("Failed to reset finding", "findingID", id, "error", err)
		os.Exit(1)
	}

	fmt.Printf("Successfully reset finding %s\n", id)
}
