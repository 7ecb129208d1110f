package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/boucer/prospek360-recovery-engine/internal/infra/storage"
)

var undoCmd = &cobra.Command{
	Use:   "undo [finding_id]...",
	Short: "Reopen handled findings that are still inside the undo window",
	Args:  cobra.MinimumNArgs(1),
	Run:   runUndo,
}

func init() {
	rootCmd.AddCommand(undoCmd)
}

func runUndo(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	app := openStoreApp(cfg)
	defer func() {
		_ = app.Close()
	}()

	ctx := context.Background()
	failed := 0
	for _, id := range args {
		err := app.Service().UndoOne(ctx, id)
		switch {
		case err == nil:
			fmt.Printf("Reopened %s\n", id)
		case errors.Is(err, storage.ErrUndoExpired):
			fmt.Printf("%s: undo window expired (use reset-finding)\n", id)
			failed++
		default:
			fmt.Printf("%s: %v\n", id, err)
			failed++
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}
