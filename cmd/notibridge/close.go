package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/notibridge/notibridge/internal/dbus"
)

var closeCmd = &cobra.Command{
	Use:   "close <id>",
	Short: "Close a notification by ID",
	Long: `Ask the host daemon to close a notification.

The ID is the one printed by "notibridge send", or any ID visible in
"notibridge monitor" output.

Examples:
  # Close notification 42
  notibridge close 42

  # Send and close after five seconds
  id=$(notibridge send "Working...") && sleep 5 && notibridge close "$id"`,
	Args: cobra.ExactArgs(1),
	RunE: runClose,
}

func init() {
	rootCmd.AddCommand(closeCmd)
}

func runClose(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid notification ID: %s", args[0])
	}

	emitter, err := dbus.NewEmitter(logger)
	if err != nil {
		return fmt.Errorf("failed to connect to notification daemon: %w", err)
	}
	defer emitter.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return emitter.CloseNotification(ctx, uint32(id))
}
