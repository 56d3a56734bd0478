package main

import (
	"github.com/spf13/cobra"

	"github.com/notibridge/notibridge/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive journal browser",
	Long: `Launch the interactive TUI for browsing the relay's bridge journal.

The browser follows the journal file live, so entries appear as the
relay forwards, rejects, and closes notifications.

Key bindings:
  j/k, ↑/↓  - Navigate the list
  enter     - View entry details
  /         - Search (plain text or filter expressions like peer=workvm)
  a         - Toggle connect/disconnect session events
  c         - Copy the selected entry as JSON
  s         - Copy the selected entry's summary
  r         - Reload the journal
  ?         - Help
  q         - Quit

This is also the default command when notibridge is run with no
arguments.`,
	RunE: runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	return tui.Run(tui.RunOptions{
		JournalPath: journalPath(),
	})
}
