package core

import (
	"fmt"

	"github.com/notibridge/notibridge/internal/journal"
)

// EntryDetails renders the activity of one entry as a single line.
func EntryDetails(e journal.Entry) string {
	switch e.Kind {
	case journal.KindForwarded:
		s := e.Summary
		if u := UrgencyLabel(e.Urgency); u != "" && u != "normal" {
			s += " (" + u + ")"
		}
		return s
	case journal.KindRejected:
		if e.Error != "" {
			return e.Error
		}
		return e.Summary
	case journal.KindDismissed:
		return fmt.Sprintf("guest #%d (%s)", e.GuestID, e.Reason)
	case journal.KindAction:
		return fmt.Sprintf("guest #%d key=%q", e.GuestID, e.ActionKey)
	case journal.KindReplied:
		return fmt.Sprintf("guest #%d", e.GuestID)
	case journal.KindRestart:
		return "host daemon restarted"
	case journal.KindConnect:
		return "agent connected"
	case journal.KindDisconnect:
		return "agent disconnected"
	default:
		return ""
	}
}
