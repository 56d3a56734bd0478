package core

import (
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"

	"github.com/notibridge/notibridge/internal/journal"
)

// LineData provides data for custom line templates.
type LineData struct {
	Index        int
	Entry        journal.Entry
	RelativeTime string
	Details      string
}

// NewLineTemplate parses a per-entry output template with helper
// functions (truncate, reltime, urgencyIcon).
func NewLineTemplate(text string) (*template.Template, error) {
	return template.New("line").Funcs(templateFuncs()).Parse(text)
}

// templateFuncs returns template helper functions.
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"truncate": func(s string, maxLen int) string {
			if maxLen <= 0 || len(s) <= maxLen {
				return s
			}
			if maxLen <= 3 {
				return s[:maxLen]
			}
			return s[:maxLen-3] + "..."
		},
		"reltime": func(t time.Time) string {
			return RelativeTime(t)
		},
		"urgencyIcon": func(u *uint8) string {
			switch {
			case u == nil:
				return "-"
			case *u == UrgencyLow:
				return "L"
			case *u == UrgencyCritical:
				return "!"
			default:
				return "-"
			}
		},
	}
}

// FormatLines renders one template line per entry.
func FormatLines(w io.Writer, entries []journal.Entry, tmpl *template.Template) error {
	for i, e := range entries {
		var buf strings.Builder
		data := LineData{
			Index:        i + 1,
			Entry:        e,
			RelativeTime: RelativeTime(e.Time),
			Details:      EntryDetails(e),
		}
		if err := tmpl.Execute(&buf, data); err != nil {
			return fmt.Errorf("rendering entry %d: %w", i+1, err)
		}
		if _, err := fmt.Fprintln(w, buf.String()); err != nil {
			return err
		}
	}
	return nil
}

// DmenuLine formats one entry for dmenu/rofi/fuzzel pipelines. The
// leading index pairs with "journal show <index>" after selection.
func DmenuLine(index int, e journal.Entry) string {
	parts := []string{
		fmt.Sprintf("%d", index),
		RelativeTime(e.Time),
	}
	if e.Peer != "" {
		parts = append(parts, e.Peer)
	}
	details := EntryDetails(e)
	if details == "" {
		details = string(e.Kind)
	}
	parts = append(parts, details)
	return strings.Join(parts, " | ")
}

// RelativeTime returns a compact relative time string.
func RelativeTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}

	d := time.Since(t)

	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	default:
		return fmt.Sprintf("%dw", int(d.Hours()/24/7))
	}
}

// FormatField outputs a specific field from an entry.
func FormatField(e journal.Entry, field string) string {
	switch strings.ToLower(field) {
	case "id":
		return e.ID
	case "time", "ts":
		return e.Time.Format(time.RFC3339)
	case "kind", "type":
		return string(e.Kind)
	case "peer", "vm":
		return e.Peer
	case "app", "app_name", "appname":
		return e.AppName
	case "summary", "title":
		return e.Summary
	case "urgency":
		return UrgencyLabel(e.Urgency)
	case "reason":
		return e.Reason
	case "key", "action_key":
		return e.ActionKey
	case "error":
		return e.Error
	default:
		return EntryDetails(e)
	}
}
