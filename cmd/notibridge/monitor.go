package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/notibridge/notibridge/internal/dbus"
)

var monitorOpts struct {
	jsonOut bool
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch notification traffic on the session bus",
	Long: `Passively watch Notify and CloseNotification calls and the daemon's
signals on the session bus. Nothing is forwarded or modified; this is a
debugging aid for checking what the relay and other clients are doing.

Runs until interrupted.

Examples:
  # Human-readable stream
  notibridge monitor

  # JSON lines, one object per observed event
  notibridge monitor --json`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)

	monitorCmd.Flags().BoolVar(&monitorOpts.jsonOut, "json", false,
		"Emit JSON lines instead of the human-readable stream")
}

// monitorRecord is one observed occurrence in JSON lines output.
type monitorRecord struct {
	Time    time.Time `json:"time"`
	Type    string    `json:"type"`
	Sender  string    `json:"sender,omitempty"`
	ID      uint32    `json:"id,omitempty"`
	AppName string    `json:"app_name,omitempty"`
	Summary string    `json:"summary,omitempty"`
	Body    string    `json:"body,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	Key     string    `json:"key,omitempty"`
	Text    string    `json:"text,omitempty"`
}

func runMonitor(cmd *cobra.Command, args []string) error {
	mon := dbus.NewMonitor(logger)

	mon.SetNotifyObserver(func(sender string, n *dbus.Notification) {
		emitRecord(monitorRecord{
			Time:    time.Now(),
			Type:    "notify",
			Sender:  sender,
			ID:      n.ReplacesID,
			AppName: n.AppName,
			Summary: n.Summary,
			Body:    n.Body,
		})
	})
	mon.SetCloseObserver(func(sender string, id uint32) {
		emitRecord(monitorRecord{
			Time:   time.Now(),
			Type:   "close",
			Sender: sender,
			ID:     id,
		})
	})
	mon.SetEventObserver(func(ev dbus.Event) {
		rec := monitorRecord{Time: time.Now(), ID: ev.HostID}
		switch ev.Kind {
		case dbus.EventClosed:
			rec.Type = "closed"
			rec.Reason = ev.Reason.String()
		case dbus.EventAction:
			rec.Type = "action"
			rec.Key = ev.Key
		case dbus.EventReplied:
			rec.Type = "replied"
			rec.Text = ev.Text
		case dbus.EventRestart:
			rec.Type = "restart"
		}
		emitRecord(rec)
	})

	if err := mon.Start(); err != nil {
		return fmt.Errorf("failed to start monitor: %w", err)
	}

	if !monitorOpts.jsonOut {
		fmt.Fprintln(os.Stderr, "Watching notification traffic (Ctrl-C to stop)")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	return mon.Stop()
}

// emitRecord prints one observed occurrence in the selected format.
func emitRecord(rec monitorRecord) {
	if monitorOpts.jsonOut {
		json.NewEncoder(os.Stdout).Encode(rec)
		return
	}

	kindColor := map[string]*color.Color{
		"notify":  color.New(color.FgGreen),
		"close":   color.New(color.FgYellow),
		"closed":  color.New(color.FgYellow),
		"action":  color.New(color.FgCyan),
		"replied": color.New(color.FgCyan),
		"restart": color.New(color.FgRed),
	}[rec.Type]
	// Pad before coloring so escape codes do not skew the columns
	kind := fmt.Sprintf("%-7s", rec.Type)
	if kindColor != nil {
		kind = kindColor.Sprint(kind)
	}

	line := fmt.Sprintf("%s %s", rec.Time.Format("15:04:05.000"), kind)
	if rec.Sender != "" {
		line += " " + rec.Sender
	}
	switch rec.Type {
	case "notify":
		line += fmt.Sprintf(" app=%q replaces=%d summary=%q", rec.AppName, rec.ID, rec.Summary)
	case "close":
		line += fmt.Sprintf(" id=%d", rec.ID)
	case "closed":
		line += fmt.Sprintf(" id=%d reason=%s", rec.ID, rec.Reason)
	case "action":
		line += fmt.Sprintf(" id=%d key=%q", rec.ID, rec.Key)
	case "replied":
		line += fmt.Sprintf(" id=%d text=%q", rec.ID, rec.Text)
	case "restart":
		line += " daemon name owner changed"
	}

	fmt.Println(line)
}
