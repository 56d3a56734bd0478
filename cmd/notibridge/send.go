package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/notibridge/notibridge/internal/core"
	"github.com/notibridge/notibridge/internal/dbus"
	"github.com/notibridge/notibridge/internal/wire"
)

var sendOpts struct {
	appName       string
	urgency       string
	category      string
	expireTimeout int32
	replaces      uint32
	actions       []string
	transient     bool
	resident      bool
	suppressSound bool
	prefix        string
	wait          bool
}

var sendCmd = &cobra.Command{
	Use:   "send <summary> [body]",
	Short: "Send a notification through the bridge delivery path",
	Long: `Send a notification to the host daemon through the same sanitization
and capability filtering the relay applies to guest traffic.

The assigned notification ID is printed to stdout.

Examples:
  # Simple notification
  notibridge send "Build finished"

  # With body, urgency and a summary prefix
  notibridge send "Disk almost full" "3% left on /home" --urgency critical --prefix "[dom0] "

  # Replace an earlier notification
  notibridge send "Download: 80%" --replaces 42

  # Offer actions and wait for the user to pick one
  notibridge send "Incoming call" --action accept=Accept --action decline=Decline --wait`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringVarP(&sendOpts.appName, "app-name", "a", "",
		"Application name to report (default: notibridge)")
	sendCmd.Flags().StringVarP(&sendOpts.urgency, "urgency", "u", "",
		"Urgency level (low, normal, critical)")
	sendCmd.Flags().StringVar(&sendOpts.category, "category", "",
		"Notification category (e.g. email.arrived)")
	sendCmd.Flags().Int32VarP(&sendOpts.expireTimeout, "expire-timeout", "t", -1,
		"Timeout in milliseconds (-1=server default, 0=never expire)")
	sendCmd.Flags().Uint32Var(&sendOpts.replaces, "replaces", 0,
		"ID of an earlier notification to replace")
	sendCmd.Flags().StringArrayVar(&sendOpts.actions, "action", nil,
		"Action as key=label (repeatable)")
	sendCmd.Flags().BoolVar(&sendOpts.transient, "transient", false,
		"Mark the notification transient (bypass history)")
	sendCmd.Flags().BoolVar(&sendOpts.resident, "resident", false,
		"Keep the notification after an action is invoked")
	sendCmd.Flags().BoolVar(&sendOpts.suppressSound, "suppress-sound", false,
		"Ask the daemon not to play a sound")
	sendCmd.Flags().StringVar(&sendOpts.prefix, "prefix", "",
		"Prefix prepended to the summary after sanitization")
	sendCmd.Flags().BoolVar(&sendOpts.wait, "wait", false,
		"Wait until the notification is closed; print an invoked action key")
}

func runSend(cmd *cobra.Command, args []string) error {
	n := &wire.Notify{
		Seq:           1,
		Summary:       args[0],
		AppName:       sendOpts.appName,
		Category:      sendOpts.category,
		ExpireTimeout: sendOpts.expireTimeout,
		SuppressSound: sendOpts.suppressSound,
		Transient:     sendOpts.transient,
		Resident:      sendOpts.resident,
	}
	if len(args) > 1 {
		n.Body = args[1]
	}

	if sendOpts.urgency != "" {
		u, err := core.ParseUrgency(sendOpts.urgency)
		if err != nil {
			return err
		}
		n.Urgency = &u
	}

	actions, err := parseActions(sendOpts.actions)
	if err != nil {
		return err
	}
	n.Actions = actions

	policy := dbus.Policy{
		SummaryPrefix:  sendOpts.prefix,
		AppName:        "notibridge",
		ForwardAppName: true,
	}

	emitter, err := dbus.NewEmitter(logger)
	if err != nil {
		return fmt.Errorf("failed to connect to notification daemon: %w", err)
	}
	defer emitter.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id, err := emitter.Send(ctx, n, sendOpts.replaces, policy)
	if err != nil {
		return err
	}

	fmt.Println(id)

	if sendOpts.wait {
		return waitForOutcome(emitter, id)
	}
	return nil
}

// parseActions turns repeated key=label flags into the protocol's
// alternating key, label list. A bare key doubles as its own label.
func parseActions(specs []string) ([]string, error) {
	var actions []string
	for _, spec := range specs {
		key, label, found := strings.Cut(spec, "=")
		if key == "" {
			return nil, fmt.Errorf("invalid action: %q", spec)
		}
		if !found {
			label = key
		}
		actions = append(actions, key, label)
	}
	return actions, nil
}

// waitForOutcome blocks until the daemon reports the notification closed.
// An invoked action key is printed to stdout, like dunstify does.
func waitForOutcome(emitter *dbus.Emitter, id uint32) error {
	for ev := range emitter.Events() {
		if ev.HostID != id {
			continue
		}
		switch ev.Kind {
		case dbus.EventAction:
			fmt.Println(ev.Key)
		case dbus.EventReplied:
			fmt.Println(ev.Text)
		case dbus.EventClosed:
			logger.Debug("notification closed", "id", id, "reason", ev.Reason)
			return nil
		}
	}
	return nil
}
