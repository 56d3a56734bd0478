package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/notibridge/notibridge/internal/dbus"
)

var capsOpts struct {
	output string
}

// capsReport is the query result in a marshal-friendly shape.
type capsReport struct {
	Name         string   `json:"name" yaml:"name"`
	Vendor       string   `json:"vendor" yaml:"vendor"`
	Version      string   `json:"version" yaml:"version"`
	SpecVersion  string   `json:"spec_version" yaml:"spec_version"`
	Capabilities []string `json:"capabilities" yaml:"capabilities"`
	Forwardable  []string `json:"forwardable" yaml:"forwardable"`
}

var capsCmd = &cobra.Command{
	Use:   "caps",
	Short: "Show host daemon capabilities",
	Long: `Query the host notification daemon for its identity and capabilities,
and show which of those capabilities the bridge advertises to guests.

Capabilities the daemon reports but the bridge withholds (markup,
icons, anything that cannot safely cross the boundary) appear only in
the daemon's own list.

Examples:
  # Human-readable table
  notibridge caps

  # Machine-readable output
  notibridge caps --output json
  notibridge caps -o yaml`,
	RunE: runCaps,
}

func init() {
	rootCmd.AddCommand(capsCmd)

	capsCmd.Flags().StringVarP(&capsOpts.output, "output", "o", "table",
		"Output format (table, json, yaml)")
}

func runCaps(cmd *cobra.Command, args []string) error {
	emitter, err := dbus.NewEmitter(logger)
	if err != nil {
		return fmt.Errorf("failed to connect to notification daemon: %w", err)
	}
	defer emitter.Stop()

	caps := emitter.Capabilities()
	info := emitter.Info()

	report := capsReport{
		Name:         info.Name,
		Vendor:       info.Vendor,
		Version:      info.Version,
		SpecVersion:  info.SpecVersion,
		Capabilities: caps.Strings(),
		Forwardable:  caps.Forwardable(),
	}

	switch strings.ToLower(capsOpts.output) {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "yaml":
		data, err := yaml.Marshal(report)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	case "table":
		printCapsTable(report)
		return nil
	default:
		return fmt.Errorf("invalid output format: %s (use table, json, or yaml)", capsOpts.output)
	}
}

func printCapsTable(r capsReport) {
	label := color.New(color.FgCyan).SprintFunc()

	fmt.Printf("%s %s %s (%s)\n", label("Daemon:"), r.Name, r.Version, r.Vendor)
	fmt.Printf("%s %s\n", label("Spec version:"), r.SpecVersion)
	fmt.Printf("%s %s\n", label("Capabilities:"), joinOrNone(r.Capabilities))
	fmt.Printf("%s %s\n", label("Forwardable:"), joinOrNone(r.Forwardable))
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}
