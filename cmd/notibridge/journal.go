package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/notibridge/notibridge/internal/core"
	"github.com/notibridge/notibridge/internal/journal"
)

var journalListOpts struct {
	since    string
	peer     string
	app      string
	kind     string
	filter   string
	limit    int
	sortBy   string
	order    string
	output   string
	template string
	peers    bool
}

var journalShowOpts struct {
	field string
}

var journalPruneOpts struct {
	olderThan string
	keep      int
	dryRun    bool
}

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect the relay's bridge journal",
	Long: `Inspect the journal the relay keeps of bridge activity: forwarded and
rejected notifications, dismissals, invoked actions, and session events.

Without a subcommand, lists entries.`,
	RunE: runJournalList,
}

var journalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List journal entries",
	Long: `List journal entries, newest first.

Examples:
  # Everything the relay has logged
  notibridge journal list

  # Rejections from one guest in the last day
  notibridge journal list --peer workvm --kind rejected --since 1d

  # Filter expressions combine conditions
  notibridge journal list --filter "peer=workvm,urgency>=normal"

  # Machine-readable output
  notibridge journal list --output json

  # One line per entry for dmenu/rofi/fuzzel pipelines
  notibridge journal list -o dmenu | fuzzel --dmenu

  # Custom per-entry template
  notibridge journal list --template "{{.Entry.Peer}}: {{.Details}} ({{.RelativeTime}})"

  # Peers that appear in the journal
  notibridge journal list --peers`,
	RunE: runJournalList,
}

var journalShowCmd = &cobra.Command{
	Use:   "show <index|id>",
	Short: "Show one journal entry",
	Long: `Show a single journal entry as JSON, looked up by its 1-based index in
the current listing or by its entry ID.

Examples:
  # Third entry of the listing
  notibridge journal show 3

  # By entry ID
  notibridge journal show 01JADX5SRNVH4B1T8S0VQW3KXX

  # Single field for scripting
  notibridge journal show 3 --field summary`,
	Args: cobra.ExactArgs(1),
	RunE: runJournalShow,
}

var journalPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove old journal entries",
	Long: `Remove old entries from the journal file.

Examples:
  # Remove entries older than 7 days
  notibridge journal prune --older-than 7d

  # Keep only the 500 most recent entries
  notibridge journal prune --keep 500

  # Preview what would be removed (dry run)
  notibridge journal prune --older-than 48h --dry-run`,
	RunE: runJournalPrune,
}

var journalClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all journal entries",
	RunE:  runJournalClear,
}

func init() {
	journalCmd.AddCommand(journalListCmd)
	journalCmd.AddCommand(journalShowCmd)
	journalCmd.AddCommand(journalPruneCmd)
	journalCmd.AddCommand(journalClearCmd)
	rootCmd.AddCommand(journalCmd)

	for _, cmd := range []*cobra.Command{journalCmd, journalListCmd} {
		cmd.Flags().StringVar(&journalListOpts.since, "since", "",
			"Show entries from the last duration (e.g. 1h, 7d, 1w)")
		cmd.Flags().StringVar(&journalListOpts.peer, "peer", "",
			"Filter by peer name (exact match)")
		cmd.Flags().StringVar(&journalListOpts.app, "app", "",
			"Filter by application name (exact match)")
		cmd.Flags().StringVar(&journalListOpts.kind, "kind", "",
			"Filter by entry kind (forwarded, rejected, dismissed, action, replied, restart, connect, disconnect)")
		cmd.Flags().StringVar(&journalListOpts.filter, "filter", "",
			"Filter expression (e.g. \"peer=workvm,urgency>=normal\")")
		cmd.Flags().IntVarP(&journalListOpts.limit, "limit", "n", 0,
			"Maximum number of entries to show (0=unlimited)")
		cmd.Flags().StringVar(&journalListOpts.sortBy, "sort", "time",
			"Sort by field (time, peer, app, kind, urgency)")
		cmd.Flags().StringVar(&journalListOpts.order, "order", "desc",
			"Sort order (asc, desc)")
		cmd.Flags().StringVarP(&journalListOpts.output, "output", "o", "table",
			"Output format (table, json, yaml, dmenu)")
		cmd.Flags().StringVar(&journalListOpts.template, "template", "",
			"Render each entry with a Go template (overrides --output)")
		cmd.Flags().BoolVar(&journalListOpts.peers, "peers", false,
			"Print unique peer names instead of entries")
	}

	journalShowCmd.Flags().StringVar(&journalShowOpts.field, "field", "",
		"Print a single field (id, time, kind, peer, app, summary, urgency, reason, key, error)")

	journalPruneCmd.Flags().StringVar(&journalPruneOpts.olderThan, "older-than", "",
		"Remove entries older than this duration (e.g. 48h, 7d, 1w)")
	journalPruneCmd.Flags().IntVar(&journalPruneOpts.keep, "keep", 0,
		"Keep only the N most recent entries (0=unlimited)")
	journalPruneCmd.Flags().BoolVar(&journalPruneOpts.dryRun, "dry-run", false,
		"Show what would be removed without actually removing")
}

// loadJournal reads the journal file. A missing file reads as empty.
func loadJournal() ([]journal.Entry, error) {
	entries, err := journal.ReadFile(journalPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	return entries, nil
}

func runJournalList(cmd *cobra.Command, args []string) error {
	entries, err := loadJournal()
	if err != nil {
		return err
	}

	entries, err = filterEntries(entries)
	if err != nil {
		return err
	}

	if journalListOpts.peers {
		for _, peer := range core.UniquePeers(entries) {
			fmt.Println(peer)
		}
		return nil
	}

	field, _ := core.ParseSortField(journalListOpts.sortBy)
	order, _ := core.ParseSortOrder(journalListOpts.order)
	core.Sort(entries, core.SortOptions{Field: field, Order: order})

	// Limit applies after sorting so "newest N" means what it says
	if journalListOpts.limit > 0 && len(entries) > journalListOpts.limit {
		entries = entries[:journalListOpts.limit]
	}

	if journalListOpts.template != "" {
		tmpl, err := core.NewLineTemplate(journalListOpts.template)
		if err != nil {
			return fmt.Errorf("invalid template: %w", err)
		}
		return core.FormatLines(os.Stdout, entries, tmpl)
	}

	switch strings.ToLower(journalListOpts.output) {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "yaml":
		data, err := yaml.Marshal(entries)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	case "dmenu":
		for i, e := range entries {
			fmt.Println(core.DmenuLine(i+1, e))
		}
		return nil
	case "table":
		printEntriesTable(entries)
		return nil
	default:
		return fmt.Errorf("invalid output format: %s (use table, json, yaml, or dmenu)", journalListOpts.output)
	}
}

// filterEntries applies the list flags to the loaded entries.
func filterEntries(entries []journal.Entry) ([]journal.Entry, error) {
	opts := core.FilterOptions{
		Peer: journalListOpts.peer,
		App:  journalListOpts.app,
	}

	if journalListOpts.since != "" {
		d, err := core.ParseDuration(journalListOpts.since)
		if err != nil {
			return nil, fmt.Errorf("invalid since duration: %w", err)
		}
		opts.Since = d
	}

	if journalListOpts.kind != "" {
		k, err := core.ParseKind(journalListOpts.kind)
		if err != nil {
			return nil, err
		}
		opts.Kind = k
	}

	entries = core.Filter(entries, opts)

	if journalListOpts.filter != "" {
		expr, err := core.ParseFilter(journalListOpts.filter)
		if err != nil {
			return nil, fmt.Errorf("invalid filter: %w", err)
		}
		entries = core.FilterWithExpr(entries, expr)
	}

	return entries, nil
}

func printEntriesTable(entries []journal.Entry) {
	if len(entries) == 0 {
		fmt.Println("No journal entries")
		return
	}

	header := color.New(color.Bold).SprintFunc()
	fmt.Printf("%s  %s %s %s %s %s\n",
		header("   #"), header(pad("TIME", 16)), header(pad("KIND", 10)),
		header(pad("PEER", 12)), header(pad("APP", 14)), header("DETAILS"))

	for i, e := range entries {
		fmt.Printf("%4d  %s %s %s %s %s\n",
			i+1,
			pad(humanize.Time(e.Time), 16),
			kindCell(e.Kind),
			pad(e.Peer, 12),
			pad(e.AppName, 14),
			core.EntryDetails(e))
	}
}

// pad truncates or right-pads a value to the column width.
func pad(s string, width int) string {
	r := []rune(s)
	if len(r) > width {
		return string(r[:width-1]) + "…"
	}
	return s + strings.Repeat(" ", width-len(r))
}

// kindCell renders the kind column, padded before coloring so escape
// codes do not skew the columns.
func kindCell(k journal.Kind) string {
	cell := pad(string(k), 10)
	c := kindColor(k)
	if c == nil {
		return cell
	}
	return c.Sprint(cell)
}

func kindColor(k journal.Kind) *color.Color {
	switch k {
	case journal.KindForwarded:
		return color.New(color.FgGreen)
	case journal.KindRejected:
		return color.New(color.FgRed)
	case journal.KindDismissed:
		return color.New(color.FgYellow)
	case journal.KindAction, journal.KindReplied:
		return color.New(color.FgCyan)
	case journal.KindRestart:
		return color.New(color.FgMagenta)
	default:
		return nil
	}
}

func runJournalShow(cmd *cobra.Command, args []string) error {
	entries, err := loadJournal()
	if err != nil {
		return err
	}

	// Match the default listing so indexes line up
	core.Sort(entries, core.DefaultSortOptions())

	var entry *journal.Entry
	if idx, err := strconv.Atoi(args[0]); err == nil && idx > 0 {
		entry = core.LookupByIndex(entries, idx)
	} else {
		entry = core.LookupByID(entries, args[0])
	}
	if entry == nil {
		return fmt.Errorf("journal entry %s not found", args[0])
	}

	if journalShowOpts.field != "" {
		fmt.Println(core.FormatField(*entry, journalShowOpts.field))
		return nil
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(entry)
}

func runJournalPrune(cmd *cobra.Command, args []string) error {
	if journalPruneOpts.olderThan == "" && journalPruneOpts.keep == 0 {
		return fmt.Errorf("specify --older-than or --keep")
	}

	var olderThan time.Duration
	if journalPruneOpts.olderThan != "" {
		d, err := core.ParseDuration(journalPruneOpts.olderThan)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		olderThan = d
	}

	if journalPruneOpts.dryRun {
		return previewPrune(olderThan, journalPruneOpts.keep)
	}

	jnl, err := journal.Open(journalPath())
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer jnl.Close()

	removed, err := jnl.Prune(olderThan, journalPruneOpts.keep)
	if err != nil {
		return err
	}

	fmt.Printf("Removed %d entr%s\n", removed, pluralY(removed))
	return nil
}

// previewPrune reports what Prune would drop without rewriting the file.
// Mirrors Prune: the age filter runs first, then keep trims the survivors
// to the newest N.
func previewPrune(olderThan time.Duration, keep int) error {
	entries, err := loadJournal()
	if err != nil {
		return err
	}

	kept := make([]journal.Entry, 0, len(entries))
	if olderThan > 0 {
		cutoff := time.Now().Add(-olderThan)
		for _, e := range entries {
			if e.Time.Before(cutoff) {
				continue
			}
			kept = append(kept, e)
		}
	} else {
		kept = append(kept, entries...)
	}
	if keep > 0 && len(kept) > keep {
		kept = kept[len(kept)-keep:]
	}

	keptIDs := make(map[string]bool, len(kept))
	for _, e := range kept {
		keptIDs[e.ID] = true
	}
	var toRemove []journal.Entry
	for _, e := range entries {
		if !keptIDs[e.ID] {
			toRemove = append(toRemove, e)
		}
	}

	if len(toRemove) == 0 {
		fmt.Println("No entries to remove")
		return nil
	}

	fmt.Printf("Would remove %d entr%s:\n", len(toRemove), pluralY(len(toRemove)))
	for i, e := range toRemove {
		if i >= 10 {
			fmt.Printf("  ... and %d more\n", len(toRemove)-10)
			break
		}
		fmt.Printf("  - %s %s %s (%s)\n", e.Kind, e.Peer, e.Summary, humanize.Time(e.Time))
	}
	return nil
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}

func runJournalClear(cmd *cobra.Command, args []string) error {
	jnl, err := journal.Open(journalPath())
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer jnl.Close()

	if err := jnl.Clear(); err != nil {
		return err
	}

	fmt.Println("Journal cleared")
	return nil
}
