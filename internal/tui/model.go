// Package tui provides the BubbleTea-based journal browser.
package tui

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/notibridge/notibridge/internal/core"
	"github.com/notibridge/notibridge/internal/journal"
)

// Mode represents the current UI mode.
type Mode int

const (
	ModeList Mode = iota
	ModeDetail
	ModeSearch
	ModeHelp
)

// Model is the main TUI model.
type Model struct {
	// Journal file being browsed
	journalPath string

	// Current mode
	mode Mode

	// Components
	list        list.Model
	viewport    viewport.Model
	searchInput textinput.Model

	// State
	entries      []journal.Entry
	selected     *journal.Entry
	searchQuery  string
	showSessions bool
	width        int
	height       int
	ready        bool

	// Key bindings
	keys KeyMap

	// Status message
	statusMsg string
	statusErr bool

	// Journal change notifications
	refreshCh chan struct{}
}

// entryItem wraps a journal entry for the list component.
type entryItem struct {
	entry journal.Entry
}

func (i entryItem) Title() string {
	return core.EntryDetails(i.entry)
}

func (i entryItem) Description() string {
	e := i.entry
	peer := e.Peer
	if peer == "" {
		peer = "-"
	}
	desc := fmt.Sprintf("[%s] %s", peer, e.Kind)
	if e.AppName != "" {
		desc += " - " + e.AppName
	}
	return desc + " - " + humanize.Time(e.Time)
}

func (i entryItem) FilterValue() string {
	e := i.entry
	return e.Summary + " " + e.AppName + " " + e.Peer
}

// entryDelegate is a custom list delegate for styling entries.
type entryDelegate struct {
	list.DefaultDelegate
}

// newEntryDelegate creates a new entry delegate.
func newEntryDelegate() entryDelegate {
	d := list.NewDefaultDelegate()
	return entryDelegate{DefaultDelegate: d}
}

// isSessionEntry reports whether an entry is connection housekeeping
// rather than notification activity.
func isSessionEntry(e journal.Entry) bool {
	return e.Kind == journal.KindConnect || e.Kind == journal.KindDisconnect
}

// Render renders a list item, dimming session housekeeping entries.
func (d entryDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	ei, ok := item.(entryItem)
	if !ok {
		d.DefaultDelegate.Render(w, m, index, item)
		return
	}

	isSelected := index == m.Index()
	isSession := isSessionEntry(ei.entry)

	itemWidth := m.Width() - d.DefaultDelegate.Styles.NormalTitle.GetHorizontalPadding()

	var titleStyle, descStyle lipgloss.Style

	if isSession {
		// Session events: dimmed/gray color
		if isSelected {
			titleStyle = d.DefaultDelegate.Styles.SelectedTitle.
				Foreground(lipgloss.Color("8"))
			descStyle = d.DefaultDelegate.Styles.SelectedDesc.
				Foreground(lipgloss.Color("8"))
		} else {
			titleStyle = d.DefaultDelegate.Styles.NormalTitle.
				Foreground(lipgloss.Color("8"))
			descStyle = d.DefaultDelegate.Styles.NormalDesc.
				Foreground(lipgloss.Color("8"))
		}
	} else {
		if isSelected {
			titleStyle = d.DefaultDelegate.Styles.SelectedTitle
			descStyle = d.DefaultDelegate.Styles.SelectedDesc
		} else {
			titleStyle = d.DefaultDelegate.Styles.NormalTitle
			descStyle = d.DefaultDelegate.Styles.NormalDesc
		}
	}

	title := truncate(ei.Title(), itemWidth)
	desc := truncate(ei.Description(), itemWidth)

	// Render using the same structure as DefaultDelegate
	fmt.Fprint(w, titleStyle.Render(title))
	fmt.Fprint(w, "\n")
	fmt.Fprint(w, descStyle.Render(desc))
}

// truncate shortens a string to fit the given width.
func truncate(s string, width int) string {
	if width <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}

// New creates a new TUI model browsing the given journal file.
func New(journalPath string) Model {
	delegate := newEntryDelegate()
	l := list.New(nil, delegate, 0, 0)
	l.Title = "Bridge Journal"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()

	searchInput := textinput.New()
	searchInput.Placeholder = "Search or filter (peer=workvm,kind=rejected)..."
	searchInput.CharLimit = 100

	return Model{
		journalPath: journalPath,
		mode:        ModeList,
		list:        l,
		searchInput: searchInput,
		keys:        DefaultKeyMap(),
		refreshCh:   make(chan struct{}, 1),
	}
}

// Init initializes the TUI.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.loadEntries,
		m.watchForChanges,
	)
}

// loadEntries reads the journal file.
func (m Model) loadEntries() tea.Msg {
	entries, err := journal.ReadFile(m.journalPath)
	if err != nil {
		return statusMsg{text: "Failed to read journal: " + err.Error(), isErr: true}
	}
	return entriesLoadedMsg{entries: entries}
}

type entriesLoadedMsg struct {
	entries []journal.Entry
}

// watchForChanges waits for the journal file to change.
func (m Model) watchForChanges() tea.Msg {
	if m.refreshCh == nil {
		return nil
	}
	<-m.refreshCh
	return refreshMsg{}
}

type refreshMsg struct{}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

		// Update component sizes
		m.list.SetSize(msg.Width, msg.Height-2)
		m.viewport = viewport.New(msg.Width, msg.Height-4)
		m.viewport.YPosition = 2

		return m, nil

	case entriesLoadedMsg:
		m.entries = msg.entries
		core.Sort(m.entries, core.DefaultSortOptions())
		m.list.SetItems(m.buildListItems())
		return m, nil

	case refreshMsg:
		return m, tea.Batch(m.loadEntries, m.watchForChanges)

	case statusMsg:
		m.statusMsg = msg.text
		m.statusErr = msg.isErr
		return m, tea.Tick(3*time.Second, func(t time.Time) tea.Msg {
			return clearStatusMsg{}
		})

	case clearStatusMsg:
		m.statusMsg = ""
		m.statusErr = false
		return m, nil

	case copyResultMsg:
		if msg.err != nil {
			return m, func() tea.Msg {
				return statusMsg{text: "Copy failed: " + msg.err.Error(), isErr: true}
			}
		}
		return m, func() tea.Msg {
			return statusMsg{text: "Copied to clipboard", isErr: false}
		}
	}

	// Update child components
	switch m.mode {
	case ModeList:
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		cmds = append(cmds, cmd)
	case ModeDetail:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	case ModeSearch:
		var cmd tea.Cmd
		m.searchInput, cmd = m.searchInput.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

type statusMsg struct {
	text  string
	isErr bool
}

type clearStatusMsg struct{}

type copyResultMsg struct {
	err error
}

// handleKey handles key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Global keys
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.mode == ModeSearch {
			break
		}
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		if m.mode == ModeSearch {
			break
		}
		if m.mode == ModeHelp {
			m.mode = ModeList
		} else {
			m.mode = ModeHelp
		}
		return m, nil
	}

	// Mode-specific keys
	switch m.mode {
	case ModeList:
		return m.handleListKey(msg)
	case ModeDetail:
		return m.handleDetailKey(msg)
	case ModeSearch:
		return m.handleSearchKey(msg)
	case ModeHelp:
		if key.Matches(msg, m.keys.Back) {
			m.mode = ModeList
		}
		return m, nil
	}

	return m, nil
}

// handleListKey handles keys in list mode.
func (m Model) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Enter):
		if item, ok := m.list.SelectedItem().(entryItem); ok {
			m.selected = &item.entry
			m.mode = ModeDetail
			m.viewport.SetContent(m.renderDetail(item.entry))
			m.viewport.GotoTop()
		}
		return m, nil

	case key.Matches(msg, m.keys.Copy):
		if item, ok := m.list.SelectedItem().(entryItem); ok {
			return m, m.copyEntryJSON(item.entry)
		}
		return m, nil

	case key.Matches(msg, m.keys.CopyText):
		if item, ok := m.list.SelectedItem().(entryItem); ok {
			return m, m.copyToClipboard(core.EntryDetails(item.entry))
		}
		return m, nil

	case key.Matches(msg, m.keys.CopyAllJSON):
		entries := m.visibleEntries()
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return m, func() tea.Msg {
				return statusMsg{text: "Failed to marshal JSON: " + err.Error(), isErr: true}
			}
		}
		return m, m.copyToClipboard(string(data))

	case key.Matches(msg, m.keys.CopyAllYAML):
		entries := m.visibleEntries()
		data, err := yaml.Marshal(entries)
		if err != nil {
			return m, func() tea.Msg {
				return statusMsg{text: "Failed to marshal YAML: " + err.Error(), isErr: true}
			}
		}
		return m, m.copyToClipboard(string(data))

	case key.Matches(msg, m.keys.ToggleSessions):
		m.showSessions = !m.showSessions
		m.list.SetItems(m.buildListItems())
		if m.showSessions {
			return m, func() tea.Msg {
				return statusMsg{text: "Showing session events", isErr: false}
			}
		}
		return m, func() tea.Msg {
			return statusMsg{text: "Hiding session events", isErr: false}
		}

	case key.Matches(msg, m.keys.Search):
		// Reset search when entering search mode
		m.searchInput.SetValue("")
		m.searchQuery = ""
		m.list.SetItems(m.buildListItems())
		m.mode = ModeSearch
		m.searchInput.Focus()
		return m, textinput.Blink

	case key.Matches(msg, m.keys.Refresh):
		return m, m.loadEntries
	}

	// Pass to list
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// handleDetailKey handles keys in detail mode.
func (m Model) handleDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.mode = ModeList
		m.selected = nil
		return m, nil

	case key.Matches(msg, m.keys.Copy):
		if m.selected != nil {
			return m, m.copyEntryJSON(*m.selected)
		}
		return m, nil

	case key.Matches(msg, m.keys.CopyText):
		if m.selected != nil {
			return m, m.copyToClipboard(core.EntryDetails(*m.selected))
		}
		return m, nil

	case key.Matches(msg, m.keys.Search):
		// Go to search mode, reset search and show full list
		m.selected = nil
		m.searchInput.SetValue("")
		m.searchQuery = ""
		m.list.SetItems(m.buildListItems())
		m.mode = ModeSearch
		m.searchInput.Focus()
		return m, textinput.Blink
	}

	// Pass to viewport
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// handleSearchKey handles keys in search mode.
func (m Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		// Esc exits search mode and clears search
		m.mode = ModeList
		m.searchInput.Blur()
		m.searchInput.SetValue("")
		m.searchQuery = ""
		m.list.SetItems(m.buildListItems())
		return m, nil

	case tea.KeyEnter:
		// Enter opens the selected entry (like in list mode)
		if item, ok := m.list.SelectedItem().(entryItem); ok {
			m.selected = &item.entry
			m.mode = ModeDetail
			m.searchInput.Blur()
			m.viewport.SetContent(m.renderDetail(item.entry))
			m.viewport.GotoTop()
		}
		return m, nil

	case tea.KeyUp, tea.KeyDown:
		// Allow navigating the list while searching
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}

	// Pass to text input
	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)

	// Live filtering: update search query and rebuild list on each keystroke
	m.searchQuery = m.searchInput.Value()
	m.list.SetItems(m.buildListItems())

	return m, cmd
}

// buildListItems creates list items from current entries.
func (m Model) buildListItems() []list.Item {
	entries := m.filteredEntries()
	items := make([]list.Item, len(entries))
	for i, e := range entries {
		items[i] = entryItem{entry: e}
	}
	return items
}

// filteredEntries applies the session toggle and search query.
func (m Model) filteredEntries() []journal.Entry {
	entries := m.entries

	if !m.showSessions {
		var visible []journal.Entry
		for _, e := range entries {
			if !isSessionEntry(e) {
				visible = append(visible, e)
			}
		}
		entries = visible
	}

	if m.searchQuery != "" {
		entries = applyQuery(entries, m.searchQuery)
	}

	return entries
}

// applyQuery runs a filter expression when the query parses as one,
// otherwise a plain substring search.
func applyQuery(entries []journal.Entry, query string) []journal.Entry {
	if core.IsFilterExpression(query) {
		expr, err := core.ParseFilter(query)
		if err == nil {
			return core.FilterWithExpr(entries, expr)
		}
	}
	return core.Search(entries, query)
}

// visibleEntries returns the entries currently shown in the list.
func (m Model) visibleEntries() []journal.Entry {
	items := m.list.Items()
	entries := make([]journal.Entry, 0, len(items))
	for _, item := range items {
		if ei, ok := item.(entryItem); ok {
			entries = append(entries, ei.entry)
		}
	}
	return entries
}

// renderDetail renders the detail view for an entry.
func (m Model) renderDetail(e journal.Entry) string {
	var s string

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("8"))

	s += headerStyle.Render(core.EntryDetails(e)) + "\n\n"

	s += labelStyle.Render("Kind: ") + string(e.Kind) + "\n"
	if e.Peer != "" {
		s += labelStyle.Render("Peer: ") + e.Peer + "\n"
	}
	if e.AppName != "" {
		s += labelStyle.Render("App: ") + e.AppName + "\n"
	}
	s += labelStyle.Render("Time: ") + e.Time.Format(time.RFC1123) +
		" (" + humanize.Time(e.Time) + ")\n"
	if e.GuestID != 0 {
		s += labelStyle.Render("Guest ID: ") + fmt.Sprintf("%d", e.GuestID) + "\n"
	}
	if e.HostID != 0 {
		s += labelStyle.Render("Host ID: ") + fmt.Sprintf("%d", e.HostID) + "\n"
	}
	if u := core.UrgencyLabel(e.Urgency); u != "" {
		s += labelStyle.Render("Urgency: ") + u + "\n"
	}
	if e.Reason != "" {
		s += labelStyle.Render("Reason: ") + e.Reason + "\n"
	}
	if e.ActionKey != "" {
		s += labelStyle.Render("Action key: ") + e.ActionKey + "\n"
	}
	if e.Summary != "" {
		s += "\n" + labelStyle.Render("Summary:") + "\n" + e.Summary + "\n"
	}
	if e.Error != "" {
		errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
		s += "\n" + labelStyle.Render("Error:") + "\n" + errStyle.Render(e.Error) + "\n"
	}

	s += "\n" + labelStyle.Render("Entry ID: ") + e.ID + "\n"

	return s
}

// copyToClipboard copies text to the system clipboard.
func (m Model) copyToClipboard(text string) tea.Cmd {
	return func() tea.Msg {
		err := copyText(text)
		return copyResultMsg{err: err}
	}
}

// copyEntryJSON copies one entry as indented JSON.
func (m Model) copyEntryJSON(e journal.Entry) tea.Cmd {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return func() tea.Msg {
			return statusMsg{text: "Failed to marshal JSON: " + err.Error(), isErr: true}
		}
	}
	return m.copyToClipboard(string(data))
}

// View renders the TUI.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	switch m.mode {
	case ModeList:
		return m.viewList()
	case ModeDetail:
		return m.viewDetail()
	case ModeSearch:
		return m.viewSearch()
	case ModeHelp:
		return m.viewHelp()
	default:
		return ""
	}
}

func (m Model) viewList() string {
	var s string
	s += m.list.View()

	// Status bar
	if m.statusMsg != "" {
		statusStyle := lipgloss.NewStyle().
			Foreground(lipgloss.Color("7"))
		if m.statusErr {
			statusStyle = statusStyle.Foreground(lipgloss.Color("9"))
		}
		s += "\n" + statusStyle.Render(m.statusMsg)
	} else {
		s += "\n" + m.buildKeybindBar(m.width, "list")
	}

	return s
}

func (m Model) viewDetail() string {
	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Padding(0, 1)

	header := headerStyle.Render("Journal Entry")

	return header + "\n" + m.viewport.View() + "\n" + m.buildKeybindBar(m.width, "detail")
}

func (m Model) viewSearch() string {
	matchCount := len(m.list.Items())
	countStr := fmt.Sprintf("(%d matches)", matchCount)

	// Show search bar at top, then the filtered list, then keybinds
	searchBar := "Search: " + m.searchInput.View() + " " +
		lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(countStr)

	return searchBar + "\n" + m.list.View() + "\n" + m.buildKeybindBar(m.width, "search")
}

func (m Model) viewHelp() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		MarginBottom(1)

	sectionStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("8"))

	keyStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	s := titleStyle.Render("Keyboard Shortcuts") + "\n\n"

	s += sectionStyle.Render("Navigation") + "\n"
	s += keyStyle.Render("  j/k, ↑/↓") + "     Move up/down\n"
	s += keyStyle.Render("  g/G") + "          Go to top/bottom\n"
	s += keyStyle.Render("  pgup/pgdn") + "    Page up/down\n"
	s += "\n"

	s += sectionStyle.Render("Actions") + "\n"
	s += keyStyle.Render("  enter") + "        View entry details\n"
	s += keyStyle.Render("  c") + "            Copy entry as JSON\n"
	s += keyStyle.Render("  s") + "            Copy summary text\n"
	s += keyStyle.Render("  C") + "            Copy all visible as JSON\n"
	s += keyStyle.Render("  alt+c") + "        Copy all visible as YAML\n"
	s += keyStyle.Render("  a") + "            Toggle session events\n"
	s += keyStyle.Render("  /") + "            Search\n"
	s += keyStyle.Render("  r") + "            Reload the journal\n"
	s += "\n"

	s += sectionStyle.Render("Search") + "\n"
	s += "  Plain text matches summary, app, and peer.\n"
	s += "  Filter expressions like \"peer=workvm,kind=rejected\" or\n"
	s += "  \"urgency>=normal\" select on fields.\n"
	s += "\n"

	s += sectionStyle.Render("General") + "\n"
	s += keyStyle.Render("  ?") + "            Toggle this help\n"
	s += keyStyle.Render("  esc") + "          Back / Cancel\n"
	s += keyStyle.Render("  q") + "            Quit\n"

	s += "\n" + lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(
		"Press ? or esc to return")

	return s
}

// keybind represents a single keybind with priority for the status bar.
type keybind struct {
	key      string
	desc     string
	priority int // lower = more important (shown first)
}

// buildKeybindBar builds a keybind bar that fits within the given width.
// mode determines which keybinds are shown: "list", "detail", "search"
func (m Model) buildKeybindBar(width int, mode string) string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	keyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))

	var binds []keybind

	switch mode {
	case "list":
		// Priority order for list mode (most important first)
		binds = []keybind{
			{"q", "quit", 1},
			{"enter", "view", 2},
			{"?", "help", 3},
			{"/", "search", 4},
			{"a", "sessions", 5},
			{"c", "copy", 6},
			{"s", "summary", 7},
			{"r", "reload", 8},
		}
	case "detail":
		binds = []keybind{
			{"q", "quit", 1},
			{"esc", "back", 2},
			{"/", "search", 3},
			{"c", "copy entry", 4},
			{"s", "copy summary", 5},
			{"j/k", "scroll", 6},
		}
	case "search":
		binds = []keybind{
			{"enter", "view", 1},
			{"esc", "close", 2},
			{"↑/↓", "navigate", 3},
		}
	}

	// Build the bar, adding keybinds until we run out of space
	const separator = "  "
	result := ""
	for _, b := range binds {
		item := keyStyle.Render(b.key) + " " + b.desc
		plainItem := b.key + " " + b.desc
		testLen := len(result) + len(separator) + len(plainItem)
		if result != "" {
			testLen = len(stripANSI(result)) + len(separator) + len(plainItem)
		}

		if width > 0 && testLen > width {
			break
		}
		if result != "" {
			result += separator
		}
		result += item
	}

	return style.Render(result)
}

// stripANSI removes ANSI escape codes for length calculation.
func stripANSI(s string) string {
	result := make([]byte, 0, len(s))
	inEscape := false
	for i := 0; i < len(s); i++ {
		if s[i] == '\x1b' {
			inEscape = true
			continue
		}
		if inEscape {
			if s[i] == 'm' {
				inEscape = false
			}
			continue
		}
		result = append(result, s[i])
	}
	return string(result)
}

// RunOptions configures the TUI.
type RunOptions struct {
	JournalPath string // Journal file to browse and watch
}

// Run starts the TUI with the given options.
func Run(opts RunOptions) error {
	m := New(opts.JournalPath)

	// Watch the journal so new entries appear as the relay writes them
	watcher, err := journal.NewFileWatcher(opts.JournalPath, func() {
		select {
		case m.refreshCh <- struct{}{}:
		default:
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to create journal watcher: %v\n", err)
	} else if err := watcher.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to start journal watcher: %v\n", err)
	}

	p := tea.NewProgram(m, tea.WithAltScreen())

	_, err = p.Run()

	if watcher != nil {
		watcher.Stop()
	}

	return err
}
