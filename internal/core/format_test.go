package core

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notibridge/notibridge/internal/journal"
)

func formatEntries() []journal.Entry {
	now := time.Now()
	return []journal.Entry{
		{
			ID:      "01J0000000000000000000001",
			Time:    now.Add(-5 * time.Minute),
			Kind:    journal.KindForwarded,
			Peer:    "workvm",
			AppName: "firefox",
			Summary: "Download complete",
			Urgency: u8(UrgencyNormal),
		},
		{
			ID:      "01J0000000000000000000002",
			Time:    now.Add(-2 * time.Hour),
			Kind:    journal.KindRejected,
			Peer:    "untrusted",
			AppName: "spam",
			Summary: "click here",
			Error:   "notification rate exceeded",
		},
	}
}

func TestDmenuLine(t *testing.T) {
	entries := formatEntries()

	line := DmenuLine(1, entries[0])
	assert.Equal(t, "1 | 5m | workvm | Download complete", line)

	line = DmenuLine(2, entries[1])
	assert.Equal(t, "2 | 2h | untrusted | notification rate exceeded", line)

	// Entries without a peer skip the peer column
	line = DmenuLine(3, journal.Entry{Kind: journal.KindRestart, Time: time.Now()})
	assert.Equal(t, "3 | now | host daemon restarted", line)
}

func TestFormatLines(t *testing.T) {
	entries := formatEntries()
	var buf bytes.Buffer

	tmpl, err := NewLineTemplate("{{.Index}}: {{.Entry.Peer}} {{.Details}}")
	require.NoError(t, err)

	err = FormatLines(&buf, entries, tmpl)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "1: workvm Download complete", lines[0])
	assert.Equal(t, "2: untrusted notification rate exceeded", lines[1])
}

func TestFormatLinesTemplateFuncs(t *testing.T) {
	entries := formatEntries()
	var buf bytes.Buffer

	tmpl, err := NewLineTemplate(
		`{{urgencyIcon .Entry.Urgency}} {{reltime .Entry.Time}} {{truncate .Entry.Summary 10}}`)
	require.NoError(t, err)

	err = FormatLines(&buf, entries[:1], tmpl)
	require.NoError(t, err)

	assert.Equal(t, "- 5m Downloa...", strings.TrimSpace(buf.String()))
}

func TestNewLineTemplateInvalid(t *testing.T) {
	_, err := NewLineTemplate("{{.Broken")
	assert.Error(t, err)
}

func TestRelativeTime(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{"zero time", time.Time{}, "unknown"},
		{"seconds ago", now.Add(-30 * time.Second), "now"},
		{"minutes ago", now.Add(-5 * time.Minute), "5m"},
		{"hours ago", now.Add(-3 * time.Hour), "3h"},
		{"days ago", now.Add(-48 * time.Hour), "2d"},
		{"weeks ago", now.Add(-15 * 24 * time.Hour), "2w"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RelativeTime(tt.t))
		})
	}
}

func TestFormatField(t *testing.T) {
	e := formatEntries()[0]

	assert.Equal(t, "01J0000000000000000000001", FormatField(e, "id"))
	assert.Equal(t, "workvm", FormatField(e, "peer"))
	assert.Equal(t, "workvm", FormatField(e, "vm"))
	assert.Equal(t, "firefox", FormatField(e, "app"))
	assert.Equal(t, "Download complete", FormatField(e, "summary"))
	assert.Equal(t, "forwarded", FormatField(e, "kind"))
	assert.Equal(t, "normal", FormatField(e, "urgency"))
	assert.Equal(t, e.Time.Format(time.RFC3339), FormatField(e, "time"))

	// Unknown fields fall back to the details line
	assert.Equal(t, "Download complete", FormatField(e, "bogus"))

	rejected := formatEntries()[1]
	assert.Equal(t, "notification rate exceeded", FormatField(rejected, "error"))
}
