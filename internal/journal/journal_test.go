package journal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestOpenWritesHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "journal.jsonl")

	j, err := Open(path)
	require.NoError(t, err)
	defer j.Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"notibridge_schema_version":1`)
	assert.Equal(t, 1, strings.Count(string(data), "\n"))
}

func TestOpenExistingKeepsHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.jsonl")

	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Append(Entry{Kind: KindForwarded, Peer: "work"}))
	require.NoError(t, j.Close())

	j2, err := Open(path)
	require.NoError(t, err)
	defer j2.Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "notibridge_schema_version"))

	entries, err := j2.Load()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "work", entries[0].Peer)
}

func TestAppendStampsIDAndTime(t *testing.T) {
	j := testJournal(t)

	require.NoError(t, j.Append(Entry{Kind: KindForwarded, Summary: "hello"}))

	entries, err := j.Load()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	assert.Len(t, entries[0].ID, 26, "ULID should be 26 characters")
	assert.False(t, entries[0].Time.IsZero())
	assert.Equal(t, "hello", entries[0].Summary)
}

func TestAppendPreservesExplicitFields(t *testing.T) {
	j := testJournal(t)

	when := time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC)
	urgency := uint8(2)
	require.NoError(t, j.Append(Entry{
		Time:    when,
		Kind:    KindDismissed,
		Peer:    "work",
		GuestID: 4,
		HostID:  19,
		Urgency: &urgency,
		Reason:  "dismissed",
	}))

	entries, err := j.Load()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Time.Equal(when))
	assert.Equal(t, uint32(4), entries[0].GuestID)
	assert.Equal(t, uint32(19), entries[0].HostID)
	require.NotNil(t, entries[0].Urgency)
	assert.Equal(t, uint8(2), *entries[0].Urgency)
}

func TestLoadSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.jsonl")

	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Append(Entry{Kind: KindForwarded}))
	require.NoError(t, j.Close())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	entries, err := ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLoadRejectsNewerSchema(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"notibridge_schema_version":99,"created_at":0}`+"\n"), 0600))

	_, err := ReadFile(path)
	assert.ErrorContains(t, err, "unsupported schema version")
}

func TestPruneByAge(t *testing.T) {
	j := testJournal(t)

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, j.Append(Entry{Time: old, Kind: KindForwarded, Summary: "old"}))
	require.NoError(t, j.Append(Entry{Kind: KindForwarded, Summary: "new"}))

	removed, err := j.Prune(24*time.Hour, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	entries, err := j.Load()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].Summary)
}

func TestPruneKeepsNewest(t *testing.T) {
	j := testJournal(t)

	for _, s := range []string{"a", "b", "c", "d"} {
		require.NoError(t, j.Append(Entry{Kind: KindForwarded, Summary: s}))
	}

	removed, err := j.Prune(0, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	entries, err := j.Load()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "c", entries[0].Summary)
	assert.Equal(t, "d", entries[1].Summary)
}

func TestPruneNothingToDo(t *testing.T) {
	j := testJournal(t)
	require.NoError(t, j.Append(Entry{Kind: KindForwarded}))

	removed, err := j.Prune(time.Hour, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestPruneRemovesBackup(t *testing.T) {
	j := testJournal(t)
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, j.Append(Entry{Time: old, Kind: KindForwarded}))

	_, err := j.Prune(time.Hour, 0)
	require.NoError(t, err)

	_, err = os.Stat(j.Path() + ".bak")
	assert.True(t, os.IsNotExist(err))
}

func TestClear(t *testing.T) {
	j := testJournal(t)
	require.NoError(t, j.Append(Entry{Kind: KindForwarded}))
	require.NoError(t, j.Append(Entry{Kind: KindDismissed}))

	require.NoError(t, j.Clear())

	entries, err := j.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Still appendable after clear
	require.NoError(t, j.Append(Entry{Kind: KindForwarded}))
	entries, err = j.Load()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestClosedJournal(t *testing.T) {
	j := testJournal(t)
	require.NoError(t, j.Close())
	require.NoError(t, j.Close())

	assert.ErrorIs(t, j.Append(Entry{Kind: KindForwarded}), ErrJournalClosed)
	_, err := j.Load()
	assert.ErrorIs(t, err, ErrJournalClosed)
}

func TestReadFileMissing(t *testing.T) {
	entries, err := ReadFile(filepath.Join(t.TempDir(), "missing.jsonl"))
	require.NoError(t, err)
	assert.Nil(t, entries)
}
