// Package journal persists the relay's bridge activity as JSONL so the
// CLI can answer "what did that guest pop up, and when". Text fields are
// stored after sanitization; raw guest bytes never reach the journal.
package journal

import (
	"bufio"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// SchemaVersion is the current journal schema version.
const SchemaVersion = 1

// Kind classifies a journal entry.
type Kind string

const (
	// KindForwarded records a notification delivered to the host daemon.
	KindForwarded Kind = "forwarded"
	// KindRejected records a notification the relay refused.
	KindRejected Kind = "rejected"
	// KindDismissed records a close signal relayed back to the guest.
	KindDismissed Kind = "dismissed"
	// KindAction records an action invocation relayed back to the guest.
	KindAction Kind = "action"
	// KindReplied records an inline reply relayed back to the guest.
	KindReplied Kind = "replied"
	// KindRestart records a host daemon restart.
	KindRestart Kind = "restart"
	// KindConnect records an agent session opening.
	KindConnect Kind = "connect"
	// KindDisconnect records an agent session closing.
	KindDisconnect Kind = "disconnect"
)

// Entry is one journal record.
type Entry struct {
	ID        string    `json:"id"` // ULID, sortable by creation time
	Time      time.Time `json:"time"`
	Kind      Kind      `json:"kind"`
	Peer      string    `json:"peer,omitempty"`
	GuestID   uint32    `json:"guest_id,omitempty"`
	HostID    uint32    `json:"host_id,omitempty"`
	AppName   string    `json:"app_name,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	Urgency   *uint8    `json:"urgency,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	ActionKey string    `json:"action_key,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// schemaHeader is the first line of the JSONL file.
type schemaHeader struct {
	NotibridgeSchemaVersion int   `json:"notibridge_schema_version"`
	CreatedAt               int64 `json:"created_at"`
}

// ErrJournalClosed is returned when operations are attempted on a closed journal.
var ErrJournalClosed = errors.New("journal is closed")

// Journal is an append-only JSONL event log.
type Journal struct {
	mu     sync.RWMutex
	path   string
	file   *os.File
	closed bool
}

// Open creates a Journal at the given path, creating the file and its
// parent directory if needed.
func Open(path string) (*Journal, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	// Open file for appending (create if needed)
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}

	j := &Journal{
		path: path,
		file: file,
	}

	// Check if file is empty and write header
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	if info.Size() == 0 {
		if err := j.writeHeader(); err != nil {
			file.Close()
			return nil, err
		}
	}

	return j, nil
}

// Path returns the journal file path.
func (j *Journal) Path() string {
	return j.path
}

// writeHeader writes the schema version header to the file.
func (j *Journal) writeHeader() error {
	header := schemaHeader{
		NotibridgeSchemaVersion: SchemaVersion,
		CreatedAt:               time.Now().Unix(),
	}

	data, err := json.Marshal(header)
	if err != nil {
		return err
	}

	_, err = j.file.Write(append(data, '\n'))
	return err
}

// Append writes one entry. A zero Time is stamped with the current time
// and an empty ID gets a fresh ULID.
func (j *Journal) Append(e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed || j.file == nil {
		return ErrJournalClosed
	}

	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if e.ID == "" {
		id, err := ulid.New(ulid.Timestamp(e.Time), rand.Reader)
		if err != nil {
			return fmt.Errorf("failed to generate ULID: %w", err)
		}
		e.ID = id.String()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	_, err = j.file.Write(append(data, '\n'))
	if err != nil {
		return err
	}

	return j.file.Sync()
}

// Load reads all entries from the journal.
func (j *Journal) Load() ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed || j.file == nil {
		return nil, ErrJournalClosed
	}

	// Seek to beginning
	if _, err := j.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek %s: %w", j.path, err)
	}

	entries, err := parseEntries(j.file)
	if err != nil {
		return entries, err
	}

	// Seek back to end for appending
	if _, err := j.file.Seek(0, io.SeekEnd); err != nil {
		return entries, err
	}

	return entries, nil
}

// Rewrite replaces the entire journal file (used after prune).
func (j *Journal) Rewrite(entries []Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return ErrJournalClosed
	}

	// Close current file
	if j.file != nil {
		if err := j.file.Close(); err != nil {
			return err
		}
		j.file = nil
	}

	// Create backup
	backupPath := j.path + ".bak"
	if err := os.Rename(j.path, backupPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to create backup: %w", err)
	}

	// Create new file
	file, err := os.OpenFile(j.path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		// Try to restore backup
		os.Rename(backupPath, j.path)
		return fmt.Errorf("failed to create new file: %w", err)
	}
	j.file = file

	// Write header
	if err := j.writeHeader(); err != nil {
		return err
	}

	// Write all entries
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if _, err := j.file.Write(append(data, '\n')); err != nil {
			return err
		}
	}

	if err := j.file.Sync(); err != nil {
		return err
	}

	// Remove backup on success
	os.Remove(backupPath)

	return nil
}

// Prune drops entries older than the given age and, when keep is positive,
// trims the journal to the keep most recent entries. A zero olderThan
// disables the age filter. Returns the number of entries removed.
func (j *Journal) Prune(olderThan time.Duration, keep int) (int, error) {
	entries, err := j.Load()
	if err != nil {
		return 0, err
	}

	kept := make([]Entry, 0, len(entries))
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

	// Entries are appended chronologically, so the newest are at the end.
	if keep > 0 && len(kept) > keep {
		kept = kept[len(kept)-keep:]
	}

	removed := len(entries) - len(kept)
	if removed == 0 {
		return 0, nil
	}

	return removed, j.Rewrite(kept)
}

// Clear removes all entries.
func (j *Journal) Clear() error {
	return j.Rewrite(nil)
}

// Close releases the file handle.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true

	if j.file != nil {
		err := j.file.Close()
		j.file = nil
		return err
	}
	return nil
}

// ReadFile loads all entries from a journal file without taking the
// append handle. Used by the CLI and the TUI, which only read.
func ReadFile(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	return parseEntries(file)
}

// parseEntries scans JSONL, skipping the header and malformed lines.
func parseEntries(r io.Reader) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)

	// Increase buffer size for potentially long lines
	const maxLineSize = 1024 * 1024 // 1MB
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()

		if len(line) == 0 {
			continue
		}

		// First line is the header
		if lineNum == 1 {
			var header schemaHeader
			if err := json.Unmarshal(line, &header); err == nil && header.NotibridgeSchemaVersion > 0 {
				if header.NotibridgeSchemaVersion > SchemaVersion {
					return nil, fmt.Errorf("unsupported schema version %d (max: %d)",
						header.NotibridgeSchemaVersion, SchemaVersion)
				}
				continue
			}
			// Not a header, fall through and try it as an entry
		}

		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			// Skip malformed lines
			continue
		}

		if e.ID != "" && e.Kind != "" {
			entries = append(entries, e)
		}
	}

	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("error reading file: %w", err)
	}

	return entries, nil
}
