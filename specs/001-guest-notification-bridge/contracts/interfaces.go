// Package contracts defines the interfaces for notibridge.
// This file serves as documentation and is not compiled.
// Actual implementations live in internal/ packages.
package contracts

import (
	"context"
	"io"
	"time"
)

// =============================================================================
// Model Types
// =============================================================================

// Notify carries one guest notification toward the host.
// See internal/wire for the authoritative definition.
type Notify struct {
	Seq           uint64   `json:"seq"`            // Correlates the Created/Failed reply
	ReplacesID    uint32   `json:"replaces_id"`    // Guest-visible ID to replace, 0=new
	AppName       string   `json:"app_name,omitempty"`
	Summary       string   `json:"summary"`
	Body          string   `json:"body,omitempty"`
	Actions       []string `json:"actions,omitempty"` // Alternating key, label pairs
	Urgency       *uint8   `json:"urgency,omitempty"` // 0=low, 1=normal, 2=critical
	Category      string   `json:"category,omitempty"`
	ExpireTimeout int32    `json:"expire_timeout"` // ms, -1=default, 0=never
	SuppressSound bool     `json:"suppress_sound,omitempty"`
	Transient     bool     `json:"transient,omitempty"`
	Resident      bool     `json:"resident,omitempty"`
	Image         *Image   `json:"image,omitempty"`
}

// Image is a raw pixbuf from the image-data hint.
type Image struct {
	Width         int32  `json:"width"`
	Height        int32  `json:"height"`
	Rowstride     int32  `json:"rowstride"`
	HasAlpha      bool   `json:"has_alpha"`
	BitsPerSample int32  `json:"bits_per_sample"`
	Channels      int32  `json:"channels"`
	Data          []byte `json:"data"` // rowstride*height bytes, base64 in transit
}

// JournalEntry records one bridge event.
// See internal/journal for the authoritative definition.
type JournalEntry struct {
	ID        string    `json:"id"`   // ULID string
	Time      time.Time `json:"time"` // RFC 3339 in storage
	Kind      string    `json:"kind"` // forwarded, rejected, dismissed, action, replied, restart, connect, disconnect
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

// FilterOptions specifies criteria for filtering journal entries.
type FilterOptions struct {
	Since   time.Duration // Entries newer than now-since (0=all)
	Peer    string        // Exact match on peer name
	App     string        // Exact match on app name
	Kind    string        // Entry kind
	Urgency *uint8        // Urgency level (nil=any)
	Limit   int           // Maximum results (0=unlimited)
}

// =============================================================================
// Framing
// =============================================================================

// FrameConn is a framed byte stream between agent and relay.
// Each frame is a 4-byte little-endian length followed by that many
// payload bytes. Payloads above the frame size limit are rejected
// before allocation.
type FrameConn interface {
	// ReadFrame reads the next frame payload.
	// A clean stream end between frames returns io.EOF.
	ReadFrame() ([]byte, error)

	// WriteFrame writes one frame. Safe for concurrent use.
	WriteFrame(payload []byte) error

	// Close closes the underlying stream and unblocks a pending read.
	Close() error
}

// =============================================================================
// Transport
// =============================================================================

// Listener accepts incoming agent connections on the relay side.
type Listener interface {
	// Accept blocks for the next connection.
	Accept() (FrameConn, error)

	// Close stops accepting and unblocks a pending Accept.
	Close() error
}

// DialFunc connects the agent to the relay. Implementations cover
// unix sockets and vsock-style stream transports.
type DialFunc func(ctx context.Context) (FrameConn, error)

// =============================================================================
// Host Emitter
// =============================================================================

// Emitter owns the relay's client connection to the host notification
// daemon (org.freedesktop.Notifications).
type Emitter interface {
	// Send maps a guest notification onto the host daemon and returns
	// the host-assigned ID. replacesHost is the host ID a replacement
	// targets, or 0.
	Send(ctx context.Context, n *Notify, replacesHost uint32) (uint32, error)

	// CloseNotification asks the host daemon to close a notification.
	CloseNotification(ctx context.Context, hostID uint32) error

	// Capabilities returns the host daemon's capability set, reduced
	// to what the bridge forwards.
	Capabilities() []string

	// Events delivers host-side lifecycle events: closed, action
	// invoked, inline reply, daemon restart.
	Events() <-chan HostEvent

	// Stop releases the bus connection.
	Stop()
}

// HostEvent is one host daemon signal routed back toward the guest.
type HostEvent struct {
	Kind   string // "closed", "action", "replied", "restart"
	HostID uint32
	Reason uint32 // Freedesktop close reason, for "closed"
	Key    string // Action key, for "action"
	Text   string // Reply text, for "replied"
}

// =============================================================================
// Guest Server
// =============================================================================

// NotificationHandler is implemented by the agent and driven by the
// guest-side org.freedesktop.Notifications server.
type NotificationHandler interface {
	// HandleNotify forwards one notification and blocks for the
	// relay's verdict. Returns the guest-visible ID.
	HandleNotify(n *Notify) (uint32, error)

	// HandleClose forwards a CloseNotification call. Fire and forget;
	// the authoritative NotificationClosed signal arrives later.
	HandleClose(id uint32)
}

// =============================================================================
// Journal
// =============================================================================

// Journal persists bridge events as JSON lines.
type Journal interface {
	// Append writes one entry. Assigns ID and Time when unset.
	Append(e JournalEntry) error

	// Prune removes entries older than the cutoff, then trims to the
	// newest keep entries. Returns the count removed.
	Prune(olderThan time.Duration, keep int) (int, error)

	// Clear truncates the journal.
	Clear() error

	// Close releases the file handle.
	Close() error
}

// JournalWatcher signals when the journal file changes on disk.
type JournalWatcher interface {
	// Start begins watching. The change callback fires on writes,
	// creates, and renames.
	Start() error

	// Stop ends watching and releases resources.
	Stop() error
}

// =============================================================================
// Sanitizer
// =============================================================================

// Sanitizer cleans untrusted guest data before it reaches the host
// daemon. Implementations are pure functions in internal/sanitize.
type Sanitizer interface {
	// Text strips control characters and escape sequences, normalizes
	// whitespace, and truncates to the display limit.
	Text(untrusted string) string

	// AppName applies Text plus the tighter app name length limit.
	AppName(untrusted string) string

	// EscapeMarkup escapes the markup characters the freedesktop body
	// format interprets.
	EscapeMarkup(s string) string

	// Image validates pixbuf geometry against the declared buffer.
	Image(img *Image) error

	// ValidAction reports whether an action key is safe to forward.
	ValidAction(action string) bool
}

// =============================================================================
// Output Formatter
// =============================================================================

// Formatter renders journal entries for the CLI.
type Formatter interface {
	// Format outputs entries to the writer.
	// For single entry lookup, pass a slice with one element.
	Format(w io.Writer, entries []JournalEntry) error
}

// =============================================================================
// Clipboard Interface (TUI mode only)
// =============================================================================

// Clipboard handles copying text to system clipboard.
// Only used in TUI mode - shell pipelines handle clipboard for list output.
type Clipboard interface {
	// Copy copies text to the system clipboard.
	// Returns error if no clipboard tool is available.
	Copy(text string) error
}

// =============================================================================
// TUI Interface
// =============================================================================

// TUI represents the interactive journal browser.
type TUI interface {
	// Run starts the interactive TUI session.
	// Blocks until user quits.
	Run(journalPath string) error
}
