package dbus

import (
	"github.com/godbus/dbus/v5"

	"github.com/notibridge/notibridge/internal/wire"
)

// CloseReason represents the reason for closing a notification.
// These values are defined by the freedesktop.org notification specification.
type CloseReason uint32

const (
	// CloseReasonExpired indicates the notification expired (timeout reached).
	CloseReasonExpired CloseReason = 1
	// CloseReasonDismissed indicates the user dismissed the notification.
	CloseReasonDismissed CloseReason = 2
	// CloseReasonClosed indicates the notification was closed via CloseNotification.
	CloseReasonClosed CloseReason = 3
	// CloseReasonUndefined is the reserved/undefined reason. The bridge
	// also uses it when the daemon or the transport goes away under live
	// notifications.
	CloseReasonUndefined CloseReason = 4
)

// String returns the string representation of the close reason.
func (r CloseReason) String() string {
	switch r {
	case CloseReasonExpired:
		return "expired"
	case CloseReasonDismissed:
		return "dismissed"
	case CloseReasonClosed:
		return "closed"
	case CloseReasonUndefined:
		return "undefined"
	default:
		return "unknown"
	}
}

// Notification represents an incoming D-Bus Notify call with the raw
// parameters of the org.freedesktop.Notifications.Notify method.
type Notification struct {
	AppName       string
	ReplacesID    uint32
	AppIcon       string
	Summary       string
	Body          string
	Actions       []string // Alternating key, label pairs
	Hints         map[string]dbus.Variant
	ExpireTimeout int32 // -1 = server default, 0 = never expire
}

// Action represents a notification action with key and label.
type Action struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// ParsedActions converts the D-Bus action array to structured form.
// D-Bus actions are passed as alternating key/label pairs.
func (n *Notification) ParsedActions() []Action {
	actions := make([]Action, 0, len(n.Actions)/2)
	for i := 0; i+1 < len(n.Actions); i += 2 {
		actions = append(actions, Action{
			Key:   n.Actions[i],
			Label: n.Actions[i+1],
		})
	}
	return actions
}

// Urgency extracts the urgency hint. Returns nil when the hint is absent
// or carries anything but a byte 0, 1, or 2, so the host side can apply
// its own default.
func (n *Notification) Urgency() *uint8 {
	v, ok := n.Hints["urgency"]
	if !ok {
		return nil
	}
	b, ok := v.Value().(byte)
	if !ok || b > 2 {
		return nil
	}
	return &b
}

// Category extracts the category hint. Returns empty string if not
// specified; the value is untrusted and validated host-side.
func (n *Notification) Category() string {
	if v, ok := n.Hints["category"]; ok {
		if s, ok := v.Value().(string); ok {
			return s
		}
	}
	return ""
}

// boolHint reads a boolean hint, tolerating the integer encodings some
// libraries send.
func (n *Notification) boolHint(name string) bool {
	v, ok := n.Hints[name]
	if !ok {
		return false
	}
	switch val := v.Value().(type) {
	case bool:
		return val
	case byte:
		return val != 0
	case int32:
		return val != 0
	case uint32:
		return val != 0
	}
	return false
}

// SuppressSound returns true if the suppress-sound hint is set.
func (n *Notification) SuppressSound() bool {
	return n.boolHint("suppress-sound")
}

// Transient returns true if the transient hint is set.
// Transient notifications should not be persisted.
func (n *Notification) Transient() bool {
	return n.boolHint("transient")
}

// Resident returns true if the resident hint is set.
// Resident notifications should not be auto-removed after an action is invoked.
func (n *Notification) Resident() bool {
	return n.boolHint("resident")
}

// Image extracts the image-data hint if present. The hint is a D-Bus
// struct (iiibiiay): width, height, rowstride, has_alpha, bits_per_sample,
// channels, data. Returns nil when absent or structurally wrong; content
// validation happens host-side.
func (n *Notification) Image() *wire.Image {
	v, ok := n.Hints["image-data"]
	if !ok {
		return nil
	}
	fields, ok := v.Value().([]interface{})
	if !ok || len(fields) != 7 {
		return nil
	}
	width, ok := fields[0].(int32)
	if !ok {
		return nil
	}
	height, ok := fields[1].(int32)
	if !ok {
		return nil
	}
	rowstride, ok := fields[2].(int32)
	if !ok {
		return nil
	}
	hasAlpha, ok := fields[3].(bool)
	if !ok {
		return nil
	}
	bits, ok := fields[4].(int32)
	if !ok {
		return nil
	}
	channels, ok := fields[5].(int32)
	if !ok {
		return nil
	}
	data, ok := fields[6].([]byte)
	if !ok {
		return nil
	}
	return &wire.Image{
		Width:         width,
		Height:        height,
		Rowstride:     rowstride,
		HasAlpha:      hasAlpha,
		BitsPerSample: bits,
		Channels:      channels,
		Data:          data,
	}
}

// ServerInfo contains information about the notification server.
type ServerInfo struct {
	Name        string
	Vendor      string
	Version     string
	SpecVersion string
}

// DefaultServerInfo returns the identity the guest agent reports for
// GetServerInformation. Applications see the bridge, not the host daemon.
func DefaultServerInfo() ServerInfo {
	return ServerInfo{
		Name:        "notibridge",
		Vendor:      "notibridge",
		Version:     "0.0.1", // Replaced by build-time version
		SpecVersion: "1.2",
	}
}
