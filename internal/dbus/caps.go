package dbus

import "sort"

// Capability names from the freedesktop specification plus the extensions
// the bridge understands.
const (
	CapActionIcons    = "action-icons"
	CapActions        = "actions"
	CapBody           = "body"
	CapBodyHyperlinks = "body-hyperlinks"
	CapBodyImages     = "body-images"
	CapBodyMarkup     = "body-markup"
	CapIconMulti      = "icon-multi"
	CapIconStatic     = "icon-static"
	CapInlineReply    = "inline-reply"
	CapPersistence    = "persistence"
	CapSound          = "sound"
)

// CapabilitySet holds a daemon's advertised capabilities.
type CapabilitySet map[string]bool

// NewCapabilitySet builds a set from a GetCapabilities reply.
func NewCapabilitySet(caps []string) CapabilitySet {
	set := make(CapabilitySet, len(caps))
	for _, c := range caps {
		set[c] = true
	}
	return set
}

// Has reports whether the capability is advertised.
func (c CapabilitySet) Has(name string) bool { return c[name] }

// Strings returns the capabilities as a sorted list.
func (c CapabilitySet) Strings() []string {
	out := make([]string, 0, len(c))
	for name := range c {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// forwardable lists the capabilities the bridge is willing to re-advertise
// to guest applications. Markup capabilities are excluded on purpose:
// guest markup is entity-escaped before it reaches the daemon, so
// advertising them would invite markup that renders escaped. Icon
// capabilities are excluded because icons are never forwarded.
var forwardable = []string{
	CapActions,
	CapBody,
	CapInlineReply,
	CapPersistence,
	CapSound,
}

// Forwardable returns the sorted subset of the daemon's capabilities that
// the guest agent should advertise.
func (c CapabilitySet) Forwardable() []string {
	out := make([]string, 0, len(forwardable))
	for _, name := range forwardable {
		if c[name] {
			out = append(out, name)
		}
	}
	return out
}

// FallbackCapabilities is what the guest agent advertises before the first
// handshake delivers the real set.
func FallbackCapabilities() []string {
	return []string{CapActions, CapBody, CapPersistence}
}
