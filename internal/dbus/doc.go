// Package dbus speaks the org.freedesktop.Notifications protocol on both
// sides of the bridge. The guest agent uses Server to own the well-known
// name and receive Notify calls from applications; the host relay uses
// Emitter to forward sanitized notifications to the real daemon and to
// stream its signals back. Monitor passively decodes notification traffic
// for the CLI.
package dbus
