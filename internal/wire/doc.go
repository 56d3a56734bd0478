// Package wire defines the message protocol spoken between the guest agent
// and the host relay. Every frame on the bridge transport carries one
// JSON-encoded Envelope; the transport package owns the length-prefixed
// framing, this package owns the payloads and their structural validation.
package wire
