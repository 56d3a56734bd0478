// Package transport moves length-prefixed frames between the guest agent
// and the host relay. A frame is a 4-byte little-endian payload length
// followed by the payload. Three stream flavors are supported: the
// process's own stdio (for qrexec-style spawning), a spawned subprocess,
// and unix domain sockets.
package transport
