// Package sanitize validates and scrubs untrusted notification content
// before it is handed to the host notification daemon. Everything arriving
// over the bridge transport is treated as hostile: display strings are
// reduced to a safe rune subset, action names and categories must match
// strict grammars, and image parameters are checked against their buffer.
package sanitize
