package wire

import "fmt"

// Protocol version. The major must match exactly between agent and relay;
// the minor is negotiated down to the smaller of the two. New envelope
// kinds or fields bump the minor, incompatible changes bump the major.
const (
	ProtocolMajor uint16 = 1
	ProtocolMinor uint16 = 0
)

// NegotiateMinor returns the minor version shared by both ends.
func NegotiateMinor(theirs uint16) uint16 {
	if theirs < ProtocolMinor {
		return theirs
	}
	return ProtocolMinor
}

// CheckMajor returns an error unless the peer speaks our major version.
func CheckMajor(theirs uint16) error {
	if theirs != ProtocolMajor {
		return fmt.Errorf("protocol major version mismatch: peer speaks %d, this build speaks %d", theirs, ProtocolMajor)
	}
	return nil
}
