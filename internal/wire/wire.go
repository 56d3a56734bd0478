package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MaxFrameSize is the largest payload a single frame may carry. The limit
// is checked before any allocation, so a hostile peer cannot make the
// reader allocate unbounded memory.
const MaxFrameSize = 1 << 24 // 16 MiB

// Kind identifies the payload carried by an Envelope.
type Kind string

const (
	KindHello     Kind = "hello"
	KindNotify    Kind = "notify"
	KindClose     Kind = "close"
	KindCreated   Kind = "created"
	KindFailed    Kind = "failed"
	KindDismissed Kind = "dismissed"
	KindAction    Kind = "action"
	KindReplied   Kind = "replied"
	KindRestart   Kind = "restart"
)

var (
	// ErrUnknownKind is returned when an envelope's type is not
	// recognized. Within a major version, newer minors may add kinds;
	// callers decide whether that is tolerable.
	ErrUnknownKind = errors.New("unknown envelope kind")

	// ErrPayloadMismatch is returned when the payload fields do not
	// match the declared kind (missing, or more than one set).
	ErrPayloadMismatch = errors.New("envelope payload does not match kind")
)

// Envelope is the single message unit carried on every frame. Exactly one
// payload field, the one matching Type, is non-nil.
type Envelope struct {
	Type Kind `json:"type"`

	Hello     *Hello     `json:"hello,omitempty"`
	Notify    *Notify    `json:"notify,omitempty"`
	Close     *Close     `json:"close,omitempty"`
	Created   *Created   `json:"created,omitempty"`
	Failed    *Failed    `json:"failed,omitempty"`
	Dismissed *Dismissed `json:"dismissed,omitempty"`
	Action    *Action    `json:"action,omitempty"`
	Replied   *Replied   `json:"replied,omitempty"`
	Restart   *Restart   `json:"restart,omitempty"`
}

// DaemonInfo mirrors GetServerInformation from the host daemon.
type DaemonInfo struct {
	Name        string `json:"name"`
	Vendor      string `json:"vendor"`
	Version     string `json:"version"`
	SpecVersion string `json:"spec_version"`
}

// Hello opens a connection. The relay sends first with its protocol
// version and the forwardable capability set; the agent answers with the
// negotiated version. The relay sends a fresh Hello whenever the host
// daemon restarts, since capabilities may have changed with it.
type Hello struct {
	Major        uint16      `json:"major"`
	Minor        uint16      `json:"minor"`
	Capabilities []string    `json:"capabilities,omitempty"`
	Daemon       *DaemonInfo `json:"daemon,omitempty"`
}

// Notify carries one guest notification toward the host. Seq correlates
// the eventual Created or Failed reply. ReplacesID is a guest-visible ID
// previously returned in Created, or zero for a new notification.
type Notify struct {
	Seq           uint64   `json:"seq"`
	ReplacesID    uint32   `json:"replaces_id"`
	AppName       string   `json:"app_name,omitempty"`
	Summary       string   `json:"summary"`
	Body          string   `json:"body,omitempty"`
	Actions       []string `json:"actions,omitempty"`
	Urgency       *uint8   `json:"urgency,omitempty"`
	Category      string   `json:"category,omitempty"`
	ExpireTimeout int32    `json:"expire_timeout"`
	SuppressSound bool     `json:"suppress_sound,omitempty"`
	Transient     bool     `json:"transient,omitempty"`
	Resident      bool     `json:"resident,omitempty"`
	Image         *Image   `json:"image,omitempty"`
}

// Image is a raw pixbuf as carried in the image-data hint. Data is
// rowstride*height bytes of packed samples, base64 in transit.
type Image struct {
	Width         int32  `json:"width"`
	Height        int32  `json:"height"`
	Rowstride     int32  `json:"rowstride"`
	HasAlpha      bool   `json:"has_alpha"`
	BitsPerSample int32  `json:"bits_per_sample"`
	Channels      int32  `json:"channels"`
	Data          []byte `json:"data"`
}

// Close asks the relay to close a guest-owned notification. There is no
// reply; the authoritative close arrives later as Dismissed.
type Close struct {
	Seq uint64 `json:"seq"`
	ID  uint32 `json:"id"`
}

// Created is the success reply to a Notify. ID is the guest-visible
// notification ID.
type Created struct {
	Seq uint64 `json:"seq"`
	ID  uint32 `json:"id"`
}

// Failed is the error reply to a Notify. Name carries a D-Bus error name
// when the host daemon rejected the call, and is empty for internal relay
// errors.
type Failed struct {
	Seq     uint64 `json:"seq"`
	Name    string `json:"name,omitempty"`
	Message string `json:"message,omitempty"`
}

// Dismissed reports that the host daemon closed a notification. Reason
// uses the freedesktop encoding (see the dbus package's CloseReason).
type Dismissed struct {
	ID     uint32 `json:"id"`
	Reason uint32 `json:"reason"`
}

// Action reports that the user invoked a notification action.
type Action struct {
	ID  uint32 `json:"id"`
	Key string `json:"key"`
}

// Replied carries inline reply text from daemons that support it.
type Replied struct {
	ID   uint32 `json:"id"`
	Text string `json:"text"`
}

// Restart reports that the host daemon's bus name changed owner. All
// live notifications are gone; a fresh Hello with the new daemon's
// capabilities follows.
type Restart struct{}

// payloads returns the non-nil payload count and the one matching Type.
func (e *Envelope) payloads() (int, bool) {
	set := 0
	matched := false
	for _, p := range []struct {
		kind  Kind
		isSet bool
	}{
		{KindHello, e.Hello != nil},
		{KindNotify, e.Notify != nil},
		{KindClose, e.Close != nil},
		{KindCreated, e.Created != nil},
		{KindFailed, e.Failed != nil},
		{KindDismissed, e.Dismissed != nil},
		{KindAction, e.Action != nil},
		{KindReplied, e.Replied != nil},
		{KindRestart, e.Restart != nil},
	} {
		if p.isSet {
			set++
			if p.kind == e.Type {
				matched = true
			}
		}
	}
	return set, matched
}

// Validate checks envelope structure: the payload must match the kind, and
// per-kind required fields must be present and in range.
func (e *Envelope) Validate() error {
	switch e.Type {
	case KindHello, KindNotify, KindClose, KindCreated, KindFailed,
		KindDismissed, KindAction, KindReplied, KindRestart:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, string(e.Type))
	}
	if set, matched := e.payloads(); set != 1 || !matched {
		return fmt.Errorf("%w: kind %q with %d payloads", ErrPayloadMismatch, string(e.Type), set)
	}
	switch e.Type {
	case KindHello:
		if e.Hello.Major == 0 {
			return errors.New("hello: major version must be nonzero")
		}
	case KindNotify:
		n := e.Notify
		if n.Seq == 0 {
			return errors.New("notify: sequence must be nonzero")
		}
		if n.ExpireTimeout < -1 {
			return fmt.Errorf("notify: expire timeout %d out of range", n.ExpireTimeout)
		}
		if len(n.Actions)%2 != 0 {
			return fmt.Errorf("notify: actions list has odd length %d", len(n.Actions))
		}
		if n.Urgency != nil && *n.Urgency > 2 {
			return fmt.Errorf("notify: urgency %d out of range", *n.Urgency)
		}
	case KindClose:
		if e.Close.Seq == 0 {
			return errors.New("close: sequence must be nonzero")
		}
		if e.Close.ID == 0 {
			return errors.New("close: id must be nonzero")
		}
	case KindCreated:
		if e.Created.Seq == 0 {
			return errors.New("created: sequence must be nonzero")
		}
		if e.Created.ID == 0 {
			return errors.New("created: id must be nonzero")
		}
	case KindFailed:
		if e.Failed.Seq == 0 {
			return errors.New("failed: sequence must be nonzero")
		}
	case KindDismissed:
		if e.Dismissed.ID == 0 {
			return errors.New("dismissed: id must be nonzero")
		}
	case KindAction:
		if e.Action.ID == 0 {
			return errors.New("action: id must be nonzero")
		}
		if e.Action.Key == "" {
			return errors.New("action: key must not be empty")
		}
	case KindReplied:
		if e.Replied.ID == 0 {
			return errors.New("replied: id must be nonzero")
		}
	}
	return nil
}

// Encode validates and marshals an envelope for transmission.
func Encode(e *Envelope) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encoding %s envelope: %w", e.Type, err)
	}
	return data, nil
}

// Decode unmarshals and validates a received frame payload. A decoded
// envelope failing Validate with ErrUnknownKind may still be skippable by
// the receiver if a newer minor version was negotiated.
func Decode(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}
	if err := e.Validate(); err != nil {
		return &e, err
	}
	return &e, nil
}
