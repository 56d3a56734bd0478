package dbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/notibridge/notibridge/internal/sanitize"
	"github.com/notibridge/notibridge/internal/wire"
)

// Policy is the relay's presentation policy for forwarded notifications.
type Policy struct {
	// SummaryPrefix is prepended to every summary so the user can tell
	// which peer a popup came from. Applied after sanitization, so a
	// guest cannot imitate it at the start of its own text and hide the
	// real one.
	SummaryPrefix string

	// AppName is reported to the daemon when ForwardAppName is off or
	// the guest sent none.
	AppName string

	// ForwardAppName passes the sanitized guest application name through.
	ForwardAppName bool

	// ForwardImages forwards validated image-data hints.
	ForwardImages bool
}

// RequestError is a notification rejection carrying a D-Bus error name.
// The guest agent re-raises it to the calling application.
type RequestError struct {
	Name    string
	Message string
}

func (e *RequestError) Error() string {
	return e.Name + ": " + e.Message
}

func invalidArgs(msg string) *RequestError {
	return &RequestError{Name: "org.freedesktop.DBus.Error.InvalidArgs", Message: msg}
}

// EventKind classifies daemon-originated events.
type EventKind int

const (
	// EventClosed reports NotificationClosed.
	EventClosed EventKind = iota
	// EventAction reports ActionInvoked.
	EventAction
	// EventReplied reports NotificationReplied (inline reply daemons).
	EventReplied
	// EventRestart reports a NameOwnerChanged on the daemon's bus name.
	EventRestart
)

// Event is one daemon-originated occurrence, delivered over Events.
type Event struct {
	Kind   EventKind
	HostID uint32
	Reason CloseReason
	Key    string
	Text   string
}

// Emitter is a client for the host notification daemon. It forwards
// sanitized notifications and streams the daemon's signals back as Events.
type Emitter struct {
	conn   *dbus.Conn
	obj    dbus.BusObject
	logger *slog.Logger

	mu   sync.RWMutex
	caps CapabilitySet
	info wire.DaemonInfo

	signals chan *dbus.Signal
	events  chan Event
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewEmitter connects to the session bus, subscribes to the daemon's
// signals, and queries its capabilities. A missing daemon is not fatal
// here; calls will fail until one appears and a restart event refreshes
// the cached state.
func NewEmitter(logger *slog.Logger) (*Emitter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	e := &Emitter{
		conn:    conn,
		obj:     conn.Object(BusName, BusPath),
		logger:  logger,
		caps:    CapabilitySet{},
		signals: make(chan *dbus.Signal, 64),
		events:  make(chan Event, 64),
		done:    make(chan struct{}),
	}

	for _, member := range []string{"NotificationClosed", "ActionInvoked", "NotificationReplied"} {
		if err := conn.AddMatchSignal(
			dbus.WithMatchInterface(BusInterface),
			dbus.WithMatchObjectPath(BusPath),
			dbus.WithMatchMember(member),
		); err != nil {
			return nil, fmt.Errorf("failed to match %s signal: %w", member, err)
		}
	}
	// Daemon restarts show up as ownership changes on the well-known name.
	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameOwnerChanged"),
		dbus.WithMatchArg(0, BusName),
	); err != nil {
		return nil, fmt.Errorf("failed to match NameOwnerChanged: %w", err)
	}
	conn.Signal(e.signals)

	if err := e.Refresh(context.Background()); err != nil {
		e.logger.Warn("notification daemon not reachable yet", "error", err)
	}

	e.wg.Add(1)
	go e.pump()

	return e, nil
}

// Refresh re-queries the daemon's capabilities and identity, replacing the
// cached copies. Called at startup and after every daemon restart.
func (e *Emitter) Refresh(ctx context.Context) error {
	var caps []string
	if err := e.obj.CallWithContext(ctx, BusInterface+".GetCapabilities", 0).Store(&caps); err != nil {
		return fmt.Errorf("querying capabilities: %w", err)
	}
	var name, vendor, version, spec string
	if err := e.obj.CallWithContext(ctx, BusInterface+".GetServerInformation", 0).Store(&name, &vendor, &version, &spec); err != nil {
		return fmt.Errorf("querying server information: %w", err)
	}

	e.mu.Lock()
	e.caps = NewCapabilitySet(caps)
	e.info = wire.DaemonInfo{Name: name, Vendor: vendor, Version: version, SpecVersion: spec}
	e.mu.Unlock()

	e.logger.Info("notification daemon",
		"name", name,
		"version", version,
		"capabilities", caps,
	)
	return nil
}

// Capabilities returns the cached capability set.
func (e *Emitter) Capabilities() CapabilitySet {
	e.mu.RLock()
	defer e.mu.RUnlock()
	caps := make(CapabilitySet, len(e.caps))
	for k, v := range e.caps {
		caps[k] = v
	}
	return caps
}

// Info returns the cached daemon identity.
func (e *Emitter) Info() wire.DaemonInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.info
}

// Events delivers daemon-originated events until Stop.
func (e *Emitter) Events() <-chan Event {
	return e.events
}

// Send sanitizes one bridge request and forwards it to the daemon under
// the given policy. replacesHost is the host-side ID being replaced, or
// zero. Returns the host-side ID the daemon assigned. Rejections and
// daemon errors come back as *RequestError.
func (e *Emitter) Send(ctx context.Context, n *wire.Notify, replacesHost uint32, policy Policy) (uint32, error) {
	appName, summary, body, actions, hints, err := buildNotifyArgs(n, e.Capabilities(), policy)
	if err != nil {
		return 0, err
	}
	if n.Image != nil && !policy.ForwardImages {
		e.logger.Debug("image hint dropped, forwarding disabled")
	}

	call := e.obj.CallWithContext(ctx, BusInterface+".Notify", 0,
		appName,
		replacesHost,
		"", // app_icon: host icon paths are meaningless for guests
		summary,
		body,
		actions,
		hints,
		n.ExpireTimeout,
	)
	if call.Err != nil {
		return 0, daemonError(call.Err)
	}
	var hostID uint32
	if err := call.Store(&hostID); err != nil {
		return 0, fmt.Errorf("reading Notify reply: %w", err)
	}
	return hostID, nil
}

// CloseNotification asks the daemon to close a host-side notification.
func (e *Emitter) CloseNotification(ctx context.Context, hostID uint32) error {
	call := e.obj.CallWithContext(ctx, BusInterface+".CloseNotification", 0, hostID)
	if call.Err != nil {
		return daemonError(call.Err)
	}
	return nil
}

// Stop unsubscribes from daemon signals and closes the event stream. The
// shared session connection stays open.
func (e *Emitter) Stop() {
	close(e.done)
	e.conn.RemoveSignal(e.signals)
	for _, member := range []string{"NotificationClosed", "ActionInvoked", "NotificationReplied"} {
		_ = e.conn.RemoveMatchSignal(
			dbus.WithMatchInterface(BusInterface),
			dbus.WithMatchObjectPath(BusPath),
			dbus.WithMatchMember(member),
		)
	}
	_ = e.conn.RemoveMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameOwnerChanged"),
		dbus.WithMatchArg(0, BusName),
	)
	e.wg.Wait()
	close(e.events)
}

// pump converts raw D-Bus signals into Events.
func (e *Emitter) pump() {
	defer e.wg.Done()
	for {
		select {
		case <-e.done:
			return
		case sig := <-e.signals:
			if sig == nil {
				return
			}
			ev, ok := decodeSignal(sig)
			if !ok {
				continue
			}
			select {
			case e.events <- ev:
			case <-e.done:
				return
			}
		}
	}
}

// decodeSignal maps a bus signal onto an Event.
func decodeSignal(sig *dbus.Signal) (Event, bool) {
	switch sig.Name {
	case BusInterface + ".NotificationClosed":
		if len(sig.Body) < 2 {
			return Event{}, false
		}
		id, ok1 := sig.Body[0].(uint32)
		reason, ok2 := sig.Body[1].(uint32)
		if !ok1 || !ok2 {
			return Event{}, false
		}
		return Event{Kind: EventClosed, HostID: id, Reason: CloseReason(reason)}, true
	case BusInterface + ".ActionInvoked":
		if len(sig.Body) < 2 {
			return Event{}, false
		}
		id, ok1 := sig.Body[0].(uint32)
		key, ok2 := sig.Body[1].(string)
		if !ok1 || !ok2 {
			return Event{}, false
		}
		return Event{Kind: EventAction, HostID: id, Key: key}, true
	case BusInterface + ".NotificationReplied":
		if len(sig.Body) < 2 {
			return Event{}, false
		}
		id, ok1 := sig.Body[0].(uint32)
		text, ok2 := sig.Body[1].(string)
		if !ok1 || !ok2 {
			return Event{}, false
		}
		return Event{Kind: EventReplied, HostID: id, Text: text}, true
	case "org.freedesktop.DBus.NameOwnerChanged":
		if len(sig.Body) < 3 {
			return Event{}, false
		}
		if name, ok := sig.Body[0].(string); !ok || name != BusName {
			return Event{}, false
		}
		return Event{Kind: EventRestart}, true
	}
	return Event{}, false
}

// daemonError maps a call failure onto a RequestError when the daemon
// returned a named D-Bus error.
func daemonError(err error) error {
	var dbErr dbus.Error
	if errors.As(err, &dbErr) {
		msg := ""
		if len(dbErr.Body) > 0 {
			if s, ok := dbErr.Body[0].(string); ok {
				msg = s
			}
		}
		return &RequestError{Name: dbErr.Name, Message: msg}
	}
	return err
}

// pixbuf is the D-Bus structure carried in the image-data hint,
// signature (iiibiiay).
type pixbuf struct {
	Width         int32
	Height        int32
	Rowstride     int32
	HasAlpha      bool
	BitsPerSample int32
	Channels      int32
	Data          []byte
}

// buildNotifyArgs sanitizes one bridge request and assembles the Notify
// call arguments, gating every hint on the daemon's capabilities the way
// the freedesktop spec expects clients to.
func buildNotifyArgs(n *wire.Notify, caps CapabilitySet, policy Policy) (appName, summary, body string, actions []string, hints map[string]dbus.Variant, err error) {
	appName = policy.AppName
	if policy.ForwardAppName {
		if guestName := sanitize.AppName(n.AppName); guestName != "" {
			appName = guestName
		}
	}

	summary = policy.SummaryPrefix + sanitize.Text(n.Summary)

	body = sanitize.Text(n.Body)
	if caps.Has(CapBodyMarkup) {
		// The daemon would parse markup; escape so guest text renders
		// literally.
		body = sanitize.EscapeMarkup(body)
	}

	if caps.Has(CapActions) && len(n.Actions) > 0 {
		if len(n.Actions)%2 != 0 {
			return "", "", "", nil, nil, invalidArgs("actions list has odd length")
		}
		actions = make([]string, 0, len(n.Actions))
		for i := 0; i+1 < len(n.Actions); i += 2 {
			key := n.Actions[i]
			if !sanitize.ValidAction(key) {
				return "", "", "", nil, nil, invalidArgs(fmt.Sprintf("invalid action name %q", clip(key)))
			}
			actions = append(actions, key, sanitize.Text(n.Actions[i+1]))
		}
	}

	hints = make(map[string]dbus.Variant)
	if n.Urgency != nil {
		hints["urgency"] = dbus.MakeVariant(byte(*n.Urgency))
	}
	if n.Category != "" {
		if !sanitize.Category(n.Category) {
			return "", "", "", nil, nil, invalidArgs("invalid category")
		}
		hints["category"] = dbus.MakeVariant(n.Category)
	}
	if n.SuppressSound && caps.Has(CapSound) {
		hints["suppress-sound"] = dbus.MakeVariant(true)
	}
	if n.Transient && caps.Has(CapPersistence) {
		hints["transient"] = dbus.MakeVariant(true)
	}
	if n.Resident && caps.Has(CapPersistence) {
		hints["resident"] = dbus.MakeVariant(true)
	}
	if n.Image != nil && policy.ForwardImages {
		if err := sanitize.Image(n.Image); err != nil {
			return "", "", "", nil, nil, invalidArgs(err.Error())
		}
		hints["image-data"] = dbus.MakeVariant(pixbuf{
			Width:         n.Image.Width,
			Height:        n.Image.Height,
			Rowstride:     n.Image.Rowstride,
			HasAlpha:      n.Image.HasAlpha,
			BitsPerSample: n.Image.BitsPerSample,
			Channels:      n.Image.Channels,
			Data:          n.Image.Data,
		})
	}

	return appName, summary, body, actions, hints, nil
}

// clip shortens untrusted text for an error message.
func clip(s string) string {
	s = sanitize.Text(s)
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) > 40 {
		return string(r[:40]) + "..."
	}
	return s
}
