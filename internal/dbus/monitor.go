package dbus

import (
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"
)

// NotifyObserver receives eavesdropped Notify calls.
type NotifyObserver func(sender string, n *Notification)

// CloseObserver receives eavesdropped CloseNotification calls.
type CloseObserver func(sender string, id uint32)

// EventObserver receives eavesdropped daemon signals.
type EventObserver func(ev Event)

// Monitor passively observes notification traffic without claiming
// ownership of the bus name, so it can run alongside the real daemon.
type Monitor struct {
	conn   *dbus.Conn
	logger *slog.Logger

	onNotify NotifyObserver
	onClose  CloseObserver
	onEvent  EventObserver
}

// NewMonitor creates a new notification monitor.
func NewMonitor(logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		logger: logger,
	}
}

// SetNotifyObserver sets the callback for observed Notify calls.
func (m *Monitor) SetNotifyObserver(fn NotifyObserver) {
	m.onNotify = fn
}

// SetCloseObserver sets the callback for observed CloseNotification calls.
func (m *Monitor) SetCloseObserver(fn CloseObserver) {
	m.onClose = fn
}

// SetEventObserver sets the callback for observed daemon signals.
func (m *Monitor) SetEventObserver(fn EventObserver) {
	m.onEvent = fn
}

// Start begins monitoring the session bus for notification traffic.
func (m *Monitor) Start() error {
	conn, err := dbus.SessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}
	m.conn = conn

	// Become a monitor - this allows us to see all bus traffic
	// addressed to the notification interface, calls and signals both.
	rules := []string{
		"type='method_call',interface='" + BusInterface + "'",
		"type='signal',interface='" + BusInterface + "'",
	}

	// BecomeMonitor has no return value - just check for error
	err = conn.BusObject().Call(
		"org.freedesktop.DBus.Monitoring.BecomeMonitor",
		0,
		rules,
		uint32(0),
	).Err

	if err != nil {
		// BecomeMonitor might not be available (older D-Bus versions)
		// Fall back to eavesdropping via match rules
		m.logger.Warn("BecomeMonitor not available, trying AddMatch", "error", err)
		return m.startWithAddMatch()
	}

	m.logger.Info("started D-Bus monitor using BecomeMonitor")

	// Start processing messages
	go m.processMessages()

	return nil
}

// startWithAddMatch uses the older AddMatch API for eavesdropping.
func (m *Monitor) startWithAddMatch() error {
	rules := []string{
		"type='method_call',interface='" + BusInterface + "',eavesdrop='true'",
		"type='signal',interface='" + BusInterface + "',eavesdrop='true'",
	}

	for _, rule := range rules {
		err := m.conn.BusObject().Call(
			"org.freedesktop.DBus.AddMatch",
			0,
			rule,
		).Err
		if err != nil {
			return fmt.Errorf("failed to add match rule (eavesdrop may require permissions): %w", err)
		}
	}

	m.logger.Info("started D-Bus monitor using AddMatch with eavesdrop")

	// Start processing messages
	go m.processMessages()

	return nil
}

// processMessages reads and processes D-Bus messages.
func (m *Monitor) processMessages() {
	ch := make(chan *dbus.Message, 100)
	m.conn.Eavesdrop(ch)

	for msg := range ch {
		switch msg.Type {
		case dbus.TypeMethodCall:
			if msg.Headers[dbus.FieldInterface].Value() != BusInterface {
				continue
			}
			switch msg.Headers[dbus.FieldMember].Value() {
			case "Notify":
				m.handleNotify(msg)
			case "CloseNotification":
				m.handleClose(msg)
			}
		case dbus.TypeSignal:
			if msg.Headers[dbus.FieldInterface].Value() != BusInterface {
				continue
			}
			m.handleSignal(msg)
		}
	}
}

// handleNotify parses a Notify method call and invokes the observer.
func (m *Monitor) handleNotify(msg *dbus.Message) {
	// Notify(app_name, replaces_id, app_icon, summary, body, actions, hints, expire_timeout)
	if len(msg.Body) < 8 {
		m.logger.Warn("malformed Notify call", "body_len", len(msg.Body))
		return
	}

	notification := &Notification{}

	// Parse arguments
	var ok bool
	if notification.AppName, ok = msg.Body[0].(string); !ok {
		m.logger.Warn("invalid app_name type")
		return
	}
	if notification.ReplacesID, ok = msg.Body[1].(uint32); !ok {
		m.logger.Warn("invalid replaces_id type")
		return
	}
	if notification.AppIcon, ok = msg.Body[2].(string); !ok {
		m.logger.Warn("invalid app_icon type")
		return
	}
	if notification.Summary, ok = msg.Body[3].(string); !ok {
		m.logger.Warn("invalid summary type")
		return
	}
	if notification.Body, ok = msg.Body[4].(string); !ok {
		m.logger.Warn("invalid body type")
		return
	}

	// Actions is []string
	if actions, ok := msg.Body[5].([]string); ok {
		notification.Actions = actions
	}

	// Hints is map[string]dbus.Variant
	if hints, ok := msg.Body[6].(map[string]dbus.Variant); ok {
		notification.Hints = hints
	}

	// ExpireTimeout is int32
	if timeout, ok := msg.Body[7].(int32); ok {
		notification.ExpireTimeout = timeout
	}

	sender := monitorSender(msg)

	m.logger.Debug("captured notification",
		"app", notification.AppName,
		"summary", notification.Summary,
		"sender", sender)

	if m.onNotify != nil {
		m.onNotify(sender, notification)
	}
}

// handleClose parses a CloseNotification method call.
func (m *Monitor) handleClose(msg *dbus.Message) {
	if len(msg.Body) < 1 {
		return
	}
	id, ok := msg.Body[0].(uint32)
	if !ok {
		m.logger.Warn("invalid close id type")
		return
	}
	if m.onClose != nil {
		m.onClose(monitorSender(msg), id)
	}
}

// handleSignal maps an eavesdropped signal onto an Event.
func (m *Monitor) handleSignal(msg *dbus.Message) {
	member, ok := msg.Headers[dbus.FieldMember].Value().(string)
	if !ok {
		return
	}
	ev, ok := decodeSignal(&dbus.Signal{
		Name: BusInterface + "." + member,
		Body: msg.Body,
	})
	if !ok {
		return
	}
	if m.onEvent != nil {
		m.onEvent(ev)
	}
}

// monitorSender extracts the sending connection's unique bus name.
func monitorSender(msg *dbus.Message) string {
	if sender, ok := msg.Headers[dbus.FieldSender].Value().(string); ok {
		return sender
	}
	return ""
}

// Stop stops the monitor.
func (m *Monitor) Stop() error {
	if m.conn != nil {
		return m.conn.Close()
	}
	return nil
}
