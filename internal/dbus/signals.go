package dbus

import (
	"fmt"
)

// EmitNotificationClosed emits the NotificationClosed signal. The bridge
// emits it when the host daemon reports a close, when the daemon restarts,
// and when the transport drops under live notifications.
func (s *Server) EmitNotificationClosed(id uint32, reason CloseReason) error {
	if s.conn == nil {
		return fmt.Errorf("not connected to D-Bus")
	}

	err := s.conn.Emit(BusPath, BusInterface+".NotificationClosed", id, uint32(reason))
	if err != nil {
		return fmt.Errorf("failed to emit NotificationClosed signal: %w", err)
	}

	s.logger.Debug("emitted NotificationClosed signal", "id", id, "reason", reason.String())
	return nil
}

// EmitActionInvoked emits the ActionInvoked signal when the user invoked
// an action on the host side.
func (s *Server) EmitActionInvoked(id uint32, actionKey string) error {
	if s.conn == nil {
		return fmt.Errorf("not connected to D-Bus")
	}

	err := s.conn.Emit(BusPath, BusInterface+".ActionInvoked", id, actionKey)
	if err != nil {
		return fmt.Errorf("failed to emit ActionInvoked signal: %w", err)
	}

	s.logger.Debug("emitted ActionInvoked signal", "id", id, "action_key", actionKey)
	return nil
}

// EmitNotificationReplied emits the NotificationReplied signal carrying
// inline reply text from daemons that support it.
func (s *Server) EmitNotificationReplied(id uint32, text string) error {
	if s.conn == nil {
		return fmt.Errorf("not connected to D-Bus")
	}

	err := s.conn.Emit(BusPath, BusInterface+".NotificationReplied", id, text)
	if err != nil {
		return fmt.Errorf("failed to emit NotificationReplied signal: %w", err)
	}

	s.logger.Debug("emitted NotificationReplied signal", "id", id)
	return nil
}
