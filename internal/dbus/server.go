package dbus

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

const (
	// BusInterface is the notification interface name.
	BusInterface = "org.freedesktop.Notifications"
	// BusPath is the notification object path.
	BusPath = "/org/freedesktop/Notifications"
	// BusName is the well-known bus name to claim.
	BusName = "org.freedesktop.Notifications"
)

// NotifyHandler is called for each incoming Notify. It returns the ID the
// application sees; the server never invents IDs itself because they are
// assigned on the host side of the bridge.
type NotifyHandler func(n *Notification) (uint32, *dbus.Error)

// CloseHandler is called when an application requests CloseNotification.
type CloseHandler func(id uint32)

// Server implements the org.freedesktop.Notifications D-Bus interface on
// the guest session bus.
type Server struct {
	conn   *dbus.Conn
	logger *slog.Logger

	notifyHandler NotifyHandler
	closeHandler  CloseHandler

	mu         sync.RWMutex
	caps       []string
	serverInfo ServerInfo
	running    bool
}

// NewServer creates a Server. Capabilities start at the fallback set and
// are replaced once the bridge handshake delivers the host daemon's.
func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		logger:     logger,
		caps:       FallbackCapabilities(),
		serverInfo: DefaultServerInfo(),
	}
}

// SetNotifyHandler sets the handler called for each incoming notification.
func (s *Server) SetNotifyHandler(handler NotifyHandler) {
	s.notifyHandler = handler
}

// SetCloseHandler sets the handler called for CloseNotification requests.
func (s *Server) SetCloseHandler(handler CloseHandler) {
	s.closeHandler = handler
}

// SetServerInfo sets the identity returned by GetServerInformation.
func (s *Server) SetServerInfo(info ServerInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serverInfo = info
}

// SetCapabilities replaces the advertised capability list.
func (s *Server) SetCapabilities(caps []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caps = append([]string(nil), caps...)
	s.logger.Debug("advertised capabilities updated", "capabilities", caps)
}

// Start connects to the session bus and exports the notification service.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.mu.Unlock()

	conn, err := dbus.SessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}
	s.conn = conn

	// Export the notification server object
	if err := conn.Export(s, BusPath, BusInterface); err != nil {
		return fmt.Errorf("failed to export object: %w", err)
	}

	// Export introspection data
	node := &introspect.Node{
		Name: BusPath,
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name:    BusInterface,
				Methods: notificationMethods(),
				Signals: notificationSignals(),
			},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), BusPath,
		"org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("failed to export introspectable: %w", err)
	}

	// Request the bus name. The export must be in place first so calls
	// arriving the instant the name changes owner are answerable.
	reply, err := conn.RequestName(BusName, dbus.NameFlagDoNotQueue|dbus.NameFlagReplaceExisting)
	if err != nil {
		return fmt.Errorf("failed to request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("bus name %s already taken", BusName)
	}

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	s.logger.Info("D-Bus notification server started", "interface", BusInterface, "path", BusPath)
	return nil
}

// Stop releases the bus name. The shared session connection stays open.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	if s.conn != nil {
		if _, err := s.conn.ReleaseName(BusName); err != nil {
			s.logger.Warn("failed to release bus name", "error", err)
		}
	}

	s.logger.Info("D-Bus notification server stopped")
	return nil
}

// GetCapabilities returns the capabilities the bridge currently advertises.
// D-Bus method: GetCapabilities() -> as
func (s *Server) GetCapabilities() ([]string, *dbus.Error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.logger.Debug("GetCapabilities called")
	return append([]string(nil), s.caps...), nil
}

// GetServerInformation returns information about the notification server.
// D-Bus method: GetServerInformation() -> (ssss)
func (s *Server) GetServerInformation() (string, string, string, string, *dbus.Error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.logger.Debug("GetServerInformation called")
	return s.serverInfo.Name, s.serverInfo.Vendor, s.serverInfo.Version, s.serverInfo.SpecVersion, nil
}

// Notify handles incoming notification requests.
// D-Bus method: Notify(susssasa{sv}i) -> u
func (s *Server) Notify(
	appName string,
	replacesID uint32,
	appIcon string,
	summary string,
	body string,
	actions []string,
	hints map[string]dbus.Variant,
	expireTimeout int32,
) (uint32, *dbus.Error) {
	s.logger.Debug("Notify called",
		"app_name", appName,
		"replaces_id", replacesID,
		"summary", summary,
	)

	if s.notifyHandler == nil {
		return 0, dbus.NewError("org.freedesktop.DBus.Error.Failed",
			[]interface{}{"notification bridge is not running"})
	}

	notification := &Notification{
		AppName:       appName,
		ReplacesID:    replacesID,
		AppIcon:       appIcon,
		Summary:       summary,
		Body:          body,
		Actions:       actions,
		Hints:         hints,
		ExpireTimeout: expireTimeout,
	}

	return s.notifyHandler(notification)
}

// CloseNotification closes a notification by ID.
// D-Bus method: CloseNotification(u) -> nothing
//
// Always succeeds: the authoritative close arrives later as a
// NotificationClosed signal once the host daemon acts.
func (s *Server) CloseNotification(id uint32) *dbus.Error {
	s.logger.Debug("CloseNotification called", "id", id)
	if s.closeHandler != nil {
		s.closeHandler(id)
	}
	return nil
}

// notificationMethods returns the D-Bus method introspection data.
func notificationMethods() []introspect.Method {
	return []introspect.Method{
		{
			Name: "GetCapabilities",
			Args: []introspect.Arg{
				{Name: "capabilities", Type: "as", Direction: "out"},
			},
		},
		{
			Name: "GetServerInformation",
			Args: []introspect.Arg{
				{Name: "name", Type: "s", Direction: "out"},
				{Name: "vendor", Type: "s", Direction: "out"},
				{Name: "version", Type: "s", Direction: "out"},
				{Name: "spec_version", Type: "s", Direction: "out"},
			},
		},
		{
			Name: "Notify",
			Args: []introspect.Arg{
				{Name: "app_name", Type: "s", Direction: "in"},
				{Name: "replaces_id", Type: "u", Direction: "in"},
				{Name: "app_icon", Type: "s", Direction: "in"},
				{Name: "summary", Type: "s", Direction: "in"},
				{Name: "body", Type: "s", Direction: "in"},
				{Name: "actions", Type: "as", Direction: "in"},
				{Name: "hints", Type: "a{sv}", Direction: "in"},
				{Name: "expire_timeout", Type: "i", Direction: "in"},
				{Name: "id", Type: "u", Direction: "out"},
			},
		},
		{
			Name: "CloseNotification",
			Args: []introspect.Arg{
				{Name: "id", Type: "u", Direction: "in"},
			},
		},
	}
}

// notificationSignals returns the D-Bus signal introspection data.
func notificationSignals() []introspect.Signal {
	return []introspect.Signal{
		{
			Name: "NotificationClosed",
			Args: []introspect.Arg{
				{Name: "id", Type: "u"},
				{Name: "reason", Type: "u"},
			},
		},
		{
			Name: "ActionInvoked",
			Args: []introspect.Arg{
				{Name: "id", Type: "u"},
				{Name: "action_key", Type: "s"},
			},
		},
		{
			Name: "NotificationReplied",
			Args: []introspect.Arg{
				{Name: "id", Type: "u"},
				{Name: "text", Type: "s"},
			},
		},
	}
}
