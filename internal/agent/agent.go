// Package agent implements the guest side of the notification bridge. It
// claims org.freedesktop.Notifications on the guest session bus, forwards
// Notify and CloseNotification calls to the relay, and turns the relay's
// feedback into the D-Bus signals applications expect.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	godbus "github.com/godbus/dbus/v5"

	"github.com/notibridge/notibridge/internal/config"
	"github.com/notibridge/notibridge/internal/dbus"
	"github.com/notibridge/notibridge/internal/sanitize"
	"github.com/notibridge/notibridge/internal/transport"
	"github.com/notibridge/notibridge/internal/wire"
)

const (
	errNameFailed      = "org.freedesktop.DBus.Error.Failed"
	errNameNoReply     = "org.freedesktop.DBus.Error.NoReply"
	errNameInvalidArgs = "org.freedesktop.DBus.Error.InvalidArgs"
)

// Notifier is the guest-facing notification service the agent drives.
// dbus.Server implements it.
type Notifier interface {
	SetCapabilities(caps []string)
	EmitNotificationClosed(id uint32, reason dbus.CloseReason) error
	EmitActionInvoked(id uint32, key string) error
	EmitNotificationReplied(id uint32, text string) error
}

// DialFunc opens a connection to the relay.
type DialFunc func(ctx context.Context) (*transport.Conn, error)

// Agent owns the relay connection and the bridge state on the guest side.
type Agent struct {
	logger   *slog.Logger
	cfg      *config.AgentConfig
	notifier Notifier
	dial     DialFunc
	pending  *pending

	mu         sync.Mutex
	conn       *transport.Conn
	live       map[uint32]struct{}
	relayMinor uint16
}

// New creates an Agent. The default dialer follows the configuration:
// a socket path when one is set, otherwise the relay command.
func New(cfg *config.AgentConfig, notifier Notifier, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Agent{
		logger:   logger,
		cfg:      cfg,
		notifier: notifier,
		pending:  newPending(),
		live:     make(map[uint32]struct{}),
	}
	a.dial = a.dialRelay
	return a
}

// SetDialFunc replaces how the agent reaches the relay.
func (a *Agent) SetDialFunc(dial DialFunc) {
	a.dial = dial
}

func (a *Agent) dialRelay(ctx context.Context) (*transport.Conn, error) {
	if a.cfg.Relay.Socket != "" {
		return transport.Dial(a.cfg.Relay.Socket)
	}
	return transport.Command(ctx, a.cfg.Relay.Command)
}

// Run connects to the relay and serves until the context is canceled,
// reconnecting with exponential backoff whenever the connection drops.
func (a *Agent) Run(ctx context.Context) error {
	retryMin := a.cfg.Relay.RetryMin.Duration()
	retryMax := a.cfg.Relay.RetryMax.Duration()
	retry := retryMin

	for {
		if ctx.Err() != nil {
			return nil
		}

		conn, err := a.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			a.logger.Warn("cannot reach relay", "error", err, "retry_in", retry)
			if !sleepCtx(ctx, retry) {
				return nil
			}
			retry = nextRetry(retry, retryMax)
			continue
		}

		handshook, err := a.serve(ctx, conn)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			a.logger.Warn("relay session ended", "error", err)
		} else {
			a.logger.Info("relay closed the session")
		}

		if handshook {
			retry = retryMin
		}
		if !sleepCtx(ctx, retry) {
			return nil
		}
		if !handshook {
			retry = nextRetry(retry, retryMax)
		}
	}
}

// serve performs the handshake and pumps relay envelopes until the
// connection ends. handshook reports whether the handshake completed, so
// Run can tell a working relay from an unreachable one when backing off.
func (a *Agent) serve(ctx context.Context, conn *transport.Conn) (handshook bool, err error) {
	defer conn.Close()

	// Closing the conn is the only way to unblock a pending read.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	hsTimer := time.AfterFunc(a.cfg.Relay.ConnectTimeout.Duration(), func() { conn.Close() })
	hello, err := a.handshake(conn)
	hsTimer.Stop()
	if err != nil {
		return false, fmt.Errorf("handshake: %w", err)
	}

	a.applyHello(hello)
	a.setConn(conn)
	defer a.connectionLost()

	a.logger.Info("connected to relay",
		"protocol", fmt.Sprintf("%d.%d", hello.Major, wire.NegotiateMinor(hello.Minor)))

	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return true, nil
			}
			return true, err
		}

		env, err := wire.Decode(frame)
		if err != nil {
			if errors.Is(err, wire.ErrUnknownKind) && a.relayNewer() {
				// A newer relay may speak kinds this build does not.
				a.logger.Warn("skipping unknown envelope kind", "kind", string(env.Type))
				continue
			}
			return true, err
		}
		if err := a.dispatch(env); err != nil {
			return true, err
		}
	}
}

// handshake waits for the relay's hello and answers with the negotiated
// version.
func (a *Agent) handshake(conn *transport.Conn) (*wire.Hello, error) {
	frame, err := conn.ReadFrame()
	if err != nil {
		return nil, err
	}
	env, err := wire.Decode(frame)
	if err != nil {
		return nil, err
	}
	if env.Type != wire.KindHello {
		return nil, fmt.Errorf("expected hello, got %s", env.Type)
	}
	if err := wire.CheckMajor(env.Hello.Major); err != nil {
		return nil, err
	}

	if err := conn.WriteEnvelope(&wire.Envelope{Type: wire.KindHello, Hello: &wire.Hello{
		Major: wire.ProtocolMajor,
		Minor: wire.NegotiateMinor(env.Hello.Minor),
	}}); err != nil {
		return nil, err
	}
	return env.Hello, nil
}

// applyHello takes over the capability set the relay announced. An empty
// list keeps the current set: a daemon that advertises nothing is
// indistinguishable from a host-side query that failed, and the fallback
// degrades more gracefully.
func (a *Agent) applyHello(h *wire.Hello) {
	a.mu.Lock()
	a.relayMinor = h.Minor
	a.mu.Unlock()

	if len(h.Capabilities) > 0 {
		a.notifier.SetCapabilities(h.Capabilities)
	}
	if h.Daemon != nil {
		a.logger.Info("host daemon",
			"name", h.Daemon.Name,
			"vendor", h.Daemon.Vendor,
			"version", h.Daemon.Version,
			"spec_version", h.Daemon.SpecVersion)
	}
}

func (a *Agent) relayNewer() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.relayMinor > wire.ProtocolMinor
}

// dispatch handles one envelope from the relay.
func (a *Agent) dispatch(env *wire.Envelope) error {
	switch env.Type {
	case wire.KindCreated:
		// Track liveness even when the caller already timed out, so a
		// later restart still closes the notification.
		a.markLive(env.Created.ID)
		if !a.pending.settle(env.Created.Seq, outcome{id: env.Created.ID}) {
			a.logger.Debug("late created reply", "seq", env.Created.Seq, "id", env.Created.ID)
		}
	case wire.KindFailed:
		if !a.pending.settle(env.Failed.Seq, outcome{failed: env.Failed}) {
			a.logger.Debug("late failed reply", "seq", env.Failed.Seq)
		}
	case wire.KindDismissed:
		a.dropLive(env.Dismissed.ID)
		if err := a.notifier.EmitNotificationClosed(env.Dismissed.ID, dbus.CloseReason(env.Dismissed.Reason)); err != nil {
			a.logger.Warn("failed to emit NotificationClosed", "id", env.Dismissed.ID, "error", err)
		}
	case wire.KindAction:
		if err := a.notifier.EmitActionInvoked(env.Action.ID, env.Action.Key); err != nil {
			a.logger.Warn("failed to emit ActionInvoked", "id", env.Action.ID, "error", err)
		}
	case wire.KindReplied:
		if err := a.notifier.EmitNotificationReplied(env.Replied.ID, env.Replied.Text); err != nil {
			a.logger.Warn("failed to emit NotificationReplied", "id", env.Replied.ID, "error", err)
		}
	case wire.KindRestart:
		a.logger.Info("host daemon restarted, closing live notifications")
		a.closeAllLive()
	case wire.KindHello:
		// Mid-stream hello: the daemon behind the relay changed.
		a.applyHello(env.Hello)
	default:
		return fmt.Errorf("unexpected %s envelope from relay", env.Type)
	}
	return nil
}

// HandleNotify forwards one application notification to the relay and
// blocks until the relay answers or the timeout passes. Wired into
// dbus.Server as its NotifyHandler; the bus library runs each call on its
// own goroutine, so blocking here is fine.
func (a *Agent) HandleNotify(n *dbus.Notification) (uint32, *godbus.Error) {
	if derr := validateRequest(n); derr != nil {
		return 0, derr
	}

	conn := a.currentConn()
	if conn == nil {
		return 0, godbus.NewError(errNameFailed,
			[]interface{}{"notification bridge is not connected"})
	}

	seq, ch := a.pending.register()
	if err := conn.WriteEnvelope(&wire.Envelope{Type: wire.KindNotify, Notify: wireNotify(seq, n)}); err != nil {
		a.pending.drop(seq)
		a.logger.Warn("failed to send notification", "seq", seq, "error", err)
		return 0, godbus.NewError(errNameFailed,
			[]interface{}{"notification bridge is not connected"})
	}

	timer := time.NewTimer(a.cfg.Relay.NotifyTimeout.Duration())
	defer timer.Stop()

	select {
	case o := <-ch:
		if o.failed != nil {
			return 0, failedError(o.failed)
		}
		return o.id, nil
	case <-timer.C:
		a.pending.drop(seq)
		return 0, godbus.NewError(errNameNoReply,
			[]interface{}{"timed out waiting for the notification bridge"})
	}
}

// HandleClose forwards a CloseNotification request. Fire and forget: the
// authoritative close comes back as a Dismissed envelope.
func (a *Agent) HandleClose(id uint32) {
	conn := a.currentConn()
	if conn == nil {
		return
	}
	if err := conn.WriteEnvelope(&wire.Envelope{Type: wire.KindClose, Close: &wire.Close{
		Seq: a.pending.nextSeq(),
		ID:  id,
	}}); err != nil {
		a.logger.Debug("failed to send close", "id", id, "error", err)
	}
}

func (a *Agent) setConn(conn *transport.Conn) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.conn = conn
}

func (a *Agent) currentConn() *transport.Conn {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn
}

func (a *Agent) markLive(id uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.live[id] = struct{}{}
}

func (a *Agent) dropLive(id uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.live, id)
}

func (a *Agent) liveCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.live)
}

// closeAllLive emits NotificationClosed with the undefined reason for
// every live notification. The host notifications are gone; this keeps
// guest applications from referencing dead IDs.
func (a *Agent) closeAllLive() {
	a.mu.Lock()
	ids := make([]uint32, 0, len(a.live))
	for id := range a.live {
		ids = append(ids, id)
	}
	a.live = make(map[uint32]struct{})
	a.mu.Unlock()

	for _, id := range ids {
		if err := a.notifier.EmitNotificationClosed(id, dbus.CloseReasonUndefined); err != nil {
			a.logger.Debug("failed to emit NotificationClosed", "id", id, "error", err)
		}
	}
}

// connectionLost clears the connection and settles everything that
// depended on it.
func (a *Agent) connectionLost() {
	a.setConn(nil)
	a.pending.failAll("notification bridge disconnected")
	a.closeAllLive()
}

// validateRequest rejects malformed application input before it reaches
// the wire. The relay drops the connection on protocol violations, so bad
// input from one application must fail its own call instead.
func validateRequest(n *dbus.Notification) *godbus.Error {
	if n.ExpireTimeout < -1 {
		return godbus.NewError(errNameInvalidArgs,
			[]interface{}{fmt.Sprintf("invalid expire timeout %d", n.ExpireTimeout)})
	}
	if len(n.Actions)%2 != 0 {
		return godbus.NewError(errNameInvalidArgs,
			[]interface{}{"actions array has odd length"})
	}
	for i := 0; i < len(n.Actions); i += 2 {
		if !sanitize.ValidAction(n.Actions[i]) {
			return godbus.NewError(errNameInvalidArgs,
				[]interface{}{fmt.Sprintf("invalid action name %q", n.Actions[i])})
		}
	}
	return nil
}

// wireNotify converts an incoming D-Bus notification for transit. Values
// pass through raw; sanitization and validation are host-side concerns.
// The app icon is dropped: icons are never forwarded.
func wireNotify(seq uint64, n *dbus.Notification) *wire.Notify {
	return &wire.Notify{
		Seq:           seq,
		ReplacesID:    n.ReplacesID,
		AppName:       n.AppName,
		Summary:       n.Summary,
		Body:          n.Body,
		Actions:       n.Actions,
		Urgency:       n.Urgency(),
		Category:      n.Category(),
		ExpireTimeout: n.ExpireTimeout,
		SuppressSound: n.SuppressSound(),
		Transient:     n.Transient(),
		Resident:      n.Resident(),
		Image:         n.Image(),
	}
}

// failedError converts a Failed reply into the D-Bus error the calling
// application receives.
func failedError(f *wire.Failed) *godbus.Error {
	name := f.Name
	if name == "" {
		name = errNameFailed
	}
	message := f.Message
	if message == "" {
		message = "notification rejected"
	}
	return godbus.NewError(name, []interface{}{message})
}

func nextRetry(cur, max time.Duration) time.Duration {
	cur *= 2
	if cur > max {
		return max
	}
	return cur
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
