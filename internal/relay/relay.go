// Package relay implements the host side of the notification bridge. It
// accepts framed requests from guest agents, enforces sanitization and
// rate limits, forwards what passes to the host daemon, and streams the
// daemon's signals back with IDs translated per session.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/notibridge/notibridge/internal/config"
	"github.com/notibridge/notibridge/internal/dbus"
	"github.com/notibridge/notibridge/internal/journal"
	"github.com/notibridge/notibridge/internal/sanitize"
	"github.com/notibridge/notibridge/internal/transport"
	"github.com/notibridge/notibridge/internal/wire"
)

// handshakeTimeout bounds how long a new connection may take to reply to
// the relay's hello.
const handshakeTimeout = 10 * time.Second

// journalSummaryLimit caps how much of a summary the journal records.
const journalSummaryLimit = 256

// Daemon is the host notification daemon as the relay sees it. Emitter
// implements it against the session bus.
type Daemon interface {
	Send(ctx context.Context, n *wire.Notify, replacesHost uint32, policy dbus.Policy) (uint32, error)
	CloseNotification(ctx context.Context, hostID uint32) error
	Capabilities() dbus.CapabilitySet
	Info() wire.DaemonInfo
	Events() <-chan dbus.Event
	Refresh(ctx context.Context) error
}

// Server accepts agent connections and runs one Session per connection.
type Server struct {
	logger  *slog.Logger
	daemon  Daemon
	journal *journal.Journal // nil disables journaling
	peer    string           // stdio-mode peer override

	mu       sync.RWMutex
	cfg      *config.RelayConfig
	sessions map[*Session]struct{}
}

// New creates a relay server.
func New(cfg *config.RelayConfig, daemon Daemon, jnl *journal.Journal, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		logger:   logger,
		daemon:   daemon,
		journal:  jnl,
		cfg:      cfg,
		sessions: make(map[*Session]struct{}),
	}
}

// SetPeerName overrides the peer name used for stdio sessions. Without an
// override the QREXEC_REMOTE_DOMAIN environment variable is consulted.
func (s *Server) SetPeerName(peer string) {
	s.peer = peer
}

// SetConfig swaps the configuration. Applies to sessions opened after the
// call; running sessions keep the limits they started with.
func (s *Server) SetConfig(cfg *config.RelayConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

func (s *Server) config() *config.RelayConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Run serves until the context is canceled. With a listen socket
// configured it accepts any number of agent connections; otherwise it
// serves a single session on stdin/stdout and returns when that session
// ends.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.pumpEvents(ctx) })

	socket := s.config().Listen.Socket
	if socket == "" {
		sess := s.newSession(transport.Stdio(), s.stdioPeer())
		g.Go(func() error {
			defer cancel()
			defer s.dropSession(sess)
			return sess.Run(ctx)
		})
		return g.Wait()
	}

	ln, err := transport.Listen(socket)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.logger.Info("listening", "socket", ln.Path())

	g.Go(func() error {
		<-ctx.Done()
		return ln.Close()
	})
	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("accept: %w", err)
			}
			sess := s.newSession(conn, "local")
			g.Go(func() error {
				defer s.dropSession(sess)
				if err := sess.Run(ctx); err != nil {
					// One misbehaving agent must not take the relay down.
					s.logger.Warn("session ended", "peer", sess.peer, "error", err)
				}
				return nil
			})
		}
	})
	return g.Wait()
}

// stdioPeer resolves the peer name for a stdio session.
func (s *Server) stdioPeer() string {
	if s.peer != "" {
		return s.peer
	}
	if domain := os.Getenv("QREXEC_REMOTE_DOMAIN"); domain != "" {
		return domain
	}
	return "guest"
}

// newSession snapshots the current configuration into a Session and
// registers it for event routing.
func (s *Server) newSession(conn *transport.Conn, peer string) *Session {
	cfg := s.config()

	peer = sanitize.AppName(peer)
	if peer == "" {
		peer = "guest"
	}

	sess := &Session{
		logger:  s.logger.With("peer", peer),
		peer:    peer,
		conn:    conn,
		daemon:  s.daemon,
		journal: s.journal,
		policy: dbus.Policy{
			SummaryPrefix:  cfg.Policy.RenderPrefix(peer),
			AppName:        cfg.Policy.AppName,
			ForwardAppName: cfg.Policy.ForwardAppName,
			ForwardImages:  cfg.Policy.ForwardImages,
		},
		ids:           NewIDMap(),
		limiter:       rate.NewLimiter(rate.Limit(cfg.Limits.Rate), cfg.Limits.Burst),
		sem:           semaphore.NewWeighted(int64(cfg.Limits.InFlight)),
		notifyTimeout: cfg.Limits.NotifyTimeout.Duration(),
	}

	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()

	return sess
}

func (s *Server) dropSession(sess *Session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
}

func (s *Server) snapshotSessions() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Session, 0, len(s.sessions))
	for sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// pumpEvents routes daemon events to the sessions that own them.
func (s *Server) pumpEvents(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-s.daemon.Events():
			if !ok {
				return nil
			}
			s.route(ctx, ev)
		}
	}
}

func (s *Server) route(ctx context.Context, ev dbus.Event) {
	switch ev.Kind {
	case dbus.EventRestart:
		s.logger.Info("notification daemon restarted")
		rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := s.daemon.Refresh(rctx); err != nil {
			s.logger.Warn("failed to refresh daemon state", "error", err)
		}
		cancel()
		s.record(journal.Entry{Kind: journal.KindRestart})
		for _, sess := range s.snapshotSessions() {
			sess.announceRestart()
		}
	case dbus.EventClosed:
		for _, sess := range s.snapshotSessions() {
			if guestID, ok := sess.ids.ReleaseHost(ev.HostID); ok {
				sess.sendDismissed(guestID, ev.Reason)
				return
			}
		}
		s.logger.Debug("close signal for untracked notification", "host_id", ev.HostID)
	case dbus.EventAction:
		for _, sess := range s.snapshotSessions() {
			if guestID, ok := sess.ids.GuestFor(ev.HostID); ok {
				sess.sendAction(guestID, ev.Key)
				return
			}
		}
	case dbus.EventReplied:
		for _, sess := range s.snapshotSessions() {
			if guestID, ok := sess.ids.GuestFor(ev.HostID); ok {
				sess.sendReplied(guestID, ev.Text)
				return
			}
		}
	}
}

func (s *Server) record(e journal.Entry) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Append(e); err != nil {
		s.logger.Warn("failed to write journal entry", "error", err)
	}
}

// Session is one agent connection.
type Session struct {
	logger  *slog.Logger
	peer    string
	conn    *transport.Conn
	daemon  Daemon
	journal *journal.Journal
	policy  dbus.Policy
	ids     *IDMap

	limiter       *rate.Limiter
	sem           *semaphore.Weighted
	notifyTimeout time.Duration
}

// Run performs the handshake and serves the session until the peer
// disconnects, the context is canceled, or a protocol error occurs.
func (sess *Session) Run(ctx context.Context) error {
	defer sess.conn.Close()

	g, ctx := errgroup.WithContext(ctx)

	// Closing the conn is the only way to unblock a pending read.
	stop := context.AfterFunc(ctx, func() { sess.conn.Close() })
	defer stop()

	hsTimer := time.AfterFunc(handshakeTimeout, func() { sess.conn.Close() })
	minor, err := sess.handshake()
	hsTimer.Stop()
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	sess.logger.Info("agent connected", "protocol", fmt.Sprintf("%d.%d", wire.ProtocolMajor, minor))
	sess.record(journal.Entry{Kind: journal.KindConnect, Peer: sess.peer})
	defer sess.record(journal.Entry{Kind: journal.KindDisconnect, Peer: sess.peer})

	g.Go(func() error { return sess.readLoop(ctx, g) })
	return g.Wait()
}

// handshake announces the relay's protocol version and capability set,
// then waits for the agent's version reply.
func (sess *Session) handshake() (uint16, error) {
	if err := sess.conn.WriteEnvelope(sess.helloEnvelope()); err != nil {
		return 0, err
	}

	env, err := sess.readEnvelope()
	if err != nil {
		return 0, err
	}
	if env.Type != wire.KindHello {
		return 0, fmt.Errorf("expected hello, got %s", env.Type)
	}
	if err := wire.CheckMajor(env.Hello.Major); err != nil {
		return 0, err
	}
	return wire.NegotiateMinor(env.Hello.Minor), nil
}

// helloEnvelope carries the relay's protocol version plus the daemon
// capabilities and identity the agent should re-advertise.
func (sess *Session) helloEnvelope() *wire.Envelope {
	info := sess.daemon.Info()
	return &wire.Envelope{
		Type: wire.KindHello,
		Hello: &wire.Hello{
			Major:        wire.ProtocolMajor,
			Minor:        wire.ProtocolMinor,
			Capabilities: sess.daemon.Capabilities().Forwardable(),
			Daemon:       &info,
		},
	}
}

func (sess *Session) readEnvelope() (*wire.Envelope, error) {
	frame, err := sess.conn.ReadFrame()
	if err != nil {
		return nil, err
	}
	return wire.Decode(frame)
}

// readLoop consumes agent requests. Notifications run concurrently under
// the in-flight semaphore so one slow daemon call does not stall the
// stream.
func (sess *Session) readLoop(ctx context.Context, g *errgroup.Group) error {
	for {
		env, err := sess.readEnvelope()
		if err != nil {
			if errors.Is(err, io.EOF) {
				sess.logger.Info("agent disconnected")
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		switch env.Type {
		case wire.KindNotify:
			n := env.Notify
			if !sess.limiter.Allow() {
				sess.logger.Warn("notification rate limit exceeded", "seq", n.Seq)
				sess.record(journal.Entry{
					Kind:    journal.KindRejected,
					Peer:    sess.peer,
					AppName: sanitize.AppName(n.AppName),
					Summary: journalText(n.Summary),
					Error:   "rate limit exceeded",
				})
				if err := sess.conn.WriteEnvelope(&wire.Envelope{Type: wire.KindFailed, Failed: &wire.Failed{
					Seq:     n.Seq,
					Name:    "org.freedesktop.DBus.Error.LimitsExceeded",
					Message: "notification rate limit exceeded",
				}}); err != nil {
					return err
				}
				continue
			}
			if err := sess.sem.Acquire(ctx, 1); err != nil {
				return nil
			}
			g.Go(func() error {
				defer sess.sem.Release(1)
				return sess.forward(ctx, n)
			})
		case wire.KindClose:
			id := env.Close.ID
			g.Go(func() error {
				sess.closeGuest(ctx, id)
				return nil
			})
		default:
			return fmt.Errorf("unexpected %s envelope from agent", env.Type)
		}
	}
}

// forward sends one notification to the daemon and replies with Created
// or Failed.
func (sess *Session) forward(ctx context.Context, n *wire.Notify) error {
	var replacesHost uint32
	if n.ReplacesID != 0 {
		// Unknown or stale replaces IDs fall through as fresh
		// notifications, matching daemon behavior for unknown IDs.
		replacesHost, _ = sess.ids.HostFor(n.ReplacesID)
	}

	cctx, cancel := context.WithTimeout(ctx, sess.notifyTimeout)
	hostID, err := sess.daemon.Send(cctx, n, replacesHost, sess.policy)
	cancel()

	if err != nil {
		sess.logger.Warn("notification rejected", "seq", n.Seq, "error", err)
		sess.record(journal.Entry{
			Kind:    journal.KindRejected,
			Peer:    sess.peer,
			AppName: sanitize.AppName(n.AppName),
			Summary: journalText(n.Summary),
			Urgency: n.Urgency,
			Error:   err.Error(),
		})
		return sess.conn.WriteEnvelope(&wire.Envelope{Type: wire.KindFailed, Failed: failedFrom(n.Seq, err)})
	}

	guestID := sess.ids.Acquire(hostID, n.ReplacesID)
	sess.logger.Debug("notification forwarded", "seq", n.Seq, "guest_id", guestID, "host_id", hostID)
	sess.record(journal.Entry{
		Kind:    journal.KindForwarded,
		Peer:    sess.peer,
		GuestID: guestID,
		HostID:  hostID,
		AppName: sanitize.AppName(n.AppName),
		Summary: journalText(n.Summary),
		Urgency: n.Urgency,
	})
	return sess.conn.WriteEnvelope(&wire.Envelope{Type: wire.KindCreated, Created: &wire.Created{Seq: n.Seq, ID: guestID}})
}

// closeGuest relays a guest's CloseNotification. Fire and forget: the
// authoritative close comes back as a daemon signal.
func (sess *Session) closeGuest(ctx context.Context, guestID uint32) {
	hostID, ok := sess.ids.HostFor(guestID)
	if !ok {
		sess.logger.Debug("close for unknown notification", "guest_id", guestID)
		return
	}
	cctx, cancel := context.WithTimeout(ctx, sess.notifyTimeout)
	defer cancel()
	if err := sess.daemon.CloseNotification(cctx, hostID); err != nil {
		sess.logger.Debug("close request failed", "host_id", hostID, "error", err)
	}
}

func (sess *Session) sendDismissed(guestID uint32, reason dbus.CloseReason) {
	sess.record(journal.Entry{
		Kind:    journal.KindDismissed,
		Peer:    sess.peer,
		GuestID: guestID,
		Reason:  reason.String(),
	})
	if err := sess.conn.WriteEnvelope(&wire.Envelope{Type: wire.KindDismissed, Dismissed: &wire.Dismissed{
		ID:     guestID,
		Reason: uint32(reason),
	}}); err != nil {
		sess.logger.Debug("failed to send dismissal", "guest_id", guestID, "error", err)
	}
}

func (sess *Session) sendAction(guestID uint32, key string) {
	sess.record(journal.Entry{
		Kind:      journal.KindAction,
		Peer:      sess.peer,
		GuestID:   guestID,
		ActionKey: key,
	})
	if err := sess.conn.WriteEnvelope(&wire.Envelope{Type: wire.KindAction, Action: &wire.Action{
		ID:  guestID,
		Key: key,
	}}); err != nil {
		sess.logger.Debug("failed to send action", "guest_id", guestID, "error", err)
	}
}

func (sess *Session) sendReplied(guestID uint32, text string) {
	// The reply text itself stays out of the journal.
	sess.record(journal.Entry{
		Kind:    journal.KindReplied,
		Peer:    sess.peer,
		GuestID: guestID,
	})
	if err := sess.conn.WriteEnvelope(&wire.Envelope{Type: wire.KindReplied, Replied: &wire.Replied{
		ID:   guestID,
		Text: text,
	}}); err != nil {
		sess.logger.Debug("failed to send reply", "guest_id", guestID, "error", err)
	}
}

// announceRestart tells the agent that the daemon restarted, then
// re-announces the refreshed capability set.
func (sess *Session) announceRestart() {
	live := sess.ids.Clear()
	if len(live) > 0 {
		sess.logger.Info("daemon restart orphaned notifications", "count", len(live))
	}
	if err := sess.conn.WriteEnvelope(&wire.Envelope{Type: wire.KindRestart, Restart: &wire.Restart{}}); err != nil {
		sess.logger.Debug("failed to send restart", "error", err)
		return
	}
	if err := sess.conn.WriteEnvelope(sess.helloEnvelope()); err != nil {
		sess.logger.Debug("failed to re-announce capabilities", "error", err)
	}
}

func (sess *Session) record(e journal.Entry) {
	if sess.journal == nil {
		return
	}
	if err := sess.journal.Append(e); err != nil {
		sess.logger.Warn("failed to write journal entry", "error", err)
	}
}

// failedFrom maps a forwarding error onto the wire. D-Bus error names
// pass through so the agent can re-raise them; everything else collapses
// to an internal error, with the detail kept host-side in the journal.
func failedFrom(seq uint64, err error) *wire.Failed {
	var reqErr *dbus.RequestError
	if errors.As(err, &reqErr) {
		return &wire.Failed{Seq: seq, Name: reqErr.Name, Message: reqErr.Message}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &wire.Failed{Seq: seq, Message: "timed out waiting for the notification daemon"}
	}
	return &wire.Failed{Seq: seq, Message: "internal relay error"}
}

// journalText sanitizes untrusted text for the journal, collapsing it to
// a single bounded line.
func journalText(s string) string {
	s = strings.ReplaceAll(sanitize.Text(s), "\n", " ")
	r := []rune(s)
	if len(r) > journalSummaryLimit {
		return string(r[:journalSummaryLimit])
	}
	return s
}
