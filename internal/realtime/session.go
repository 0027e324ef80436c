package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/echochat/internal/apperr"
	"github.com/lalith-99/echochat/internal/auth"
	"github.com/lalith-99/echochat/internal/broadcast"
	"go.uber.org/zap"
)

var errSessionClosed = errors.New("session closed")

// session is one websocket connection. It is the broadcast.Subscriber the
// registries hold: Deliver only queues, the write pump owns the socket.
type session struct {
	id       string
	identity auth.Identity
	conn     *websocket.Conn
	gw       *Gateway
	logger   *zap.Logger

	send      chan Frame
	closed    chan struct{}
	closeOnce sync.Once
}

var _ broadcast.Subscriber = (*session)(nil)

func newSession(gw *Gateway, conn *websocket.Conn, id auth.Identity) *session {
	sid := "ws-" + uuid.NewString()
	return &session{
		id:       sid,
		identity: id,
		conn:     conn,
		gw:       gw,
		logger: gw.logger.With(
			zap.String("session_id", sid),
			zap.String("user_id", id.UserID.String()),
		),
		send:   make(chan Frame, gw.opts.SendBuffer),
		closed: make(chan struct{}),
	}
}

func (s *session) ID() string { return s.id }

// Deliver queues the event. It waits for buffer space until ctx expires;
// the registry treats that as an unresponsive client and evicts it.
func (s *session) Deliver(ctx context.Context, ev broadcast.Event) error {
	if err := s.enqueue(ctx, eventFrame(ev)); err != nil {
		return err
	}
	if s.revokedBy(ev) {
		s.drop(ev.ChatID())
	}
	return nil
}

// revokedBy reports whether ev ends this session's access to its chat.
func (s *session) revokedBy(ev broadcast.Event) bool {
	switch e := ev.(type) {
	case broadcast.UserLeft:
		return e.Membership.UserID == s.identity.UserID
	case broadcast.ChatDeleted:
		return true
	}
	return false
}

// drop forgets a chat the session may no longer read. The service has
// usually revoked the subscription already; what is left is presence.
func (s *session) drop(chatID int64) {
	if s.gw.chats.Unsubscribe(chatID, s) {
		s.logger.Debug("subscription revoked", zap.Int64("chat_id", chatID))
	}
	// Deliver runs on a registry goroutine; presence may be a network call.
	go s.leavePresence(context.Background(), chatID)
}

// Close is called by a registry on eviction and by teardown. It is safe to
// call more than once and from any goroutine.
func (s *session) Close() error {
	return s.shutdown(websocket.CloseTryAgainLater, "unresponsive")
}

func (s *session) shutdown(code int, reason string) error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		// WriteControl may run concurrently with the write pump.
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(s.gw.opts.WriteWait))
		err = s.conn.Close()
	})
	return err
}

func (s *session) enqueue(ctx context.Context, f Frame) error {
	select {
	case <-s.closed:
		return errSessionClosed
	default:
	}
	select {
	case s.send <- f:
		return nil
	case <-s.closed:
		return errSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *session) reply(ctx context.Context, f Frame) {
	if err := s.enqueue(ctx, f); err != nil {
		s.logger.Debug("reply dropped", zap.String("type", f.Type), zap.Error(err))
	}
}

// readLoop runs on the handler goroutine until the client goes away or the
// session is closed.
func (s *session) readLoop(ctx context.Context) {
	s.conn.SetReadLimit(s.gw.opts.MaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.gw.opts.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.gw.opts.PongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("read failed", zap.Error(err))
			}
			return
		}

		var cmd command
		if err := json.Unmarshal(data, &cmd); err != nil {
			s.reply(ctx, errorFrame("", CodeInvalidArgument, "malformed command"))
			continue
		}
		s.handle(ctx, cmd)
	}
}

func (s *session) handle(ctx context.Context, cmd command) {
	switch cmd.Type {
	case cmdSubscribe:
		if err := s.subscribe(ctx, cmd.ChatID); err != nil {
			s.reply(ctx, errorFrame(cmd.RequestID, errorCode(err), err.Error()))
			return
		}
		s.reply(ctx, ackFrame(cmd))
	case cmdUnsubscribe:
		if cmd.ChatID <= 0 {
			s.reply(ctx, errorFrame(cmd.RequestID, CodeInvalidArgument, "chat_id is required"))
			return
		}
		s.unsubscribe(ctx, cmd.ChatID)
		s.reply(ctx, ackFrame(cmd))
	case cmdPing:
		s.reply(ctx, Frame{Type: framePong, RequestID: cmd.RequestID})
	default:
		s.reply(ctx, errorFrame(cmd.RequestID, CodeInvalidArgument, "unknown command "+cmd.Type))
	}
}

// subscribe checks membership and subscribes with the chat's sequence held.
// A removal takes the same lock to commit and revoke, so the check can never
// be stale by the time the subscription exists.
func (s *session) subscribe(ctx context.Context, chatID int64) error {
	if chatID <= 0 {
		return apperr.Validation("chat_id is required")
	}

	unlock := s.gw.seq.Lock(chatID)
	_, err := s.gw.guard.RequireRead(ctx, s.identity, chatID)
	if err == nil && s.gw.chats.Subscribe(chatID, s) {
		s.logger.Debug("subscribed", zap.Int64("chat_id", chatID))
	}
	unlock()
	if err != nil {
		return err
	}

	s.joinPresence(ctx, chatID)
	return nil
}

func (s *session) unsubscribe(ctx context.Context, chatID int64) {
	if s.gw.chats.Unsubscribe(chatID, s) {
		s.logger.Debug("unsubscribed", zap.Int64("chat_id", chatID))
	}
	s.leavePresence(ctx, chatID)
}

// Presence is best effort: a tracker outage never fails a command.

func (s *session) joinPresence(ctx context.Context, chatID int64) {
	ctx, cancel := context.WithTimeout(ctx, presenceTimeout)
	defer cancel()
	if err := s.gw.presence.Join(ctx, chatID, s.id, s.identity.UserID); err != nil {
		s.logger.Warn("presence join failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (s *session) leavePresence(ctx context.Context, chatID int64) {
	ctx, cancel := context.WithTimeout(ctx, presenceTimeout)
	defer cancel()
	if err := s.gw.presence.Leave(ctx, chatID, s.id); err != nil {
		s.logger.Warn("presence leave failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// writePump is the only writer of data frames. Each ping also refreshes the
// presence entries so they outlive the tracker's TTL.
func (s *session) writePump(ctx context.Context) {
	ticker := time.NewTicker(s.gw.opts.PongWait * 9 / 10)
	defer ticker.Stop()

	for {
		select {
		case f := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.gw.opts.WriteWait))
			if err := s.conn.WriteJSON(f); err != nil {
				s.logger.Debug("write failed", zap.Error(err))
				_ = s.Close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.gw.opts.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = s.Close()
				return
			}
			for _, chatID := range s.gw.chats.Keys(s) {
				s.joinPresence(ctx, chatID)
			}
		case <-s.closed:
			return
		case <-ctx.Done():
			return
		}
	}
}

// teardown leaves every group the session is in, so no registry keeps a
// handle to a dead connection.
func (s *session) teardown(ctx context.Context) {
	chatIDs := s.gw.chats.Keys(s)
	s.gw.chats.UnsubscribeAll(s)
	s.gw.inboxes.UnsubscribeAll(s)
	for _, chatID := range chatIDs {
		s.leavePresence(ctx, chatID)
	}
	_ = s.shutdown(websocket.CloseNormalClosure, "")
}
