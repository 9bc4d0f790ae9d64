package ws

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/focusroom/presence-service/internal/domain"
	"github.com/focusroom/presence-service/internal/rtstore"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

type PresenceSvc interface {
	JoinRoom(ctx context.Context, roomID string, m domain.Member, sess *rtstore.Session) error
	Members(ctx context.Context, roomID string) ([]domain.Member, error)
	TouchPresence(ctx context.Context, roomID, userID string) error
}

// Server держит по WS-подключению на участника комнаты. Подключение и
// есть liveness-сессия: обрыв сокета закрывает сессию и запускает все
// зарегистрированные cleanup-и (leave, чистка таймера) — аналог
// firebase-овского onDisconnect.
type Server struct {
	upgrader websocket.Upgrader
	hub      *Hub
	store    rtstore.Store
	presence PresenceSvc
	sessions *rtstore.SessionRegistry

	pingEvery time.Duration
}

func NewServer(hub *Hub, store rtstore.Store, presence PresenceSvc, sessions *rtstore.SessionRegistry) *Server {
	return &Server{
		hub:      hub,
		store:    store,
		presence: presence,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pingEvery: 15 * time.Second,
	}
}

// WS endpoint: GET /ws/rooms/{id}?access_token=...&user_id=...&display_name=...
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	accessToken := strings.TrimSpace(q.Get("access_token"))
	userID := strings.TrimSpace(q.Get("user_id"))
	if accessToken == "" || userID == "" {
		http.Error(w, "missing access_token or user_id", http.StatusUnauthorized)
		return
	}
	roomID := chi.URLParam(r, "id")
	if roomID == "" {
		http.Error(w, "missing room id", http.StatusBadRequest)
		return
	}
	member := domain.Member{
		ID:          userID,
		DisplayName: strings.TrimSpace(q.Get("display_name")),
		IsPremium:   q.Get("premium") == "1",
	}
	if member.DisplayName == "" {
		member.DisplayName = "Anonymous"
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	sess := rtstore.NewSession(userID)
	s.sessions.Put(sess)

	if err := s.presence.JoinRoom(r.Context(), roomID, member, sess); err != nil {
		slog.Warn("ws join failed", "room", roomID, "user", userID, "err", err)
	}

	c := newWsConn(conn, roomID, userID)
	s.hub.Add(c)

	if err := s.sendState(r.Context(), c); err != nil {
		slog.Warn("ws send initial state failed", "room", roomID, "user", userID, "err", err)
	}

	relayCtx, relayCancel := context.WithCancel(context.Background())
	go s.relayChanges(relayCtx, c)
	go s.writeLoop(r.Context(), c)

	s.readLoop(r.Context(), c)

	// разрыв: порядок teardown значим — сперва убрать из hub, затем
	// cleanups сессии (leave + чистка таймера), затем сокет
	relayCancel()
	s.hub.Remove(c)
	sess.Close(context.Background())
	s.sessions.Remove(sess)

	if err := c.Close(); err != nil {
		slog.Debug("ws close failed", "room", roomID, "user", userID, "err", err)
	}
}

func (s *Server) sendState(ctx context.Context, c *wsConn) error {
	members, err := s.presence.Members(ctx, c.roomID)
	if err != nil {
		return err
	}
	items := make([]MemberItem, 0, len(members))
	for _, m := range members {
		items = append(items, MemberItem{
			UserID:      m.ID,
			DisplayName: m.DisplayName,
			IsPremium:   m.IsPremium,
		})
	}

	return c.Send(Message{
		Type: TypeState,
		Payload: StatePayload{
			RoomID:  c.roomID,
			Members: items,
		},
	})
}

// relayChanges гонит изменения store в сокет, переводя их в типизированные
// сообщения по префиксу пути. instances/{id} покрывает member-set,
// GlobalEffects/{id} — эфемерные события, rooms/{id} — историю.
func (s *Server) relayChanges(ctx context.Context, c *wsConn) {
	roomCh, cancelRoom := s.store.Watch(ctx, rtstore.RoomPath(c.roomID))
	fxCh, cancelFx := s.store.Watch(ctx, "GlobalEffects/"+c.roomID)
	histCh, cancelHist := s.store.Watch(ctx, "rooms/"+c.roomID)
	defer cancelRoom()
	defer cancelFx()
	defer cancelHist()

	for {
		select {
		case <-ctx.Done():
			return
		case ch, ok := <-roomCh:
			if !ok {
				return
			}
			s.relayRoomChange(c, ch)
		case ch, ok := <-fxCh:
			if !ok {
				return
			}
			s.relayEffectChange(c, ch)
		case ch, ok := <-histCh:
			if !ok {
				return
			}
			if ch.Path == rtstore.HistoryUpdatePath(c.roomID) && !ch.Deleted() {
				_ = c.Send(Message{Type: TypeHistoryUpdate, Payload: ChangePayload{Path: ch.Path, Value: ch.Value}})
			} else {
				_ = c.Send(Message{Type: TypeChange, Payload: ChangePayload{Path: ch.Path, Value: ch.Value, Deleted: ch.Deleted()}})
			}
		}
	}
}

func (s *Server) relayRoomChange(c *wsConn, ch rtstore.Change) {
	usersPrefix := rtstore.RoomUsers(c.roomID) + "/"
	if strings.HasPrefix(ch.Path, usersPrefix) {
		userID := strings.TrimPrefix(ch.Path, usersPrefix)
		if ch.Deleted() {
			_ = c.Send(Message{Type: TypePeerLeft, Payload: PeerEventPayload{RoomID: c.roomID, UserID: userID}})
		} else {
			_ = c.Send(Message{Type: TypePeerJoined, Payload: PeerEventPayload{RoomID: c.roomID, UserID: userID}})
		}
		return
	}
	_ = c.Send(Message{Type: TypeChange, Payload: ChangePayload{Path: ch.Path, Value: ch.Value, Deleted: ch.Deleted()}})
}

func (s *Server) relayEffectChange(c *wsConn, ch rtstore.Change) {
	switch {
	case strings.HasPrefix(ch.Path, rtstore.EventsPrefix(c.roomID)+"/"):
		if ch.Deleted() {
			_ = c.Send(Message{Type: TypeEffectGone, Payload: ChangePayload{Path: ch.Path, Deleted: true}})
		} else {
			_ = c.Send(Message{Type: TypeEffect, Payload: ChangePayload{Path: ch.Path, Value: ch.Value}})
		}
	case strings.HasPrefix(ch.Path, rtstore.FlyingMessagesPrefix(c.roomID)+"/"):
		if !ch.Deleted() {
			_ = c.Send(Message{Type: TypeFlyingMessage, Payload: ChangePayload{Path: ch.Path, Value: ch.Value}})
		}
	}
}

func (s *Server) readLoop(ctx context.Context, c *wsConn) {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(1 << 20)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
		_ = s.presence.TouchPresence(ctx, c.roomID, c.userID)
		return nil
	})

	// клиент в WS ничего содержательного не шлёт: действия идут по HTTP,
	// сокет — подписка; входящие сообщения игнорируем
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeLoop(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(s.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		}
	}
}

// --- соединение ---

type wsConn struct {
	conn      *websocket.Conn
	roomID    string
	userID    string
	sendMu    chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

func newWsConn(c *websocket.Conn, roomID, userID string) *wsConn {
	return &wsConn{
		conn:   c,
		roomID: roomID,
		userID: userID,
		sendMu: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

func (c *wsConn) Send(msg Message) error {
	c.sendMu <- struct{}{}
	defer func() { <-c.sendMu }()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))

	return c.conn.WriteJSON(msg)
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })

	return c.conn.Close()
}

func (c *wsConn) UserID() string { return c.userID }
func (c *wsConn) RoomID() string { return c.roomID }
