package socketio

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"chatly-server/internal/auth"
	"chatly-server/internal/bot"
	"chatly-server/internal/crypto"
	"chatly-server/internal/model"
	"chatly-server/internal/store"
	"chatly-server/internal/userstore"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	maxPayload   int64         = 1000000
	writeTimeout time.Duration = 10 * time.Second
)

type Deps struct {
	Store       *store.Store
	Users       *userstore.Store
	Codec       *crypto.Codec
	Generator   bot.Generator
	TokenConfig auth.TokenConfig
	Logger      zerolog.Logger
}

// Server is the realtime gateway: it owns room membership (one room per chat
// id, rebuilt from zero on restart) and fans chat events out to room members.
// All authoritative state lives in the stores.
type Server struct {
	store       *store.Store
	users       *userstore.Store
	codec       *crypto.Codec
	generator   bot.Generator
	tokenConfig auth.TokenConfig
	log         zerolog.Logger

	upgrader websocket.Upgrader

	mu            sync.RWMutex
	rooms         map[string]map[*conn]struct{}
	connsBySocket map[*websocket.Conn]*conn
}

func NewServer(deps Deps) *Server {
	return &Server{
		store:       deps.Store,
		users:       deps.Users,
		codec:       deps.Codec,
		generator:   deps.Generator,
		tokenConfig: deps.TokenConfig,
		log:         deps.Logger.With().Str("component", "gateway").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		rooms:         make(map[string]map[*conn]struct{}),
		connsBySocket: make(map[*websocket.Conn]*conn),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	ws.SetReadLimit(maxPayload)

	c := newConn(ws)
	s.registerConn(c)
	defer s.unregisterConn(c)

	open := map[string]any{
		"sid":          c.sid,
		"upgrades":     []string{},
		"pingInterval": 25000,
		"pingTimeout":  20000,
		"maxPayload":   maxPayload,
	}
	openBytes, _ := json.Marshal(open)
	_ = c.writeText(string(engineOpen) + string(openBytes))

	go c.pingLoop()
	c.readLoop(func(msg string) {
		s.handleMessage(c, msg)
	})
}

func (s *Server) registerConn(c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connsBySocket[c.ws] = c
}

func (s *Server) unregisterConn(c *conn) {
	s.mu.Lock()
	delete(s.connsBySocket, c.ws)
	for room := range c.rooms {
		s.leaveRoomLocked(room, c)
	}
	c.rooms = make(map[string]struct{})
	s.mu.Unlock()

	c.close()
}

func (s *Server) joinRoom(roomID string, c *conn) {
	if roomID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.rooms[roomID]
	if !ok {
		set = make(map[*conn]struct{})
		s.rooms[roomID] = set
	}
	set[c] = struct{}{}
	c.rooms[roomID] = struct{}{}
}

func (s *Server) leaveRoomLocked(roomID string, c *conn) {
	set, ok := s.rooms[roomID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(s.rooms, roomID)
	}
}

func (s *Server) roomConns(roomID string, except *conn) []*conn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := s.rooms[roomID]
	conns := make([]*conn, 0, len(set))
	for c := range set {
		if c != except {
			conns = append(conns, c)
		}
	}
	return conns
}

func (s *Server) broadcastToRoom(roomID, event string, args ...any) {
	s.broadcastToRoomExcept(roomID, nil, event, args...)
}

func (s *Server) broadcastToRoomExcept(roomID string, except *conn, event string, args ...any) {
	payload, err := buildEventPacket("/", nil, event, args...)
	if err != nil {
		s.log.Error().Err(err).Str("event", event).Msg("broadcast encode failed")
		return
	}
	for _, c := range s.roomConns(roomID, except) {
		if err := c.writeText(string(engineMessage) + payload); err != nil {
			s.unregisterConn(c)
		}
	}
}

func (s *Server) emitToConn(c *conn, event string, args ...any) {
	payload, err := buildEventPacket("/", nil, event, args...)
	if err != nil {
		s.log.Error().Err(err).Str("event", event).Msg("emit encode failed")
		return
	}
	_ = c.writeText(string(engineMessage) + payload)
}

// emitError sends a scoped error event to the originating connection only.
func (s *Server) emitError(c *conn, msg string) {
	s.emitToConn(c, "chatError", gin.H{"message": msg})
}

func (s *Server) handleMessage(c *conn, msg string) {
	if msg == "" {
		return
	}

	switch enginePacketType(msg[0]) {
	case enginePong:
		c.markPong()
	case engineMessage:
		s.handleSocketPayload(c, msg[1:])
	case engineClose:
		c.close()
	}
}

type connectAuth struct {
	Token string `json:"token"`
}

func (s *Server) handleSocketPayload(c *conn, payload string) {
	pkt, err := parseSocketPacket(payload)
	if err != nil {
		return
	}

	switch pkt.Type {
	case socketConnect:
		s.handleConnect(c, pkt)
	case socketEvent:
		s.handleEvent(c, pkt)
	}
}

// handleConnect binds the connection to a credential-verified identity. Every
// later event's claimed user id is checked against this binding.
func (s *Server) handleConnect(c *conn, pkt socketPacket) {
	if c.connected.Load() {
		return
	}

	var authObj connectAuth
	if err := json.Unmarshal([]byte(pkt.Raw), &authObj); err != nil || authObj.Token == "" {
		s.emitError(c, "Missing token")
		c.close()
		return
	}
	claims, err := auth.VerifyToken(authObj.Token, s.tokenConfig)
	if err != nil || claims == nil || claims.UserID == "" {
		s.emitError(c, "Invalid authentication token")
		c.close()
		return
	}

	c.userID = claims.UserID
	c.connected.Store(true)

	connectPayload, err := buildConnectPacket(pkt.Namespace, c.sid)
	if err != nil {
		c.close()
		return
	}
	_ = c.writeText(string(engineMessage) + connectPayload)
}

func (s *Server) handleEvent(c *conn, pkt socketPacket) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("event", pkt.Event).Msg("event handler panicked")
			s.emitError(c, "Internal error")
		}
	}()

	if !c.connected.Load() {
		return
	}

	switch pkt.Event {
	case "ping":
		if pkt.ID != nil {
			if ackPayload, err := buildAckPacket(pkt.Namespace, *pkt.ID); err == nil {
				_ = c.writeText(string(engineMessage) + ackPayload)
			}
		}

	case "createChat":
		s.handleCreateChat(c, pkt)

	case "joinRoom":
		s.handleJoinRoom(c, pkt)

	case "sendMessage":
		s.handleSendMessage(c, pkt)

	case "createPrivateChat":
		s.handleCreatePrivateChat(c, pkt)

	case "joinPrivateRoom":
		s.handleJoinPrivateRoom(c, pkt)

	case "sendPrivateMessage":
		s.handleSendPrivateMessage(c, pkt)

	case "typing":
		s.handleTyping(c, pkt, "userTyping")

	case "stopTyping":
		s.handleTyping(c, pkt, "userStoppedTyping")

	case "markAsSeen":
		s.handleMarkAsSeen(c, pkt)

	case "addMessageReaction":
		s.handleMessageReaction(c, pkt)

	case "addReply":
		s.handleAddReply(c, pkt)

	case "addReplyReaction":
		s.handleReplyReaction(c, pkt)
	}
}

func decodeArg(pkt socketPacket, v any) bool {
	if len(pkt.Args) < 1 {
		return false
	}
	return json.Unmarshal(pkt.Args[0], v) == nil
}

// claimMatches rejects events whose claimed user id differs from the
// identity bound at connect time.
func (s *Server) claimMatches(c *conn, claimed string) bool {
	if claimed != c.userID {
		s.emitError(c, "User mismatch")
		return false
	}
	return true
}

func (s *Server) handleCreateChat(c *conn, pkt socketPacket) {
	var body struct {
		UserID string `json:"userId"`
	}
	if !decodeArg(pkt, &body) || body.UserID == "" {
		s.emitError(c, "Invalid request")
		return
	}
	if !s.claimMatches(c, body.UserID) {
		return
	}

	sess, err := s.store.CreateBotSession(c.userID, time.Now().UnixMilli())
	if err != nil {
		s.emitError(c, "Could not create chat")
		return
	}
	s.emitToConn(c, "chatCreated", gin.H{"chatId": sess.ChatID})
}

func (s *Server) handleJoinRoom(c *conn, pkt socketPacket) {
	// Clients emit the chat id as a bare string.
	var chatID string
	if !decodeArg(pkt, &chatID) || chatID == "" {
		var body struct {
			ChatID string `json:"chatId"`
		}
		if !decodeArg(pkt, &body) || body.ChatID == "" {
			s.emitError(c, "Invalid request")
			return
		}
		chatID = body.ChatID
	}
	s.joinRoom(chatID, c)
}

func (s *Server) handleSendMessage(c *conn, pkt socketPacket) {
	var body struct {
		ChatID  string `json:"chatId"`
		UserID  string `json:"userId"`
		Message string `json:"message"`
	}
	if !decodeArg(pkt, &body) || body.ChatID == "" {
		s.emitError(c, "Invalid request")
		return
	}
	if !s.claimMatches(c, body.UserID) {
		return
	}
	if body.Message == "" {
		s.emitError(c, "Message text required")
		return
	}

	now := time.Now().UnixMilli()
	sealed, err := s.codec.Encrypt(body.Message)
	if err != nil {
		s.emitError(c, "Could not send message")
		return
	}
	userMsg := model.BotMessage{Sender: "user", Ciphertext: sealed, Timestamp: now}
	if err := s.store.AppendBotMessage(c.userID, body.ChatID, userMsg, now); err != nil {
		s.emitError(c, "Could not send message")
		return
	}

	// Fixed emit order for one send: user message, typing, bot message,
	// stopped typing.
	s.broadcastToRoom(body.ChatID, "newMessage", gin.H{
		"chatId":    body.ChatID,
		"sender":    "user",
		"message":   body.Message,
		"timestamp": now,
	})
	s.broadcastToRoom(body.ChatID, "botTyping", gin.H{"chatId": body.ChatID})

	chatID := body.ChatID
	prompt := body.Message
	userID := c.userID
	go func() {
		reply := s.generateReply(prompt)
		replyAt := time.Now().UnixMilli()

		sealed, err := s.codec.Encrypt(reply)
		if err == nil {
			botMsg := model.BotMessage{Sender: "bot", Ciphertext: sealed, Timestamp: replyAt}
			err = s.store.AppendBotMessage(userID, chatID, botMsg, replyAt)
		}
		if err != nil {
			s.log.Error().Err(err).Str("chatId", chatID).Msg("bot reply persist failed")
			s.emitError(c, "Could not deliver bot reply")
			s.broadcastToRoom(chatID, "botStoppedTyping", gin.H{"chatId": chatID})
			return
		}

		s.broadcastToRoom(chatID, "newMessage", gin.H{
			"chatId":    chatID,
			"sender":    "bot",
			"message":   reply,
			"timestamp": replyAt,
		})
		s.broadcastToRoom(chatID, "botStoppedTyping", gin.H{"chatId": chatID})
	}()
}

// generateReply never fails: generator errors degrade to the fallback text.
func (s *Server) generateReply(message string) string {
	if s.generator == nil {
		return bot.Fallback
	}
	reply, err := s.generator.Reply(context.Background(), message)
	if err != nil || reply == "" {
		s.log.Warn().Err(err).Msg("reply generator degraded, using fallback")
		return bot.Fallback
	}
	return reply
}

func (s *Server) handleCreatePrivateChat(c *conn, pkt socketPacket) {
	var body struct {
		UserID       string `json:"userId"`
		TargetUserID string `json:"targetUserId"`
	}
	if !decodeArg(pkt, &body) || body.UserID == "" || body.TargetUserID == "" {
		s.emitError(c, "Invalid request")
		return
	}
	if !s.claimMatches(c, body.UserID) {
		return
	}
	if s.users != nil {
		if _, err := s.users.GetUserByID(body.TargetUserID); err != nil {
			s.emitError(c, "User not found")
			return
		}
	}

	chat, _, err := s.store.FindOrCreatePrivateChat(c.userID, body.TargetUserID, time.Now().UnixMilli())
	if err != nil {
		s.emitError(c, "Could not create chat")
		return
	}

	messages, err := s.decryptMessages(chat.ID, chat.Messages)
	if err != nil {
		s.emitError(c, "Could not read chat history")
		return
	}
	s.emitToConn(c, "chatPrivateCreated", gin.H{"chatId": chat.ID, "messages": messages})
}

func (s *Server) handleJoinPrivateRoom(c *conn, pkt socketPacket) {
	var body struct {
		ChatID string `json:"chatId"`
	}
	if !decodeArg(pkt, &body) || body.ChatID == "" {
		s.emitError(c, "Invalid request")
		return
	}
	if _, err := s.memberChat(c, body.ChatID); err != nil {
		return
	}
	s.joinRoom(body.ChatID, c)
}

// memberChat loads the chat and checks the connection's user is one of its
// two participants, emitting the scoped error itself on failure.
func (s *Server) memberChat(c *conn, chatID string) (model.PrivateChat, error) {
	chat, err := s.store.GetPrivateChat(chatID)
	if err != nil {
		s.emitError(c, "Chat not found")
		return model.PrivateChat{}, err
	}
	for _, m := range chat.Members {
		if m == c.userID {
			return chat, nil
		}
	}
	s.emitError(c, "Not a chat participant")
	return model.PrivateChat{}, store.ErrNotFound
}

func (s *Server) handleSendPrivateMessage(c *conn, pkt socketPacket) {
	var body struct {
		ChatID   string `json:"chatId"`
		SenderID string `json:"senderId"`
		Message  string `json:"message"`
	}
	if !decodeArg(pkt, &body) || body.ChatID == "" {
		s.emitError(c, "Invalid request")
		return
	}
	if !s.claimMatches(c, body.SenderID) {
		return
	}
	if body.Message == "" {
		s.emitError(c, "Message text required")
		return
	}
	if _, err := s.memberChat(c, body.ChatID); err != nil {
		return
	}

	now := time.Now().UnixMilli()
	sealed, err := s.codec.Encrypt(body.Message)
	if err != nil {
		s.emitError(c, "Could not send message")
		return
	}
	msg, err := s.store.AppendPrivateMessage(body.ChatID, c.userID, sealed, now)
	if err != nil {
		s.emitError(c, "Chat not found")
		return
	}

	s.broadcastToRoom(body.ChatID, "newPrivateMessage", gin.H{
		"_id":       msg.ID,
		"chatId":    body.ChatID,
		"sender":    msg.Sender,
		"text":      body.Message,
		"createdAt": msg.CreatedAt,
		"seen":      msg.Seen,
		"reactions": msg.Reactions,
		"replies":   []gin.H{},
	})
}

func (s *Server) handleTyping(c *conn, pkt socketPacket, event string) {
	var body struct {
		ChatID string `json:"chatId"`
		UserID string `json:"userId"`
	}
	if !decodeArg(pkt, &body) || body.ChatID == "" {
		return
	}
	if !s.claimMatches(c, body.UserID) {
		return
	}
	// Ephemeral: never persisted, sender excluded.
	s.broadcastToRoomExcept(body.ChatID, c, event, gin.H{"userId": c.userID})
}

func (s *Server) handleMarkAsSeen(c *conn, pkt socketPacket) {
	var body struct {
		ChatID string `json:"chatId"`
		UserID string `json:"userId"`
	}
	if !decodeArg(pkt, &body) || body.ChatID == "" {
		s.emitError(c, "Invalid request")
		return
	}
	if !s.claimMatches(c, body.UserID) {
		return
	}
	if _, err := s.memberChat(c, body.ChatID); err != nil {
		return
	}

	msgs, err := s.store.MarkSeen(body.ChatID, c.userID, time.Now().UnixMilli())
	if err != nil {
		s.emitError(c, "Chat not found")
		return
	}
	decrypted, err := s.decryptMessages(body.ChatID, msgs)
	if err != nil {
		s.emitError(c, "Could not read chat history")
		return
	}
	s.broadcastToRoom(body.ChatID, "messagesSeen", gin.H{
		"chatId":   body.ChatID,
		"seenBy":   c.userID,
		"messages": decrypted,
	})
}

func (s *Server) handleMessageReaction(c *conn, pkt socketPacket) {
	var body struct {
		ChatID    string `json:"chatId"`
		MessageID string `json:"messageId"`
		UserID    string `json:"userId"`
		Emoji     string `json:"emoji"`
	}
	if !decodeArg(pkt, &body) || body.ChatID == "" || body.MessageID == "" || body.Emoji == "" {
		s.emitError(c, "Invalid request")
		return
	}
	if !s.claimMatches(c, body.UserID) {
		return
	}
	if _, err := s.memberChat(c, body.ChatID); err != nil {
		return
	}

	reactions, err := s.store.SetMessageReaction(body.ChatID, body.MessageID, c.userID, body.Emoji)
	if err != nil {
		s.emitError(c, "Message not found")
		return
	}
	s.broadcastToRoom(body.ChatID, "messageReactionUpdated", gin.H{
		"messageId": body.MessageID,
		"reactions": reactions,
	})
}

func (s *Server) handleAddReply(c *conn, pkt socketPacket) {
	var body struct {
		ChatID    string `json:"chatId"`
		MessageID string `json:"messageId"`
		UserID    string `json:"userId"`
		Text      string `json:"text"`
	}
	if !decodeArg(pkt, &body) || body.ChatID == "" || body.MessageID == "" {
		s.emitError(c, "Invalid request")
		return
	}
	if !s.claimMatches(c, body.UserID) {
		return
	}
	if body.Text == "" {
		s.emitError(c, "Reply text required")
		return
	}
	if _, err := s.memberChat(c, body.ChatID); err != nil {
		return
	}

	sealed, err := s.codec.Encrypt(body.Text)
	if err != nil {
		s.emitError(c, "Could not send reply")
		return
	}
	replies, err := s.store.AppendReply(body.ChatID, body.MessageID, c.userID, sealed, time.Now().UnixMilli())
	if err != nil {
		s.emitError(c, "Message not found")
		return
	}
	decrypted, err := s.decryptReplies(replies)
	if err != nil {
		s.emitError(c, "Could not read replies")
		return
	}
	s.broadcastToRoom(body.ChatID, "messageRepliesUpdated", gin.H{
		"messageId": body.MessageID,
		"replies":   decrypted,
	})
}

func (s *Server) handleReplyReaction(c *conn, pkt socketPacket) {
	var body struct {
		ChatID    string `json:"chatId"`
		MessageID string `json:"messageId"`
		ReplyID   string `json:"replyId"`
		UserID    string `json:"userId"`
		Emoji     string `json:"emoji"`
	}
	if !decodeArg(pkt, &body) || body.ChatID == "" || body.MessageID == "" || body.ReplyID == "" || body.Emoji == "" {
		s.emitError(c, "Invalid request")
		return
	}
	if !s.claimMatches(c, body.UserID) {
		return
	}
	if _, err := s.memberChat(c, body.ChatID); err != nil {
		return
	}

	reactions, err := s.store.SetReplyReaction(body.ChatID, body.MessageID, body.ReplyID, c.userID, body.Emoji)
	if err != nil {
		s.emitError(c, "Reply not found")
		return
	}
	s.broadcastToRoom(body.ChatID, "replyReactionUpdated", gin.H{
		"messageId": body.MessageID,
		"replyId":   body.ReplyID,
		"reactions": reactions,
	})
}

func (s *Server) decryptMessages(chatID string, msgs []model.PrivateMessage) ([]gin.H, error) {
	out := make([]gin.H, 0, len(msgs))
	for _, m := range msgs {
		text, err := s.codec.Decrypt(m.Ciphertext)
		if err != nil {
			return nil, err
		}
		replies, err := s.decryptReplies(m.Replies)
		if err != nil {
			return nil, err
		}
		entry := gin.H{
			"_id":       m.ID,
			"chatId":    chatID,
			"sender":    m.Sender,
			"text":      text,
			"createdAt": m.CreatedAt,
			"seen":      m.Seen,
			"reactions": m.Reactions,
			"replies":   replies,
		}
		if m.SeenAt != 0 {
			entry["seenAt"] = m.SeenAt
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *Server) decryptReplies(replies []model.Reply) ([]gin.H, error) {
	out := make([]gin.H, 0, len(replies))
	for _, r := range replies {
		text, err := s.codec.Decrypt(r.Ciphertext)
		if err != nil {
			return nil, err
		}
		out = append(out, gin.H{
			"_id":       r.ID,
			"sender":    r.Sender,
			"content":   text,
			"createdAt": r.CreatedAt,
			"reactions": r.Reactions,
		})
	}
	return out, nil
}

type conn struct {
	ws *websocket.Conn

	sid string

	connected atomic.Bool
	userID    string

	rooms map[string]struct{} // guarded by Server.mu

	sendMu sync.Mutex

	pingMu       sync.Mutex
	awaitingPong bool
	pingSentAt   time.Time
	nextPingAt   time.Time

	closed atomic.Bool
}

func newConn(ws *websocket.Conn) *conn {
	return &conn{
		ws:         ws,
		sid:        uuid.NewString(),
		rooms:      make(map[string]struct{}),
		nextPingAt: time.Now().Add(25 * time.Second),
	}
}

func (c *conn) close() {
	if c.closed.Swap(true) {
		return
	}
	_ = c.ws.Close()
}

func (c *conn) writeText(msg string) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, []byte(msg))
}

func (c *conn) readLoop(onMessage func(string)) {
	defer c.close()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		onMessage(string(data))
	}
}

func (c *conn) pingLoop() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		if c.closed.Load() {
			return
		}
		now := time.Now()
		c.pingMu.Lock()
		awaiting := c.awaitingPong
		pingSentAt := c.pingSentAt
		nextPingAt := c.nextPingAt
		if awaiting && now.Sub(pingSentAt) > 20*time.Second {
			c.pingMu.Unlock()
			c.close()
			return
		}
		if !awaiting && !now.Before(nextPingAt) {
			c.awaitingPong = true
			c.pingSentAt = now
			c.nextPingAt = now.Add(25 * time.Second)
			c.pingMu.Unlock()
			_ = c.writeText(string(enginePing))
			continue
		}
		c.pingMu.Unlock()
	}
}

func (c *conn) markPong() {
	c.pingMu.Lock()
	c.awaitingPong = false
	c.pingMu.Unlock()
}
