// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package chat

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocket frame events.
const (
	EventChatStart   = "chat.start"
	EventChatEnd     = "chat.end"
	EventChannelJoin = "chat.channel.join"
	EventChannelPart = "chat.channel.part"
	EventMessageNew  = "chat.message.new"
	EventNotify      = "new"
	EventRead        = "read"
	EventPing        = "ping"
	EventPong        = "pong"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 45 * time.Second
	maxFrameSize   = 16 * 1024
	sendBufferSize = 64
)

// Frame is an outgoing WebSocket frame.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// ClientFrame is an incoming WebSocket frame; the payload stays raw
// until the event is dispatched.
type ClientFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Hub tracks live connections and in-memory channel membership, fanning
// frames out to joined users. Durable membership lives in the Store;
// the hub only mirrors it for connected players.
type Hub struct {
	log *zap.Logger

	mu       sync.RWMutex
	conns    map[int64][]*Conn
	channels map[int64]map[int64]struct{}
	closed   bool
}

// NewHub creates a connection hub.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		log:      log,
		conns:    map[int64][]*Conn{},
		channels: map[int64]map[int64]struct{}{},
	}
}

// Conn is one player's WebSocket. All writes funnel through a single
// pump goroutine so concurrent senders never interleave frames.
type Conn struct {
	hub    *Hub
	userID int64
	ws     *websocket.Conn

	send chan []byte
	done chan struct{}
	once sync.Once
}

// UserID returns the owner of the connection.
func (conn *Conn) UserID() int64 { return conn.userID }

// Register adopts an upgraded WebSocket and starts its write pump.
func (hub *Hub) Register(userID int64, ws *websocket.Conn) *Conn {
	conn := &Conn{
		hub:    hub,
		userID: userID,
		ws:     ws,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}

	hub.mu.Lock()
	if hub.closed {
		hub.mu.Unlock()
		conn.stop()
		return conn
	}
	hub.conns[userID] = append(hub.conns[userID], conn)
	hub.mu.Unlock()

	go conn.writePump()
	mon.Event("chat_conn_opened")
	return conn
}

// Unregister drops the connection and closes the socket. The user's
// channel membership survives; they may reconnect.
func (hub *Hub) Unregister(conn *Conn) {
	hub.mu.Lock()
	list := hub.conns[conn.userID]
	for i, c := range list {
		if c == conn {
			hub.conns[conn.userID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(hub.conns[conn.userID]) == 0 {
		delete(hub.conns, conn.userID)
	}
	hub.mu.Unlock()

	conn.stop()
	mon.Event("chat_conn_closed")
}

// JoinChannel mirrors a durable join into the fan-out map.
func (hub *Hub) JoinChannel(channelID, userID int64) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	if hub.channels[channelID] == nil {
		hub.channels[channelID] = map[int64]struct{}{}
	}
	hub.channels[channelID][userID] = struct{}{}
}

// LeaveChannel removes the user from the fan-out map.
func (hub *Hub) LeaveChannel(channelID, userID int64) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	if members := hub.channels[channelID]; members != nil {
		delete(members, userID)
		if len(members) == 0 {
			delete(hub.channels, channelID)
		}
	}
}

// BroadcastChannel delivers a frame to every connected member of the
// channel, skipping the listed users.
func (hub *Hub) BroadcastChannel(ctx context.Context, channelID int64, frame Frame, except ...int64) {
	defer mon.Task()(&ctx)(nil)

	payload, err := json.Marshal(frame)
	if err != nil {
		hub.log.Error("frame marshal failed", zap.String("event", frame.Event), zap.Error(err))
		return
	}
	skip := make(map[int64]bool, len(except))
	for _, id := range except {
		skip[id] = true
	}

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	for userID := range hub.channels[channelID] {
		if skip[userID] {
			continue
		}
		for _, conn := range hub.conns[userID] {
			conn.push(payload)
		}
	}
}

// SendUser delivers a frame to every connection of one user.
func (hub *Hub) SendUser(ctx context.Context, userID int64, frame Frame) {
	defer mon.Task()(&ctx)(nil)

	payload, err := json.Marshal(frame)
	if err != nil {
		hub.log.Error("frame marshal failed", zap.String("event", frame.Event), zap.Error(err))
		return
	}
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	for _, conn := range hub.conns[userID] {
		conn.push(payload)
	}
}

// ConnectedUsers returns how many distinct users hold a connection.
func (hub *Hub) ConnectedUsers() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.conns)
}

// Close drops every connection.
func (hub *Hub) Close() error {
	hub.mu.Lock()
	hub.closed = true
	conns := make([]*Conn, 0, len(hub.conns))
	for _, list := range hub.conns {
		conns = append(conns, list...)
	}
	hub.conns = map[int64][]*Conn{}
	hub.channels = map[int64]map[int64]struct{}{}
	hub.mu.Unlock()

	for _, conn := range conns {
		conn.stop()
	}
	return nil
}

// push enqueues a payload. A full buffer stops the pump instead of
// blocking the hub; the stalled connection stays registered until its
// read loop notices the closed socket and unregisters, and pushing to a
// stopped conn is a no-op, so fan-out over the remaining members keeps
// going.
func (conn *Conn) push(payload []byte) {
	select {
	case <-conn.done:
		return
	default:
	}
	select {
	case conn.send <- payload:
	default:
		mon.Event("chat_conn_overflow")
		conn.stop()
	}
}

// stop ends the write pump. It never closes conn.send: senders may race
// with stopping and the done channel is the only signal the pump needs.
func (conn *Conn) stop() {
	conn.once.Do(func() {
		close(conn.done)
	})
}

// writePump is the single writer of the socket.
func (conn *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.ws.Close()
	}()

	for {
		select {
		case <-conn.done:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.ws.WriteMessage(websocket.CloseMessage, nil)
			return
		case payload := <-conn.send:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadFrames consumes client frames until the socket closes or the
// context ends, dispatching each to handler. It always returns after
// unregistering the connection.
func (conn *Conn) ReadFrames(ctx context.Context, handler func(ctx context.Context, frame ClientFrame)) {
	defer conn.hub.Unregister(conn)

	conn.ws.SetReadLimit(maxFrameSize)
	_ = conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for ctx.Err() == nil {
		_, payload, err := conn.ws.ReadMessage()
		if err != nil {
			return
		}
		var frame ClientFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			conn.hub.log.Debug("undecodable client frame", zap.Int64("user_id", conn.userID), zap.Error(err))
			continue
		}
		if frame.Event == EventChatEnd {
			return
		}
		handler(ctx, frame)
	}
}
