// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package web

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tempora.dev/tempora/arcade/chat"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The game client is not a browser; origin checks buy nothing here.
	CheckOrigin: func(*http.Request) bool { return true },
}

// notificationServer upgrades the connection and parks it in the chat
// hub. The socket carries chat traffic and notification pushes; the
// client opens the session by sending a chat.start frame.
func (server *Server) notificationServer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	token := bearerToken(r)
	if token == "" {
		server.serveJSON(w, http.StatusUnauthorized, errorBody{Err: "missing bearer token", MsgKey: "unauthorized"})
		return
	}
	grant, err := server.services.Auth.VerifyAccess(ctx, token)
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the failure response.
		server.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := server.services.ChatHub.Register(grant.UserID, ws)
	conn.ReadFrames(ctx, func(ctx context.Context, frame chat.ClientFrame) {
		switch frame.Event {
		case chat.EventChatStart:
			if err := server.services.Chat.Start(ctx, conn.UserID()); err != nil {
				server.log.Warn("chat session start failed",
					zap.Int64("user_id", conn.UserID()), zap.Error(err))
			}
		}
	})
}
