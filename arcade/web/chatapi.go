// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package web

import (
	"net/http"

	"github.com/google/uuid"

	"tempora.dev/tempora/arcade/auth"
	"tempora.dev/tempora/arcade/chat"
	"tempora.dev/tempora/arcade/users"
)

func (server *Server) chatUpdates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	if !server.requireScope(w, r, auth.ScopeChatRead) {
		return
	}
	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	updates, err := server.services.Chat.Updates(ctx, user.ID, queryInt64(r, "since", 0))
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, updates)
}

func (server *Server) chatChannels(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	if !server.requireScope(w, r, auth.ScopeChatRead) {
		return
	}
	channels, err := server.services.Chat.PublicChannels(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, nonNil(channels))
}

type createChannelPayload struct {
	Type    string `json:"type"`
	Channel struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	} `json:"channel"`
	Message   string  `json:"message"`
	TargetIDs []int64 `json:"target_ids"`
}

// chatCreateChannel serves announcement creation; regular channels are
// seeded by configuration, not the API.
func (server *Server) chatCreateChannel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	if !server.requireScope(w, r, auth.ScopeChatWrite) {
		return
	}
	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	var payload createChannelPayload
	if err = decodeJSON(r, &payload); err != nil {
		server.serveError(w, r, err)
		return
	}
	if payload.Type != "ANNOUNCE" {
		server.serveError(w, r, chat.ErrValidation.New("only announcement channels can be created"))
		return
	}

	channel, msg, err := server.services.Chat.CreateAnnouncement(ctx, user.ID,
		payload.Channel.Name, payload.Channel.Description, payload.Message, payload.TargetIDs)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, map[string]any{
		"channel":        channel,
		"recent_message": msg,
	})
}

func (server *Server) chatJoinChannel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	if !server.requireScope(w, r, auth.ScopeChatWrite) {
		return
	}
	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	if pathID(r, "user") != user.ID {
		server.serveError(w, r, chat.ErrForbidden.New("cannot join on behalf of another user"))
		return
	}
	if err = server.services.Chat.Join(ctx, user.ID, pathID(r, "channel")); err != nil {
		server.serveError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (server *Server) chatLeaveChannel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	if !server.requireScope(w, r, auth.ScopeChatWrite) {
		return
	}
	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	if pathID(r, "user") != user.ID {
		server.serveError(w, r, chat.ErrForbidden.New("cannot part on behalf of another user"))
		return
	}
	if err = server.services.Chat.Leave(ctx, user.ID, pathID(r, "channel")); err != nil {
		server.serveError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sendMessagePayload struct {
	Message  string `json:"message"`
	IsAction bool   `json:"is_action"`
	UUID     string `json:"uuid"`
}

func (payload *sendMessagePayload) messageType() chat.MessageType {
	if payload.IsAction {
		return chat.MessageAction
	}
	return chat.MessagePlain
}

func (payload *sendMessagePayload) clientUUID() *uuid.UUID {
	if parsed, err := uuid.Parse(payload.UUID); err == nil {
		return &parsed
	}
	return nil
}

func (server *Server) chatSendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	if !server.requireScope(w, r, auth.ScopeChatWrite) {
		return
	}
	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	var payload sendMessagePayload
	if err = decodeJSON(r, &payload); err != nil {
		server.serveError(w, r, err)
		return
	}

	msg, err := server.services.Chat.Send(ctx, user.ID, pathID(r, "channel"),
		payload.Message, payload.messageType(), payload.clientUUID())
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, msg)
}

func (server *Server) chatMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	if !server.requireScope(w, r, auth.ScopeChatRead) {
		return
	}
	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	messages, senders, err := server.services.Chat.Messages(ctx, user.ID, pathID(r, "channel"),
		clampLimit(queryInt(r, "limit", 50), 50, 100),
		queryInt64(r, "since", 0), queryInt64(r, "until", 0))
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	userList := make([]*users.User, 0, len(senders))
	for _, sender := range senders {
		userList = append(userList, sender)
	}
	server.serveJSON(w, http.StatusOK, map[string]any{
		"messages": nonNil(messages),
		"users":    userList,
	})
}

func (server *Server) chatMarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	if !server.requireScope(w, r, auth.ScopeChatRead) {
		return
	}
	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	if err = server.services.Chat.MarkRead(ctx, user.ID, pathID(r, "channel"), pathID(r, "message")); err != nil {
		server.serveError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type newPMPayload struct {
	TargetID int64  `json:"target_id"`
	Message  string `json:"message"`
	IsAction bool   `json:"is_action"`
	UUID     string `json:"uuid"`
}

func (server *Server) chatNewPM(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	if !server.requireScope(w, r, auth.ScopeChatWrite) {
		return
	}
	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	var payload newPMPayload
	if err = decodeJSON(r, &payload); err != nil {
		server.serveError(w, r, err)
		return
	}

	channel, err := server.services.Chat.OpenPM(ctx, user.ID, payload.TargetID)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	send := sendMessagePayload{Message: payload.Message, IsAction: payload.IsAction, UUID: payload.UUID}
	msg, err := server.services.Chat.Send(ctx, user.ID, channel.ID,
		send.Message, send.messageType(), send.clientUUID())
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, map[string]any{
		"channel": channel,
		"message": msg,
	})
}

// chatAck refreshes presence and returns silences issued since the
// client's last acknowledgement.
func (server *Server) chatAck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	if !server.requireScope(w, r, auth.ScopeChatRead) {
		return
	}
	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	updates, err := server.services.Chat.Updates(ctx, user.ID, queryInt64(r, "since", 0))
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, map[string]any{"silences": nonNil(updates.Silences)})
}

func (server *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	list, err := server.services.Notifications.List(ctx, user.ID,
		r.URL.Query().Get("unread") == "true",
		clampLimit(queryInt(r, "limit", 50), 50, 100))
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	unread, err := server.services.Notifications.Unread(ctx, user.ID)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, map[string]any{
		"notifications": nonNil(list),
		"unread_count":  unread,
	})
}

type markReadPayload struct {
	IDs        []int64 `json:"ids"`
	Identities []struct {
		ID int64 `json:"id"`
	} `json:"identities"`
}

func (server *Server) markNotificationsRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	var payload markReadPayload
	if err = decodeJSON(r, &payload); err != nil {
		server.serveError(w, r, err)
		return
	}
	ids := payload.IDs
	for _, identity := range payload.Identities {
		ids = append(ids, identity.ID)
	}

	if err = server.services.Notifications.MarkRead(ctx, user.ID, ids); err != nil {
		server.serveError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
