package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"parley/internal/data"
	"parley/internal/metrics"
)

// handleListMessages returns one page of messages in chronological order
// and, as its documented dual effect, marks everything in the
// conversation as read by the requester.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	actor, _, err := s.actorID(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	convoID, err := parseObjectID(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))

	convo, err := s.convos.Get(r.Context(), convoID)
	if err != nil {
		s.fail(w, err)
		return
	}

	messages, err := s.msgs.List(r.Context(), convo, actor, page, pageSize)
	if err != nil {
		s.fail(w, err)
		return
	}

	out := make([]messageView, 0, len(messages))
	for _, m := range messages {
		out = append(out, viewMessage(m))
	}
	s.respond(w, http.StatusOK, out)
}

type sendMessageRequest struct {
	Kind            string `json:"kind,omitempty"` // defaults to text
	Content         string `json:"content"`
	ReplyTo         string `json:"replyTo,omitempty"`
	ClientMessageID string `json:"clientMessageId,omitempty"`
}

// handleSendMessage persists a message and notifies the other
// participants. Media payloads go through the upload collaborator first.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	actor, _, err := s.actorID(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	convoID, err := parseObjectID(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.failInput(w, "invalid JSON body")
		return
	}
	if req.Kind == "" {
		req.Kind = data.KindText
	}

	in := data.SendInput{
		Kind:            req.Kind,
		Content:         req.Content,
		ClientMessageID: req.ClientMessageID,
	}
	if req.ReplyTo != "" {
		if in.ReplyTo, err = parseObjectID(req.ReplyTo); err != nil {
			s.fail(w, err)
			return
		}
	}

	convo, err := s.convos.Get(r.Context(), convoID)
	if err != nil {
		s.fail(w, err)
		return
	}

	msg, err := s.msgs.Send(r.Context(), convo, actor, in)
	if err != nil {
		s.fail(w, err)
		return
	}
	metrics.MessagesSent.WithLabelValues(msg.Kind).Inc()
	s.coord.MessageCreated(convo, msg)

	s.respond(w, http.StatusCreated, viewMessage(msg))
}

type editMessageRequest struct {
	Content string `json:"content"`
}

// handleEditMessage replaces a text message's content within the edit
// window.
func (s *Server) handleEditMessage(w http.ResponseWriter, r *http.Request) {
	actor, _, err := s.actorID(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	convoID, err := parseObjectID(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	msgID, err := parseObjectID(chi.URLParam(r, "messageId"))
	if err != nil {
		s.fail(w, err)
		return
	}

	var req editMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.failInput(w, "invalid JSON body")
		return
	}

	convo, err := s.convos.Get(r.Context(), convoID)
	if err != nil {
		s.fail(w, err)
		return
	}

	msg, err := s.msgs.Edit(r.Context(), convo, msgID, actor, req.Content)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.coord.MessageEdited(convo, msg)

	s.respond(w, http.StatusOK, viewMessage(msg))
}

// handleDeleteMessage removes the sender's own message and repairs the
// conversation's last-message pointer when needed.
func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	actor, _, err := s.actorID(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	convoID, err := parseObjectID(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	msgID, err := parseObjectID(chi.URLParam(r, "messageId"))
	if err != nil {
		s.fail(w, err)
		return
	}

	convo, err := s.convos.Get(r.Context(), convoID)
	if err != nil {
		s.fail(w, err)
		return
	}

	if err := s.msgs.Delete(r.Context(), convo, msgID, actor); err != nil {
		s.fail(w, err)
		return
	}
	s.coord.MessageDeleted(convo, msgID)

	s.respond(w, http.StatusOK, map[string]bool{"deleted": true})
}

type reactRequest struct {
	// Kind is one of the six reaction kinds, or null/empty to remove.
	Kind *string `json:"kind"`
}

// handleReact applies single-slot reaction semantics and returns the
// message's reaction set after the change.
func (s *Server) handleReact(w http.ResponseWriter, r *http.Request) {
	actor, _, err := s.actorID(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	convoID, err := parseObjectID(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	msgID, err := parseObjectID(chi.URLParam(r, "messageId"))
	if err != nil {
		s.fail(w, err)
		return
	}

	var req reactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.failInput(w, "invalid JSON body")
		return
	}
	kind := ""
	if req.Kind != nil {
		kind = *req.Kind
	}

	convo, err := s.convos.Get(r.Context(), convoID)
	if err != nil {
		s.fail(w, err)
		return
	}

	reactions, err := s.msgs.React(r.Context(), convo, msgID, actor, kind)
	if err != nil {
		s.fail(w, err)
		return
	}
	metrics.ReactionsChanged.Inc()
	s.coord.ReactionChanged(convo, msgID, reactions)

	s.respond(w, http.StatusOK, map[string]interface{}{"reactions": reactions})
}

// handleUnreadGlobal returns the total unread count across all of the
// actor's conversations.
func (s *Server) handleUnreadGlobal(w http.ResponseWriter, r *http.Request) {
	actor, _, err := s.actorID(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	count, err := s.msgs.UnreadCountGlobal(r.Context(), actor)
	if err != nil {
		s.fail(w, err)
		return
	}

	s.respond(w, http.StatusOK, map[string]int64{"unread": count})
}
