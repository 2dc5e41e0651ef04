package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/v2/bson"

	"parley/internal/data"
	"parley/internal/metrics"
)

// handleListConversations returns the inbox: conversations by last
// activity with unread counts, mute flags and previews.
func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	actor, _, err := s.actorID(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	previews, err := s.convos.Inbox(r.Context(), actor)
	if err != nil {
		s.fail(w, err)
		return
	}

	out := make([]inboxView, 0, len(previews))
	for _, p := range previews {
		out = append(out, viewInboxEntry(p))
	}
	s.respond(w, http.StatusOK, out)
}

type createDirectRequest struct {
	UserID string `json:"userId"`
}

// handleCreateDirect finds or lazily creates the direct conversation with
// another user.
func (s *Server) handleCreateDirect(w http.ResponseWriter, r *http.Request) {
	actor, _, err := s.actorID(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	var req createDirectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.failInput(w, "invalid JSON body")
		return
	}
	other, err := parseObjectID(req.UserID)
	if err != nil {
		s.fail(w, err)
		return
	}

	convo, created, err := s.convos.FindOrCreateDirect(r.Context(), actor, other)
	if err != nil {
		s.fail(w, err)
		return
	}
	// Lookups of an existing pair are not creations.
	if created {
		metrics.ConversationsCreated.WithLabelValues("direct").Inc()
	}

	s.respond(w, http.StatusOK, viewConversation(convo))
}

type createGroupRequest struct {
	Name         string   `json:"name"`
	Participants []string `json:"participants"`
	Image        string   `json:"image,omitempty"`
}

// handleCreateGroup creates a group conversation with the actor as
// creator and admin.
func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	actor, _, err := s.actorID(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.failInput(w, "invalid JSON body")
		return
	}

	participants, err := parseObjectIDs(req.Participants)
	if err != nil {
		s.fail(w, err)
		return
	}

	convo, err := s.convos.CreateGroup(r.Context(), actor, req.Name, participants, req.Image)
	if err != nil {
		s.fail(w, err)
		return
	}
	metrics.ConversationsCreated.WithLabelValues("group").Inc()
	s.coord.ConversationUpdated(convo)

	s.respond(w, http.StatusCreated, viewConversation(convo))
}

type patchGroupRequest struct {
	Name  *string `json:"name,omitempty"`
	Image *string `json:"image,omitempty"`
}

// handlePatchGroup renames or restyles a group (admin only).
func (s *Server) handlePatchGroup(w http.ResponseWriter, r *http.Request) {
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

	var req patchGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.failInput(w, "invalid JSON body")
		return
	}

	convo, err := s.convos.UpdateGroup(r.Context(), convoID, actor, data.GroupPatch{Name: req.Name, Image: req.Image})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.coord.ConversationUpdated(convo)

	s.respond(w, http.StatusOK, viewConversation(convo))
}

// handleDeleteGroup deletes a group and all of its messages.
func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
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

	if err := s.convos.DeleteGroup(r.Context(), convoID, actor); err != nil {
		s.fail(w, err)
		return
	}

	s.respond(w, http.StatusOK, map[string]bool{"deleted": true})
}

type addParticipantsRequest struct {
	UserIDs []string `json:"userIds"`
}

// handleAddParticipants adds users to a group (admin only).
func (s *Server) handleAddParticipants(w http.ResponseWriter, r *http.Request) {
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

	var req addParticipantsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.failInput(w, "invalid JSON body")
		return
	}
	userIDs, err := parseObjectIDs(req.UserIDs)
	if err != nil {
		s.fail(w, err)
		return
	}

	convo, err := s.convos.AddParticipants(r.Context(), convoID, actor, userIDs)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.coord.ConversationUpdated(convo)

	s.respond(w, http.StatusOK, viewConversation(convo))
}

// handleRemoveParticipant removes a user from a group, or lets a user
// leave. An emptied group is deleted outright.
func (s *Server) handleRemoveParticipant(w http.ResponseWriter, r *http.Request) {
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
	target, err := parseObjectID(chi.URLParam(r, "userId"))
	if err != nil {
		s.fail(w, err)
		return
	}

	convo, err := s.convos.RemoveParticipant(r.Context(), convoID, actor, target)
	if err != nil {
		s.fail(w, err)
		return
	}

	if convo == nil {
		// Membership reached zero; the group is gone.
		s.respond(w, http.StatusOK, map[string]bool{"deleted": true})
		return
	}
	s.coord.ConversationUpdated(convo)

	s.respond(w, http.StatusOK, viewConversation(convo))
}

// handleToggleMute flips the actor's mute flag for the conversation.
func (s *Server) handleToggleMute(w http.ResponseWriter, r *http.Request) {
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

	convo, muted, err := s.convos.ToggleMute(r.Context(), convoID, actor)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.coord.ConversationUpdated(convo)

	s.respond(w, http.StatusOK, map[string]bool{"muted": muted})
}

// handleTyping pushes an ephemeral typing signal to the other connected
// participants. Nothing is persisted.
func (s *Server) handleTyping(w http.ResponseWriter, r *http.Request) {
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

	convo, err := s.convos.Get(r.Context(), convoID)
	if err != nil {
		s.fail(w, err)
		return
	}
	if !convo.HasParticipant(actor) {
		s.fail(w, data.NewError(data.KindForbidden, "actor is not a participant of this conversation"))
		return
	}

	s.coord.Typing(convo, actor)

	s.respond(w, http.StatusAccepted, map[string]bool{"sent": true})
}

func parseObjectIDs(hexIDs []string) ([]bson.ObjectID, error) {
	ids := make([]bson.ObjectID, 0, len(hexIDs))
	for _, h := range hexIDs {
		id, err := parseObjectID(h)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
