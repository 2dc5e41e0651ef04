package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/v2/bson"

	"parley/internal/auth"
	"parley/internal/data"
	"parley/internal/middleware"
	"parley/internal/realtime"
	"parley/internal/revoke"
)

func claimsFrom(r *http.Request) (*auth.Claims, bool) {
	return middleware.ClaimsFromContext(r.Context())
}

// Server wires the HTTP handlers to the stores, the auth manager, the
// revocation store and the realtime coordinator.
type Server struct {
	log     *logrus.Logger
	users   *data.UsersStore
	convos  *data.ConversationsStore
	msgs    *data.MessagesStore
	auth    *auth.JWTManager
	revoked revoke.Store
	hub     *realtime.Hub
	coord   *realtime.Coordinator
}

func newServer(
	log *logrus.Logger,
	users *data.UsersStore,
	convos *data.ConversationsStore,
	msgs *data.MessagesStore,
	authMgr *auth.JWTManager,
	revoked revoke.Store,
	hub *realtime.Hub,
	coord *realtime.Coordinator,
) *Server {
	return &Server{
		log:     log,
		users:   users,
		convos:  convos,
		msgs:    msgs,
		auth:    authMgr,
		revoked: revoked,
		hub:     hub,
		coord:   coord,
	}
}

// respond writes the success envelope.
func (s *Server) respond(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"data":    payload,
	})
}

// fail writes the failure envelope, mapping the domain error taxonomy to
// HTTP statuses. Corrupt-kind errors are logged in full but surfaced as a
// generic failure: they indicate storage corruption, not a user mistake.
func (s *Server) fail(w http.ResponseWriter, err error) {
	kind := data.KindOf(err)

	status := http.StatusInternalServerError
	message := err.Error()
	code := string(kind)

	switch kind {
	case data.KindInvalidInput:
		status = http.StatusBadRequest
	case data.KindForbidden:
		status = http.StatusForbidden
	case data.KindExpired:
		// Specialization of Forbidden: same status, distinct code so
		// clients can disable the edit control.
		status = http.StatusForbidden
	case data.KindNotFound:
		status = http.StatusNotFound
	case data.KindUploadFailed:
		status = http.StatusInternalServerError
	case data.KindCorrupt:
		s.log.WithError(err).Error("stored content failed to decode")
		message = "an internal error occurred"
	default:
		s.log.WithError(err).Error("unhandled error")
		message = "an internal error occurred"
		code = ""
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]interface{}{
		"success": false,
		"message": message,
	}
	if code != "" {
		body["errorCode"] = code
	}
	json.NewEncoder(w).Encode(body)
}

// failInput is shorthand for request-shape problems detected in handlers.
func (s *Server) failInput(w http.ResponseWriter, message string) {
	s.fail(w, data.NewError(data.KindInvalidInput, message))
}

// actorID resolves the authenticated actor from the request context. The
// perimeter middleware guarantees claims are present on protected routes.
func (s *Server) actorID(r *http.Request) (bson.ObjectID, *auth.Claims, error) {
	claims, ok := claimsFrom(r)
	if !ok {
		return bson.ObjectID{}, nil, data.NewError(data.KindForbidden, "missing authentication")
	}
	id, err := claims.UserObjectID()
	if err != nil {
		return bson.ObjectID{}, nil, data.NewError(data.KindInvalidInput, "malformed user id in token")
	}
	return id, claims, nil
}

// messageView is the wire shape of a message.
type messageView struct {
	ID             string                   `json:"id"`
	ConversationID string                   `json:"conversationId"`
	SenderID       string                   `json:"senderId,omitempty"`
	Kind           string                   `json:"kind"`
	Content        string                   `json:"content"`
	ReplyTo        string                   `json:"replyTo,omitempty"`
	ReadBy         []string                 `json:"readBy"`
	Reactions      map[string]data.Reaction `json:"reactions,omitempty"`
	CreatedAt      time.Time                `json:"createdAt"`
	EditedAt       *time.Time               `json:"editedAt,omitempty"`
}

func viewMessage(m *data.Message) messageView {
	v := messageView{
		ID:             m.ID.Hex(),
		ConversationID: m.ConversationID.Hex(),
		Kind:           m.Kind,
		Content:        m.Content,
		ReadBy:         hexList(m.ReadBy),
		Reactions:      m.Reactions,
		CreatedAt:      m.CreatedAt,
		EditedAt:       m.EditedAt,
	}
	if !m.SenderID.IsZero() {
		v.SenderID = m.SenderID.Hex()
	}
	if !m.ReplyTo.IsZero() {
		v.ReplyTo = m.ReplyTo.Hex()
	}
	return v
}

// conversationView is the wire shape of a conversation.
type conversationView struct {
	ID           string    `json:"id"`
	IsGroup      bool      `json:"isGroup"`
	GroupName    string    `json:"groupName,omitempty"`
	GroupImage   string    `json:"groupImage,omitempty"`
	CreatorID    string    `json:"creatorId,omitempty"`
	Participants []string  `json:"participants"`
	Admins       []string  `json:"admins,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func viewConversation(c *data.Conversation) conversationView {
	v := conversationView{
		ID:           c.ID.Hex(),
		IsGroup:      c.IsGroup,
		GroupName:    c.GroupName,
		GroupImage:   c.GroupImage,
		Participants: hexList(c.Participants),
		Admins:       hexList(c.Admins),
		UpdatedAt:    c.UpdatedAt,
	}
	if !c.CreatorID.IsZero() {
		v.CreatorID = c.CreatorID.Hex()
	}
	return v
}

// inboxView is one row of the conversation list.
type inboxView struct {
	conversationView
	Preview       string     `json:"preview"`
	Unread        int64      `json:"unread"`
	Muted         bool       `json:"muted"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty"`
}

func viewInboxEntry(p *data.ConversationPreview) inboxView {
	v := inboxView{
		conversationView: viewConversation(p.Conversation),
		Preview:          p.Preview,
		Unread:           p.Unread,
		Muted:            p.Muted,
	}
	if p.LastMessage != nil {
		t := p.LastMessage.CreatedAt
		v.LastMessageAt = &t
	}
	return v
}

func hexList(ids []bson.ObjectID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.Hex()
	}
	return out
}

// parseObjectID maps a malformed id to InvalidInput rather than NotFound:
// the caller sent garbage, not a reference to a missing document.
func parseObjectID(hexID string) (bson.ObjectID, error) {
	id, err := bson.ObjectIDFromHex(hexID)
	if err != nil {
		return bson.ObjectID{}, data.NewError(data.KindInvalidInput, "malformed id")
	}
	return id, nil
}
