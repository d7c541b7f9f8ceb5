package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/cwrk-planet/realtime-service/internal/collab"
	"github.com/cwrk-planet/realtime-service/internal/domain"
	"github.com/cwrk-planet/realtime-service/internal/service"
	httpmw "github.com/cwrk-planet/realtime-service/internal/transport/http/middleware"

	"github.com/go-chi/chi/v5"
)

const InternalTokenHeader = "X-Internal-Token"

type ChatSvc interface {
	Create(ctx context.Context, author domain.UserID, in service.CreateInput) (*domain.Message, error)
	Edit(ctx context.Context, user domain.UserID, id, content string) (*domain.Message, error)
	Delete(ctx context.Context, user domain.UserID, id string) (bool, error)
	History(ctx context.Context, user domain.UserID, target domain.Target, beforeID string, limit int) (*service.Page, error)
}

type Presence interface {
	Online() []domain.UserID
}

// EventPublisher - Redis-шина либо локальный collab.Handler.
type EventPublisher interface {
	Publish(ctx context.Context, ev collab.Event) error
}

type Handler struct {
	chatSvc       ChatSvc
	presence      Presence
	events        EventPublisher
	internalToken string
}

func NewHandler(chat ChatSvc, presence Presence, events EventPublisher, internalToken string) *Handler {
	return &Handler{
		chatSvc:       chat,
		presence:      presence,
		events:        events,
		internalToken: internalToken,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError переводит доменную ошибку в HTTP-статус.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidMessage),
		errors.Is(err, domain.ErrInvalidRoom),
		errors.Is(err, domain.ErrInvalidCursor):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrAuthenticationFailed):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotAMember), errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status >= 500 {
		httpmw.L(r.Context()).Error("handler."+op, "err", err)
	}
	writeJSON(w, status, ErrorResponse{Error: domain.Code(err), Message: err.Error()})
}

// GET /channels/{id}/messages?before=&limit=
func (h *Handler) ChannelHistory(w http.ResponseWriter, r *http.Request) {
	h.history(w, r, domain.Target{ChannelID: chi.URLParam(r, "id")})
}

// GET /conversations/{id}/messages?before=&limit=
func (h *Handler) ConversationHistory(w http.ResponseWriter, r *http.Request) {
	h.history(w, r, domain.Target{ConversationID: chi.URLParam(r, "id")})
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request, target domain.Target) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "invalid limit"})
			return
		}
		limit = n
	}
	page, err := h.chatSvc.History(r.Context(), httpmw.UserIDFromCtx(r.Context()), target, r.URL.Query().Get("before"), limit)
	if err != nil {
		writeError(w, r, "History", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// POST /messages
func (h *Handler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	var req CreateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "invalid json"})
		return
	}
	m, err := h.chatSvc.Create(r.Context(), httpmw.UserIDFromCtx(r.Context()), service.CreateInput{
		Target:        domain.Target{ChannelID: req.ChannelID, ConversationID: req.ConversationID},
		Content:       req.Content,
		AttachmentURL: req.AttachmentURL,
		ReplyToID:     req.ReplyToID,
	})
	if err != nil {
		writeError(w, r, "CreateMessage", err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// PATCH /messages/{id}
func (h *Handler) EditMessage(w http.ResponseWriter, r *http.Request) {
	var req EditMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "invalid json"})
		return
	}
	m, err := h.chatSvc.Edit(r.Context(), httpmw.UserIDFromCtx(r.Context()), chi.URLParam(r, "id"), req.Content)
	if err != nil {
		writeError(w, r, "EditMessage", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// DELETE /messages/{id}
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	deleted, err := h.chatSvc.Delete(r.Context(), httpmw.UserIDFromCtx(r.Context()), id)
	if err != nil {
		writeError(w, r, "DeleteMessage", err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteMessageResponse{ID: id, Deleted: deleted})
}

// GET /presence
func (h *Handler) Presence(w http.ResponseWriter, r *http.Request) {
	users := h.presence.Online()
	if users == nil {
		users = []domain.UserID{}
	}
	writeJSON(w, http.StatusOK, PresenceResponse{UserIDs: users})
}

// POST /internal/events
func (h *Handler) InternalEvent(w http.ResponseWriter, r *http.Request) {
	got := r.Header.Get(InternalTokenHeader)
	if h.internalToken == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.internalToken)) != 1 {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "authentication_failed"})
		return
	}
	var ev collab.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "invalid json"})
		return
	}
	if err := ev.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: err.Error()})
		return
	}
	if err := h.events.Publish(r.Context(), ev); err != nil {
		httpmw.L(r.Context()).Error("handler.InternalEvent", "type", ev.Type, "err", err)
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "unavailable", Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, EventAcceptedResponse{Status: "accepted"})
}
