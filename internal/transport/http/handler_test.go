package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/realtime-service/internal/collab"
	"github.com/cwrk-planet/realtime-service/internal/dispatch"
	"github.com/cwrk-planet/realtime-service/internal/domain"
	"github.com/cwrk-planet/realtime-service/internal/gateway"
	"github.com/cwrk-planet/realtime-service/internal/memory"
	"github.com/cwrk-planet/realtime-service/internal/rooms"
	"github.com/cwrk-planet/realtime-service/internal/service"
)

const testSecret = "http-secret"

type recordingPublisher struct {
	events []collab.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev collab.Event) error {
	p.events = append(p.events, ev)
	return p.err
}

type staticPresence []domain.UserID

func (s staticPresence) Online() []domain.UserID { return s }

type fixture struct {
	router  http.Handler
	members *memory.Membership
	events  *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	auth, err := gateway.NewJWTVerifier(gateway.JWTConfig{Alg: gateway.AlgHS256, Secret: testSecret})
	require.NoError(t, err)

	members := memory.NewMembership(false)
	disp := dispatch.New(rooms.NewManager(), dispatch.OverflowDrop)
	chat := service.NewChatService(memory.NewMessageStore(), members, disp, service.Config{DefaultLimit: 2, MaxLimit: 5})
	events := &recordingPublisher{}

	h := NewHandler(chat, staticPresence{"u1"}, events, "internal-secret")
	router := NewRouter(RouterDeps{
		Handler: h,
		Auth:    auth,
		WS:      func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) },
	})
	return &fixture{router: router, members: members, events: events}
}

func bearer(t *testing.T, user string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, gateway.AccessClaims{StandardClaims: jwt.StandardClaims{
		Subject:   user,
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	}}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + s
}

func (f *fixture) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set("Authorization", bearer(t, user))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestRouter_RequiresAuth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/presence", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/presence", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_Health(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = f.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/ws", "", nil)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestHandler_MessageLifecycle(t *testing.T) {
	f := newFixture(t)
	f.members.Grant(domain.ChannelRoom("c1"), "u1", "u2")

	var ids []string
	for _, text := range []string{"one", "two", "three"} {
		rec := f.do(t, http.MethodPost, "/messages", "u1", CreateMessageRequest{ChannelID: "c1", Content: text})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		ids = append(ids, decodeBody[domain.Message](t, rec).ID)
	}

	rec := f.do(t, http.MethodGet, "/channels/c1/messages", "u2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody[service.Page](t, rec)
	require.Len(t, page.Items, 2)
	assert.Equal(t, ids[2], page.Items[0].ID)
	assert.Equal(t, ids[1], page.Items[1].ID)
	assert.Equal(t, ids[1], page.NextCursor)

	rec = f.do(t, http.MethodGet, "/channels/c1/messages?before="+page.NextCursor, "u2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page = decodeBody[service.Page](t, rec)
	require.Len(t, page.Items, 1)
	assert.Equal(t, ids[0], page.Items[0].ID)
	assert.Empty(t, page.NextCursor)

	rec = f.do(t, http.MethodPatch, "/messages/"+ids[0], "u2", EditMessageRequest{Content: "hijack"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decodeBody[ErrorResponse](t, rec).Error)

	rec = f.do(t, http.MethodPatch, "/messages/"+ids[0], "u1", EditMessageRequest{Content: "edited"})
	require.Equal(t, http.StatusOK, rec.Code)
	edited := decodeBody[domain.Message](t, rec)
	assert.Equal(t, "edited", edited.Content)
	assert.NotNil(t, edited.EditedAt)

	rec = f.do(t, http.MethodDelete, "/messages/"+ids[0], "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[DeleteMessageResponse](t, rec).Deleted)

	rec = f.do(t, http.MethodDelete, "/messages/"+ids[0], "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[DeleteMessageResponse](t, rec).Deleted)

	rec = f.do(t, http.MethodPatch, "/messages/"+ids[0], "u1", EditMessageRequest{Content: "again"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_Errors(t *testing.T) {
	f := newFixture(t)
	f.members.Grant(domain.ConversationRoom("d1"), "u1")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"not a member", http.MethodGet, "/channels/other/messages", nil, http.StatusForbidden, "not_a_member"},
		{"bad cursor", http.MethodGet, "/conversations/d1/messages?before=zzz", nil, http.StatusBadRequest, "invalid_cursor"},
		{"bad limit", http.MethodGet, "/conversations/d1/messages?limit=x", nil, http.StatusBadRequest, "bad_request"},
		{"both targets", http.MethodPost, "/messages", CreateMessageRequest{ChannelID: "c", ConversationID: "d1", Content: "x"}, http.StatusBadRequest, "invalid_message"},
		{"empty content", http.MethodPost, "/messages", CreateMessageRequest{ConversationID: "d1"}, http.StatusBadRequest, "invalid_message"},
		{"bad json", http.MethodPost, "/messages", "not an object", http.StatusBadRequest, "bad_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, "u1", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decodeBody[ErrorResponse](t, rec).Error)
		})
	}
}

func TestHandler_Presence(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/presence", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []domain.UserID{"u1"}, decodeBody[PresenceResponse](t, rec).UserIDs)
}

func TestHandler_InternalEvent(t *testing.T) {
	f := newFixture(t)
	ev := collab.Event{Type: collab.EventChannelDeleted, ChannelID: "c1"}

	post := func(token string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
		req := httptest.NewRequest(http.MethodPost, "/internal/events", &buf)
		if token != "" {
			req.Header.Set(InternalTokenHeader, token)
		}
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, post("", ev).Code)
	assert.Equal(t, http.StatusUnauthorized, post("wrong", ev).Code)
	assert.Equal(t, http.StatusBadRequest, post("internal-secret", collab.Event{Type: "nope"}).Code)
	assert.Empty(t, f.events.events)

	assert.Equal(t, http.StatusAccepted, post("internal-secret", ev).Code)
	require.Len(t, f.events.events, 1)
	assert.Equal(t, "c1", f.events.events[0].ChannelID)

	f.events.err = errors.New("redis down")
	assert.Equal(t, http.StatusServiceUnavailable, post("internal-secret", ev).Code)
}
